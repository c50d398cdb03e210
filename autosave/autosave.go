// seehuhn.de/go/exammark - mark up and export scanned exam PDFs
// Copyright (C) 2026  The exammark authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package autosave writes annotation changes to durable storage.
//
// Edits arrive in bursts while the grader drags a shape or types a note.
// A [Saver] waits until no edit has happened for a short while and then
// writes the current list of every modified student in one go.
package autosave

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"seehuhn.de/go/exammark/annotation"
)

// DefaultDelay is the quiet period after the last edit before annotations
// are written.
const DefaultDelay = 300 * time.Millisecond

// Saver persists the annotation lists of a [annotation.Store].
type Saver struct {
	store   *annotation.Store
	persist annotation.Persister
	log     zerolog.Logger

	// OnError, if set, is called when a background save fails.  The failed
	// list stays pending and is written again after the next edit or on
	// the next call to Flush.
	OnError func(studentID string, err error)

	debounced func(func())

	mu    sync.Mutex
	dirty map[string]bool

	flushMu sync.Mutex
}

// New creates a saver and subscribes it to changes of store.
// A delay of zero selects DefaultDelay.
func New(store *annotation.Store, persist annotation.Persister, delay time.Duration, log zerolog.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	s := &Saver{
		store:     store,
		persist:   persist,
		log:       log,
		debounced: debounce.New(delay),
		dirty:     make(map[string]bool),
	}
	store.OnChange(s.changed)
	return s
}

func (s *Saver) changed(c annotation.Change) {
	if c.Op == annotation.OpReplace {
		// lists installed by Replace come from storage
		return
	}
	s.mu.Lock()
	s.dirty[c.StudentID] = true
	s.mu.Unlock()

	s.debounced(s.background)
}

func (s *Saver) background() {
	err := s.Flush(context.Background())
	if err != nil {
		s.log.Warn().Err(err).Msg("saving annotations failed, will retry")
	}
}

// Pending returns the students whose changes have not been written yet.
func (s *Saver) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.dirty))
}

// Flush writes all pending changes immediately.
// Students whose save fails stay pending; the errors are joined.
func (s *Saver) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	students := slices.Sorted(maps.Keys(s.dirty))
	clear(s.dirty)
	s.mu.Unlock()

	var errs []error
	for _, student := range students {
		list := s.store.List(student)
		err := s.persist.Save(ctx, student, list)
		if err != nil {
			s.mu.Lock()
			s.dirty[student] = true
			s.mu.Unlock()

			if s.OnError != nil {
				s.OnError(student, err)
			}
			errs = append(errs, err)
			continue
		}
		s.log.Debug().Str("student", student).Int("count", len(list)).Msg("autosaved")
	}
	return errors.Join(errs...)
}
