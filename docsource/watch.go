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

package docsource

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports students whose document in a [Dir] was created,
// modified, removed or renamed.
type Watcher struct {
	w      *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Watch starts watching dir.  The changed function is called from a
// background goroutine with the id of the affected student.
func Watch(ctx context.Context, dir Dir, changed func(studentID string), log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(string(dir)); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{w: fw, cancel: cancel}
	w.wg.Add(1)
	go w.loop(ctx, changed, log)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, changed func(string), log zerolog.Logger) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id, ok := studentFromName(filepath.Base(event.Name))
			if !ok {
				continue
			}
			log.Debug().Str("student", id).Stringer("op", event.Op).Msg("document changed")
			changed(id)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("document watch error")
		}
	}
}

// Close stops the watcher and waits for the background goroutine to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.w.Close()
	w.wg.Wait()
	return err
}
