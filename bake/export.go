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

package bake

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/docsource"
)

// DefaultNameTemplate is the file name of exported documents.
// "{student}" is replaced by the student id.
const DefaultNameTemplate = "{student}_annotated.pdf"

// ManifestName is the name under which the list of skipped students is
// stored in the sink.
const ManifestName = "skipped.txt"

// Skip records a student who was left out of an export.
type Skip struct {
	StudentID string
	Reason    string
}

// Manifest summarizes an export.
type Manifest struct {
	// Exported lists the names of the files written to the sink, in the
	// order of the students passed to [Exporter.Run].
	Exported []string

	// Skipped lists the students whose document could not be exported.
	Skipped []Skip
}

// String returns one line per skipped student.
func (m *Manifest) String() string {
	b := &strings.Builder{}
	for _, s := range m.Skipped {
		fmt.Fprintf(b, "%s: %s\n", s.StudentID, s.Reason)
	}
	return b.String()
}

// Exporter bakes the annotations of many students.
type Exporter struct {
	Docs        docsource.Source
	Annotations annotation.Loader
	Sink        Sink

	// Concurrency limits the number of students processed at the same
	// time.  If this is zero, the number of CPUs is used.
	Concurrency int

	// NameTemplate gives the output file name.  If this is empty,
	// [DefaultNameTemplate] is used.
	NameTemplate string

	// Progress, if set, is called after every student with the number
	// of students processed so far.
	Progress func(done, total int)

	Log zerolog.Logger
}

type result struct {
	name string
	skip *Skip
}

// Run exports the documents of the given students.
//
// A student whose document or annotations cannot be loaded, or whose
// document cannot be baked, is skipped and recorded in the manifest;
// this does not affect the other students.  Run only fails if ctx is
// cancelled or if the sink reports an error.  A panic during the
// processing of one student is also recorded as a skip.
func (e *Exporter) Run(ctx context.Context, students []string) (*Manifest, error) {
	limit := e.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]result, len(students))
	var progressMu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, student := range students {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.exportGuarded(gctx, student)
			if err != nil {
				return err
			}
			results[i] = res

			if e.Progress != nil {
				progressMu.Lock()
				done++
				e.Progress(done, len(students))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{}
	for _, res := range results {
		if res.skip != nil {
			m.Skipped = append(m.Skipped, *res.skip)
		} else {
			m.Exported = append(m.Exported, res.name)
		}
	}
	if len(m.Skipped) > 0 {
		if err := e.Sink.Put(ManifestName, []byte(m.String())); err != nil {
			return nil, err
		}
	}
	e.Log.Info().Int("exported", len(m.Exported)).Int("skipped", len(m.Skipped)).Msg("export finished")
	return m, nil
}

// exportGuarded calls exportOne.  A panic while processing a student,
// for example on a document which trips up the PDF library, turns into
// a skip.
func (e *Exporter) exportGuarded(ctx context.Context, student string) (res result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.Log.Error().Str("student", student).Interface("panic", r).
				Bytes("stack", debug.Stack()).Msg("export panicked")
			res = result{skip: &Skip{StudentID: student, Reason: fmt.Sprintf("internal error: %v", r)}}
			err = nil
		}
	}()
	return e.exportOne(ctx, student)
}

// exportOne bakes the document of a single student.  Only errors which
// must abort the whole export are returned; everything else results in a
// skip.
func (e *Exporter) exportOne(ctx context.Context, student string) (result, error) {
	skip := func(reason string, err error) (result, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result{}, ctxErr
		}
		msg := reason
		if err != nil {
			msg = reason + ": " + err.Error()
		}
		e.Log.Warn().Err(err).Str("student", student).Msg(reason)
		return result{skip: &Skip{StudentID: student, Reason: msg}}, nil
	}

	src, err := e.Docs.Open(ctx, student)
	if errors.Is(err, docsource.ErrNotFound) {
		return skip("document not found", nil)
	} else if err != nil {
		return skip("cannot read document", err)
	}

	anns, err := e.Annotations.Load(ctx, student)
	if err != nil {
		return skip("cannot load annotations", err)
	}

	out, err := bakeDocument(src, anns, e.Log.With().Str("student", student).Logger())
	if err != nil {
		return skip("cannot bake annotations", err)
	}

	name := e.fileName(student)
	if err := e.Sink.Put(name, out); err != nil {
		return result{}, fmt.Errorf("%s: %w", name, err)
	}
	e.Log.Debug().Str("student", student).Int("annotations", len(anns)).Str("file", name).Msg("exported")
	return result{name: name}, nil
}

func (e *Exporter) fileName(student string) string {
	tmpl := e.NameTemplate
	if tmpl == "" {
		tmpl = DefaultNameTemplate
	}
	return strings.ReplaceAll(tmpl, "{student}", student)
}
