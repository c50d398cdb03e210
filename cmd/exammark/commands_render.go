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

package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/bake"
	"seehuhn.de/go/exammark/docsource"
	"seehuhn.de/go/exammark/raster"
	"seehuhn.de/go/exammark/render"
)

func buildRenderCmd(a *app) *cobra.Command {
	var (
		scale     float64
		annotated bool
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "render <student> <page> <output.png>",
		Short: "Render a page of an exam to a PNG file",
		Long: `Render one page of a student's exam, as it is shown while grading.

With --annotated, the saved annotations are drawn onto the page the same
way as on export.  With --watch, the image is rendered again whenever the
exam document changes, until the command is interrupted.  While watching,
the first pages of the neighbouring exams are rendered in the background.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := strconv.Atoi(args[1])
			if err != nil || page < 1 {
				return fmt.Errorf("invalid page number %q", args[1])
			}
			if !cmd.Flags().Changed("scale") {
				scale = a.cfg.Render.DefaultScale
			}
			return runRender(cmd, a, render.Key{StudentID: args[0], Page: page, Scale: scale}, args[2], annotated, watch)
		},
	}
	cmd.Flags().Float64Var(&scale, "scale", 1.5, "pixels per PDF unit")
	cmd.Flags().BoolVar(&annotated, "annotated", false, "draw the saved annotations")
	cmd.Flags().BoolVar(&watch, "watch", false, "render again when the document changes")
	return cmd
}

// annotatedSource returns documents with the saved annotations baked in.
type annotatedSource struct {
	docs docsource.Source
	anns annotation.Loader
}

func (s *annotatedSource) Open(ctx context.Context, studentID string) ([]byte, error) {
	src, err := s.docs.Open(ctx, studentID)
	if err != nil {
		return nil, err
	}
	list, err := s.anns.Load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return bake.BakeDocument(src, list)
}

func runRender(cmd *cobra.Command, a *app, key render.Key, outFile string, annotated, watch bool) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dir := docsource.Dir(a.cfg.ExamsDir)
	var src docsource.Source = dir
	if annotated {
		persist, closeStorage, err := a.openStorage()
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeStorage()) }()
		src = &annotatedSource{docs: dir, anns: persist}
	}

	reg := prometheus.NewRegistry()
	metrics := render.NewMetrics(reg)
	cache, err := render.NewCache(src, &raster.Renderer{Log: a.log}, &render.Options{
		MaxPages:        a.cfg.Render.MaxPages,
		MaxDocuments:    a.cfg.Render.MaxDocuments,
		PrefetchWorkers: a.cfg.Render.PrefetchWorkers,
		Log:             a.log,
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}
	defer cache.Close()
	defer a.logMetrics(reg)

	vp := render.NewViewport(cache, a.log, metrics)
	show := func() error {
		frame, err := vp.Show(ctx, key)
		if err != nil {
			return err
		}
		if err := writePNG(outFile, frame); err != nil {
			return err
		}
		a.log.Info().Str("student", key.StudentID).Int("page", key.Page).
			Str("file", outFile).Msg("page rendered")
		return nil
	}
	if err := show(); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	// While watching, the first pages of the exams before and after this
	// one in the roster are kept ready.
	prefetch := func() { prefetchNeighbours(cache, dir, key, a.log) }
	prefetch()

	changed := make(chan struct{}, 1)
	w, err := docsource.Watch(ctx, dir, func(studentID string) {
		cache.Invalidate(studentID)
		if studentID != key.StudentID {
			prefetch()
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	}, a.log)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, w.Close()) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := show(); errors.Is(err, render.ErrRenderCancelled) {
				return nil
			} else if err != nil {
				// the file may be half written; wait for the next change
				a.log.Warn().Err(err).Msg("rendering failed")
			}
		}
	}
}

// prefetchNeighbours starts rendering the first pages of the students
// next to key.StudentID in the sorted roster of dir.
func prefetchNeighbours(cache *render.Cache, dir docsource.Dir, key render.Key, log zerolog.Logger) {
	students, err := dir.Students()
	if err != nil {
		log.Debug().Err(err).Msg("cannot list students")
		return
	}
	cache.PrefetchNeighbours(students, key.StudentID, key.Scale)
}

func writePNG(name string, frame render.Frame) error {
	if frame.Err != nil {
		return frame.Err
	}
	out, err := os.Create(name)
	if err != nil {
		return err
	}
	err = png.Encode(out, frame.Image)
	return errors.Join(err, out.Close())
}

// logMetrics writes the counters of the render cache to the debug log.
func (a *app) logMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		a.log.Debug().Err(err).Msg("cannot gather metrics")
		return
	}
	ev := a.log.Debug()
	for _, mf := range families {
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		ev = ev.Float64(mf.GetName(), total)
	}
	ev.Msg("render cache statistics")
}
