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

package render

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"
)

// Pager provides page bitmaps.  [*Cache] implements this interface.
type Pager interface {
	GetPage(ctx context.Context, studentID string, page int, scale float64) (*image.RGBA, error)
}

// Frame is the content of a viewport.  If the page could not be shown,
// Image is nil and Err gives the reason.
type Frame struct {
	Key        Key
	Image      *image.RGBA
	Err        error
	Generation uint64
}

// Viewport shows one page at a time.
//
// Every call to [Viewport.Show] starts a new generation and cancels the
// render of the previous one.  A render which finishes after a newer
// request was made is discarded, so the committed frame always belongs to
// the most recent request.
type Viewport struct {
	pages   Pager
	log     zerolog.Logger
	metrics *Metrics

	// OnCommit, if set, is called with the viewport lock held whenever a
	// new frame is committed.
	OnCommit func(Frame)

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current Frame
}

// NewViewport creates a viewport which obtains its bitmaps from pages.
// The metrics may be nil.
func NewViewport(pages Pager, log zerolog.Logger, metrics *Metrics) *Viewport {
	return &Viewport{
		pages:   pages,
		log:     log,
		metrics: metrics,
	}
}

// Show renders the page given by key and commits it to the viewport.
//
// If the request is superseded by another call to Show before the render
// completes, nothing is committed and [ErrRenderCancelled] is returned.
// Load errors are committed as a frame without image, and are also
// returned.
func (v *Viewport) Show(ctx context.Context, key Key) (Frame, error) {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()
	defer cancel()

	img, err := v.pages.GetPage(ctx, key.StudentID, key.Page, key.Scale)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		v.metrics.stale()
		v.log.Debug().Str("student", key.StudentID).Int("page", key.Page).
			Uint64("generation", gen).Msg("stale render discarded")
		return Frame{}, ErrRenderCancelled
	}
	if ctx.Err() != nil && err != nil {
		// the caller gave up, the previous frame stays visible
		return Frame{}, ErrRenderCancelled
	}

	frame := Frame{Key: key, Image: img, Err: err, Generation: gen}
	v.current = frame
	if v.OnCommit != nil {
		v.OnCommit(frame)
	}
	return frame, err
}

// Current returns the most recently committed frame.  Before the first
// commit, the zero Frame is returned.
func (v *Viewport) Current() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Generation returns the number of the most recent request.
func (v *Viewport) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}
