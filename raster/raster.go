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

// Package raster renders pages of scanned exams into bitmaps.
//
// The content stream is interpreted by a [reader.Reader], which keeps track
// of the graphics state.  The renderer is aimed at scanned documents: it
// paints image XObjects, form XObjects and filled or stroked paths.  Text is
// not rendered.  Images are resampled with nearest-neighbour interpolation
// only, so that the pixels of the scan stay sharp at every zoom level.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"maps"
	"math"

	"github.com/rs/zerolog"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/reader"

	"seehuhn.de/go/exammark/examdoc"
)

// MaxPixels limits the size of the bitmaps produced by the renderer.
const MaxPixels = 16384 * 16384

// ErrInvalidScale is returned for non-positive or excessive scale factors.
var ErrInvalidScale = errors.New("invalid render scale")

// Renderer converts PDF pages to bitmaps.  The zero value is ready to use.
type Renderer struct {
	Log zerolog.Logger
}

// Rasterize renders a page of doc.  The scale gives the number of pixels
// per PDF unit; a scale of 1 corresponds to 72 dpi.  The bitmap shows the
// page as displayed, i.e. after applying the page rotation.
func (r *Renderer) Rasterize(ctx context.Context, doc *examdoc.Document, pageNo int, scale float64) (*image.RGBA, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%g: %w", scale, ErrInvalidScale)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var img *image.RGBA
	err := doc.Access(func(in *pdf.Reader) error {
		page, err := doc.Page(in, pageNo)
		if err != nil {
			return err
		}

		dw, dh := page.Box.DisplaySize()
		w := int(math.Ceil(dw*scale - 1e-6))
		h := int(math.Ceil(dh*scale - 1e-6))
		if w < 1 || h < 1 || float64(w)*float64(h) > MaxPixels {
			return fmt.Errorf("%dx%d pixels: %w", w, h, ErrInvalidScale)
		}

		img = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

		// The reader only looks at the page dictionary itself, so
		// inherited resources are filled in here.
		dict := maps.Clone(page.Dict)
		if page.Resources != nil {
			dict["Resources"] = page.Resources
		}

		p := newPainter(ctx, in, img, r.Log)
		return p.ParsePage(dict, matrix.Matrix(page.Box.DisplayMatrix(scale)))
	})
	if err != nil {
		return nil, err
	}
	r.Log.Debug().Int("page", pageNo).Float64("scale", scale).
		Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).
		Msg("page rasterized")
	return img, nil
}

// maxFormDepth limits the nesting of form XObjects.
const maxFormDepth = 8

// checkEvery is the number of operators between two checks for
// cancellation.
const checkEvery = 256

// painter paints the operators reported by a content stream reader
// onto img.  The CTM of the reader maps user space to device pixels.
type painter struct {
	*reader.Reader

	ctx   context.Context
	img   *image.RGBA
	log   zerolog.Logger
	ops   int
	depth int
}

func newPainter(ctx context.Context, in pdf.Getter, img *image.RGBA, log zerolog.Logger) *painter {
	p := &painter{
		Reader: reader.New(pdf.NewExtractor(in)),
		ctx:    ctx,
		img:    img,
		log:    log,
	}
	p.UnknownOp = p.paintPath
	p.XObject = p.drawXObject
	p.EveryOp = func(string, []pdf.Object) error {
		p.ops++
		if p.ops%checkEvery == 0 {
			return p.ctx.Err()
		}
		return nil
	}
	return p
}
