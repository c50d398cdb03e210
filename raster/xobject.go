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

package raster

import (
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf/graphics"
	"seehuhn.de/go/pdf/graphics/content"
	"seehuhn.de/go/pdf/graphics/form"
	"seehuhn.de/go/pdf/graphics/image"
)

// drawXObject paints an image or form XObject.  Other kinds of XObjects
// are ignored.
func (p *painter) drawXObject(obj graphics.XObject, ctm matrix.Matrix) error {
	switch obj := obj.(type) {
	case *image.Dict:
		return p.drawImage(obj, ctm)
	case *form.Form:
		return p.drawForm(obj, ctm)
	default:
		p.log.Debug().Str("type", string(obj.Subtype())).Msg("XObject skipped")
		return nil
	}
}

// drawForm runs the content stream of a form XObject, using a copy of the
// current graphics state.
func (p *painter) drawForm(f *form.Form, ctm matrix.Matrix) error {
	if f.Content == nil || p.depth >= maxFormDepth {
		return nil
	}

	saved := p.State
	res := f.Res
	if res == nil {
		res = saved.Resources
	}
	state := content.NewState(content.Form, res)
	state.GState = saved.GState.Clone()
	if !f.Matrix.IsZero() {
		state.GState.CTM = f.Matrix.Mul(ctm)
	}

	p.State = state
	p.depth++
	err := p.ProcessStream(f.Content)
	p.depth--
	p.State = saved
	return err
}

// drawImage paints an image into the unit square of user space.
func (p *painter) drawImage(img *image.Dict, ctm matrix.Matrix) error {
	if img.Width <= 0 || img.Height <= 0 {
		return nil
	}
	pix, err := img.Load()
	if err != nil {
		// an unreadable image must not hide the rest of the page
		p.log.Warn().Err(err).Int("width", img.Width).Int("height", img.Height).
			Msg("image skipped")
		return nil
	}

	w, h := float64(img.Width), float64(img.Height)
	// image pixel (sx, sy) -> unit square (sx/w, 1-sy/h) -> device
	toUnit := matrix.Matrix{1 / w, 0, 0, -1 / h, 0, 1}
	m := toUnit.Mul(ctm)
	if m[0]*m[3]-m[1]*m[2] == 0 {
		return nil
	}
	s2d := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	xdraw.NearestNeighbor.Transform(p.img, s2d, pix, pix.Bounds(), draw.Over, nil)
	return nil
}
