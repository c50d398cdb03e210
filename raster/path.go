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
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/graphics/content"
)

// curveSteps is the number of line segments used to approximate a Bézier
// curve when stroking.
const curveSteps = 16

// paintPath is called for all operators without a dedicated callback.
// Only the path painting operators are of interest here; the reader has
// already collected the path and updated the graphics state.
func (p *painter) paintPath(op string, _ []pdf.Object) error {
	var fill, stroke bool
	switch content.OpName(op) {
	case content.OpFill, content.OpFillCompat, content.OpFillEvenOdd:
		fill = true
	case content.OpStroke, content.OpCloseAndStroke:
		stroke = true
	case content.OpFillAndStroke, content.OpFillAndStrokeEvenOdd,
		content.OpCloseFillAndStroke, content.OpCloseFillAndStrokeEvenOdd:
		fill, stroke = true, true
	default:
		return nil
	}

	subpaths := p.devicePath(p.State.PaintedPath())
	if len(subpaths) == 0 {
		return nil
	}
	gs := p.State.GState
	if fill {
		p.fillPath(subpaths, withAlpha(gs.FillColor, gs.FillAlpha))
	}
	if stroke {
		m := gs.CTM
		scale := math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
		p.strokePath(subpaths, gs.LineWidth*scale, withAlpha(gs.StrokeColor, gs.StrokeAlpha))
	}
	return nil
}

// devicePath converts a path in user space into polygons in device
// pixels.  Closed subpaths end with a copy of their starting point.
func (p *painter) devicePath(data *path.Data) [][]vec.Vec2 {
	var res [][]vec.Vec2
	var cur []vec.Vec2
	flush := func() {
		if len(cur) > 0 {
			res = append(res, cur)
		}
		cur = nil
	}
	for cmd, pts := range data.Iter().Transform(p.State.GState.CTM) {
		switch cmd {
		case path.CmdMoveTo:
			flush()
			cur = []vec.Vec2{pts[0]}
		case path.CmdLineTo:
			cur = append(cur, pts[0])
		case path.CmdQuadTo:
			if len(cur) == 0 {
				continue
			}
			p0 := cur[len(cur)-1]
			for i := 1; i <= curveSteps; i++ {
				t := float64(i) / curveSteps
				s := 1 - t
				cur = append(cur, vec.Vec2{
					X: s*s*p0.X + 2*s*t*pts[0].X + t*t*pts[1].X,
					Y: s*s*p0.Y + 2*s*t*pts[0].Y + t*t*pts[1].Y,
				})
			}
		case path.CmdCubeTo:
			if len(cur) == 0 {
				continue
			}
			p0 := cur[len(cur)-1]
			for i := 1; i <= curveSteps; i++ {
				t := float64(i) / curveSteps
				s := 1 - t
				cur = append(cur, vec.Vec2{
					X: s*s*s*p0.X + 3*s*s*t*pts[0].X + 3*s*t*t*pts[1].X + t*t*t*pts[2].X,
					Y: s*s*s*p0.Y + 3*s*s*t*pts[0].Y + 3*s*t*t*pts[1].Y + t*t*t*pts[2].Y,
				})
			}
		case path.CmdClose:
			if len(cur) > 1 {
				start := cur[0]
				cur = append(cur, start)
				flush()
				// a new subpath starts at the same point
				cur = []vec.Vec2{start}
			}
		}
	}
	flush()
	return res
}

func (p *painter) newRasterizer() *vector.Rasterizer {
	b := p.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

// fillPath fills the given polygons, using the nonzero winding rule.
func (p *painter) fillPath(subpaths [][]vec.Vec2, col color.Color) {
	ras := p.newRasterizer()
	drawn := false
	for _, sub := range subpaths {
		if len(sub) < 3 {
			continue
		}
		ras.MoveTo(float32(sub[0].X), float32(sub[0].Y))
		for _, q := range sub[1:] {
			ras.LineTo(float32(q.X), float32(q.Y))
		}
		ras.ClosePath()
		drawn = true
	}
	if drawn {
		ras.Draw(p.img, p.img.Bounds(), image.NewUniform(col), image.Point{})
	}
}

// strokePath strokes the given polylines with a line of the given width
// in device pixels.  Every segment is drawn as a separate quadrilateral,
// so that overlapping segments do not cancel out.
func (p *painter) strokePath(subpaths [][]vec.Vec2, width float64, col color.Color) {
	hw := width / 2
	if hw < 0.5 {
		// zero-width lines are drawn one pixel wide
		hw = 0.5
	}

	src := image.NewUniform(col)
	bounds := p.img.Bounds()
	ras := p.newRasterizer()
	for _, sub := range subpaths {
		for i := 1; i < len(sub); i++ {
			a, b := sub[i-1], sub[i]
			vx, vy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(vx, vy)
			if l == 0 {
				continue
			}
			nx, ny := -vy/l*hw, vx/l*hw

			ras.Reset(bounds.Dx(), bounds.Dy())
			ras.MoveTo(float32(a.X+nx), float32(a.Y+ny))
			ras.LineTo(float32(b.X+nx), float32(b.Y+ny))
			ras.LineTo(float32(b.X-nx), float32(b.Y-ny))
			ras.LineTo(float32(a.X-nx), float32(a.Y-ny))
			ras.ClosePath()
			ras.Draw(p.img, bounds, src, image.Point{})
		}
	}
}

// withAlpha applies a constant opacity to a colour.  A nil colour is
// painted black.
func withAlpha(c color.Color, alpha float64) color.Color {
	if c == nil {
		c = color.Black
	}
	if alpha >= 1 {
		return c
	}
	r, g, b, _ := c.RGBA()
	a := max(0, alpha)
	return color.RGBA64{
		R: uint16(float64(r) * a),
		G: uint16(float64(g) * a),
		B: uint16(float64(b) * a),
		A: uint16(0xffff * a),
	}
}
