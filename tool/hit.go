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

package tool

import (
	"math"

	"seehuhn.de/go/exammark/annotation"
)

// Hit-test sizes, in pixels at scale 1.
const (
	HitTolerance     = 20.0
	ResizeHandleSize = 8.0
	resizeHandleSlop = 4.0
)

// View describes the page currently displayed.
type View struct {
	StudentID string
	Page      int

	// Width and Height give the size of the displayed page in pixels.
	Width, Height float64

	// Scale is the number of pixels per PDF unit.
	Scale float64
}

func (v View) pixels(p annotation.Point) (float64, float64) {
	return p.X * v.Width, p.Y * v.Height
}

func (v View) scale() float64 {
	if v.Scale > 0 {
		return v.Scale
	}
	return 1
}

// textBox returns the pixel rectangle covered by a text note.
func (v View) textBox(t annotation.Text) (x0, y0, x1, y1 float64) {
	s := v.scale()
	w, h := annotation.TextBoxSize(t, v.Width/s)
	x0, y0 = v.pixels(t.At)
	return x0, y0, x0 + w*s, y0 + h*s
}

// hit is the result of a hit test.
type hit struct {
	ann  annotation.Annotation
	kind DragKind
}

// hitTest finds the topmost annotation on the current page which has a
// movable region at p.  Annotations added later are drawn on top of
// earlier ones.
func (v View) hitTest(list []annotation.Annotation, p annotation.Point) (hit, bool) {
	mx, my := v.pixels(p)
	tol := HitTolerance

	for i := len(list) - 1; i >= 0; i-- {
		a := list[i]
		if a.Page != v.Page {
			continue
		}

		var kind DragKind
		switch s := a.Shape.(type) {
		case annotation.Checkmark, annotation.Cross:
			x, y := v.pixels(s.Anchor())
			if math.Hypot(mx-x, my-y) <= tol {
				kind = DragPoint
			}

		case annotation.Line, annotation.Arrow:
			to, _ := annotation.Secondary(s)
			x1, y1 := v.pixels(s.Anchor())
			x2, y2 := v.pixels(to)
			switch {
			case math.Hypot(mx-x1, my-y1) <= tol:
				kind = DragLineStart
			case math.Hypot(mx-x2, my-y2) <= tol:
				kind = DragLineEnd
			case segmentDist(mx, my, x1, y1, x2, y2) <= tol:
				kind = DragLineMove
			}

		case annotation.Circle:
			cx, cy := v.pixels(s.Center)
			ex, ey := v.pixels(s.Edge)
			r := math.Hypot(ex-cx, ey-cy)
			// the resize handle is shown at the bottom of the circle
			if math.Hypot(mx-cx, my-(cy+r)) <= tol {
				kind = DragCircleEdge
			} else if math.Abs(math.Hypot(mx-cx, my-cy)-r) <= tol {
				kind = DragCircleMove
			}

		case annotation.Text:
			x0, y0, x1, y1 := v.textBox(s)
			hs := max(4, ResizeHandleSize*v.scale())
			if x1-hs <= mx && mx <= x1+resizeHandleSlop &&
				y1-hs <= my && my <= y1+resizeHandleSlop {
				kind = DragTextResize
			} else if x0 <= mx && mx <= x1 && y0 <= my && my <= y1 {
				kind = DragTextMove
			}
		}

		if kind != 0 {
			return hit{ann: a, kind: kind}, true
		}
	}
	return hit{}, false
}

// textAt finds the topmost text note on the current page whose box
// contains p.
func (v View) textAt(list []annotation.Annotation, p annotation.Point) (annotation.Annotation, bool) {
	mx, my := v.pixels(p)
	for i := len(list) - 1; i >= 0; i-- {
		a := list[i]
		t, ok := a.Shape.(annotation.Text)
		if !ok || a.Page != v.Page {
			continue
		}
		x0, y0, x1, y1 := v.textBox(t)
		if x0 <= mx && mx <= x1 && y0 <= my && my <= y1 {
			return a, true
		}
	}
	return annotation.Annotation{}, false
}

// circleEdge returns the edge point of a circle around center which passes
// through p.  The edge point is placed at the bottom of the circle.
func (v View) circleEdge(center, p annotation.Point) annotation.Point {
	if v.Height <= 0 {
		return p
	}
	r := math.Hypot((p.X-center.X)*v.Width, (p.Y-center.Y)*v.Height)
	return annotation.Point{X: center.X, Y: center.Y + r/v.Height}
}

// segmentDist returns the distance from (px, py) to the segment from
// (x1, y1) to (x2, y2).
func segmentDist(px, py, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	if dx == 0 && dy == 0 {
		return math.Hypot(px-x1, py-y1)
	}
	t := ((px-x1)*dx + (py-y1)*dy) / (dx*dx + dy*dy)
	t = max(0, min(1, t))
	return math.Hypot(px-(x1+t*dx), py-(y1+t*dy))
}
