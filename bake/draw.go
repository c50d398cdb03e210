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
	"math"

	"golang.org/x/text/unicode/norm"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf/font"
	"seehuhn.de/go/pdf/font/standard"
	"seehuhn.de/go/pdf/graphics"
	"seehuhn.de/go/pdf/graphics/color"
	"seehuhn.de/go/pdf/graphics/content"
	"seehuhn.de/go/pdf/graphics/content/builder"
	"seehuhn.de/go/pdf/graphics/extgstate"

	"seehuhn.de/go/exammark/annotation"
)

// Colours and sizes of the baked marks, in PDF units.
var (
	checkmarkColor = color.DeviceRGB{0, 0.6, 0}
	crossColor     = color.DeviceRGB{0.85, 0.1, 0.1}
	shapeColor     = color.DeviceRGB{0.08, 0.4, 0.75}
	highlightColor = color.DeviceRGB{1, 1, 0.2}
)

const (
	markRadius     = 12.0
	markLineWidth  = 2.0
	arrowHeadSize  = 12.0
	arrowHeadAngle = math.Pi / 6
	textBoxBorder  = 0.5
	textDescent    = 2.5
)

// painter draws annotations in display units: PDF units measured from the
// top-left corner of the displayed page, with y pointing down.  The
// mapping to user space of the page is applied by the form XObject which
// holds the content.
type painter struct {
	*builder.Builder
	width, height float64 // display size of the page

	font      font.Instance
	highlight *extgstate.ExtGState
}

func newPainter(width, height float64) *painter {
	return &painter{
		Builder: builder.New(content.Form, nil),
		width:   width,
		height:  height,
	}
}

// Draw adds a single annotation to the content stream.
func (p *painter) Draw(s annotation.Shape) {
	switch s := s.(type) {
	case annotation.Checkmark:
		cx, cy := p.display(s.At)
		r := markRadius
		p.strokeStyle(checkmarkColor)
		p.MoveTo(cx-r, cy)
		p.LineTo(cx-r/3, cy+r)
		p.LineTo(cx+r, cy-r)
		p.Stroke()

	case annotation.Cross:
		cx, cy := p.display(s.At)
		r := markRadius
		p.strokeStyle(crossColor)
		p.MoveTo(cx-r, cy-r)
		p.LineTo(cx+r, cy+r)
		p.MoveTo(cx+r, cy-r)
		p.LineTo(cx-r, cy+r)
		p.Stroke()

	case annotation.Line:
		x1, y1 := p.display(s.From)
		x2, y2 := p.display(s.To)
		p.strokeStyle(shapeColor)
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		p.Stroke()

	case annotation.Arrow:
		x1, y1 := p.display(s.From)
		x2, y2 := p.display(s.To)
		p.strokeStyle(shapeColor)
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		if x1 != x2 || y1 != y2 {
			angle := math.Atan2(y2-y1, x2-x1)
			for _, a := range []float64{angle - arrowHeadAngle, angle + arrowHeadAngle} {
				p.MoveTo(x2, y2)
				p.LineTo(x2-arrowHeadSize*math.Cos(a), y2-arrowHeadSize*math.Sin(a))
			}
		}
		p.Stroke()

	case annotation.Circle:
		cx, cy := p.display(s.Center)
		ex, ey := p.display(s.Edge)
		r := math.Hypot(ex-cx, ey-cy)
		if r == 0 {
			return
		}
		p.strokeStyle(shapeColor)
		p.Circle(cx, cy, r)
		p.Stroke()

	case annotation.Text:
		p.text(s)
	}
}

func (p *painter) display(q annotation.Point) (float64, float64) {
	return q.X * p.width, q.Y * p.height
}

func (p *painter) strokeStyle(c color.Color) {
	p.SetStrokeColor(c)
	p.SetLineWidth(markLineWidth)
	p.SetLineCap(graphics.LineCapRound)
}

// text draws a note: a translucent highlight box with the wrapped text on
// top.  The text runs along the displayed page, whatever the page
// rotation.
func (p *painter) text(t annotation.Text) {
	x, y := p.display(t.At)
	w, h := annotation.TextBoxSize(t, p.width)

	if p.highlight == nil {
		p.highlight = &extgstate.ExtGState{
			Set:       graphics.StateFillAlpha,
			FillAlpha: 0.5,
		}
		p.font = standard.Helvetica.New()
	}

	p.PushGraphicsState()
	p.SetExtGState(p.highlight)
	p.SetFillColor(highlightColor)
	p.Rectangle(x, y, w, h)
	p.Fill()
	p.PopGraphicsState()

	p.SetStrokeColor(color.Black)
	p.SetLineWidth(textBoxBorder)
	p.Rectangle(x, y, w, h)
	p.Stroke()

	p.SetFillColor(color.Black)
	perLine := max(1, int(w/annotation.TextCharWidth))
	for i, line := range annotation.WrapText(t.Body, perLine) {
		if line == "" {
			continue
		}
		baseline := y + annotation.TextPadding + float64(i+1)*annotation.TextLineHeight - textDescent
		p.TextBegin()
		p.TextSetFont(p.font, annotation.TextFontSize)
		// display space has y pointing down, so the text matrix flips
		// the glyphs back upright
		p.TextSetMatrix(matrix.Matrix{1, 0, 0, -1, x + annotation.TextPadding, baseline})
		// the standard fonts have no combining accents
		p.TextShow(norm.NFC.String(line))
		p.TextEnd()
	}
}
