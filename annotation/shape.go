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

package annotation

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidAnnotation is returned when an annotation lacks the fields
// required by its kind, or when a patch touches fields the kind does not
// have.
var ErrInvalidAnnotation = errors.New("invalid annotation")

// Kind identifies the type of mark.
type Kind string

// These are the supported kinds of annotation.
const (
	KindCheckmark Kind = "checkmark"
	KindCross     Kind = "cross"
	KindText      Kind = "text"
	KindLine      Kind = "line"
	KindArrow     Kind = "arrow"
	KindCircle    Kind = "circle"
)

// IsTwoPoint reports whether annotations of kind k are placed with two
// clicks.
func (k Kind) IsTwoPoint() bool {
	return k == KindLine || k == KindArrow || k == KindCircle
}

// Point is a position in fractional display coordinates.
// (0, 0) is the top-left corner of the displayed page and (1, 1) the
// bottom-right corner.  Values outside this range are allowed.
type Point struct {
	X, Y float64
}

func (p Point) isFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Shape is the geometry of an annotation.  The concrete types are
// [Checkmark], [Cross], [Text], [Line], [Arrow] and [Circle].
type Shape interface {
	Kind() Kind

	// Anchor returns the primary point of the shape.
	Anchor() Point

	validate() error
}

// Checkmark is a tick mark centred at At.
type Checkmark struct {
	At Point
}

// Cross is an x-shaped mark centred at At.
type Cross struct {
	At Point
}

// Text is a note whose top-left corner is at At.
type Text struct {
	At   Point
	Body string

	// Width is the wrap width as a fraction of the displayed page width.
	// Zero selects the default width, which depends on the text length.
	Width float64
}

// Line is a straight line from From to To.
type Line struct {
	From, To Point
}

// Arrow is a line from From to To, with an arrow head at To.
type Arrow struct {
	From, To Point
}

// Circle is an unfilled circle.  The radius is the distance between Center
// and Edge, measured in page space.
type Circle struct {
	Center, Edge Point
}

func (Checkmark) Kind() Kind { return KindCheckmark }
func (Cross) Kind() Kind     { return KindCross }
func (Text) Kind() Kind      { return KindText }
func (Line) Kind() Kind      { return KindLine }
func (Arrow) Kind() Kind     { return KindArrow }
func (Circle) Kind() Kind    { return KindCircle }

func (s Checkmark) Anchor() Point { return s.At }
func (s Cross) Anchor() Point     { return s.At }
func (s Text) Anchor() Point      { return s.At }
func (s Line) Anchor() Point      { return s.From }
func (s Arrow) Anchor() Point     { return s.From }
func (s Circle) Anchor() Point    { return s.Center }

func (s Checkmark) validate() error { return checkPoints(s.At) }
func (s Cross) validate() error     { return checkPoints(s.At) }
func (s Line) validate() error      { return checkPoints(s.From, s.To) }
func (s Arrow) validate() error     { return checkPoints(s.From, s.To) }
func (s Circle) validate() error    { return checkPoints(s.Center, s.Edge) }

func (s Text) validate() error {
	if err := checkPoints(s.At); err != nil {
		return err
	}
	if s.Body == "" {
		return fmt.Errorf("%w: text note without text", ErrInvalidAnnotation)
	}
	if s.Width < 0 || math.IsNaN(s.Width) || math.IsInf(s.Width, 0) {
		return fmt.Errorf("%w: text width %g", ErrInvalidAnnotation, s.Width)
	}
	return nil
}

func checkPoints(pp ...Point) error {
	for _, p := range pp {
		if !p.isFinite() {
			return fmt.Errorf("%w: non-finite coordinate %v", ErrInvalidAnnotation, p)
		}
	}
	return nil
}

// Validate checks that s is a complete shape.
func Validate(s Shape) error {
	if s == nil {
		return fmt.Errorf("%w: missing shape", ErrInvalidAnnotation)
	}
	return s.validate()
}

// Secondary returns the second point of a two-point shape.
func Secondary(s Shape) (Point, bool) {
	switch s := s.(type) {
	case Line:
		return s.To, true
	case Arrow:
		return s.To, true
	case Circle:
		return s.Edge, true
	}
	return Point{}, false
}

// TwoPoint constructs the shape of kind k from its two defining points.
// It fails for kinds which are not placed with two clicks.
func TwoPoint(k Kind, p, q Point) (Shape, error) {
	switch k {
	case KindLine:
		return Line{From: p, To: q}, nil
	case KindArrow:
		return Arrow{From: p, To: q}, nil
	case KindCircle:
		return Circle{Center: p, Edge: q}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a two-point shape", ErrInvalidAnnotation, k)
}
