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

// Package annotation holds the marks a grader places on exam pages.
//
// An [Annotation] combines the placement of a mark (student and page) with
// its [Shape].  Shapes are a closed set of types, one per kind of mark, so
// that every annotation carries exactly the fields its kind requires.
// The in-memory [Store] keeps the ordered annotation lists of all open
// students and notifies listeners about changes.
package annotation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Annotation is one mark on one page of one student's exam.
type Annotation struct {
	ID        string
	StudentID string
	Page      int // 1-based
	Shape     Shape
}

// New creates an annotation with a freshly allocated id.
func New(studentID string, page int, s Shape) (Annotation, error) {
	a := Annotation{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Page:      page,
		Shape:     s,
	}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

// Kind returns the kind of the annotation's shape.
func (a Annotation) Kind() Kind {
	if a.Shape == nil {
		return ""
	}
	return a.Shape.Kind()
}

// Validate checks that all fields required for the kind of a are present.
func (a Annotation) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAnnotation)
	}
	if a.StudentID == "" {
		return fmt.Errorf("%w: missing student id", ErrInvalidAnnotation)
	}
	if a.Page < 1 {
		return fmt.Errorf("%w: invalid page %d", ErrInvalidAnnotation, a.Page)
	}
	return Validate(a.Shape)
}

// Patch lists the fields to change in [Store.Update].
// Nil fields are left unchanged.  The kind, student, page and id of an
// annotation cannot be changed.
type Patch struct {
	X, Y   *float64
	X2, Y2 *float64
	Text   *string
	Width  *float64
}

// MoveTo returns a patch which sets the primary point.
func MoveTo(p Point) Patch {
	return Patch{X: &p.X, Y: &p.Y}
}

// MoveSecondTo returns a patch which sets the secondary point.
func MoveSecondTo(p Point) Patch {
	return Patch{X2: &p.X, Y2: &p.Y}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.X2 == nil && p.Y2 == nil &&
		p.Text == nil && p.Width == nil
}

// Apply returns s with the fields of p applied.
func (p Patch) Apply(s Shape) (Shape, error) {
	hasSecond := p.X2 != nil || p.Y2 != nil
	hasText := p.Text != nil || p.Width != nil

	set := func(dst *Point) {
		if p.X != nil {
			dst.X = *p.X
		}
		if p.Y != nil {
			dst.Y = *p.Y
		}
	}
	setSecond := func(dst *Point) {
		if p.X2 != nil {
			dst.X = *p.X2
		}
		if p.Y2 != nil {
			dst.Y = *p.Y2
		}
	}

	var res Shape
	switch s := s.(type) {
	case Checkmark:
		if hasSecond || hasText {
			return nil, patchError(s.Kind())
		}
		set(&s.At)
		res = s
	case Cross:
		if hasSecond || hasText {
			return nil, patchError(s.Kind())
		}
		set(&s.At)
		res = s
	case Text:
		if hasSecond {
			return nil, patchError(s.Kind())
		}
		set(&s.At)
		if p.Text != nil {
			s.Body = *p.Text
		}
		if p.Width != nil {
			s.Width = *p.Width
		}
		res = s
	case Line:
		if hasText {
			return nil, patchError(s.Kind())
		}
		set(&s.From)
		setSecond(&s.To)
		res = s
	case Arrow:
		if hasText {
			return nil, patchError(s.Kind())
		}
		set(&s.From)
		setSecond(&s.To)
		res = s
	case Circle:
		if hasText {
			return nil, patchError(s.Kind())
		}
		set(&s.Center)
		setSecond(&s.Edge)
		res = s
	default:
		return nil, fmt.Errorf("%w: unknown shape %T", ErrInvalidAnnotation, s)
	}
	if err := res.validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func patchError(k Kind) error {
	return fmt.Errorf("%w: patch sets fields which a %s does not have",
		ErrInvalidAnnotation, k)
}

// Loader reads the persisted annotations of a student.
// A student without saved annotations has an empty list.
type Loader interface {
	Load(ctx context.Context, studentID string) ([]Annotation, error)
}

// Persister stores annotation lists durably.
type Persister interface {
	Loader
	Save(ctx context.Context, studentID string, list []Annotation) error
}
