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
	"fmt"

	"github.com/google/uuid"
)

// Record is the flat representation of an annotation used for storage.
// Optional fields are nil when the kind does not use them.
type Record struct {
	ID    string   `json:"id,omitempty"`
	Page  int      `json:"page"`
	Type  Kind     `json:"type"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Text  *string  `json:"text,omitempty"`
	X2    *float64 `json:"x2,omitempty"`
	Y2    *float64 `json:"y2,omitempty"`
	Width *float64 `json:"width,omitempty"`
}

// ToRecord flattens a.
func ToRecord(a Annotation) Record {
	r := Record{
		ID:   a.ID,
		Page: a.Page,
		Type: a.Kind(),
	}
	if a.Shape == nil {
		return r
	}
	p := a.Shape.Anchor()
	r.X, r.Y = p.X, p.Y
	if q, ok := Secondary(a.Shape); ok {
		r.X2, r.Y2 = &q.X, &q.Y
	}
	if t, ok := a.Shape.(Text); ok {
		body := t.Body
		r.Text = &body
		if t.Width > 0 {
			w := t.Width
			r.Width = &w
		}
	}
	return r
}

// FromRecord reconstructs an annotation of the given student from r.
// Records written without an id are assigned a new one.
func FromRecord(studentID string, r Record) (Annotation, error) {
	at := Point{X: r.X, Y: r.Y}

	var s Shape
	switch r.Type {
	case KindCheckmark:
		s = Checkmark{At: at}
	case KindCross:
		s = Cross{At: at}
	case KindText:
		if r.Text == nil {
			return Annotation{}, fmt.Errorf("%w: text note without text", ErrInvalidAnnotation)
		}
		t := Text{At: at, Body: *r.Text}
		if r.Width != nil {
			t.Width = *r.Width
		}
		s = t
	case KindLine, KindArrow, KindCircle:
		if r.X2 == nil || r.Y2 == nil {
			return Annotation{}, fmt.Errorf("%w: %s without second point",
				ErrInvalidAnnotation, r.Type)
		}
		var err error
		s, err = TwoPoint(r.Type, at, Point{X: *r.X2, Y: *r.Y2})
		if err != nil {
			return Annotation{}, err
		}
	default:
		return Annotation{}, fmt.Errorf("%w: unknown type %q", ErrInvalidAnnotation, r.Type)
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	a := Annotation{ID: id, StudentID: studentID, Page: r.Page, Shape: s}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}
