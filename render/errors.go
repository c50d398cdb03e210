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
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound indicates that no document exists for a student.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentLoadFailed indicates that a document exists but could
	// not be read, parsed or rendered.
	ErrDocumentLoadFailed = errors.New("document failed to load")

	// ErrRenderCancelled is returned by [Viewport.Show] when the render
	// was superseded by a newer request.
	ErrRenderCancelled = errors.New("render cancelled")
)

// Kind classifies load failures.
type Kind int

// These are the two kinds of load failure shown to the user.
const (
	DocumentNotFound Kind = iota + 1
	DocumentLoadFailed
)

func (k Kind) String() string {
	switch k {
	case DocumentNotFound:
		return "not found"
	case DocumentLoadFailed:
		return "load failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	if k == DocumentNotFound {
		return ErrDocumentNotFound
	}
	return ErrDocumentLoadFailed
}

// LoadError is returned when the page of a student cannot be shown.
type LoadError struct {
	StudentID string
	Kind      Kind
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("student %q: %s: %v", e.StudentID, e.Kind, e.Err)
}

// Unwrap makes both the sentinel of the error kind and the underlying
// cause visible to [errors.Is].
func (e *LoadError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}
