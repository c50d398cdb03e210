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

// Package pagespace maps fractional display coordinates to PDF page space.
//
// Display coordinates are fractions of the displayed page box, with the
// origin in the top-left corner and y increasing downwards.  Page space is
// the default user space of the PDF page, with the origin in the bottom-left
// corner of the (unrotated) page.  The mapping depends on the /Rotate entry
// of the page, which is always a multiple of 90 degrees.
package pagespace

import (
	"errors"
	"fmt"
)

// Rotation is the clockwise rotation of a page when displayed, in degrees.
// Only the values 0, 90, 180 and 270 are valid.
type Rotation int

// The supported page rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ErrInvalidRotation is returned by ParseRotation for angles which are not
// a multiple of 90 degrees.
var ErrInvalidRotation = errors.New("page rotation must be a multiple of 90")

// ParseRotation converts the value of a /Rotate entry into a Rotation.
// Negative values and values of 360 or more are reduced modulo 360.
func ParseRotation(deg int) (Rotation, error) {
	if deg%90 != 0 {
		return 0, fmt.Errorf("%d: %w", deg, ErrInvalidRotation)
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return Rotation(deg), nil
}

// IsValid reports whether r is one of the four supported rotations.
func (r Rotation) IsValid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Swapped reports whether width and height trade places when the page is
// displayed.
func (r Rotation) Swapped() bool {
	return r == Rotate90 || r == Rotate270
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}

// ToPageSpace maps the display fraction (fx, fy) to page space, for a page
// of physical width w and height h which is displayed rotated by rot.
//
// Invalid rotations are treated like Rotate0.
func ToPageSpace(fx, fy, w, h float64, rot Rotation) (px, py float64) {
	switch rot {
	case Rotate90:
		return fy * w, fx * h
	case Rotate180:
		return (1 - fx) * w, fy * h
	case Rotate270:
		return (1 - fy) * w, (1 - fx) * h
	default:
		return fx * w, (1 - fy) * h
	}
}

// DisplaySize returns the size of the displayed page box for a page of
// physical width w and height h.
func DisplaySize(w, h float64, rot Rotation) (dw, dh float64) {
	if rot.Swapped() {
		return h, w
	}
	return w, h
}

// Box describes the visible area of a PDF page.
type Box struct {
	// LLx, LLy is the lower-left corner of the page box in default user
	// space.  For most pages this is (0, 0).
	LLx, LLy float64

	// Width and Height give the unrotated size of the page box.
	Width, Height float64

	Rotate Rotation
}

// ToPageSpace maps the display fraction (fx, fy) to user space coordinates
// of the page, taking the offset of the page box into account.
func (b Box) ToPageSpace(fx, fy float64) (x, y float64) {
	px, py := ToPageSpace(fx, fy, b.Width, b.Height, b.Rotate)
	return b.LLx + px, b.LLy + py
}

// DisplaySize returns the width and height of the page as displayed.
func (b Box) DisplaySize() (w, h float64) {
	return DisplaySize(b.Width, b.Height, b.Rotate)
}

// DisplayMatrix returns the transformation from user space of the page to
// display pixels, for a rendering with scale pixels per PDF unit.  Display
// pixels have their origin in the top-left corner of the displayed page,
// with y pointing down.  The matrix uses the element order of the PDF "cm"
// operator: (x, y) maps to (m[0]x + m[2]y + m[4], m[1]x + m[3]y + m[5]).
func (b Box) DisplayMatrix(scale float64) [6]float64 {
	s := scale
	switch b.Rotate {
	case Rotate90:
		return [6]float64{0, s, s, 0, -b.LLy * s, -b.LLx * s}
	case Rotate180:
		return [6]float64{-s, 0, 0, s, (b.Width + b.LLx) * s, -b.LLy * s}
	case Rotate270:
		return [6]float64{0, -s, -s, 0, (b.Height + b.LLy) * s, (b.Width + b.LLx) * s}
	default:
		return [6]float64{s, 0, 0, -s, -b.LLx * s, (b.Height + b.LLy) * s}
	}
}

// FromDisplay maps a point given in display units (PDF points measured from
// the top-left corner of the displayed page, y pointing down) to user space.
func (b Box) FromDisplay(dx, dy float64) (x, y float64) {
	dw, dh := b.DisplaySize()
	if dw == 0 || dh == 0 {
		return b.LLx, b.LLy
	}
	return b.ToPageSpace(dx/dw, dy/dh)
}
