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

// Package tool implements the pointer and keyboard interaction used to
// place and edit annotations on the displayed page.
//
// All positions passed to a [Machine] are fractional display coordinates,
// with (0, 0) at the top-left and (1, 1) at the bottom-right corner of the
// displayed page.  Hit tolerances are given in pixels and are converted
// using the [View].
package tool

import (
	"fmt"
	"unicode"

	"seehuhn.de/go/exammark/annotation"
)

// Tool is an annotation tool which can be selected by the user.
type Tool int

// These are the available tools.
const (
	None Tool = iota
	Checkmark
	Cross
	Text
	Line
	Arrow
	Circle
	Eraser
)

func (t Tool) String() string {
	switch t {
	case None:
		return "none"
	case Checkmark:
		return "checkmark"
	case Cross:
		return "cross"
	case Text:
		return "text"
	case Line:
		return "line"
	case Arrow:
		return "arrow"
	case Circle:
		return "circle"
	case Eraser:
		return "eraser"
	default:
		return fmt.Sprintf("Tool(%d)", int(t))
	}
}

// Kind returns the kind of annotation created by the tool.  The result is
// empty for [None] and [Eraser].
func (t Tool) Kind() annotation.Kind {
	switch t {
	case Checkmark:
		return annotation.KindCheckmark
	case Cross:
		return annotation.KindCross
	case Text:
		return annotation.KindText
	case Line:
		return annotation.KindLine
	case Arrow:
		return annotation.KindArrow
	case Circle:
		return annotation.KindCircle
	}
	return ""
}

func (t Tool) isTwoPoint() bool {
	return t.Kind().IsTwoPoint()
}

// Key is a key press delivered to [Machine.Key].
type Key rune

// Special keys.  Letters are given by their rune.
const (
	KeyEnter  Key = '\r'
	KeyEscape Key = 0x1b
)

var toolKeys = map[rune]Tool{
	'v': Checkmark,
	'x': Cross,
	't': Text,
	'l': Line,
	'a': Arrow,
	'o': Circle,
	'e': Eraser,
}

// ForKey returns the tool selected by a keyboard shortcut.
func ForKey(k Key) (Tool, bool) {
	t, ok := toolKeys[unicode.ToLower(rune(k))]
	return t, ok
}

// State is the interaction state of a [Machine].
type State int

// These are the states of the interaction.
const (
	Idle State = iota
	ToolArmed
	ShapePending
	TextComposing
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ToolArmed:
		return "tool armed"
	case ShapePending:
		return "shape pending"
	case TextComposing:
		return "text composing"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DragKind says which part of an annotation is being dragged.
type DragKind int

// These are the parts of annotations which can be dragged.
const (
	DragPoint DragKind = iota + 1
	DragLineStart
	DragLineEnd
	DragLineMove
	DragCircleEdge
	DragCircleMove
	DragTextMove
	DragTextResize
)

func (k DragKind) String() string {
	switch k {
	case DragPoint:
		return "point"
	case DragLineStart:
		return "line-start"
	case DragLineEnd:
		return "line-end"
	case DragLineMove:
		return "line-move"
	case DragCircleEdge:
		return "circle-edge"
	case DragCircleMove:
		return "circle-move"
	case DragTextMove:
		return "text-move"
	case DragTextResize:
		return "text-resize"
	default:
		return fmt.Sprintf("DragKind(%d)", int(k))
	}
}
