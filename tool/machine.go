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
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"seehuhn.de/go/exammark/annotation"
)

// MinTextWidth is the smallest wrap width of a text note which can be set
// by dragging its resize handle, as a fraction of the page width.
const MinTextWidth = 0.02

// ErrNoPage is returned by pointer events when no page is displayed.
var ErrNoPage = errors.New("no page displayed")

// Store is the annotation store driven by a [Machine].
// [*annotation.Store] implements this interface.
type Store interface {
	Add(a annotation.Annotation) error
	Update(id string, p annotation.Patch) error
	Remove(id string) error
	List(studentID string) []annotation.Annotation
}

// Preview is the outline of a two-point shape which is being placed.
type Preview struct {
	Kind     annotation.Kind
	From, To annotation.Point
}

// Composition is the state of the text editor.
type Composition struct {
	At     annotation.Point
	EditID string // empty for a new note
	Text   string
	Width  float64
}

type dragState struct {
	kind  DragKind
	orig  annotation.Annotation
	start annotation.Point
	moved bool
}

// Machine is the interaction state machine for placing and editing
// annotations on a single displayed page.
//
// A Machine is not safe for concurrent use.  All events are expected to
// come from the same UI event loop.
type Machine struct {
	store Store
	log   zerolog.Logger
	view  View

	state   State
	tool    Tool
	start   annotation.Point // first point of a pending shape
	cursor  annotation.Point
	drag    *dragState
	compose *Composition
}

// New creates a machine which applies its changes to store.
func New(store Store, log zerolog.Logger) *Machine {
	return &Machine{store: store, log: log}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Tool returns the armed tool, or [None].
func (m *Machine) Tool() Tool {
	return m.tool
}

// View returns the displayed page.
func (m *Machine) View() View {
	return m.view
}

// Preview returns the outline of the shape being placed.  The second
// return value is false unless a two-point shape is pending.
func (m *Machine) Preview() (Preview, bool) {
	if m.state != ShapePending {
		return Preview{}, false
	}
	to := m.cursor
	if m.tool == Circle {
		to = m.view.circleEdge(m.start, to)
	}
	return Preview{Kind: m.tool.Kind(), From: m.start, To: to}, true
}

// Composing returns the state of the text editor, if it is open.
func (m *Machine) Composing() (Composition, bool) {
	if m.state != TextComposing || m.compose == nil {
		return Composition{}, false
	}
	return *m.compose, true
}

// Drag returns the kind of drag in progress and the id of the dragged
// annotation.
func (m *Machine) Drag() (DragKind, string, bool) {
	if m.state != Dragging || m.drag == nil {
		return 0, "", false
	}
	return m.drag.kind, m.drag.orig.ID, true
}

// SetView changes the displayed page.  When the student or the page
// changes, a pending shape is discarded, an open text editor is closed as
// if it lost focus, and a drag is finished.
func (m *Machine) SetView(v View) error {
	samePage := v.StudentID == m.view.StudentID && v.Page == m.view.Page
	var err error
	if !samePage {
		err = m.interrupt()
	}
	m.view = v
	return err
}

// interrupt ends a pending gesture.  The armed tool stays selected.
func (m *Machine) interrupt() error {
	switch m.state {
	case ShapePending:
		m.setState(ToolArmed)
	case TextComposing:
		return m.FocusLost()
	case Dragging:
		m.drag = nil
		m.setState(Idle)
	}
	return nil
}

// SelectTool arms the tool t.  Selecting the armed tool again, or [None],
// returns to the idle state.  A pending shape is discarded.
func (m *Machine) SelectTool(t Tool) error {
	var err error
	switch m.state {
	case TextComposing, Dragging:
		err = m.interrupt()
	}

	if t == None || t == m.tool {
		m.tool = None
		m.setState(Idle)
		return err
	}
	m.tool = t
	m.setState(ToolArmed)
	return err
}

// Key handles a key press outside the text editor.  It returns true if
// the key was used.
//
// The tool shortcuts toggle their tool.  Escape discards a pending shape
// and returns to the idle state; with nothing pending it deselects the
// tool.  While the text editor is open, Escape cancels the note and Enter
// inserts a line break; Enter with ctrl held commits the note.
func (m *Machine) Key(k Key, ctrl bool) (bool, error) {
	if m.state == TextComposing {
		switch {
		case k == KeyEscape:
			m.Cancel()
			return true, nil
		case k == KeyEnter && ctrl:
			return true, m.Confirm()
		case k == KeyEnter:
			m.InsertNewline()
			return true, nil
		}
		return false, nil
	}

	if k == KeyEscape {
		switch m.state {
		case Dragging:
			return true, m.abortDrag()
		default:
			m.tool = None
			m.setState(Idle)
		}
		return true, nil
	}

	if ctrl {
		return false, nil
	}
	t, ok := ForKey(k)
	if !ok {
		return false, nil
	}
	return true, m.SelectTool(t)
}

// Press handles a mouse button press at p.
func (m *Machine) Press(p annotation.Point) error {
	if m.view.Page < 1 {
		return ErrNoPage
	}
	m.cursor = p

	switch m.state {
	case Idle:
		h, ok := m.view.hitTest(m.list(), p)
		if !ok {
			return nil
		}
		m.drag = &dragState{kind: h.kind, orig: h.ann, start: p}
		m.setState(Dragging)
		return nil

	case ToolArmed:
		return m.useTool(p)

	case ShapePending:
		// completing the shape takes priority over selecting annotations
		return m.completeShape(p)

	case TextComposing:
		// clicking elsewhere moves the focus away from the editor
		return m.FocusLost()
	}
	return nil
}

func (m *Machine) useTool(p annotation.Point) error {
	switch m.tool {
	case Checkmark:
		err := m.add(annotation.Checkmark{At: p})
		m.tool = None
		m.setState(Idle)
		return err
	case Cross:
		err := m.add(annotation.Cross{At: p})
		m.tool = None
		m.setState(Idle)
		return err

	case Text:
		if a, ok := m.view.textAt(m.list(), p); ok {
			m.editText(a)
			return nil
		}
		m.compose = &Composition{At: p}
		m.setState(TextComposing)
		return nil

	case Line, Arrow, Circle:
		m.start = p
		m.setState(ShapePending)
		return nil

	case Eraser:
		h, ok := m.view.hitTest(m.list(), p)
		if !ok {
			return nil
		}
		m.log.Debug().Str("id", h.ann.ID).Msg("erase annotation")
		return m.store.Remove(h.ann.ID)
	}
	return nil
}

func (m *Machine) completeShape(p annotation.Point) error {
	q := p
	if m.tool == Circle {
		q = m.view.circleEdge(m.start, p)
	}
	s, err := annotation.TwoPoint(m.tool.Kind(), m.start, q)
	if err != nil {
		return err
	}
	err = m.add(s)
	m.tool = None
	m.setState(Idle)
	return err
}

// Move handles pointer movement to p.
func (m *Machine) Move(p annotation.Point) error {
	m.cursor = p
	if m.state != Dragging {
		return nil
	}
	m.drag.moved = true
	return m.applyDrag(p)
}

// Release handles the release of the mouse button at p.  A drag in
// progress is committed.
func (m *Machine) Release(p annotation.Point) error {
	m.cursor = p
	if m.state != Dragging {
		return nil
	}
	var err error
	if m.drag.moved || p != m.drag.start {
		err = m.applyDrag(p)
	}
	m.drag = nil
	m.setState(Idle)
	return err
}

// DoubleClick handles a double click at p.  Double clicking a text note
// opens it for editing, if no tool other than the text tool is armed.
func (m *Machine) DoubleClick(p annotation.Point) error {
	if m.view.Page < 1 {
		return ErrNoPage
	}
	switch {
	case m.state == Idle:
	case m.state == ToolArmed && m.tool == Text:
	default:
		return nil
	}
	if a, ok := m.view.textAt(m.list(), p); ok {
		m.editText(a)
	}
	return nil
}

func (m *Machine) editText(a annotation.Annotation) {
	t := a.Shape.(annotation.Text)
	m.compose = &Composition{At: t.At, EditID: a.ID, Text: t.Body, Width: t.Width}
	m.setState(TextComposing)
}

// TextInput appends s to the note being composed.
func (m *Machine) TextInput(s string) {
	if m.state == TextComposing {
		m.compose.Text += s
	}
}

// SetText replaces the text of the note being composed.
func (m *Machine) SetText(s string) {
	if m.state == TextComposing {
		m.compose.Text = s
	}
}

// InsertNewline inserts a line break into the note being composed.
func (m *Machine) InsertNewline() {
	m.TextInput("\n")
}

// Confirm closes the text editor and saves the note.  Leading and
// trailing white space is removed; if nothing remains, no note is
// created and an existing note is left unchanged.
func (m *Machine) Confirm() error {
	if m.state != TextComposing {
		return nil
	}
	c := m.compose
	m.compose = nil
	m.tool = None
	m.setState(Idle)

	body := strings.TrimSpace(c.Text)
	if body == "" {
		return nil
	}
	if c.EditID != "" {
		return m.store.Update(c.EditID, annotation.Patch{Text: &body})
	}
	return m.add(annotation.Text{At: c.At, Body: body, Width: c.Width})
}

// Cancel closes the text editor without saving.
func (m *Machine) Cancel() {
	if m.state != TextComposing {
		return
	}
	m.compose = nil
	m.tool = None
	m.setState(Idle)
}

// FocusLost is called when the text editor loses the keyboard focus.
// Notes with text are saved, empty notes are discarded.
func (m *Machine) FocusLost() error {
	if m.state != TextComposing {
		return nil
	}
	if strings.TrimSpace(m.compose.Text) == "" {
		m.Cancel()
		return nil
	}
	return m.Confirm()
}

func (m *Machine) applyDrag(p annotation.Point) error {
	d := m.drag
	dx, dy := p.X-d.start.X, p.Y-d.start.Y
	shift := func(q annotation.Point) annotation.Point {
		return annotation.Point{X: q.X + dx, Y: q.Y + dy}
	}

	from := d.orig.Shape.Anchor()
	to, _ := annotation.Secondary(d.orig.Shape)

	var patch annotation.Patch
	switch d.kind {
	case DragPoint, DragTextMove, DragLineStart:
		patch = annotation.MoveTo(shift(from))
	case DragLineEnd:
		patch = annotation.MoveSecondTo(shift(to))
	case DragLineMove, DragCircleMove:
		a, b := shift(from), shift(to)
		patch = annotation.Patch{X: &a.X, Y: &a.Y, X2: &b.X, Y2: &b.Y}
	case DragCircleEdge:
		patch = annotation.MoveSecondTo(m.view.circleEdge(from, p))
	case DragTextResize:
		t := d.orig.Shape.(annotation.Text)
		w := t.Width
		if w <= 0 && m.view.Width > 0 {
			boxW, _ := annotation.TextBoxSize(t, m.view.Width/m.view.scale())
			w = boxW * m.view.scale() / m.view.Width
		}
		w = max(MinTextWidth, min(1, w+dx))
		patch = annotation.Patch{Width: &w}
	default:
		return fmt.Errorf("unexpected drag kind %s", d.kind)
	}
	return m.store.Update(d.orig.ID, patch)
}

// abortDrag restores the dragged annotation and returns to the idle state.
func (m *Machine) abortDrag() error {
	d := m.drag
	m.drag = nil
	m.setState(Idle)
	if !d.moved {
		return nil
	}

	from := d.orig.Shape.Anchor()
	patch := annotation.MoveTo(from)
	if to, ok := annotation.Secondary(d.orig.Shape); ok {
		patch.X2, patch.Y2 = &to.X, &to.Y
	}
	if t, ok := d.orig.Shape.(annotation.Text); ok {
		patch.Width = &t.Width
	}
	return m.store.Update(d.orig.ID, patch)
}

func (m *Machine) add(s annotation.Shape) error {
	a, err := annotation.New(m.view.StudentID, m.view.Page, s)
	if err != nil {
		return err
	}
	m.log.Debug().Str("id", a.ID).Str("kind", string(a.Kind())).Msg("add annotation")
	return m.store.Add(a)
}

func (m *Machine) list() []annotation.Annotation {
	return m.store.List(m.view.StudentID)
}

func (m *Machine) setState(s State) {
	if s == m.state {
		return
	}
	m.log.Debug().Stringer("from", m.state).Stringer("to", s).Stringer("tool", m.tool).Msg("tool state")
	m.state = s
}
