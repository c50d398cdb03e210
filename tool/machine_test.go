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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"seehuhn.de/go/exammark/annotation"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func pt(x, y float64) annotation.Point {
	return annotation.Point{X: x, Y: y}
}

// newMachine returns a machine showing page 1 of student "7", displayed
// at 600x800 pixels.
func newMachine(t *testing.T) (*Machine, *annotation.Store) {
	t.Helper()
	store := annotation.NewStore()
	m := New(store, zerolog.Nop())
	err := m.SetView(View{StudentID: "7", Page: 1, Width: 600, Height: 800, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	return m, store
}

func seed(t *testing.T, store *annotation.Store, shapes ...annotation.Shape) []string {
	t.Helper()
	var ids []string
	for _, s := range shapes {
		a, err := annotation.New("7", 1, s)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Add(a); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, a.ID)
	}
	return ids
}

func click(t *testing.T, m *Machine, p annotation.Point) {
	t.Helper()
	if err := m.Press(p); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(p); err != nil {
		t.Fatal(err)
	}
}

func shapes(store *annotation.Store) []annotation.Shape {
	var res []annotation.Shape
	for _, a := range store.List("7") {
		res = append(res, a.Shape)
	}
	return res
}

func checkState(t *testing.T, m *Machine, state State, tool Tool) {
	t.Helper()
	if m.State() != state || m.Tool() != tool {
		t.Errorf("state %s/%s, want %s/%s", m.State(), m.Tool(), state, tool)
	}
}

func TestPlaceCheckmark(t *testing.T) {
	m, store := newMachine(t)

	if err := m.SelectTool(Checkmark); err != nil {
		t.Fatal(err)
	}
	checkState(t, m, ToolArmed, Checkmark)
	click(t, m, pt(0.2, 0.3))

	list := store.List("7")
	if len(list) != 1 {
		t.Fatalf("%d annotations", len(list))
	}
	a := list[0]
	if a.StudentID != "7" || a.Page != 1 || a.ID == "" {
		t.Errorf("unexpected placement %+v", a)
	}
	if d := cmp.Diff(annotation.Checkmark{At: pt(0.2, 0.3)}, a.Shape); d != "" {
		t.Errorf("shape (-want +got):\n%s", d)
	}
	checkState(t, m, Idle, None)
}

func TestPlaceArrow(t *testing.T) {
	m, store := newMachine(t)

	if _, err := m.Key('a', false); err != nil {
		t.Fatal(err)
	}
	click(t, m, pt(0.1, 0.1))
	checkState(t, m, ShapePending, Arrow)
	if len(store.List("7")) != 0 {
		t.Fatal("annotation created after the first click")
	}

	if err := m.Move(pt(0.3, 0.15)); err != nil {
		t.Fatal(err)
	}
	preview, ok := m.Preview()
	if !ok {
		t.Fatal("no preview")
	}
	want := Preview{Kind: annotation.KindArrow, From: pt(0.1, 0.1), To: pt(0.3, 0.15)}
	if d := cmp.Diff(want, preview); d != "" {
		t.Errorf("preview (-want +got):\n%s", d)
	}

	click(t, m, pt(0.4, 0.1))
	wantShapes := []annotation.Shape{annotation.Arrow{From: pt(0.1, 0.1), To: pt(0.4, 0.1)}}
	if d := cmp.Diff(wantShapes, shapes(store)); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
	checkState(t, m, Idle, None)
	if _, ok := m.Preview(); ok {
		t.Error("preview still shown")
	}
}

func TestEscapeDiscardsPendingShape(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Line)
	click(t, m, pt(0.1, 0.1))
	handled, err := m.Key(KeyEscape, false)
	if err != nil || !handled {
		t.Fatalf("escape: %t %v", handled, err)
	}
	checkState(t, m, Idle, None)
	if n := len(store.List("7")); n != 0 {
		t.Errorf("%d annotations", n)
	}

	// a new click does not complete the old shape
	click(t, m, pt(0.5, 0.5))
	if n := len(store.List("7")); n != 0 {
		t.Errorf("%d annotations", n)
	}
}

func TestToolKeyToggles(t *testing.T) {
	for _, k := range []Key{'v', 'X', 't', 'l', 'A', 'o', 'e'} {
		m, store := newMachine(t)
		want, _ := ForKey(k)

		m.Key(k, false)
		checkState(t, m, ToolArmed, want)
		m.Key(k, false)
		checkState(t, m, Idle, None)
		if n := len(store.List("7")); n != 0 {
			t.Errorf("%c: %d annotations", k, n)
		}
	}
}

func TestToolKeyWhilePending(t *testing.T) {
	m, _ := newMachine(t)

	m.SelectTool(Circle)
	click(t, m, pt(0.1, 0.1))
	m.Key('o', false)
	checkState(t, m, Idle, None)

	m.SelectTool(Line)
	click(t, m, pt(0.1, 0.1))
	m.SelectTool(Arrow)
	checkState(t, m, ToolArmed, Arrow)
	if _, ok := m.Preview(); ok {
		t.Error("pending start point survived a tool change")
	}
}

func TestShapeCompletionWinsOverSelection(t *testing.T) {
	m, store := newMachine(t)
	seed(t, store, annotation.Checkmark{At: pt(0.4, 0.1)})

	m.SelectTool(Line)
	click(t, m, pt(0.1, 0.1))
	click(t, m, pt(0.4, 0.1))

	want := []annotation.Shape{
		annotation.Checkmark{At: pt(0.4, 0.1)},
		annotation.Line{From: pt(0.1, 0.1), To: pt(0.4, 0.1)},
	}
	if d := cmp.Diff(want, shapes(store)); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestCircleEdgeAtBottom(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Circle)
	click(t, m, pt(0.5, 0.5))
	click(t, m, pt(0.6, 0.5)) // 60 pixels to the right

	want := []annotation.Shape{annotation.Circle{Center: pt(0.5, 0.5), Edge: pt(0.5, 0.575)}}
	if d := cmp.Diff(want, shapes(store), approx); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestEraserStaysArmed(t *testing.T) {
	m, store := newMachine(t)
	ids := seed(t, store,
		annotation.Checkmark{At: pt(0.2, 0.2)},
		annotation.Line{From: pt(0.1, 0.5), To: pt(0.9, 0.5)},
	)

	m.Key('e', false)
	click(t, m, pt(0.5, 0.505))
	checkState(t, m, ToolArmed, Eraser)
	if _, ok := store.Get(ids[1]); ok {
		t.Error("line was not erased")
	}

	click(t, m, pt(0.8, 0.9)) // nothing here
	checkState(t, m, ToolArmed, Eraser)

	click(t, m, pt(0.2, 0.2))
	if n := len(store.List("7")); n != 0 {
		t.Errorf("%d annotations left", n)
	}
	checkState(t, m, ToolArmed, Eraser)
}

func TestDragPoint(t *testing.T) {
	m, store := newMachine(t)
	ids := seed(t, store,
		annotation.Cross{At: pt(0.5, 0.5)},
		annotation.Checkmark{At: pt(0.5, 0.5)},
	)

	if err := m.Press(pt(0.51, 0.5)); err != nil {
		t.Fatal(err)
	}
	kind, id, ok := m.Drag()
	if !ok || kind != DragPoint || id != ids[1] {
		t.Fatalf("drag %s of %s, want the topmost annotation", kind, id)
	}

	// positions are not clamped to the page
	m.Move(pt(0.81, 0.2))
	m.Move(pt(1.21, -0.1))
	if err := m.Release(pt(1.21, -0.1)); err != nil {
		t.Fatal(err)
	}
	checkState(t, m, Idle, None)

	want := []annotation.Shape{
		annotation.Cross{At: pt(0.5, 0.5)},
		annotation.Checkmark{At: pt(1.2, -0.1)},
	}
	if d := cmp.Diff(want, shapes(store), approx); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestDragLine(t *testing.T) {
	line := annotation.Line{From: pt(0.1, 0.1), To: pt(0.5, 0.1)}
	cases := []struct {
		press, release annotation.Point
		kind           DragKind
		want           annotation.Shape
	}{
		{pt(0.1, 0.1), pt(0.2, 0.2), DragLineStart,
			annotation.Line{From: pt(0.2, 0.2), To: pt(0.5, 0.1)}},
		{pt(0.5, 0.1), pt(0.5, 0.3), DragLineEnd,
			annotation.Line{From: pt(0.1, 0.1), To: pt(0.5, 0.3)}},
		{pt(0.3, 0.1), pt(0.3, 0.2), DragLineMove,
			annotation.Line{From: pt(0.1, 0.2), To: pt(0.5, 0.2)}},
	}
	for _, c := range cases {
		m, store := newMachine(t)
		seed(t, store, line)

		m.Press(c.press)
		kind, _, _ := m.Drag()
		if kind != c.kind {
			t.Errorf("%s: got drag kind %s", c.kind, kind)
		}
		m.Move(c.release)
		m.Release(c.release)
		if d := cmp.Diff([]annotation.Shape{c.want}, shapes(store), approx); d != "" {
			t.Errorf("%s (-want +got):\n%s", c.kind, d)
		}
	}
}

func TestDragCircle(t *testing.T) {
	m, store := newMachine(t)
	seed(t, store, annotation.Circle{Center: pt(0.5, 0.5), Edge: pt(0.5, 0.575)})

	// the handle at the bottom resizes
	m.Press(pt(0.5, 0.575))
	if kind, _, _ := m.Drag(); kind != DragCircleEdge {
		t.Fatalf("got %s", kind)
	}
	m.Move(pt(0.65, 0.5)) // 90 pixels from the centre
	m.Release(pt(0.65, 0.5))
	want := []annotation.Shape{annotation.Circle{Center: pt(0.5, 0.5), Edge: pt(0.5, 0.6125)}}
	if d := cmp.Diff(want, shapes(store), approx); d != "" {
		t.Errorf("resize (-want +got):\n%s", d)
	}

	// the rim moves the circle
	m.Press(pt(0.5, 0.3875))
	if kind, _, _ := m.Drag(); kind != DragCircleMove {
		t.Fatalf("got %s", kind)
	}
	m.Release(pt(0.6, 0.4875))
	want = []annotation.Shape{annotation.Circle{Center: pt(0.6, 0.6), Edge: pt(0.6, 0.7125)}}
	if d := cmp.Diff(want, shapes(store), approx); d != "" {
		t.Errorf("move (-want +got):\n%s", d)
	}
}

func TestEscapeAbortsDrag(t *testing.T) {
	m, store := newMachine(t)
	seed(t, store, annotation.Checkmark{At: pt(0.5, 0.5)})

	m.Press(pt(0.5, 0.5))
	m.Move(pt(0.7, 0.7))
	m.Key(KeyEscape, false)
	checkState(t, m, Idle, None)

	want := []annotation.Shape{annotation.Checkmark{At: pt(0.5, 0.5)}}
	if d := cmp.Diff(want, shapes(store), approx); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestComposeText(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Text)
	click(t, m, pt(0.2, 0.2))
	checkState(t, m, TextComposing, Text)

	m.TextInput("  good")
	if handled, _ := m.Key(KeyEnter, false); !handled {
		t.Error("enter not handled")
	}
	m.TextInput("work  ")
	// tool shortcuts are ordinary text inside the editor
	if handled, _ := m.Key('v', false); handled {
		t.Error("tool key handled while composing")
	}
	c, ok := m.Composing()
	if !ok || c.Text != "  good\nwork  " || c.EditID != "" {
		t.Errorf("composition %+v", c)
	}

	if _, err := m.Key(KeyEnter, true); err != nil {
		t.Fatal(err)
	}
	checkState(t, m, Idle, None)
	want := []annotation.Shape{annotation.Text{At: pt(0.2, 0.2), Body: "good\nwork"}}
	if d := cmp.Diff(want, shapes(store)); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestComposeTextCancelled(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Text)
	click(t, m, pt(0.2, 0.2))
	m.TextInput("never mind")
	m.Key(KeyEscape, false)
	checkState(t, m, Idle, None)

	m.SelectTool(Text)
	click(t, m, pt(0.2, 0.2))
	m.TextInput("   ")
	if err := m.Confirm(); err != nil {
		t.Fatal(err)
	}
	checkState(t, m, Idle, None)

	if n := len(store.List("7")); n != 0 {
		t.Errorf("%d annotations", n)
	}
}

func TestComposeTextFocusLost(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Text)
	click(t, m, pt(0.2, 0.2))
	m.TextInput("see below")

	// clicking elsewhere closes the editor
	if err := m.Press(pt(0.8, 0.8)); err != nil {
		t.Fatal(err)
	}
	checkState(t, m, Idle, None)
	want := []annotation.Shape{annotation.Text{At: pt(0.2, 0.2), Body: "see below"}}
	if d := cmp.Diff(want, shapes(store)); d != "" {
		t.Errorf("shapes (-want +got):\n%s", d)
	}
}

func TestEditExistingText(t *testing.T) {
	m, store := newMachine(t)
	ids := seed(t, store, annotation.Text{At: pt(0.1, 0.1), Body: "abc", Width: 0.1})

	// the box covers pixels (60, 80) to (120, 97)
	inside := pt(70.0/600, 85.0/800)
	click(t, m, inside)
	if err := m.DoubleClick(inside); err != nil {
		t.Fatal(err)
	}
	c, ok := m.Composing()
	if !ok || c.EditID != ids[0] || c.Text != "abc" {
		t.Fatalf("composition %+v", c)
	}

	m.SetText("xyz")
	if err := m.Confirm(); err != nil {
		t.Fatal(err)
	}
	list := store.List("7")
	if len(list) != 1 || list[0].ID != ids[0] {
		t.Fatalf("note not updated in place: %v", list)
	}
	want := annotation.Text{At: pt(0.1, 0.1), Body: "xyz", Width: 0.1}
	if d := cmp.Diff(want, list[0].Shape); d != "" {
		t.Errorf("shape (-want +got):\n%s", d)
	}

	// with the text tool armed, a single click edits
	m.SelectTool(Text)
	click(t, m, inside)
	if c, ok := m.Composing(); !ok || c.EditID != ids[0] {
		t.Errorf("composition %+v", c)
	}
}

func TestResizeText(t *testing.T) {
	m, store := newMachine(t)
	ids := seed(t, store, annotation.Text{At: pt(0.1, 0.1), Body: "abc", Width: 0.1})

	handle := pt(118.0/600, 95.0/800)
	m.Press(handle)
	if kind, _, _ := m.Drag(); kind != DragTextResize {
		t.Fatalf("got %s", kind)
	}
	m.Move(pt(handle.X+0.05, handle.Y))
	a, _ := store.Get(ids[0])
	if w := a.Shape.(annotation.Text).Width; !cmp.Equal(w, 0.15, approx) {
		t.Errorf("width %g, want 0.15", w)
	}

	m.Move(pt(-0.5, handle.Y))
	m.Release(pt(-0.5, handle.Y))
	a, _ = store.Get(ids[0])
	if w := a.Shape.(annotation.Text).Width; w != MinTextWidth {
		t.Errorf("width %g, want %g", w, MinTextWidth)
	}
}

func TestOtherPagesIgnored(t *testing.T) {
	m, store := newMachine(t)
	a, _ := annotation.New("7", 2, annotation.Checkmark{At: pt(0.5, 0.5)})
	store.Add(a)

	m.Press(pt(0.5, 0.5))
	checkState(t, m, Idle, None)
}

func TestSetViewDiscardsPendingShape(t *testing.T) {
	m, store := newMachine(t)

	m.SelectTool(Line)
	click(t, m, pt(0.1, 0.1))
	m.SetView(View{StudentID: "7", Page: 2, Width: 600, Height: 800, Scale: 1})
	checkState(t, m, ToolArmed, Line)

	click(t, m, pt(0.2, 0.2))
	click(t, m, pt(0.3, 0.2))
	list := store.List("7")
	if len(list) != 1 || list[0].Page != 2 {
		t.Fatalf("unexpected annotations %v", list)
	}
	if d := cmp.Diff(annotation.Line{From: pt(0.2, 0.2), To: pt(0.3, 0.2)}, list[0].Shape); d != "" {
		t.Errorf("shape (-want +got):\n%s", d)
	}
}

func TestNoPage(t *testing.T) {
	m := New(annotation.NewStore(), zerolog.Nop())
	m.SelectTool(Checkmark)
	if err := m.Press(pt(0.5, 0.5)); !errors.Is(err, ErrNoPage) {
		t.Errorf("got %v", err)
	}
}
