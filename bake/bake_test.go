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
	"fmt"
	"io"
	"maps"
	"math"
	"strings"
	"testing"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/graphics"
	"seehuhn.de/go/pdf/graphics/content"
	"seehuhn.de/go/pdf/graphics/form"
	"seehuhn.de/go/pdf/reader"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/examdoc"
	"seehuhn.de/go/exammark/internal/testpdf"
)

// mark is a path painted on a baked page, in default user space.
type mark struct {
	op   string
	cmds []path.Command
	pts  []vec.Vec2
}

// ends returns the end points of all segments of the path.
func (m mark) ends() []vec.Vec2 {
	var res []vec.Vec2
	i := 0
	for _, cmd := range m.cmds {
		n := cmd.NumPoints()
		if n > 0 {
			res = append(res, m.pts[i+n-1])
		}
		i += n
	}
	return res
}

func (m mark) count(cmd path.Command) int {
	n := 0
	for _, c := range m.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

// textRun is a piece of text shown on a baked page.  The matrix maps text
// space to default user space.
type textRun struct {
	text string
	tm   matrix.Matrix
}

type recording struct {
	marks []mark
	text  []textRun
}

// record renders a page of a PDF file into lists of painted paths and text
// runs, with coordinates in default user space of the page.
func record(t *testing.T, file []byte, pageNo int) *recording {
	t.Helper()
	doc, err := examdoc.Parse(file)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recording{}
	err = doc.Access(func(in *pdf.Reader) error {
		page, err := doc.Page(in, pageNo)
		if err != nil {
			return err
		}
		dict := maps.Clone(page.Dict)
		if page.Resources != nil {
			dict["Resources"] = page.Resources
		}

		r := reader.New(pdf.NewExtractor(in))
		r.UnknownOp = func(op string, _ []pdf.Object) error {
			switch content.OpName(op) {
			case content.OpStroke, content.OpFill:
			default:
				return nil
			}
			m := mark{op: op}
			for cmd, pts := range r.State.PaintedPath().Iter().Transform(r.State.GState.CTM) {
				m.cmds = append(m.cmds, cmd)
				m.pts = append(m.pts, pts...)
			}
			rec.marks = append(rec.marks, m)
			return nil
		}
		r.EveryOp = func(op string, _ []pdf.Object) error {
			if content.OpName(op) == content.OpTextSetMatrix {
				gs := r.State.GState
				rec.text = append(rec.text, textRun{tm: gs.TextMatrix.Mul(gs.CTM)})
			}
			return nil
		}
		r.Text = func(s string) error {
			if n := len(rec.text); n > 0 {
				rec.text[n-1].text += s
			}
			return nil
		}
		r.XObject = func(obj graphics.XObject, ctm matrix.Matrix) error {
			f, ok := obj.(*form.Form)
			if !ok {
				return nil
			}
			saved := r.State
			res := f.Res
			if res == nil {
				res = saved.Resources
			}
			r.State = content.NewState(content.Form, res)
			r.State.GState = saved.GState.Clone()
			r.State.GState.CTM = f.Matrix.Mul(ctm)
			err := r.ProcessStream(f.Content)
			r.State = saved
			return err
		}
		return r.ParsePage(dict, matrix.Identity)
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

// strokes returns the stroked paths of a recording.
func (rec *recording) strokes() []mark {
	var res []mark
	for _, m := range rec.marks {
		if m.op == string(content.OpStroke) {
			res = append(res, m)
		}
	}
	return res
}

// pageContents returns the decoded content streams of a page.
func pageContents(t *testing.T, file []byte, pageNo int) []string {
	t.Helper()
	doc, err := examdoc.Parse(file)
	if err != nil {
		t.Fatal(err)
	}
	var res []string
	err = doc.Access(func(in *pdf.Reader) error {
		page, err := doc.Page(in, pageNo)
		if err != nil {
			return err
		}
		contents, err := contentStreams(in, page.Dict["Contents"])
		if err != nil {
			return err
		}
		for _, obj := range contents {
			stm, err := pdf.GetStream(in, obj)
			if err != nil {
				return err
			}
			body, err := pdf.DecodeStream(in, stm, 0)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(body)
			body.Close()
			if err != nil {
				return err
			}
			res = append(res, string(data))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func bake(t *testing.T, page testpdf.Page, shapes ...annotation.Shape) []byte {
	t.Helper()
	src, err := testpdf.Build(page)
	if err != nil {
		t.Fatal(err)
	}
	var anns []annotation.Annotation
	for _, s := range shapes {
		a, err := annotation.New("7", 1, s)
		if err != nil {
			t.Fatal(err)
		}
		anns = append(anns, a)
	}
	out, err := BakeDocument(src, anns)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func near(a, b vec.Vec2, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

// toUser maps display units of a 600x800 page to user space.
func toUser(rot int, x, y float64) vec.Vec2 {
	const w, h = 600.0, 800.0
	switch rot {
	case 90:
		return vec.Vec2{X: y, Y: x}
	case 180:
		return vec.Vec2{X: w - x, Y: y}
	case 270:
		return vec.Vec2{X: w - y, Y: h - x}
	default:
		return vec.Vec2{X: x, Y: h - y}
	}
}

func TestArrowOnUnrotatedPage(t *testing.T) {
	out := bake(t, testpdf.Page{Width: 600, Height: 800},
		annotation.Arrow{From: annotation.Point{X: 0.1, Y: 0.1}, To: annotation.Point{X: 0.4, Y: 0.1}})

	strokes := record(t, out, 1).strokes()
	if len(strokes) != 1 {
		t.Fatalf("%d stroked paths, want 1", len(strokes))
	}
	pts := strokes[0].pts
	if len(pts) != 6 {
		t.Fatalf("arrow has %d points, want 6", len(pts))
	}
	tip := vec.Vec2{X: 240, Y: 720}
	if !near(pts[0], vec.Vec2{X: 60, Y: 720}, 1e-6) || !near(pts[1], tip, 1e-6) {
		t.Errorf("arrow shaft %v-%v, want (60,720)-(240,720)", pts[0], pts[1])
	}
	for _, i := range []int{2, 4} {
		if !near(pts[i], tip, 1e-6) {
			t.Errorf("head stroke starts at %v", pts[i])
		}
	}
	if pts[3].X >= 240 || pts[5].X >= 240 || pts[3].Y == pts[5].Y {
		t.Errorf("unexpected arrow head %v", pts[2:])
	}
}

func TestCheckmarkOnRotatedPage(t *testing.T) {
	// displayed as 800 wide, 600 high
	out := bake(t, testpdf.Page{Width: 600, Height: 800, Rotate: 90},
		annotation.Checkmark{At: annotation.Point{X: 0.5, Y: 0.5}})

	strokes := record(t, out, 1).strokes()
	if len(strokes) != 1 {
		t.Fatalf("%d stroked paths, want 1", len(strokes))
	}

	// display points (388,300), (396,312), (412,288)
	want := []vec.Vec2{{X: 300, Y: 388}, {X: 312, Y: 396}, {X: 288, Y: 412}}
	got := strokes[0].pts
	if len(got) != len(want) {
		t.Fatalf("checkmark %v", got)
	}
	for i := range want {
		if !near(got[i], want[i], 1e-6) {
			t.Errorf("point %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestRotations checks the placement of marks on all four page rotations.
// The expected positions are given in display units and mapped to user
// space by hand.
func TestRotations(t *testing.T) {
	for _, rot := range []int{0, 90, 180, 270} {
		t.Run(fmt.Sprintf("rotate%d", rot), func(t *testing.T) {
			dw, dh := 600.0, 800.0
			if rot%180 != 0 {
				dw, dh = dh, dw
			}
			at := func(x, y float64) annotation.Point {
				return annotation.Point{X: x / dw, Y: y / dh}
			}

			const radius = 60.0
			cx, cy := 250.0, 200.0
			x1, y1 := 100.0, 300.0
			x2, y2 := 400.0, 450.0
			tx, ty := 50.0, 500.0

			out := bake(t, testpdf.Page{Width: 600, Height: 800, Rotate: rot},
				annotation.Circle{Center: at(cx, cy), Edge: at(cx+radius, cy)},
				annotation.Arrow{From: at(x1, y1), To: at(x2, y2)},
				annotation.Text{At: at(tx, ty), Body: "good"})
			rec := record(t, out, 1)
			strokes := rec.strokes()

			// circle: four Bézier segments, with the segment end points
			// at the extremes of the circle
			var circle *mark
			for i := range strokes {
				if strokes[i].count(path.CmdCubeTo) > 0 {
					circle = &strokes[i]
					break
				}
			}
			if circle == nil {
				t.Fatal("no circle found")
			}
			if n := circle.count(path.CmdCubeTo); n != 4 {
				t.Errorf("circle has %d curve segments, want 4", n)
			}
			c := toUser(rot, cx, cy)
			extremes := []vec.Vec2{
				{X: c.X + radius, Y: c.Y},
				{X: c.X - radius, Y: c.Y},
				{X: c.X, Y: c.Y + radius},
				{X: c.X, Y: c.Y - radius},
			}
			ends := circle.ends()
			for _, want := range extremes {
				found := false
				for _, p := range ends {
					if near(p, want, 0.1) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("circle misses %v: %v", want, ends)
				}
			}
			for _, p := range ends {
				if d := math.Hypot(p.X-c.X, p.Y-c.Y); math.Abs(d-radius) > 0.1 {
					t.Errorf("circle point %v at distance %g, want %g", p, d, radius)
				}
			}

			// arrow: shaft, then two head strokes from the tip
			var arrow *mark
			for i := range strokes {
				if len(strokes[i].pts) == 6 && strokes[i].count(path.CmdCubeTo) == 0 {
					arrow = &strokes[i]
					break
				}
			}
			if arrow == nil {
				t.Fatal("no arrow found")
			}
			theta := math.Atan2(y2-y1, x2-x1)
			head := func(a float64) vec.Vec2 {
				return toUser(rot, x2-12*math.Cos(a), y2-12*math.Sin(a))
			}
			want := []vec.Vec2{
				toUser(rot, x1, y1), toUser(rot, x2, y2),
				toUser(rot, x2, y2), head(theta - math.Pi/6),
				toUser(rot, x2, y2), head(theta + math.Pi/6),
			}
			for i := range want {
				if !near(arrow.pts[i], want[i], 1e-6) {
					t.Errorf("arrow point %d: got %v, want %v", i, arrow.pts[i], want[i])
				}
			}

			// text: runs to the right of the displayed page, upright
			if len(rec.text) != 1 {
				t.Fatalf("%d text runs, want 1", len(rec.text))
			}
			tm := rec.text[0].tm
			o := toUser(rot, 0, 0)
			right := toUser(rot, 1, 0).Sub(o)
			up := o.Sub(toUser(rot, 0, 1))
			if !near(vec.Vec2{X: tm[0], Y: tm[1]}, right, 1e-9) {
				t.Errorf("text direction %v, want %v", vec.Vec2{X: tm[0], Y: tm[1]}, right)
			}
			if !near(vec.Vec2{X: tm[2], Y: tm[3]}, up, 1e-9) {
				t.Errorf("text up vector %v, want %v", vec.Vec2{X: tm[2], Y: tm[3]}, up)
			}
			baseline := ty + annotation.TextPadding + annotation.TextLineHeight - textDescent
			origin := toUser(rot, tx+annotation.TextPadding, baseline)
			if !near(vec.Vec2{X: tm[4], Y: tm[5]}, origin, 1e-6) {
				t.Errorf("text origin %v, want %v", vec.Vec2{X: tm[4], Y: tm[5]}, origin)
			}
		})
	}
}

func TestOriginalContentWrapped(t *testing.T) {
	out := bake(t, testpdf.Page{Width: 100, Height: 100, Content: "0 0 1 rg 10 10 20 20 re f\n"},
		annotation.Cross{At: annotation.Point{X: 0.5, Y: 0.5}})

	streams := pageContents(t, out, 1)
	if len(streams) != 3 {
		t.Fatalf("%d content streams, want 3", len(streams))
	}
	if strings.TrimSpace(streams[0]) != "q" {
		t.Errorf("first stream: %q", streams[0])
	}
	if !strings.HasSuffix(strings.TrimSpace(streams[1]), "re f") {
		t.Errorf("original content changed: %q", streams[1])
	}
	tail := strings.Fields(streams[2])
	if len(tail) != 3 || tail[0] != "Q" || !strings.HasPrefix(tail[1], "/"+overlayName) || tail[2] != "Do" {
		t.Errorf("last stream: %q", streams[2])
	}

	// the blue square of the scan and the red cross of the overlay
	rec := record(t, out, 1)
	if len(rec.marks) != 2 || rec.marks[0].op != "f" || rec.marks[1].op != "S" {
		t.Errorf("unexpected paths: %v", rec.marks)
	}
}

func TestTextNote(t *testing.T) {
	out := bake(t, testpdf.Page{Width: 600, Height: 800},
		annotation.Text{At: annotation.Point{X: 0.1, Y: 0.1}, Body: "very good\nsee p. 2"})

	rec := record(t, out, 1)
	var shown []string
	for _, run := range rec.text {
		shown = append(shown, run.text)
	}
	if want := []string{"very good", "see p. 2"}; fmt.Sprint(shown) != fmt.Sprint(want) {
		t.Errorf("text %q, want %q", shown, want)
	}

	// highlight box, then its border
	if len(rec.marks) != 2 || rec.marks[0].op != "f" || rec.marks[1].op != "S" {
		t.Fatalf("unexpected paths: %v", rec.marks)
	}

	doc, err := examdoc.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	err = doc.Access(func(in *pdf.Reader) error {
		page, err := doc.Page(in, 1)
		if err != nil {
			return err
		}
		xObjects, err := pdf.GetDict(in, page.Resources["XObject"])
		if err != nil {
			return err
		}
		stm, err := pdf.GetStream(in, xObjects[overlayName+"0"])
		if err != nil {
			return err
		}
		if stm == nil {
			t.Fatalf("no overlay in %v", xObjects)
		}
		res, err := pdf.GetDict(in, stm.Dict["Resources"])
		if err != nil {
			return err
		}
		fonts, err := pdf.GetDict(in, res["Font"])
		if err != nil {
			return err
		}
		if len(fonts) != 1 {
			t.Fatalf("fonts: %v", fonts)
		}
		for _, ref := range fonts {
			font, err := pdf.GetDict(in, ref)
			if err != nil {
				return err
			}
			if font["BaseFont"] != pdf.Name("Helvetica") {
				t.Errorf("font %v", font)
			}
		}
		gs, err := pdf.GetDict(in, res["ExtGState"])
		if err != nil {
			return err
		}
		if len(gs) != 1 {
			t.Errorf("missing ExtGState for the highlight: %v", res)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMissingPageIgnored(t *testing.T) {
	src, err := testpdf.Build(testpdf.A4())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := annotation.New("7", 3, annotation.Checkmark{At: annotation.Point{X: 0.5, Y: 0.5}})
	out, err := BakeDocument(src, []annotation.Annotation{a})
	if err != nil {
		t.Fatal(err)
	}
	if streams := pageContents(t, out, 1); len(streams) != 1 {
		t.Errorf("page 1 was modified: %d content streams", len(streams))
	}
}

func TestOutOfRangeKept(t *testing.T) {
	out := bake(t, testpdf.Page{Width: 600, Height: 800},
		annotation.Line{From: annotation.Point{X: -0.1, Y: 0.5}, To: annotation.Point{X: 1.1, Y: 0.5}})

	strokes := record(t, out, 1).strokes()
	if len(strokes) != 1 || len(strokes[0].pts) != 2 {
		t.Fatalf("unexpected paths: %v", strokes)
	}
	pts := strokes[0].pts
	if !near(pts[0], vec.Vec2{X: -60, Y: 400}, 1e-6) || !near(pts[1], vec.Vec2{X: 660, Y: 400}, 1e-6) {
		t.Errorf("line %v", pts)
	}
}

func TestFreeName(t *testing.T) {
	used := pdf.Dict{"ExamMarks0": pdf.Integer(1), "ExamMarks1": pdf.Integer(2)}
	if got := freeName(used, overlayName); got != "ExamMarks2" {
		t.Errorf("got %q", got)
	}
	if got := freeName(nil, overlayName); got != "ExamMarks0" {
		t.Errorf("got %q", got)
	}
}
