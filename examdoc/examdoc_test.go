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

package examdoc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/pdf"

	"seehuhn.de/go/exammark/internal/testpdf"
	"seehuhn.de/go/exammark/pagespace"
)

func TestPages(t *testing.T) {
	data, err := testpdf.Build(
		testpdf.A4(),
		testpdf.Page{Width: 600, Height: 800, Rotate: 90},
		testpdf.Page{Width: 842, Height: 595, Rotate: -90, Inherit: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if doc.NumPages() != 3 {
		t.Fatalf("%d pages", doc.NumPages())
	}

	want := []pagespace.Box{
		{Width: 595, Height: 842, Rotate: pagespace.Rotate0},
		{Width: 600, Height: 800, Rotate: pagespace.Rotate90},
		{Width: 842, Height: 595, Rotate: pagespace.Rotate270},
	}
	err = doc.Access(func(r *pdf.Reader) error {
		for i, w := range want {
			p, err := doc.Page(r, i+1)
			if err != nil {
				return err
			}
			if d := cmp.Diff(w, p.Box); d != "" {
				t.Errorf("page %d (-want +got):\n%s", i+1, d)
			}
		}
		_, err := doc.Page(r, 4)
		if !errors.Is(err, ErrNoPage) {
			t.Errorf("page 4: got %v", err)
		}
		_, err = doc.Page(r, 0)
		if !errors.Is(err, ErrNoPage) {
			t.Errorf("page 0: got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse([]byte("this is not a PDF file"))
	if err == nil {
		t.Error("expected an error")
	}
}
