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

// Package examdoc gives access to the pages of a scanned exam PDF.
//
// A [Document] reads from a complete file held in memory.  Pages are addressed by
// their 1-based physical page number.  For every page, the inheritable
// attributes /MediaBox, /CropBox, /Rotate and /Resources are resolved by
// walking up the page tree.
package examdoc

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"

	"seehuhn.de/go/exammark/pagespace"
)

// ErrNoPage is returned by [Document.Page] for page numbers outside the
// document.
var ErrNoPage = errors.New("no such page")

// Document is a parsed PDF file.
//
// The underlying PDF objects are not safe for concurrent use; all access
// goes through [Document.Access], which serializes callers.
type Document struct {
	mu    sync.Mutex
	r     *pdf.Reader
	pages []pdf.Reference
}

// Parse reads a complete PDF file.
func Parse(data []byte) (*Document, error) {
	d, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, err
	}
	pages, err := pagetree.FindPages(d)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, &pdf.MalformedFileError{Err: errors.New("document has no pages")}
	}
	return &Document{r: d, pages: pages}, nil
}

// NumPages returns the number of pages in the document.
func (d *Document) NumPages() int {
	return len(d.pages)
}

// Access calls fn with exclusive access to the PDF reader of the
// document.  The reader must not be retained after fn returns.
func (d *Document) Access(fn func(r *pdf.Reader) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.r)
}

// Page describes one page of a document.
type Page struct {
	Number int // 1-based
	Ref    pdf.Reference
	Dict   pdf.Dict

	// Box is the visible area of the page (the crop box), together with the
	// page rotation.
	Box pagespace.Box

	// Resources is the resource dictionary of the page, after inheritance.
	// It may be nil.
	Resources pdf.Dict
}

// Page returns the page with the given 1-based number.
// The caller must hold the document's access lock, and r must be the
// value passed to the Access callback.
func (d *Document) Page(r pdf.Getter, n int) (*Page, error) {
	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", n, len(d.pages), ErrNoPage)
	}
	ref := d.pages[n-1]
	if ref == 0 {
		return nil, &pdf.MalformedFileError{Err: fmt.Errorf("page %d: invalid page tree node", n)}
	}
	dict, err := pdf.GetDict(r, ref)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	} else if dict == nil {
		return nil, &pdf.MalformedFileError{Err: fmt.Errorf("page %d: missing page dictionary", n)}
	}

	attr, err := inherited(r, dict)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}

	mediaBox, err := pdf.GetRectangle(r, attr["MediaBox"])
	if err != nil {
		return nil, fmt.Errorf("page %d: MediaBox: %w", n, err)
	} else if mediaBox == nil {
		return nil, &pdf.MalformedFileError{Err: fmt.Errorf("page %d: missing MediaBox", n)}
	}
	box := normalize(*mediaBox)
	if cropBox, _ := pdf.GetRectangle(r, attr["CropBox"]); cropBox != nil {
		box = intersect(box, normalize(*cropBox))
	}

	rotate, err := pdf.GetInteger(r, attr["Rotate"])
	if err != nil {
		return nil, fmt.Errorf("page %d: Rotate: %w", n, err)
	}
	rot, err := pagespace.ParseRotation(int(rotate))
	if err != nil {
		return nil, &pdf.MalformedFileError{Err: fmt.Errorf("page %d: %w", n, err)}
	}

	res, err := pdf.GetDict(r, attr["Resources"])
	if err != nil {
		return nil, fmt.Errorf("page %d: Resources: %w", n, err)
	}

	return &Page{
		Number: n,
		Ref:    ref,
		Dict:   dict,
		Box: pagespace.Box{
			LLx:    box.LLx,
			LLy:    box.LLy,
			Width:  box.URx - box.LLx,
			Height: box.URy - box.LLy,
			Rotate: rot,
		},
		Resources: res,
	}, nil
}

// inheritable lists the page attributes which may be specified on an
// ancestor in the page tree.
var inheritable = []pdf.Name{"MediaBox", "CropBox", "Rotate", "Resources"}

// inherited collects the inheritable attributes of a page.
func inherited(r pdf.Getter, pageDict pdf.Dict) (pdf.Dict, error) {
	res := pdf.Dict{}
	seen := map[pdf.Reference]bool{}
	node := pageDict
	for node != nil {
		for _, key := range inheritable {
			if _, done := res[key]; done {
				continue
			}
			if val, ok := node[key]; ok && val != nil {
				res[key] = val
			}
		}

		parentRef, ok := node["Parent"].(pdf.Reference)
		if !ok || seen[parentRef] {
			break
		}
		seen[parentRef] = true
		parent, err := pdf.GetDict(r, parentRef)
		if err != nil {
			return nil, err
		}
		node = parent
	}
	return res, nil
}

func normalize(r pdf.Rectangle) pdf.Rectangle {
	if r.LLx > r.URx {
		r.LLx, r.URx = r.URx, r.LLx
	}
	if r.LLy > r.URy {
		r.LLy, r.URy = r.URy, r.LLy
	}
	return r
}

func intersect(a, b pdf.Rectangle) pdf.Rectangle {
	res := pdf.Rectangle{
		LLx: max(a.LLx, b.LLx),
		LLy: max(a.LLy, b.LLy),
		URx: min(a.URx, b.URx),
		URy: min(a.URy, b.URy),
	}
	if res.LLx >= res.URx || res.LLy >= res.URy {
		// an empty crop box is ignored
		return a
	}
	return res
}
