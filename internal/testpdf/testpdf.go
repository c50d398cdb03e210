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

// Package testpdf builds small scanned-exam PDF files for use in tests.
package testpdf

import (
	"bytes"
	"fmt"

	"seehuhn.de/go/pdf"
)

// Page describes one page of a generated document.
type Page struct {
	Width, Height float64
	Rotate        int

	// If Scan is non-nil, the page shows a DeviceGray image of size
	// ScanWidth x ScanHeight which covers the whole page.
	Scan                  []byte
	ScanWidth, ScanHeight int

	// Content is appended to the content stream of the page.
	Content string

	// Inherit moves /MediaBox and /Rotate from the page to its parent
	// node in the page tree.
	Inherit bool
}

// A4 returns an unrotated A4 page without content.
func A4() Page {
	return Page{Width: 595, Height: 842}
}

// Build writes a PDF file with the given pages.
func Build(pages ...Page) ([]byte, error) {
	buf := &bytes.Buffer{}
	d, err := pdf.NewWriter(buf, pdf.V1_7, nil)
	if err != nil {
		return nil, err
	}
	root := d.Alloc()

	var kids pdf.Array
	for i, p := range pages {
		// pages with inherited attributes get their own intermediate node
		parent := root
		var node pdf.Reference
		if p.Inherit {
			node = d.Alloc()
			parent = node
		}

		pageRef := d.Alloc()
		contentRef := d.Alloc()
		res := pdf.Dict{}

		var content string
		if p.Scan != nil {
			imgRef := d.Alloc()
			w, err := d.OpenStream(imgRef, pdf.Dict{
				"Type":             pdf.Name("XObject"),
				"Subtype":          pdf.Name("Image"),
				"Width":            pdf.Integer(p.ScanWidth),
				"Height":           pdf.Integer(p.ScanHeight),
				"ColorSpace":       pdf.Name("DeviceGray"),
				"BitsPerComponent": pdf.Integer(8),
			})
			if err != nil {
				return nil, err
			}
			if _, err := w.Write(p.Scan); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
			res["XObject"] = pdf.Dict{"Im0": imgRef}
			content = fmt.Sprintf("q %g 0 0 %g 0 0 cm /Im0 Do Q\n", p.Width, p.Height)
		}

		content += p.Content

		w, err := d.OpenStream(contentRef, nil)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		box := pdf.Array{pdf.Integer(0), pdf.Integer(0), pdf.Real(p.Width), pdf.Real(p.Height)}
		pageDict := pdf.Dict{
			"Type":      pdf.Name("Page"),
			"Parent":    parent,
			"Contents":  contentRef,
			"Resources": res,
		}
		if p.Inherit {
			nodeDict := pdf.Dict{
				"Type":     pdf.Name("Pages"),
				"Parent":   root,
				"Kids":     pdf.Array{pageRef},
				"Count":    pdf.Integer(1),
				"MediaBox": box,
			}
			if p.Rotate != 0 {
				nodeDict["Rotate"] = pdf.Integer(p.Rotate)
			}
			if err := d.Put(node, nodeDict); err != nil {
				return nil, err
			}
			kids = append(kids, node)
		} else {
			pageDict["MediaBox"] = box
			if p.Rotate != 0 {
				pageDict["Rotate"] = pdf.Integer(p.Rotate)
			}
			kids = append(kids, pageRef)
		}
		if err := d.Put(pageRef, pageDict); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}

	err = d.Put(root, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(len(pages)),
	})
	if err != nil {
		return nil, err
	}
	d.GetMeta().Catalog.Pages = root

	if err := d.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uniform returns the pixel data of a w x h gray image with constant
// value.
func Uniform(w, h int, gray byte) []byte {
	return bytes.Repeat([]byte{gray}, w*h)
}
