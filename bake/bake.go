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

// Package bake draws annotations permanently into copies of the exam
// documents.
//
// The marks for a page are collected in a form XObject, whose matrix maps
// display units to user space of the page.  The original page content is
// enclosed in a q/Q pair and the form is drawn after it, so that the marks
// use the default graphics state whatever the scan does.
package bake

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/rs/zerolog"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/graphics/content"
	"seehuhn.de/go/pdf/graphics/form"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/examdoc"
)

// overlayName is the prefix of the resource name of the annotation form.
const overlayName = "ExamMarks"

// BakeDocument returns a copy of the PDF file src with the annotations
// drawn onto its pages.  Annotations for pages which do not exist in the
// document are ignored.
func BakeDocument(src []byte, anns []annotation.Annotation) ([]byte, error) {
	return bakeDocument(src, anns, zerolog.Nop())
}

func bakeDocument(src []byte, anns []annotation.Annotation, log zerolog.Logger) ([]byte, error) {
	doc, err := examdoc.Parse(src)
	if err != nil {
		return nil, err
	}

	byPage := make(map[int][]annotation.Annotation)
	for _, a := range anns {
		if a.Page < 1 || a.Page > doc.NumPages() {
			log.Debug().Str("id", a.ID).Int("page", a.Page).
				Int("pages", doc.NumPages()).Msg("annotation for missing page ignored")
			continue
		}
		byPage[a.Page] = append(byPage[a.Page], a)
	}

	buf := &bytes.Buffer{}
	err = doc.Access(func(r *pdf.Reader) error {
		return writeBaked(buf, r, doc, byPage)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBaked copies the document to out.  The annotated pages are replaced
// by new page dictionaries while everything else is copied unchanged.
func writeBaked(out io.Writer, r *pdf.Reader, doc *examdoc.Document, byPage map[int][]annotation.Annotation) error {
	// constant opacity needs PDF 1.4
	v := max(pdf.GetVersion(r), pdf.V1_4)
	w, err := pdf.NewWriter(out, v, nil)
	if err != nil {
		return err
	}
	rm := pdf.NewResourceManager(w)
	cp := pdf.NewCopier(w, r)

	type annotatedPage struct {
		page *examdoc.Page
		ref  pdf.Reference
		anns []annotation.Annotation
	}
	var todo []annotatedPage
	for _, pageNo := range slices.Sorted(maps.Keys(byPage)) {
		page, err := doc.Page(r, pageNo)
		if err != nil {
			return err
		}
		ref := w.Alloc()
		cp.Redirect(page.Ref, ref)
		todo = append(todo, annotatedPage{page: page, ref: ref, anns: byPage[pageNo]})
	}

	for _, p := range todo {
		dict, err := bakePage(r, w, rm, cp, p.page, p.anns)
		if err != nil {
			return fmt.Errorf("page %d: %w", p.page.Number, err)
		}
		if err := w.Put(p.ref, dict); err != nil {
			return err
		}
	}

	meta := r.GetMeta()
	catDict, err := cp.CopyDict(pdf.AsDict(meta.Catalog))
	if err != nil {
		return err
	}
	catalog, err := pdf.ExtractCatalog(w, catDict)
	if err != nil {
		return err
	}
	w.GetMeta().Catalog = catalog
	w.GetMeta().Info = meta.Info
	w.GetMeta().ID = meta.ID

	if err := rm.Close(); err != nil {
		return err
	}
	return w.Close()
}

// bakePage returns the new page dictionary for an annotated page.
func bakePage(r pdf.Getter, w *pdf.Writer, rm *pdf.ResourceManager, cp *pdf.Copier, page *examdoc.Page, anns []annotation.Annotation) (pdf.Dict, error) {
	overlay, err := newOverlay(page, anns)
	if err != nil {
		return nil, err
	}
	overlayRef, err := rm.Embed(overlay)
	if err != nil {
		return nil, err
	}

	// The resources of the new page are the inherited resources of the
	// old one, with the overlay added to the XObject dictionary.
	res := maps.Clone(page.Resources)
	if res == nil {
		res = pdf.Dict{}
	}
	xObjects, err := pdf.GetDict(r, res["XObject"])
	if err != nil {
		return nil, err
	}
	name := freeName(xObjects, overlayName)
	xObjects, err = cp.CopyDict(xObjects)
	if err != nil {
		return nil, err
	}
	xObjects[name] = overlayRef
	delete(res, "XObject")
	newRes, err := cp.CopyDict(res)
	if err != nil {
		return nil, err
	}
	newRes["XObject"] = xObjects

	contents, err := contentStreams(r, page.Dict["Contents"])
	if err != nil {
		return nil, err
	}
	contents, err = cp.CopyArray(contents)
	if err != nil {
		return nil, err
	}
	open, err := putStream(w, content.Operator{Name: content.OpPushGraphicsState})
	if err != nil {
		return nil, err
	}
	tail, err := putStream(w,
		content.Operator{Name: content.OpPopGraphicsState},
		content.Operator{Name: content.OpXObject, Args: []pdf.Object{name}})
	if err != nil {
		return nil, err
	}
	newContents := make(pdf.Array, 0, len(contents)+2)
	newContents = append(newContents, open)
	newContents = append(newContents, contents...)
	newContents = append(newContents, tail)

	dict := maps.Clone(page.Dict)
	delete(dict, "Contents")
	delete(dict, "Resources")
	newDict, err := cp.CopyDict(dict)
	if err != nil {
		return nil, err
	}
	newDict["Contents"] = newContents
	newDict["Resources"] = newRes
	return newDict, nil
}

// newOverlay draws the annotations of a page into a form XObject.
func newOverlay(page *examdoc.Page, anns []annotation.Annotation) (*form.Form, error) {
	dw, dh := page.Box.DisplaySize()
	p := newPainter(dw, dh)
	for _, a := range anns {
		p.Draw(a.Shape)
	}
	if err := p.Close(); err != nil {
		return nil, err
	}
	return &form.Form{
		Content: p.Stream,
		Res:     p.Resources,
		BBox:    pdf.Rectangle{URx: dw, URy: dh},
		Matrix:  displayToUser(page),
	}, nil
}

// displayToUser maps display units of a page to its default user space.
func displayToUser(page *examdoc.Page) matrix.Matrix {
	return matrix.Matrix(page.Box.DisplayMatrix(1)).Inv()
}

// contentStreams returns the list of content streams of a page.
func contentStreams(r pdf.Getter, obj pdf.Object) (pdf.Array, error) {
	switch obj := obj.(type) {
	case nil:
		return nil, nil
	case pdf.Array:
		return obj, nil
	case pdf.Reference:
		resolved, err := pdf.Resolve(r, obj)
		if err != nil {
			return nil, err
		}
		if a, ok := resolved.(pdf.Array); ok {
			return a, nil
		}
		return pdf.Array{obj}, nil
	case *pdf.Stream:
		return pdf.Array{obj}, nil
	}
	return nil, &pdf.MalformedFileError{Err: fmt.Errorf("unexpected type %T for /Contents", obj)}
}

// putStream writes a content stream fragment.  The fragments around the
// original content are not balanced on their own, so they are written
// operator by operator, without validation.
func putStream(w *pdf.Writer, ops ...content.Operator) (pdf.Reference, error) {
	ref := w.Alloc()
	stm, err := w.OpenStream(ref, nil)
	if err != nil {
		return 0, err
	}
	for _, op := range ops {
		if err := content.WriteOperator(stm, op); err != nil {
			return 0, err
		}
	}
	return ref, stm.Close()
}

// freeName returns a name which is not yet used in the given resource
// sub-dictionary.
func freeName(sub pdf.Dict, prefix string) pdf.Name {
	for i := 0; ; i++ {
		name := pdf.Name(fmt.Sprintf("%s%d", prefix, i))
		if _, used := sub[name]; !used {
			return name
		}
	}
}
