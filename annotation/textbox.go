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

package annotation

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Metrics of text notes, in PDF units.  The box size is estimated from
// the number of characters, assuming an average glyph width of
// TextCharWidth for the 9pt note font.
const (
	TextFontSize   = 9.0
	TextCharWidth  = 5.5
	TextLineHeight = 11.0
	TextPadding    = 3.0

	minTextBoxWidth  = 10.0
	minDefaultWidth  = 20.0
	minTextBoxHeight = 14.0
)

// TextBoxSize returns the size of the highlight box of a text note, in PDF
// units.  The displayWidth is the width of the displayed page.
func TextBoxSize(t Text, displayWidth float64) (w, h float64) {
	lines := strings.Split(t.Body, "\n")

	if t.Width > 0 {
		w = max(t.Width*displayWidth, minTextBoxWidth)
	} else {
		longest := 0
		for _, line := range lines {
			longest = max(longest, utf8.RuneCountInString(line))
		}
		w = max(float64(longest)*TextCharWidth, minDefaultWidth)
	}

	n := TextLineCount(t.Body, w)
	h = max(minTextBoxHeight, float64(n)*TextLineHeight+2*TextPadding)
	return w, h
}

// WrapText breaks body into lines of at most perLine characters.  Explicit
// line breaks are kept.  Lines are broken at spaces where possible.
func WrapText(body string, perLine int) []string {
	perLine = max(1, perLine)
	var res []string
	for _, para := range strings.Split(body, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			res = append(res, "")
			continue
		}
		var cur []rune
		for _, word := range words {
			wr := []rune(word)
			if len(cur) > 0 && len(cur)+1+len(wr) <= perLine {
				cur = append(cur, ' ')
				cur = append(cur, wr...)
				continue
			}
			if len(cur) > 0 {
				res = append(res, string(cur))
				cur = cur[:0]
			}
			for len(wr) > perLine {
				res = append(res, string(wr[:perLine]))
				wr = wr[perLine:]
			}
			cur = append(cur, wr...)
		}
		res = append(res, string(cur))
	}
	return res
}

// TextLineCount returns the number of lines of body when wrapped at
// width w, given in PDF units.
func TextLineCount(body string, w float64) int {
	perLine := max(1, int(math.Floor(w/TextCharWidth)))
	return max(1, len(WrapText(body, perLine)))
}
