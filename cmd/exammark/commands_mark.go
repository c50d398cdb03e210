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

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"seehuhn.de/go/pdf"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/docsource"
	"seehuhn.de/go/exammark/examdoc"
	"seehuhn.de/go/exammark/tool"
)

func buildAnnotationsMarkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <student> <page>",
		Short: "Replay pointer and keyboard events on a page",
		Long: `Read pointer and keyboard events from standard input, one per line,
and apply them to a page the same way as the interactive grading view.

  key <k> [ctrl]   press a key: a letter, "enter" or "escape"
  press <x> <y>    press the mouse button
  move <x> <y>     move the pointer
  release <x> <y>  release the mouse button
  click <x> <y>    press and release
  double <x> <y>   double click
  type <text>      type text into the open note editor

Positions are fractions of the displayed page.  An open note is saved at
the end of the input.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			student := args[0]
			page, err := strconv.Atoi(args[1])
			if err != nil || page < 1 {
				return fmt.Errorf("invalid page number %q", args[1])
			}
			view, err := a.pageView(cmd.Context(), student, page)
			if err != nil {
				return err
			}
			return a.edit(cmd.Context(), student, func(s *annotation.Store) error {
				m := tool.New(s, a.log)
				if err := m.SetView(view); err != nil {
					return err
				}
				if err := replay(m, cmd.InOrStdin()); err != nil {
					return err
				}
				return m.FocusLost()
			})
		},
	}
}

// pageView describes a page as it is shown at the default scale.
func (a *app) pageView(ctx context.Context, student string, pageNo int) (tool.View, error) {
	data, err := docsource.Dir(a.cfg.ExamsDir).Open(ctx, student)
	if err != nil {
		return tool.View{}, err
	}
	doc, err := examdoc.Parse(data)
	if err != nil {
		return tool.View{}, err
	}
	var dw, dh float64
	err = doc.Access(func(r *pdf.Reader) error {
		page, err := doc.Page(r, pageNo)
		if err != nil {
			return err
		}
		dw, dh = page.Box.DisplaySize()
		return nil
	})
	if err != nil {
		return tool.View{}, err
	}
	scale := a.cfg.Render.DefaultScale
	return tool.View{
		StudentID: student,
		Page:      pageNo,
		Width:     dw * scale,
		Height:    dh * scale,
		Scale:     scale,
	}, nil
}

// replay feeds the events read from r to m.
func replay(m *tool.Machine, r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := applyEvent(m, line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

func applyEvent(m *tool.Machine, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	if verb == "type" {
		m.TextInput(rest)
		return nil
	}

	fields := strings.Fields(rest)
	if verb == "key" {
		if len(fields) < 1 || len(fields) > 2 || (len(fields) == 2 && fields[1] != "ctrl") {
			return fmt.Errorf("usage: key <k> [ctrl]")
		}
		var k tool.Key
		switch fields[0] {
		case "enter":
			k = tool.KeyEnter
		case "escape":
			k = tool.KeyEscape
		default:
			runes := []rune(fields[0])
			if len(runes) != 1 {
				return fmt.Errorf("unknown key %q", fields[0])
			}
			k = tool.Key(runes[0])
		}
		_, err := m.Key(k, len(fields) == 2)
		return err
	}

	if len(fields) != 2 {
		return fmt.Errorf("usage: %s <x> <y>", verb)
	}
	x, errX := strconv.ParseFloat(fields[0], 64)
	y, errY := strconv.ParseFloat(fields[1], 64)
	if errX != nil || errY != nil {
		return fmt.Errorf("invalid position %q", rest)
	}
	p := annotation.Point{X: x, Y: y}

	switch verb {
	case "press":
		return m.Press(p)
	case "move":
		return m.Move(p)
	case "release":
		return m.Release(p)
	case "click":
		if err := m.Press(p); err != nil {
			return err
		}
		return m.Release(p)
	case "double":
		return m.DoubleClick(p)
	}
	return fmt.Errorf("unknown event %q", verb)
}
