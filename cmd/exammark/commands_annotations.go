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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/autosave"
)

func buildAnnotationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "Inspect and edit saved annotations",
	}
	cmd.AddCommand(
		buildAnnotationsListCmd(a),
		buildAnnotationsAddCmd(a),
		buildAnnotationsRemoveCmd(a),
		buildAnnotationsMarkCmd(a),
	)
	return cmd
}

func buildAnnotationsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <student>",
		Short: "Print the annotations of a student as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			persist, closeStorage, err := a.openStorage()
			if err != nil {
				return err
			}
			list, err := persist.Load(cmd.Context(), args[0])
			err = errors.Join(err, closeStorage())
			if err != nil {
				return err
			}

			records := make([]annotation.Record, len(list))
			for i, ann := range list {
				records[i] = annotation.ToRecord(ann)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
}

func buildAnnotationsAddCmd(a *app) *cobra.Command {
	var rec annotation.Record
	var x2, y2, width float64
	var text string

	cmd := &cobra.Command{
		Use:   "add <student>",
		Short: "Add an annotation",
		Long: `Add an annotation to a page of a student's exam.

Positions are fractions of the displayed page, measured from the top-left
corner.  Lines, arrows and circles need --x2 and --y2; for a circle these
give a point on the circle.  Text notes need --text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("x2") {
				rec.X2 = &x2
			}
			if flags.Changed("y2") {
				rec.Y2 = &y2
			}
			if flags.Changed("text") {
				rec.Text = &text
			}
			if flags.Changed("width") {
				rec.Width = &width
			}
			ann, err := annotation.FromRecord(args[0], rec)
			if err != nil {
				return err
			}
			err = a.edit(cmd.Context(), args[0], func(s *annotation.Store) error {
				return s.Add(ann)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ann.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&rec.Page, "page", 1, "page number, starting at 1")
	flags.StringVar((*string)(&rec.Type), "type", "", "checkmark, cross, text, line, arrow or circle")
	flags.Float64Var(&rec.X, "x", 0, "horizontal position")
	flags.Float64Var(&rec.Y, "y", 0, "vertical position")
	flags.Float64Var(&x2, "x2", 0, "horizontal position of the second point")
	flags.Float64Var(&y2, "y2", 0, "vertical position of the second point")
	flags.StringVar(&text, "text", "", "text of a note")
	flags.Float64Var(&width, "width", 0, "wrap width of a note, as a fraction of the page width")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func buildAnnotationsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <student> <id>",
		Short: "Remove an annotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			student, id := args[0], args[1]
			return a.edit(cmd.Context(), student, func(s *annotation.Store) error {
				if ann, ok := s.Get(id); !ok || ann.StudentID != student {
					return fmt.Errorf("student %s, annotation %s: %w", student, id, annotation.ErrNotFound)
				}
				return s.Remove(id)
			})
		},
	}
}

// edit loads the annotations of a student into a store, applies fn and
// writes the result back.
func (a *app) edit(ctx context.Context, student string, fn func(*annotation.Store) error) (err error) {
	persist, closeStorage, err := a.openStorage()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStorage()) }()

	list, err := persist.Load(ctx, student)
	if err != nil {
		return err
	}
	store := annotation.NewStore()
	if err := store.Replace(student, list); err != nil {
		return err
	}
	saver := autosave.New(store, persist, a.cfg.Autosave.Delay, a.log)

	if err := fn(store); err != nil {
		return err
	}
	return saver.Flush(ctx)
}
