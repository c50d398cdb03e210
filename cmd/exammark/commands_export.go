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
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"seehuhn.de/go/exammark/bake"
	"seehuhn.de/go/exammark/docsource"
)

func buildExportCmd(a *app) *cobra.Command {
	var (
		zipFile string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "export [student...]",
		Short: "Write annotated copies of the exams",
		Long: `Draw the saved annotations into copies of the exam documents.

Without arguments, every student with a document in the exams directory is
exported.  Students whose document is missing or broken are skipped and
listed in skipped.txt next to the exported files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (zipFile == "") == (outDir == "") {
				return errors.New("exactly one of --zip and --dir is required")
			}
			return runExport(cmd, a, args, zipFile, outDir)
		},
	}
	cmd.Flags().StringVar(&zipFile, "zip", "", "write a zip archive")
	cmd.Flags().StringVar(&outDir, "dir", "", "write the files into a directory")
	return cmd
}

func runExport(cmd *cobra.Command, a *app, students []string, zipFile, outDir string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	docs := docsource.Dir(a.cfg.ExamsDir)
	if len(students) == 0 {
		students, err = docs.Students()
		if err != nil {
			return err
		}
	}

	persist, closeStorage, err := a.openStorage()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStorage()) }()

	var sink bake.Sink
	if zipFile != "" {
		sink, err = bake.CreateZip(zipFile)
	} else {
		sink, err = bake.NewDirSink(outDir)
	}
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	e := &bake.Exporter{
		Docs:         docs,
		Annotations:  persist,
		Sink:         sink,
		Concurrency:  a.cfg.Export.Concurrency,
		NameTemplate: a.cfg.Export.NameTemplate,
		Progress: func(done, total int) {
			fmt.Fprintf(out, "\rexported %d/%d", done, total)
			if done == total {
				fmt.Fprintln(out)
			}
		},
		Log: a.log,
	}
	m, err := e.Run(ctx, students)
	err = errors.Join(err, sink.Close())
	if err != nil {
		return err
	}

	for _, s := range m.Skipped {
		fmt.Fprintf(out, "skipped %s: %s\n", s.StudentID, s.Reason)
	}
	return nil
}
