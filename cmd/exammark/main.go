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

// Exammark marks up scanned exam PDFs and exports annotated copies.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"seehuhn.de/go/exammark/annotation"
	"seehuhn.de/go/exammark/annotation/jsonstore"
	"seehuhn.de/go/exammark/annotation/sqlstore"
	"seehuhn.de/go/exammark/internal/config"
	"seehuhn.de/go/exammark/internal/logging"
)

// populated by ldflags
var version = "dev"

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "exammark:", err)
		os.Exit(1)
	}
}

// app holds the state shared by all subcommands.  It is filled in before
// a subcommand runs.
type app struct {
	configFile string
	cfg        *config.Config
	log        zerolog.Logger
}

func buildRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "exammark",
		Short: "Mark up scanned exam PDFs and export annotated copies",
		Long: `exammark works on a directory of scanned exams, one PDF file
per student named <student>.pdf.  Annotations are kept separately from the
scans and are only drawn into the PDF files on export.

Settings are read from exammark.yaml and from EXAMMARK_* environment
variables.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "configuration file (default ./exammark.yaml)")

	rootCmd.AddCommand(
		buildExportCmd(a),
		buildRenderCmd(a),
		buildAnnotationsCmd(a),
	)
	return rootCmd
}

func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	log, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// openStorage opens the configured annotation storage.  The returned
// function must be called to release it.
func (a *app) openStorage() (annotation.Persister, func() error, error) {
	switch a.cfg.Storage {
	case config.StorageSQLite:
		s, err := sqlstore.Open(a.cfg.SQLitePath, a.log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := jsonstore.New(a.cfg.AnnotationsDir, a.log)
		return s, func() error { return nil }, nil
	}
}
