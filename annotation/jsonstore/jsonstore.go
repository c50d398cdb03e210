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

// Package jsonstore persists annotation lists as one JSON file per student.
//
// The file for student "123" is "123.json" inside the store's directory.
// It contains a JSON array of objects with the fields "page", "type", "x",
// "y" and, depending on the type, "text", "x2", "y2" and "width".
// Pages are counted from 0 in the file and from 1 everywhere else.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"seehuhn.de/go/exammark/annotation"
)

// ErrBadStudentID is returned for student ids which cannot be used as a
// file name.
var ErrBadStudentID = errors.New("invalid student id")

// Store reads and writes annotation files in a directory.
type Store struct {
	Dir string
	Log zerolog.Logger
}

// New returns a store which keeps its files in dir.
// The directory is created on the first save.
func New(dir string, log zerolog.Logger) *Store {
	return &Store{Dir: dir, Log: log}
}

var _ annotation.Persister = (*Store)(nil)

// Path returns the name of the file holding the annotations of a student.
func (s *Store) Path(studentID string) (string, error) {
	if studentID == "" || studentID == "." || studentID == ".." ||
		strings.ContainsAny(studentID, `/\`) {
		return "", fmt.Errorf("%q: %w", studentID, ErrBadStudentID)
	}
	return filepath.Join(s.Dir, studentID+".json"), nil
}

// Load reads the annotations of a student.
// A missing file is not an error and gives an empty list.
func (s *Store) Load(ctx context.Context, studentID string) ([]annotation.Annotation, error) {
	path, err := s.Path(studentID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.Log.Debug().Str("student", studentID).Msg("no annotation file")
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var records []annotation.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	res := make([]annotation.Annotation, 0, len(records))
	for i, r := range records {
		r.Page++
		a, err := annotation.FromRecord(studentID, r)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
		res = append(res, a)
	}
	s.Log.Debug().Str("student", studentID).Int("count", len(res)).Msg("annotations loaded")
	return res, nil
}

// Save replaces the annotation file of a student.
// The new contents are written to a temporary file first, which is then
// renamed over the old file.
func (s *Store) Save(ctx context.Context, studentID string, list []annotation.Annotation) error {
	path, err := s.Path(studentID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]annotation.Record, len(list))
	for i, a := range list {
		records[i] = annotation.ToRecord(a)
		records[i].Page--
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, "."+studentID+"-*.json")
	if err != nil {
		return err
	}
	_, err = tmp.Write(append(data, '\n'))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.Log.Debug().Str("student", studentID).Int("count", len(list)).Msg("annotations saved")
	return nil
}
