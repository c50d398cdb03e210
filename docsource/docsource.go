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

// Package docsource provides the scanned exam documents of the students.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotFound is returned by [Source.Open] if no document exists for a
// student.
var ErrNotFound = errors.New("document not found")

// Source returns the raw PDF data of a student's exam.
type Source interface {
	Open(ctx context.Context, studentID string) ([]byte, error)
}

// Dir is a Source which reads the file "<studentID>.pdf" from a directory.
type Dir string

// Open implements the [Source] interface.
func (d Dir) Open(ctx context.Context, studentID string) ([]byte, error) {
	path, ok := d.path(studentID)
	if !ok {
		return nil, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

func (d Dir) path(studentID string) (string, bool) {
	if studentID == "" || studentID == "." || studentID == ".." ||
		strings.ContainsAny(studentID, `/\`) {
		return "", false
	}
	return filepath.Join(string(d), studentID+".pdf"), true
}

// Students returns the ids of all students which have a document in the
// directory, in sorted order.
func (d Dir) Students() ([]string, error) {
	entries, err := os.ReadDir(string(d))
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if id, ok := studentFromName(e.Name()); ok && e.Type().IsRegular() {
			res = append(res, id)
		}
	}
	slices.Sort(res)
	return res, nil
}

func studentFromName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	ext := filepath.Ext(name)
	if !strings.EqualFold(ext, ".pdf") {
		return "", false
	}
	return strings.TrimSuffix(name, ext), true
}

// Map is an in-memory Source.
type Map map[string][]byte

// Open implements the [Source] interface.
func (m Map) Open(ctx context.Context, studentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m[studentID]
	if !ok {
		return nil, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	return data, nil
}
