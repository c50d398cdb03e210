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

package bake

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink receives the exported files.  Put may be called concurrently.
type Sink interface {
	Put(name string, data []byte) error
	Close() error
}

var errClosed = errors.New("sink closed")

// ZipSink collects the exported files into a zip archive.
type ZipSink struct {
	mu     sync.Mutex
	zw     *zip.Writer
	closer io.Closer
	names  map[string]bool
}

// NewZipSink returns a sink which writes a zip archive to w.  Closing the
// sink finishes the archive but does not close w.
func NewZipSink(w io.Writer) *ZipSink {
	return &ZipSink{zw: zip.NewWriter(w), names: make(map[string]bool)}
}

// CreateZip creates a zip archive at the given path.
func CreateZip(path string) (*ZipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewZipSink(f)
	s.closer = f
	return s, nil
}

// Put adds a file to the archive.
func (s *ZipSink) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.zw == nil {
		return errClosed
	}
	if s.names[name] {
		return fmt.Errorf("duplicate file name %q", name)
	}
	s.names[name] = true

	w, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Close finishes the archive.
func (s *ZipSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.zw == nil {
		return errClosed
	}
	err := s.zw.Close()
	s.zw = nil
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// DirSink writes every file into a directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates the directory dir, if needed, and returns a sink which
// writes into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirSink{Dir: dir}, nil
}

// Put writes a file.  The file is written under a temporary name first
// and renamed when complete.
func (s *DirSink) Put(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	err = errors.Join(err, tmp.Close())
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, name))
}

// Close implements the [Sink] interface.
func (s *DirSink) Close() error {
	return nil
}
