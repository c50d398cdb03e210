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
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrNotFound is returned for operations on an unknown annotation id.
var ErrNotFound = errors.New("annotation not found")

// Op describes the kind of change reported to listeners.
type Op int

// These are the possible changes to a store.
const (
	OpAdd Op = iota + 1
	OpUpdate
	OpRemove
	OpReplace
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Change is passed to listeners after each mutation of a [Store].
type Change struct {
	Op        Op
	StudentID string
	ID        string // empty for OpReplace
}

// Store keeps the ordered annotation lists of all students in memory.
//
// All methods are safe for concurrent use.  Listeners are called
// synchronously after the mutation has been applied, without holding the
// store's lock; a listener may therefore call back into the store.
type Store struct {
	mu        sync.Mutex
	lists     map[string][]Annotation
	owner     map[string]string // annotation id -> student id
	listeners []func(Change)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		lists: make(map[string][]Annotation),
		owner: make(map[string]string),
	}
}

// OnChange registers a function which is called after every mutation.
func (s *Store) OnChange(listener func(Change)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// Add appends a to the list of its student.
// Invalid annotations and duplicate ids are rejected and leave the store
// unchanged.
func (s *Store) Add(a Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, dup := s.owner[a.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidAnnotation, a.ID)
	}
	s.lists[a.StudentID] = append(s.lists[a.StudentID], a)
	s.owner[a.ID] = a.StudentID
	s.mu.Unlock()

	s.notify(Change{Op: OpAdd, StudentID: a.StudentID, ID: a.ID})
	return nil
}

// Update changes the geometry or text of the annotation with the given id.
// The position of the annotation in its list is kept.
func (s *Store) Update(id string, p Patch) error {
	s.mu.Lock()
	student, idx, ok := s.find(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	list := s.lists[student]
	shape, err := p.Apply(list[idx].Shape)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	list[idx].Shape = shape
	s.mu.Unlock()

	s.notify(Change{Op: OpUpdate, StudentID: student, ID: id})
	return nil
}

// Remove deletes the annotation with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	student, idx, ok := s.find(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	s.lists[student] = slices.Delete(s.lists[student], idx, idx+1)
	delete(s.owner, id)
	s.mu.Unlock()

	s.notify(Change{Op: OpRemove, StudentID: student, ID: id})
	return nil
}

// Replace installs list as the complete annotation list of a student, for
// example after loading it from disk.  All annotations must belong to
// studentID.
func (s *Store) Replace(studentID string, list []Annotation) error {
	seen := make(map[string]bool, len(list))
	for _, a := range list {
		if err := a.Validate(); err != nil {
			return err
		}
		if a.StudentID != studentID {
			return fmt.Errorf("%w: annotation %s belongs to student %q",
				ErrInvalidAnnotation, a.ID, a.StudentID)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidAnnotation, a.ID)
		}
		seen[a.ID] = true
	}

	s.mu.Lock()
	for id := range seen {
		if owner, ok := s.owner[id]; ok && owner != studentID {
			s.mu.Unlock()
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidAnnotation, id)
		}
	}
	for _, a := range s.lists[studentID] {
		delete(s.owner, a.ID)
	}
	s.lists[studentID] = slices.Clone(list)
	for _, a := range list {
		s.owner[a.ID] = studentID
	}
	s.mu.Unlock()

	s.notify(Change{Op: OpReplace, StudentID: studentID})
	return nil
}

// List returns a copy of the annotations of a student, in insertion order.
func (s *Store) List(studentID string) []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lists[studentID])
}

// Get returns the annotation with the given id.
func (s *Store) Get(id string) (Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, idx, ok := s.find(id)
	if !ok {
		return Annotation{}, false
	}
	return s.lists[student][idx], true
}

// Students returns the ids of all students which have a list in the store,
// in sorted order.
func (s *Store) Students() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.lists))
}

func (s *Store) find(id string) (student string, idx int, ok bool) {
	student, ok = s.owner[id]
	if !ok {
		return "", 0, false
	}
	idx = slices.IndexFunc(s.lists[student], func(a Annotation) bool {
		return a.ID == id
	})
	return student, idx, idx >= 0
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l(c)
	}
}
