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

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seehuhn.de/go/exammark/annotation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "annotations.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var list []annotation.Annotation
	for _, shape := range []annotation.Shape{
		annotation.Cross{At: annotation.Point{X: 0.9, Y: 0.1}},
		annotation.Text{At: annotation.Point{X: 0.1, Y: 0.1}, Body: "fine", Width: 0.2},
		annotation.Line{From: annotation.Point{X: 0.1, Y: 0.1}, To: annotation.Point{X: 0.2, Y: 0.2}},
		annotation.Checkmark{At: annotation.Point{X: 0.5, Y: 0.5}},
	} {
		a, err := annotation.New("7", 1, shape)
		require.NoError(t, err)
		list = append(list, a)
	}

	require.NoError(t, s.Save(ctx, "7", list))
	got, err := s.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, list, got)

	// a second save replaces the list, and other students are unaffected
	other, err := annotation.New("8", 2, annotation.Checkmark{})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "8", []annotation.Annotation{other}))
	require.NoError(t, s.Save(ctx, "7", list[2:]))

	got, err = s.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, list[2:], got)

	got, err = s.Load(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, []annotation.Annotation{other}, got)
}

func TestLoadEmpty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveRejectsForeignAnnotation(t *testing.T) {
	s := openTestStore(t)
	a, err := annotation.New("8", 1, annotation.Cross{})
	require.NoError(t, err)
	err = s.Save(context.Background(), "7", []annotation.Annotation{a})
	assert.ErrorIs(t, err, annotation.ErrInvalidAnnotation)
}
