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

// Package sqlstore persists annotation lists in an SQLite database.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seehuhn.de/go/exammark/annotation"
)

// row is the database representation of one annotation.
// Position keeps the insertion order within the list of a student.
type row struct {
	ID        string `gorm:"primaryKey"`
	StudentID string `gorm:"index;not null"`
	Position  int    `gorm:"not null"`
	Page      int    `gorm:"not null"`
	Type      string `gorm:"not null"`
	X         float64
	Y         float64
	Text      *string
	X2        *float64
	Y2        *float64
	Width     *float64
}

func (row) TableName() string {
	return "annotations"
}

// Store keeps annotations in a database table.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

var _ annotation.Persister = (*Store)(nil)

// Open opens (or creates) the database file at path and makes sure the
// annotation table exists.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("annotation database ready")
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load returns the annotations of a student in insertion order.
func (s *Store) Load(ctx context.Context, studentID string) ([]annotation.Annotation, error) {
	var rows []row
	err := s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	res := make([]annotation.Annotation, 0, len(rows))
	for _, r := range rows {
		a, err := annotation.FromRecord(studentID, annotation.Record{
			ID:    r.ID,
			Page:  r.Page,
			Type:  annotation.Kind(r.Type),
			X:     r.X,
			Y:     r.Y,
			Text:  r.Text,
			X2:    r.X2,
			Y2:    r.Y2,
			Width: r.Width,
		})
		if err != nil {
			return nil, fmt.Errorf("annotation %s: %w", r.ID, err)
		}
		res = append(res, a)
	}
	return res, nil
}

// Save replaces all annotations of a student in a single transaction.
func (s *Store) Save(ctx context.Context, studentID string, list []annotation.Annotation) error {
	rows := make([]row, len(list))
	for i, a := range list {
		if a.StudentID != studentID {
			return fmt.Errorf("%w: annotation %s belongs to student %q",
				annotation.ErrInvalidAnnotation, a.ID, a.StudentID)
		}
		r := annotation.ToRecord(a)
		rows[i] = row{
			ID:        r.ID,
			StudentID: studentID,
			Position:  i,
			Page:      r.Page,
			Type:      string(r.Type),
			X:         r.X,
			Y:         r.Y,
			Text:      r.Text,
			X2:        r.X2,
			Y2:        r.Y2,
			Width:     r.Width,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ?", studentID).Delete(&row{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("student", studentID).Int("count", len(list)).Msg("annotations saved")
	return nil
}
