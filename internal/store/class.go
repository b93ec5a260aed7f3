package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/rollcall/internal/model"
)

type ClassStore struct {
	db *sql.DB
}

func NewClassStore(db *sql.DB) *ClassStore {
	return &ClassStore{db: db}
}

func scanClass(s scanner) (*model.Class, error) {
	var c model.Class
	err := s.Scan(&c.ID, &c.Name, &c.Subject, &c.TotalStudents, &c.InstructorID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const classCols = `id, name, subject, total_students, instructor_id, created_at, updated_at`

func (s *ClassStore) Create(ctx context.Context, name, subject string, totalStudents int, instructorID int64) (*model.Class, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO classes (name, subject, total_students, instructor_id) VALUES (?, ?, ?, ?)`,
		name, subject, totalStudents, instructorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert class: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ClassStore) GetByID(ctx context.Context, id int64) (*model.Class, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+classCols+` FROM classes WHERE id = ?`, id)
	c, err := scanClass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return c, nil
}

// List returns classes ordered by name. instructorID 0 lists every class.
func (s *ClassStore) List(ctx context.Context, instructorID int64) ([]model.Class, error) {
	query := `SELECT ` + classCols + ` FROM classes`
	var args []any
	if instructorID != 0 {
		query += ` WHERE instructor_id = ?`
		args = append(args, instructorID)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

func (s *ClassStore) Update(ctx context.Context, id int64, name, subject string, totalStudents int) (*model.Class, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE classes SET name = ?, subject = ?, total_students = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, subject, totalStudents, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update class: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a class together with its attendance sessions and marks.
func (s *ClassStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
