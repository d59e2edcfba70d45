// Package postgres implements material.Store directly against PostgreSQL,
// for deployments that reach the database without PostgREST.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/qkgalias/capstone-hub/internal/material"
)

const selectColumns = `id, title, type, link, created_at, sort_order`

// Store implements material.Store. BulkSetOrder runs in one transaction.
type Store struct {
	db *sqlx.DB
}

var _ material.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db.DB, nil
}

func (s *Store) List(ctx context.Context, accountID string) ([]material.Material, error) {
	out := []material.Material{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+selectColumns+`
		FROM materials
		WHERE user_id = $1
		ORDER BY sort_order ASC NULLS LAST, created_at DESC
	`, accountID)
	if err != nil {
		return nil, material.FetchError("list", wrap(err))
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, accountID string, d material.Draft) (material.Material, error) {
	var m material.Material
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO materials (id, user_id, title, type, link, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+selectColumns,
		uuid.NewString(), accountID, d.Title, d.Category, d.Link, d.SortOrder,
	).StructScan(&m)
	if err != nil {
		return material.Material{}, material.WriteError("create", wrap(err))
	}
	return m, nil
}

func (s *Store) Update(ctx context.Context, materialID, accountID string, f material.Fields) error {
	if f.Empty() {
		return nil
	}

	sets := make([]string, 0, 4)
	args := []interface{}{materialID, accountID}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Title != nil {
		add("title", *f.Title)
	}
	if f.Category != nil {
		add("type", *f.Category)
	}
	if f.Link != nil {
		add("link", *f.Link)
	}
	if f.SortOrder != nil {
		add("sort_order", *f.SortOrder)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE materials SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND user_id = $2`,
		args...)
	return material.WriteError("update", affectedOne(res, err))
}

func (s *Store) Delete(ctx context.Context, materialID, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = $1 AND user_id = $2`, materialID, accountID)
	return material.WriteError("delete", affectedOne(res, err))
}

// BulkSetOrder writes all updates or none.
func (s *Store) BulkSetOrder(ctx context.Context, accountID string, updates []material.OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return material.WriteError("set_order", wrap(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `UPDATE materials SET sort_order = $1 WHERE id = $2 AND user_id = $3`)
	if err != nil {
		return material.WriteError("set_order", wrap(err))
	}
	defer stmt.Close()

	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.SortOrder, u.ID, accountID)
		if err := affectedOne(res, err); err != nil {
			return material.WriteError("set_order", fmt.Errorf("material %s: %w", u.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return material.WriteError("set_order", wrap(err))
	}
	return nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return material.ErrNotFound
	}
	return nil
}

// dbError exposes the server's message for the status line.
type dbError struct {
	err *pq.Error
}

func (e *dbError) Error() string {
	return fmt.Sprintf("postgres %s: %s", e.err.Code, e.err.Message)
}

func (e *dbError) Unwrap() error { return e.err }

func (e *dbError) UserMessage() string { return e.err.Message }

func wrap(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &dbError{err: pqErr}
	}
	return err
}
