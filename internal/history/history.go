// Package history persists a summary of every finished generation run.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adgenerator/internal/infra"
	"adgenerator/internal/sqlinline"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrDisabled is returned by a nil Store.
var ErrDisabled = errors.New("history: disabled")

// Entry summarises one pipeline run.
type Entry struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Files      int       `json:"files"`
	Prompts    int       `json:"prompts"`
	Images     int       `json:"images"`
	DurationMS int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	Brief      string    `json:"brief"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store reads and writes generations through an audited SQL executor.
type Store struct {
	db  infra.SQLExecutor
	now func() time.Time
}

func NewStore(db infra.SQLExecutor) *Store {
	return &Store{db: db, now: time.Now}
}

// Enabled reports whether the store has a database behind it.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// EnsureSchema creates the generations table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	for _, q := range []string{sqlinline.QCreateGenerationsTable, sqlinline.QCreateGenerationsCreatedIndex} {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure generations schema: %w", err)
		}
	}
	return nil
}

// Record upserts e keyed by task id. A zero CreatedAt is stamped with the
// current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if e.TaskID == "" {
		return errors.New("history: task id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, sqlinline.QUpsertGeneration,
		e.TaskID, e.Status, e.Files, e.Prompts, e.Images, e.DurationMS, e.Error, e.Brief, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record generation %s: %w", e.TaskID, err)
	}
	return nil
}

// Recent returns the newest entries first. limit is clamped to 1..MaxLimit
// and defaults to DefaultLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	limit = ClampLimit(limit)
	rows, err := s.db.Query(ctx, sqlinline.QListRecentGenerations, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TaskID, &e.Status, &e.Files, &e.Prompts, &e.Images, &e.DurationMS, &e.Error, &e.Brief, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return entries, nil
}

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
