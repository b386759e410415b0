package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
)

// SQLStore persists execution records in sqlite or postgres via database/sql.
// Queries are written with ? placeholders and rebound for postgres.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" | "postgres"
}

// NewSQLStore wraps an open database handle. The schema must already be
// migrated (db.Migrate).
func NewSQLStore(database *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: database, driver: driver}
}

// rebind converts ? placeholders to $1..$n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, rec *model.ExecutionRecord) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	params := string(rec.Params)
	if params == "" {
		params = "{}"
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO executions (
			execution_id, agent_id, user_id, session_id, status,
			params, cost_cents, started_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ExecutionID, rec.AgentID, rec.UserID, rec.SessionID, string(rec.Status),
		params, rec.CostCents, rec.StartedAt.UTC().Format(time.RFC3339Nano), now,
	)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, executionID string, patch model.ExecutionPatch) error {
	var sets []string
	var args []any

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(patch.Output))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.CostCents != nil {
		sets = append(sets, "cost_cents = ?")
		args = append(args, *patch.CostCents)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, patch.CompletedAt.UTC().Format(time.RFC3339Nano))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, executionID)

	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE executions SET "+strings.Join(sets, ", ")+" WHERE execution_id = ?"),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, executionID string) (*model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT execution_id, agent_id, user_id, COALESCE(session_id, ''), status,
		       params, COALESCE(output, ''), COALESCE(error, ''), cost_cents,
		       started_at, COALESCE(completed_at, '')
		FROM executions WHERE execution_id = ?`), executionID)

	var rec model.ExecutionRecord
	var status, params, output, startedAt, completedAt string
	if err := row.Scan(
		&rec.ExecutionID, &rec.AgentID, &rec.UserID, &rec.SessionID, &status,
		&params, &output, &rec.Error, &rec.CostCents, &startedAt, &completedAt,
	); err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	rec.Status = model.ExecutionStatus(status)
	if params != "" {
		rec.Params = []byte(params)
	}
	if output != "" {
		rec.Output = []byte(output)
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = t
	}
	if completedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			rec.CompletedAt = &t
		}
	}
	return &rec, nil
}
