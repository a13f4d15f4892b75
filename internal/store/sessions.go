package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"benchd/internal/session"
)

const sessionColumns = "id, bench_id, employee_id, unit_id, state, snapshot, created_at, updated_at, finalized_at"

func scanSessionRow(scanner interface{ Scan(dest ...any) error }) (*SessionRow, error) {
	var (
		id           string
		benchID      string
		employeeID   sql.NullString
		unitID       sql.NullString
		state        string
		snapshot     string
		createdRaw   string
		updatedRaw   string
		finalizedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &benchID, &employeeID, &unitID, &state, &snapshot, &createdRaw, &updatedRaw, &finalizedRaw); err != nil {
		return nil, err
	}
	row := &SessionRow{
		ID:         id,
		BenchID:    benchID,
		EmployeeID: employeeID.String,
		UnitID:     unitID.String,
		State:      state,
		Snapshot:   snapshot,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		row.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		row.UpdatedAt = updated
	}
	row.FinalizedAt = scanNullableTime(finalizedRaw)
	return row, nil
}

// SaveSession persists the session snapshot, inserting on first save and
// replacing afterwards. The supervisor calls this after every state change.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO sessions (id, bench_id, employee_id, unit_id, state, snapshot, created_at, updated_at, finalized_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET employee_id = excluded.employee_id,
             unit_id = excluded.unit_id, state = excluded.state,
             snapshot = excluded.snapshot, updated_at = excluded.updated_at,
             finalized_at = excluded.finalized_at`,
		sess.ID,
		sess.BenchID,
		nullableString(sess.EmployeeID),
		nullableString(sess.UnitID),
		string(sess.State),
		string(snapshot),
		timestamp(sess.CreatedAt),
		timestamp(now),
		nullableTime(sess.FinalizedAt),
	); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SessionByID rehydrates a session from its snapshot. Returns nil when
// absent.
func (s *Store) SessionByID(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session by id: %w", err)
	}
	return decodeSession(rec)
}

// ActiveSessionForBench returns the bench's non-terminal session, or nil when
// the bench is free. At most one exists per bench.
func (s *Store) ActiveSessionForBench(ctx context.Context, benchID string) (*session.Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
         WHERE bench_id = ? AND state NOT IN (?, ?)
         ORDER BY created_at DESC LIMIT 1`,
		benchID,
		string(session.StateFinalized),
		string(session.StateAborted),
	)
	rec, err := scanSessionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session for bench: %w", err)
	}
	return decodeSession(rec)
}

// ListSessions returns snapshot rows for a bench, newest first.
func (s *Store) ListSessions(ctx context.Context, benchID string, limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE bench_id = ? ORDER BY created_at DESC LIMIT ?`,
		benchID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRow
	for rows.Next() {
		rec, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

func decodeSession(rec *SessionRow) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal([]byte(rec.Snapshot), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", rec.ID, err)
	}
	return &sess, nil
}
