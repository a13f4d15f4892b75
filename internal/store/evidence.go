package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"benchd/internal/evidence"
)

const evidenceColumns = "id, session_id, unit_id, payload_hash, payload, created_at"

func scanEvidenceRow(scanner interface{ Scan(dest ...any) error }) (*EvidenceRow, error) {
	var (
		id          string
		sessionID   string
		unitID      string
		payloadHash string
		payload     string
		createdRaw  string
	)
	if err := scanner.Scan(&id, &sessionID, &unitID, &payloadHash, &payload, &createdRaw); err != nil {
		return nil, err
	}
	row := &EvidenceRow{
		ID:          id,
		SessionID:   sessionID,
		UnitID:      unitID,
		PayloadHash: payloadHash,
		Payload:     payload,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		row.CreatedAt = created
	}
	return row, nil
}

// InsertEvidence freezes an assembled record. A second insert for the same
// session fails with ErrDuplicateEvidence; records are never updated.
func (s *Store) InsertEvidence(ctx context.Context, record *evidence.Record) (*EvidenceRow, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	payload, err := record.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode evidence payload: %w", err)
	}
	hash, err := record.PayloadHash()
	if err != nil {
		return nil, fmt.Errorf("hash evidence payload: %w", err)
	}

	execErr := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO evidence_records (id, session_id, unit_id, payload_hash, payload, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.UnitID,
		hash,
		string(payload),
		timestamp(time.Now()),
	)
	if execErr != nil {
		if strings.Contains(execErr.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvidence, record.SessionID)
		}
		return nil, fmt.Errorf("insert evidence: %w", execErr)
	}
	return s.EvidenceByID(ctx, record.ID)
}

// EvidenceByID fetches a frozen record by identifier. Returns nil when
// absent.
func (s *Store) EvidenceByID(ctx context.Context, id string) (*EvidenceRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence_records WHERE id = ?`, id)
	rec, err := scanEvidenceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evidence by id: %w", err)
	}
	return rec, nil
}

// EvidenceBySession fetches the record frozen for a session. Returns nil when
// the session never finalized.
func (s *Store) EvidenceBySession(ctx context.Context, sessionID string) (*EvidenceRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence_records WHERE session_id = ?`, sessionID)
	rec, err := scanEvidenceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evidence by session: %w", err)
	}
	return rec, nil
}

// EvidenceByUnit returns all records frozen for a unit, oldest first. A unit
// reworked across several sessions accumulates several records.
func (s *Store) EvidenceByUnit(ctx context.Context, unitID string) ([]*EvidenceRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+evidenceColumns+` FROM evidence_records WHERE unit_id = ? ORDER BY created_at`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("evidence by unit: %w", err)
	}
	defer rows.Close()

	var records []*EvidenceRow
	for rows.Next() {
		rec, err := scanEvidenceRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
