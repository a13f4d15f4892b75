package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const unitColumns = "id, barcode, model, is_composite, session_id, finalized, version, created_at, updated_at"

func scanUnit(scanner interface{ Scan(dest ...any) error }) (*Unit, error) {
	var (
		id          string
		barcode     string
		model       string
		isComposite int64
		sessionID   sql.NullString
		finalized   int64
		version     int64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &barcode, &model, &isComposite, &sessionID, &finalized, &version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	unit := &Unit{
		ID:          id,
		Barcode:     barcode,
		Model:       model,
		IsComposite: isComposite != 0,
		SessionID:   sessionID.String,
		Finalized:   finalized != 0,
		Version:     version,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		unit.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		unit.UpdatedAt = updated
	}
	return unit, nil
}

// UpsertUnit registers a unit or updates its model fields. Claim state is
// never touched here.
func (s *Store) UpsertUnit(ctx context.Context, unit *Unit) error {
	if unit == nil || unit.ID == "" || unit.Barcode == "" {
		return errors.New("unit id and barcode are required")
	}
	now := time.Now().UTC()
	created := unit.CreatedAt
	if created.IsZero() {
		created = now
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO units (id, barcode, model, is_composite, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET barcode = excluded.barcode,
             model = excluded.model, is_composite = excluded.is_composite,
             updated_at = excluded.updated_at`,
		unit.ID,
		unit.Barcode,
		unit.Model,
		boolToInt(unit.IsComposite),
		timestamp(created),
		timestamp(now),
	); err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}
	return nil
}

// UnitByBarcode resolves a scanned barcode. Returns nil when no unit matches.
func (s *Store) UnitByBarcode(ctx context.Context, barcode string) (*Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE barcode = ?`, barcode)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by barcode: %w", err)
	}
	return unit, nil
}

// UnitByID fetches a unit by identifier. Returns nil when absent.
func (s *Store) UnitByID(ctx context.Context, id string) (*Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by id: %w", err)
	}
	return unit, nil
}

// ClaimUnit binds the unit to a session. The update is conditional on the
// unit being unclaimed and not finalized, so two benches scanning the same
// barcode race safely: the loser gets ErrUnitBusy.
func (s *Store) ClaimUnit(ctx context.Context, unitID, sessionID string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE units SET session_id = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND session_id IS NULL AND finalized = 0`,
		sessionID,
		timestamp(time.Now()),
		unitID,
	)
	if err != nil {
		return fmt.Errorf("claim unit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim unit rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	unit, err := s.UnitByID(ctx, unitID)
	if err != nil {
		return err
	}
	switch {
	case unit == nil:
		return fmt.Errorf("claim unit: unit %s not found", unitID)
	case unit.Finalized:
		return fmt.Errorf("%w: %s", ErrUnitFinalized, unitID)
	default:
		return fmt.Errorf("%w: %s held by session %s", ErrUnitBusy, unitID, unit.SessionID)
	}
}

// ReleaseUnit drops a session's claim. Releasing a unit the session no longer
// holds is a no-op.
func (s *Store) ReleaseUnit(ctx context.Context, unitID, sessionID string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE units SET session_id = NULL, version = version + 1, updated_at = ?
         WHERE id = ? AND session_id = ?`,
		timestamp(time.Now()),
		unitID,
		sessionID,
	); err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	return nil
}

// FinalizeUnit marks the unit's passport frozen and drops the claim. The unit
// can never be claimed again.
func (s *Store) FinalizeUnit(ctx context.Context, unitID, sessionID string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE units SET session_id = NULL, finalized = 1, version = version + 1, updated_at = ?
         WHERE id = ? AND session_id = ?`,
		timestamp(time.Now()),
		unitID,
		sessionID,
	); err != nil {
		return fmt.Errorf("finalize unit: %w", err)
	}
	return nil
}
