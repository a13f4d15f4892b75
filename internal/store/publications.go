package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const publicationColumns = "record_id, target, status, attempts, attempted, receipt, last_error, next_attempt_at, created_at, updated_at"

func scanPublication(scanner interface{ Scan(dest ...any) error }) (*Publication, error) {
	var (
		recordID   string
		target     string
		status     string
		attempts   int64
		attempted  int64
		receipt    sql.NullString
		lastError  sql.NullString
		nextRaw    string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&recordID, &target, &status, &attempts, &attempted, &receipt, &lastError, &nextRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	pub := &Publication{
		RecordID:  recordID,
		Target:    target,
		Status:    PublicationStatus(status),
		Attempts:  int(attempts),
		Attempted: attempted != 0,
		Receipt:   receipt.String,
		LastError: lastError.String,
	}
	if next, err := parseTimeString(nextRaw); err == nil {
		pub.NextAttemptAt = next
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		pub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		pub.UpdatedAt = updated
	}
	return pub, nil
}

// EnqueuePublications creates pending rows for the record against each
// enabled target. Rows that already exist are left untouched, so a replayed
// finalize never resets a settled delivery.
func (s *Store) EnqueuePublications(ctx context.Context, recordID string, targets []string) error {
	if recordID == "" {
		return errors.New("record id is required")
	}
	now := timestamp(time.Now())
	for _, target := range targets {
		if err := s.execWithoutResultRetry(
			ctx,
			`INSERT OR IGNORE INTO publications (record_id, target, status, next_attempt_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			recordID,
			target,
			PubPending,
			now,
			now,
			now,
		); err != nil {
			return fmt.Errorf("enqueue publication %s/%s: %w", recordID, target, err)
		}
	}
	return nil
}

// NextDue leases the oldest pending publication whose schedule has arrived,
// flipping it to inflight. Returns nil when nothing is due. Competing workers
// race on the conditional update; the loser retries the selection.
//
// Rows for a target named in fifoTargets are leased strictly in enqueue
// order: a row stays unleasable while an earlier row for the same target is
// still pending or inflight. Parked rows (failed, skipped) do not block, an
// operator has already been pulled in for those.
func (s *Store) NextDue(ctx context.Context, now time.Time, fifoTargets ...string) (*Publication, error) {
	nowStr := timestamp(now)

	query := `SELECT ` + publicationColumns + ` FROM publications
             WHERE status = ? AND next_attempt_at <= ?`
	args := []any{PubPending, nowStr}
	if len(fifoTargets) > 0 {
		placeholders := make([]byte, 0, len(fifoTargets)*2)
		for i, target := range fifoTargets {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, target)
		}
		query += ` AND NOT EXISTS (
                 SELECT 1 FROM publications prior
                 WHERE prior.target = publications.target
                   AND prior.target IN (` + string(placeholders) + `)
                   AND prior.rowid < publications.rowid
                   AND prior.status IN (?, ?))`
		args = append(args, PubPending, PubInflight)
	}
	query += ` ORDER BY next_attempt_at, rowid LIMIT 1`

	for {
		row := s.db.QueryRowContext(ctx, query, args...)
		pub, err := scanPublication(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select due publication: %w", err)
		}

		res, err := s.execWithRetry(
			ctx,
			`UPDATE publications SET status = ?, updated_at = ?
             WHERE record_id = ? AND target = ? AND status = ?`,
			PubInflight,
			nowStr,
			pub.RecordID,
			pub.Target,
			PubPending,
		)
		if err != nil {
			return nil, fmt.Errorf("lease publication: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("lease rows affected: %w", err)
		}
		if affected > 0 {
			pub.Status = PubInflight
			return pub, nil
		}
	}
}

// MarkAttempted records that a submit is about to reach the network. Set
// before the call so a crash mid-flight leaves a visible marker and the
// worker reconciles with the target before resubmitting.
func (s *Store) MarkAttempted(ctx context.Context, recordID, target string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE publications SET attempted = 1, attempts = attempts + 1, updated_at = ?
         WHERE record_id = ? AND target = ?`,
		timestamp(time.Now()),
		recordID,
		target,
	); err != nil {
		return fmt.Errorf("mark attempted: %w", err)
	}
	return nil
}

// MarkSucceeded settles a delivery with the receipt the target returned.
func (s *Store) MarkSucceeded(ctx context.Context, recordID, target, receipt string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE publications SET status = ?, receipt = ?, last_error = NULL, updated_at = ?
         WHERE record_id = ? AND target = ?`,
		PubSucceeded,
		nullableString(receipt),
		timestamp(time.Now()),
		recordID,
		target,
	); err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. With final false the row returns to
// pending scheduled at nextAttempt; with final true it parks as failed until
// an operator requeues it.
func (s *Store) MarkFailed(ctx context.Context, recordID, target, message string, nextAttempt time.Time, final bool) error {
	status := PubPending
	if final {
		status = PubFailed
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE publications SET status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
         WHERE record_id = ? AND target = ?`,
		status,
		nullableString(message),
		timestamp(nextAttempt),
		timestamp(time.Now()),
		recordID,
		target,
	); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RequeuePublication returns a parked delivery to pending for an immediate
// attempt. Only failed or skipped rows are eligible.
func (s *Store) RequeuePublication(ctx context.Context, recordID, target string) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE publications SET status = ?, next_attempt_at = ?, last_error = NULL, updated_at = ?
         WHERE record_id = ? AND target = ? AND status IN (?, ?)`,
		PubPending,
		now,
		now,
		recordID,
		target,
		PubFailed,
		PubSkipped,
	)
	if err != nil {
		return false, fmt.Errorf("requeue publication: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("requeue rows affected: %w", err)
	}
	return affected > 0, nil
}

// SkipPublication parks a delivery so workers stop retrying it. Settled rows
// are left alone.
func (s *Store) SkipPublication(ctx context.Context, recordID, target string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE publications SET status = ?, updated_at = ?
         WHERE record_id = ? AND target = ? AND status IN (?, ?, ?)`,
		PubSkipped,
		timestamp(time.Now()),
		recordID,
		target,
		PubPending,
		PubInflight,
		PubFailed,
	)
	if err != nil {
		return false, fmt.Errorf("skip publication: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("skip rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReclaimInflight returns leases orphaned by a crash to pending. Run once at
// daemon startup before workers start.
func (s *Store) ReclaimInflight(ctx context.Context) (int64, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE publications SET status = ?, next_attempt_at = ?, updated_at = ?
         WHERE status = ?`,
		PubPending,
		now,
		now,
		PubInflight,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim inflight: %w", err)
	}
	return res.RowsAffected()
}

// Publication fetches one delivery row. Returns nil when absent.
func (s *Store) Publication(ctx context.Context, recordID, target string) (*Publication, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE record_id = ? AND target = ?`,
		recordID,
		target,
	)
	pub, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return pub, nil
}

// PublicationsForRecord returns all delivery rows for a record.
func (s *Store) PublicationsForRecord(ctx context.Context, recordID string) ([]*Publication, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE record_id = ? ORDER BY target`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("publications for record: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

// ListPublications returns rows filtered by status set (or all rows when no
// status is provided), oldest schedule first.
func (s *Store) ListPublications(ctx context.Context, statuses ...PublicationStatus) ([]*Publication, error) {
	baseQuery := `SELECT ` + publicationColumns + ` FROM publications`
	orderClause := ` ORDER BY next_attempt_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := make([]byte, 0, len(statuses)*2)
		args := make([]any, len(statuses))
		for i, status := range statuses {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+string(placeholders)+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

// PublicationStats counts rows per status.
func (s *Store) PublicationStats(ctx context.Context) (PublicationStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM publications GROUP BY status`)
	if err != nil {
		return PublicationStats{}, fmt.Errorf("publication stats: %w", err)
	}
	defer rows.Close()

	var stats PublicationStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return PublicationStats{}, err
		}
		switch PublicationStatus(status) {
		case PubPending:
			stats.Pending = count
		case PubInflight:
			stats.Inflight = count
		case PubSucceeded:
			stats.Succeeded = count
		case PubFailed:
			stats.Failed = count
		case PubSkipped:
			stats.Skipped = count
		}
	}
	return stats, rows.Err()
}

func collectPublications(rows *sql.Rows) ([]*Publication, error) {
	var pubs []*Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}
