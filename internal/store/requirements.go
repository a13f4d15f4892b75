package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StageRequirement is one mandatory stage in a model's type definition. A
// completed run of the stage must carry media when RequiresMedia is set.
type StageRequirement struct {
	Model         string
	Stage         string
	RequiresMedia bool
}

// SetModelRequirement registers or updates a mandatory stage for a model.
func (s *Store) SetModelRequirement(ctx context.Context, req *StageRequirement) error {
	if req == nil || req.Model == "" || req.Stage == "" {
		return errors.New("model and stage are required")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO model_requirements (model, stage, requires_media, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (model, stage) DO UPDATE SET
             requires_media = excluded.requires_media,
             updated_at = excluded.updated_at`,
		req.Model,
		req.Stage,
		boolToInt(req.RequiresMedia),
		timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("set model requirement %s/%s: %w", req.Model, req.Stage, err)
	}
	return nil
}

// ModelRequirements returns the mandatory stages for a model, in stage-name
// order. An unknown model has none.
func (s *Store) ModelRequirements(ctx context.Context, model string) ([]StageRequirement, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT model, stage, requires_media FROM model_requirements
         WHERE model = ? ORDER BY stage`,
		model,
	)
	if err != nil {
		return nil, fmt.Errorf("model requirements: %w", err)
	}
	defer rows.Close()

	var reqs []StageRequirement
	for rows.Next() {
		var (
			req      StageRequirement
			requires int64
		)
		if err := rows.Scan(&req.Model, &req.Stage, &requires); err != nil {
			return nil, err
		}
		req.RequiresMedia = requires != 0
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
