package evidence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"benchd/internal/session"
)

var (
	// ErrIncompleteSession reports a session that cannot be frozen: an open
	// stage, or a mandatory artifact missing.
	ErrIncompleteSession = errors.New("incomplete session")

	// ErrSubunitNotFinalized reports a composite assembly whose component
	// has no evidence record yet.
	ErrSubunitNotFinalized = errors.New("subunit not finalized")
)

// StageRequirement describes what the unit's type definition demands from a
// named stage.
type StageRequirement struct {
	Name          string
	RequiresMedia bool
}

// Input bundles everything Assemble needs. Sub-unit record ids must already
// exist for composite units; resolving them is the caller's job.
type Input struct {
	Session          *session.Session
	UnitModel        string
	Requirements     []StageRequirement
	SubunitRecordIDs []string
}

// Assemble freezes a session into an evidence record. The session must have
// every stage closed and every mandatory artifact present; composite units
// must carry their sub-unit record ids.
func Assemble(in Input) (*Record, error) {
	s := in.Session
	if s == nil {
		return nil, fmt.Errorf("%w: no session", ErrIncompleteSession)
	}
	if s.UnitID == "" || s.EmployeeID == "" {
		return nil, fmt.Errorf("%w: session has no unit or operator binding", ErrIncompleteSession)
	}
	if open := s.OpenStage(); open != nil {
		return nil, fmt.Errorf("%w: stage %q is still open", ErrIncompleteSession, open.Name)
	}
	if len(s.Stages) == 0 {
		return nil, fmt.Errorf("%w: session has no stages", ErrIncompleteSession)
	}

	required := make(map[string]StageRequirement, len(in.Requirements))
	for _, req := range in.Requirements {
		required[req.Name] = req
	}

	summaries := make([]StageSummary, 0, len(s.Stages))
	for _, stage := range s.Stages {
		if stage.EndedAt == nil {
			return nil, fmt.Errorf("%w: stage %q has no end time", ErrIncompleteSession, stage.Name)
		}
		if req, ok := required[stage.Name]; ok {
			delete(required, stage.Name)
			if req.RequiresMedia && stage.Outcome == session.OutcomeCompleted && stage.Artifacts.MediaHash == "" {
				return nil, fmt.Errorf("%w: stage %q completed without required media", ErrIncompleteSession, stage.Name)
			}
		}
		summaries = append(summaries, StageSummary{
			Name:       stage.Name,
			StartedAt:  stage.StartedAt,
			EndedAt:    *stage.EndedAt,
			Outcome:    string(stage.Outcome),
			MediaHash:  stage.Artifacts.MediaHash,
			PrintJobID: stage.Artifacts.PrintJobID,
		})
	}
	for name := range required {
		return nil, fmt.Errorf("%w: mandatory stage %q never ran", ErrIncompleteSession, name)
	}

	if s.IsComposite && len(in.SubunitRecordIDs) == 0 {
		return nil, fmt.Errorf("%w: composite unit %s has no sub-unit records", ErrSubunitNotFinalized, s.UnitID)
	}

	return &Record{
		ID:                   uuid.NewString(),
		SessionID:            s.ID,
		BenchID:              s.BenchID,
		UnitID:               s.UnitID,
		UnitModel:            in.UnitModel,
		EmployeeID:           s.EmployeeID,
		EmployeeName:         s.EmployeeName,
		Stages:               summaries,
		SubunitRecordIDs:     in.SubunitRecordIDs,
		TotalAssemblySeconds: int64(s.TotalAssemblyTime() / time.Second),
		CreatedAt:            time.Now().UTC(),
	}, nil
}
