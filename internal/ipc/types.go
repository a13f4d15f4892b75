package ipc

import (
	"time"

	"benchd/internal/workbench"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// BenchStatus mirrors the supervisor snapshot for IPC callers.
type BenchStatus = workbench.Status

// StatusResponse represents combined daemon and bench status information.
type StatusResponse struct {
	Running          bool           `json:"running"`
	PID              int            `json:"pid"`
	StorePath        string         `json:"store_path"`
	LockPath         string         `json:"lock_path"`
	Bench            BenchStatus    `json:"bench"`
	PublicationStats map[string]int `json:"publication_stats"`
	ScannerPresent   bool           `json:"scanner_present"`
}

// SessionCommandRequest carries the argument of a single session operation.
// Only the field the operation reads is populated.
type SessionCommandRequest struct {
	CardID   string   `json:"card_id,omitempty"`
	Barcode  string   `json:"barcode,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Subunits []string `json:"subunits,omitempty"`
}

// SessionCommandResponse reports the bench snapshot after a session operation.
type SessionCommandResponse struct {
	Bench BenchStatus `json:"bench"`
}

// FinalizeResponse reports the evidence record a finalized session produced.
type FinalizeResponse struct {
	RecordID    string      `json:"record_id"`
	PayloadHash string      `json:"payload_hash"`
	Bench       BenchStatus `json:"bench"`
}

// CreateUnitRequest registers a new production unit.
type CreateUnitRequest struct {
	Model     string `json:"model"`
	Composite bool   `json:"composite"`
}

// CreateUnitResponse carries the new unit's identifiers.
type CreateUnitResponse struct {
	UnitID  string `json:"unit_id"`
	Barcode string `json:"barcode"`
}

// AddEmployeeRequest registers or updates an employee.
type AddEmployeeRequest struct {
	ID       string `json:"id"`
	CardID   string `json:"card_id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

// AddEmployeeResponse acknowledges the registration.
type AddEmployeeResponse struct {
	Saved bool `json:"saved"`
}

// SetModelRequirementRequest marks a stage as mandatory for a model.
type SetModelRequirementRequest struct {
	Model         string `json:"model"`
	Stage         string `json:"stage"`
	RequiresMedia bool   `json:"requires_media"`
}

// SetModelRequirementResponse acknowledges the requirement update.
type SetModelRequirementResponse struct {
	Saved bool `json:"saved"`
}

// Publication is the IPC view of a queued publication.
type Publication struct {
	RecordID      string    `json:"record_id"`
	Target        string    `json:"target"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PublicationListRequest filters the publication listing by status.
type PublicationListRequest struct {
	Statuses []string `json:"statuses"`
}

// PublicationListResponse contains publication entries.
type PublicationListResponse struct {
	Publications []Publication `json:"publications"`
}

// PublicationActionRequest identifies one publication for retry or skip.
type PublicationActionRequest struct {
	RecordID string `json:"record_id"`
	Target   string `json:"target"`
}

// PublicationActionResponse reports whether the row changed.
type PublicationActionResponse struct {
	Changed bool `json:"changed"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// LogTailRequest fetches recent daemon log lines.
type LogTailRequest struct {
	Offset int64 `json:"offset"`
	Limit  int   `json:"limit"`
}

// LogTailResponse carries log lines and the next read offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
