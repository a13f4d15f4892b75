package evidence

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// StageSummary is the published view of one production stage.
type StageSummary struct {
	Name       string    `json:"name" yaml:"name"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time `json:"ended_at" yaml:"ended_at"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	MediaHash  string    `json:"media_hash,omitempty" yaml:"media_hash,omitempty"`
	PrintJobID string    `json:"print_job_id,omitempty" yaml:"print_job_id,omitempty"`
}

// Record is the immutable evidence snapshot for one finished session. It is
// created at most once per session and never mutated afterwards.
type Record struct {
	ID        string `json:"id" yaml:"id"`
	SessionID string `json:"session_id" yaml:"session_id"`
	BenchID   string `json:"bench_id" yaml:"bench_id"`

	UnitID       string `json:"unit_id" yaml:"unit_id"`
	UnitModel    string `json:"unit_model,omitempty" yaml:"unit_model,omitempty"`
	EmployeeID   string `json:"employee_id" yaml:"employee_id"`
	EmployeeName string `json:"employee_name,omitempty" yaml:"employee_name,omitempty"`

	Stages []StageSummary `json:"stages" yaml:"stages"`

	// SubunitRecordIDs links a composite unit to the evidence records of its
	// already-finalized components.
	SubunitRecordIDs []string `json:"subunit_record_ids,omitempty" yaml:"subunit_record_ids,omitempty"`

	TotalAssemblySeconds int64     `json:"total_assembly_seconds" yaml:"total_assembly_seconds"`
	CreatedAt            time.Time `json:"created_at" yaml:"created_at"`
}

// CanonicalJSON returns the deterministic serialized form used for content
// addressing and ledger payloads.
func (r *Record) CanonicalJSON() ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence record: %w", err)
	}
	return payload, nil
}

// PayloadHash returns the hex blake3 digest of the canonical JSON form.
func (r *Record) PayloadHash() (string, error) {
	payload, err := r.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// PassportYAML renders the human-readable unit passport that gets published
// to content-addressed storage.
func (r *Record) PassportYAML() ([]byte, error) {
	doc, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("render passport: %w", err)
	}
	return doc, nil
}
