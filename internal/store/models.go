package store

import "time"

// Employee is one authorized operator in the bench registry. Card IDs come
// from the RFID scanner and are unique across the registry.
type Employee struct {
	ID        string
	CardID    string
	Name      string
	Position  string
	CreatedAt time.Time
}

// Unit is one production unit tracked by its barcode. While a session holds
// the unit, SessionID carries the owner and claims by other benches fail.
type Unit struct {
	ID          string
	Barcode     string
	Model       string
	IsComposite bool
	SessionID   string
	Finalized   bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionRow is the persisted form of a session: indexed columns for lookup
// plus the full JSON snapshot.
type SessionRow struct {
	ID          string
	BenchID     string
	EmployeeID  string
	UnitID      string
	State       string
	Snapshot    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt *time.Time
}

// EvidenceRow is a frozen evidence record. Payload is canonical JSON and
// PayloadHash is its content digest; neither changes after insert.
type EvidenceRow struct {
	ID          string
	SessionID   string
	UnitID      string
	PayloadHash string
	Payload     string
	CreatedAt   time.Time
}

// PublicationStatus tracks one record/target pair through the publication
// queue.
type PublicationStatus string

const (
	PubPending   PublicationStatus = "pending"
	PubInflight  PublicationStatus = "inflight"
	PubSucceeded PublicationStatus = "succeeded"
	PubFailed    PublicationStatus = "failed"
	PubSkipped   PublicationStatus = "skipped"
)

// Publication is one pending or settled delivery of an evidence record to an
// external target. Attempted is set before the first network call so a crash
// mid-submit is distinguishable from a never-sent row.
type Publication struct {
	RecordID      string
	Target        string
	Status        PublicationStatus
	Attempts      int
	Attempted     bool
	Receipt       string
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicationStats summarizes queue occupancy per status.
type PublicationStats struct {
	Pending   int
	Inflight  int
	Succeeded int
	Failed    int
	Skipped   int
}
