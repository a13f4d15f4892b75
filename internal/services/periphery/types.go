package periphery

import "context"

// IdentityKind distinguishes scan event sources.
type IdentityKind string

const (
	KindRFID    IdentityKind = "rfid"
	KindBarcode IdentityKind = "barcode"
)

// IdentityEvent is a normalized scan from the gateway.
type IdentityEvent struct {
	Kind    IdentityKind `json:"kind"`
	Payload string       `json:"payload"`
}

// JobHandle identifies an in-flight camera recording at the gateway.
type JobHandle struct {
	ID string `json:"id"`
}

// MediaRef points at a finished recording.
type MediaRef struct {
	Path string `json:"path"`
	Hash string `json:"hash,omitempty"`
}

// PrintSpec describes a label print job.
type PrintSpec struct {
	UnitID     string `json:"unit_id"`
	Barcode    string `json:"barcode,omitempty"`
	Annotation string `json:"annotation,omitempty"`
	QRContent  string `json:"qr_content,omitempty"`
}

// PrintReceipt confirms a submitted print job.
type PrintReceipt struct {
	JobID string `json:"job_id"`
}

// IdentityScanner delivers normalized operator and unit scans from the
// gateway. Scan blocks until an event arrives, the poll window lapses (nil
// event), or the context ends.
type IdentityScanner interface {
	Scan(ctx context.Context) (*IdentityEvent, error)
}

// CameraController drives the bench camera.
type CameraController interface {
	StartRecording(ctx context.Context, operatorID string) (JobHandle, error)
	StopRecording(ctx context.Context, handle JobHandle) (MediaRef, error)
}

// PrinterController drives the bench label printer.
type PrinterController interface {
	Print(ctx context.Context, spec PrintSpec) (PrintReceipt, error)
}
