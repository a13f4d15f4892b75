package logging

// Well-known structured log field names. Keeping these centralized lets the
// status surface and log tooling rely on stable keys.
const (
	FieldComponent = "component"

	FieldBenchID = "bench_id"

	FieldSessionID = "session_id"

	FieldUnitID = "unit_id"

	FieldEmployeeID = "employee_id"

	FieldStage = "stage"

	FieldRecordID = "record_id"

	FieldTarget = "target"

	FieldEventType = "event_type"

	FieldErrorHint = "error_hint"

	FieldImpact = "impact"
)
