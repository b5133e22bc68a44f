package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the sync ledger run ID
	FieldRunID = "run_id"

	// FieldSyncType is the ledger kind tag of the running table pass
	FieldSyncType = "sync_type"

	// FieldTable is the UNL table being processed
	FieldTable = "table"

	// FieldArchive is the source archive name
	FieldArchive = "archive"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"

	// FieldInserted, FieldUpdated and FieldFailed carry reconcile counters
	FieldInserted = "inserted"
	FieldUpdated  = "updated"
	FieldFailed   = "failed"
)
