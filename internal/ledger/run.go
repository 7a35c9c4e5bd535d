package ledger

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the overall outcome of a reconciliation run
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success" // every connector fully succeeded
	RunPartial RunStatus = "partial" // at least one connector failed
	RunFailed  RunStatus = "failed"  // no connector produced anything usable
)

// ConnectorResult holds per-connector counters for one run
type ConnectorResult struct {
	Fetched          int    `json:"fetched"`
	Imported         int    `json:"imported"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	Failed           int    `json:"failed"`
	Error            string `json:"error,omitempty"`
}

// Succeeded reports whether the connector finished its fetch loop cleanly
func (r ConnectorResult) Succeeded() bool {
	return r.Error == "" && r.Failed == 0
}

// Run records one reconciliation run: per-connector ingest counters plus
// the matcher outcome. Runs are observed by operators, never blocked on.
type Run struct {
	ID             uuid.UUID                  `json:"id" db:"id"`
	StartedAt      time.Time                  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time                 `json:"completed_at,omitempty" db:"completed_at"`
	PerConnector   map[Source]ConnectorResult `json:"per_connector" db:"per_connector"`
	UnmatchedCount int                        `json:"unmatched_count" db:"unmatched_count"`
	Matched        int                        `json:"matched" db:"matched"`
	PendingReview  int                        `json:"pending_review" db:"pending_review"`
	Status         RunStatus                  `json:"status" db:"status"`
}

// NewRun creates a run record in the running state
func NewRun() *Run {
	return &Run{
		ID:           uuid.New(),
		StartedAt:    time.Now().UTC(),
		PerConnector: make(map[Source]ConnectorResult),
		Status:       RunRunning,
	}
}

// Finalize stamps the completion time and derives the overall status from
// the per-connector results: success only if every connector succeeded.
func (r *Run) Finalize() {
	now := time.Now().UTC()
	r.CompletedAt = &now

	if len(r.PerConnector) == 0 {
		r.Status = RunFailed
		return
	}

	succeeded := 0
	for _, res := range r.PerConnector {
		if res.Succeeded() {
			succeeded++
		}
	}
	switch succeeded {
	case len(r.PerConnector):
		r.Status = RunSuccess
	case 0:
		r.Status = RunFailed
	default:
		r.Status = RunPartial
	}
}

// SyncCursor is a connector's ingestion bookmark. It advances only after a
// page has been fully canonicalized and persisted; it never advances past a
// failed page.
type SyncCursor struct {
	Connector     Source    `json:"connector" db:"connector"`
	Token         string    `json:"token" db:"token"` // opaque, connector-owned
	LastRunStatus RunStatus `json:"last_run_status" db:"last_run_status"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
