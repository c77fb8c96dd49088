package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"flight_tracker/internal/storage"
)

// Summary is the outcome of one reconciliation pass. Every pass yields one,
// whether it succeeded or not.
type Summary struct {
	RunID     uuid.UUID `json:"run_id"`
	Strategy  Strategy  `json:"strategy"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Created   int       `json:"created"`
	Deleted   int       `json:"deleted"`
	Updated   int       `json:"updated"`
	Processed int       `json:"processed"`
	// TotalFromSource is the length of the source list; nil when the run
	// failed before a list was extracted.
	TotalFromSource *int          `json:"total_from_source,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"-"`
}

// DeletedOrUpdated is Deleted for replace runs and Updated for upsert runs.
func (s Summary) DeletedOrUpdated() int {
	return s.Deleted + s.Updated
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		DeletedOrUpdated int   `json:"deleted_or_updated"`
		DurationMS       int64 `json:"duration_ms"`
	}{plain(s), s.DeletedOrUpdated(), s.Duration.Milliseconds()})
}

// Record converts the summary to an audit log row.
func (s Summary) Record() storage.SyncRun {
	return storage.SyncRun{
		RunID:           s.RunID,
		Strategy:        string(s.Strategy),
		Success:         s.Success,
		Message:         s.Message,
		Created:         s.Created,
		Deleted:         s.Deleted,
		Updated:         s.Updated,
		Processed:       s.Processed,
		TotalFromSource: s.TotalFromSource,
		StartedAt:       s.StartedAt,
		Duration:        s.Duration,
	}
}

// RunHook observes finished runs. Errors are logged by the Reconciler and
// never change the summary.
type RunHook interface {
	RunCompleted(ctx context.Context, s Summary) error
}

// RunRecorder persists audit rows. Implemented by *storage.ClickHouseDB.
type RunRecorder interface {
	InsertRun(ctx context.Context, r storage.SyncRun) error
}

// AuditHook writes every summary to the run audit log.
type AuditHook struct {
	runs RunRecorder
}

// NewAuditHook creates a hook writing to runs.
func NewAuditHook(runs RunRecorder) *AuditHook {
	return &AuditHook{runs: runs}
}

func (h *AuditHook) RunCompleted(ctx context.Context, s Summary) error {
	return h.runs.InsertRun(ctx, s.Record())
}
