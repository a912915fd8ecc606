package pipeline

import (
	"time"

	"github.com/litscout/litscout/internal/domain"
)

// Outcome classifies how one source task settled.
type Outcome string

const (
	// OutcomeOK means the source completed its search.
	OutcomeOK Outcome = "ok"

	// OutcomePartial means the deadline guard cut the search off and the
	// task carries whatever records arrived before expiry.
	OutcomePartial Outcome = "partial"

	// OutcomeError means the source failed unrecoverably.
	OutcomeError Outcome = "error"
)

// RunRequest describes one retrieval run.
type RunRequest struct {
	// Query is the user's raw research query. Required.
	Query string

	// Sources are the source types to search. Empty means all enabled
	// sources.
	Sources []domain.SourceType

	// Counts caps results per source. Sources absent from the map use
	// their configured default.
	Counts map[domain.SourceType]int

	// Optimize enables query expansion before dispatch.
	Optimize bool

	// DeadlineOverrides replaces the default per-source search budget for
	// the named sources.
	DeadlineOverrides map[domain.SourceType]time.Duration
}

// SourceStatus reports how one source task settled.
type SourceStatus struct {
	// Source identifies the task's source.
	Source domain.SourceType `json:"source"`

	// Name is the source's human-readable name.
	Name string `json:"name"`

	// Outcome is ok, partial, or error.
	Outcome Outcome `json:"outcome"`

	// Kind is the error classification, set only when Outcome is error.
	Kind domain.ErrorKind `json:"kind,omitempty"`

	// Message is a human-readable cause, set for partial and error outcomes.
	Message string `json:"message,omitempty"`

	// Fetched is how many records the source returned before dedup.
	Fetched int `json:"fetched"`

	// Added is how many of the source's records survived dedup.
	Added int `json:"added"`

	// Duration is how long the task ran before settling.
	Duration time.Duration `json:"duration"`
}

// RunReport is the final outcome of one retrieval run.
type RunReport struct {
	// RunID uniquely identifies the run; snapshots and logs carry it.
	RunID string `json:"run_id"`

	// Query is the raw query the run was asked for.
	Query string `json:"query"`

	// Terms are the search terms actually dispatched, raw query first.
	Terms []string `json:"terms"`

	// Records is the final deduplicated set in arrival order.
	Records []*domain.Record `json:"records"`

	// Statuses holds one entry per dispatched source, in settlement order.
	Statuses []SourceStatus `json:"statuses"`

	// SnapshotPath is the path of the last snapshot written, empty when
	// no snapshot succeeded.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the end-to-end run duration.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports overall run success: at least one source settled ok, or
// settled partial with records in hand.
func (r *RunReport) Succeeded() bool {
	for _, s := range r.Statuses {
		if s.Outcome == OutcomeOK {
			return true
		}
		if s.Outcome == OutcomePartial && s.Fetched > 0 {
			return true
		}
	}
	return false
}

// Status returns the status entry for the given source, or nil if the source
// was not dispatched.
func (r *RunReport) Status(source domain.SourceType) *SourceStatus {
	for i := range r.Statuses {
		if r.Statuses[i].Source == source {
			return &r.Statuses[i]
		}
	}
	return nil
}
