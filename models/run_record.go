package models

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord summarizes a finished pipeline run for the audit trail
type RunRecord struct {
	RunID        uuid.UUID      `json:"run_id"`
	Query        string         `json:"query"`
	Status       PipelineStatus `json:"status"`
	Steps        int            `json:"steps"`
	MakerCalls   int            `json:"maker_calls"`
	AuditRounds  int            `json:"audit_rounds"`
	Refined      bool           `json:"refined"`
	Severity     Severity       `json:"severity,omitempty"`
	Violations   []string       `json:"violations,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	ErrorType    string         `json:"error_type,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// NewRunRecord creates a record for a run that reached a terminal status
func NewRunRecord(runID uuid.UUID, query string, status PipelineStatus) *RunRecord {
	return &RunRecord{
		RunID:      runID,
		Query:      query,
		Status:     status,
		FinishedAt: time.Now(),
	}
}

// WithSafety copies the safety verdict onto the record
func (r *RunRecord) WithSafety(report *SafetyReport) *RunRecord {
	if report == nil {
		return r
	}
	r.Severity = report.Severity
	r.Violations = append([]string(nil), report.Violations...)
	return r
}

// WithError sets the error message and its category
func (r *RunRecord) WithError(msg, errType string) *RunRecord {
	if msg != "" {
		r.ErrorMessage = &msg
		r.ErrorType = errType
	}
	return r
}

// Duration returns the wall-clock time of the run
func (r *RunRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
