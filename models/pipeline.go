package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is one entry of the static knowledge store
type Document struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// Severity grades a safety finding
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether the severity is one of the known levels
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// SafetyReport is the outcome of input validation
type SafetyReport struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations"`
	Severity   Severity `json:"severity"`
}

// AuditResult is the checker's verdict on a maker output
type AuditResult struct {
	IsGood   bool   `json:"isGood"`
	Feedback string `json:"feedback"`
}

// AgentRole identifies the agent that produced a trace step
type AgentRole string

const (
	RoleSafety  AgentRole = "Safety Monitor"
	RoleMaker   AgentRole = "Maker Agent"
	RoleChecker AgentRole = "Checker Agent"
)

// PipelineStatus is the phase of a pipeline run
type PipelineStatus string

const (
	StatusIdle       PipelineStatus = "idle"
	StatusValidating PipelineStatus = "validating"
	StatusRetrieving PipelineStatus = "retrieving"
	StatusMaking     PipelineStatus = "making"
	StatusChecking   PipelineStatus = "checking"
	StatusRefining   PipelineStatus = "refining"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen
func (s PipelineStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether a run is in flight
func (s PipelineStatus) IsActive() bool {
	return s != StatusIdle && !s.IsTerminal()
}

// TraceStep is one append-only entry of a run trace
type TraceStep struct {
	ID        uuid.UUID              `json:"id"`
	Role      AgentRole              `json:"role"`
	Timestamp time.Time              `json:"timestamp"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewTraceStep creates a trace step stamped with the current time
func NewTraceStep(role AgentRole, content string, metadata map[string]interface{}) TraceStep {
	return TraceStep{
		ID:        uuid.New(),
		Role:      role,
		Timestamp: time.Now(),
		Content:   content,
		Metadata:  metadata,
	}
}

// Clone returns a copy that shares no mutable state with s
func (s TraceStep) Clone() TraceStep {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
