package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services"
)

// Projection is a read-only snapshot of a run. It shares no memory with
// the run that produced it.
type Projection struct {
	RunID       uuid.UUID             `json:"run_id"`
	Query       string                `json:"query"`
	Status      models.PipelineStatus `json:"status"`
	Steps       []models.TraceStep    `json:"steps"`
	FinalAnswer *string               `json:"final_answer"`
	Safety      *models.SafetyReport  `json:"safety,omitempty"`
	Audit       *models.AuditResult   `json:"audit,omitempty"`
	Documents   []string              `json:"documents,omitempty"`
	MakerCalls  int                   `json:"maker_calls"`
	AuditRounds int                   `json:"audit_rounds"`
	Refined     bool                  `json:"refined"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorType   services.ErrorType    `json:"error_type,omitempty"`
}

// IdleProjection is the state before the first run.
func IdleProjection() Projection {
	return Projection{
		Status: models.StatusIdle,
		Steps:  []models.TraceStep{},
	}
}

// Record summarizes a terminal projection for the audit trail.
func (p Projection) Record() *models.RunRecord {
	rec := models.NewRunRecord(p.RunID, p.Query, p.Status)
	rec.Steps = len(p.Steps)
	rec.MakerCalls = p.MakerCalls
	rec.AuditRounds = p.AuditRounds
	rec.Refined = p.Refined
	rec.WithSafety(p.Safety).WithError(p.Error, string(p.ErrorType))
	if p.StartedAt != nil {
		rec.StartedAt = *p.StartedAt
	}
	if p.FinishedAt != nil {
		rec.FinishedAt = *p.FinishedAt
	}
	return rec
}

// runState is the single-owner context of one run. The orchestrator mutex
// guards every field.
type runState struct {
	id          uuid.UUID
	query       string
	status      models.PipelineStatus
	steps       []models.TraceStep
	finalAnswer *string
	safety      *models.SafetyReport
	audit       *models.AuditResult
	documents   []string
	makerCalls  int
	auditRounds int
	refined     bool
	startedAt   time.Time
	finishedAt  time.Time
	err         string
	errType     services.ErrorType
}

func newRunState(query string) *runState {
	return &runState{
		id:        uuid.New(),
		query:     query,
		status:    models.StatusValidating,
		steps:     []models.TraceStep{},
		startedAt: time.Now(),
	}
}

func (s *runState) project() Projection {
	p := Projection{
		RunID:       s.id,
		Query:       s.query,
		Status:      s.status,
		Steps:       make([]models.TraceStep, len(s.steps)),
		MakerCalls:  s.makerCalls,
		AuditRounds: s.auditRounds,
		Refined:     s.refined,
		Error:       s.err,
		ErrorType:   s.errType,
	}
	for i, step := range s.steps {
		p.Steps[i] = step.Clone()
	}
	if s.finalAnswer != nil {
		answer := *s.finalAnswer
		p.FinalAnswer = &answer
	}
	if s.safety != nil {
		safety := *s.safety
		safety.Violations = append([]string{}, s.safety.Violations...)
		p.Safety = &safety
	}
	if s.audit != nil {
		audit := *s.audit
		p.Audit = &audit
	}
	if len(s.documents) > 0 {
		p.Documents = append([]string{}, s.documents...)
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		p.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		p.FinishedAt = &finished
	}
	return p
}
