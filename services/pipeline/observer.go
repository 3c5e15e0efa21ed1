package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/upb/agentic-rag/models"
)

// Observer is notified as a run progresses. Callbacks run synchronously on
// the run goroutine, in causal order, without the orchestrator lock held.
type Observer interface {
	OnStatus(runID uuid.UUID, status models.PipelineStatus)
	OnStep(runID uuid.UUID, step models.TraceStep)
	OnRunFinished(p Projection)
}

// RunMetrics is the subset of the metrics collectors the pipeline feeds.
type RunMetrics interface {
	RunStarted()
	RunFinished(status string, elapsed time.Duration)
	RecordStep(role string)
	RecordRefinement()
}

// MetricsObserver translates run events into metrics.
type MetricsObserver struct {
	metrics RunMetrics
}

// NewMetricsObserver creates an observer backed by m
func NewMetricsObserver(m RunMetrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) OnStatus(_ uuid.UUID, status models.PipelineStatus) {
	switch status {
	case models.StatusValidating:
		o.metrics.RunStarted()
	case models.StatusRefining:
		o.metrics.RecordRefinement()
	}
}

func (o *MetricsObserver) OnStep(_ uuid.UUID, step models.TraceStep) {
	o.metrics.RecordStep(string(step.Role))
}

func (o *MetricsObserver) OnRunFinished(p Projection) {
	var elapsed time.Duration
	if p.StartedAt != nil && p.FinishedAt != nil {
		elapsed = p.FinishedAt.Sub(*p.StartedAt)
	}
	o.metrics.RunFinished(string(p.Status), elapsed)
}

// RecordSink accepts finished-run records, such as the audit trail.
type RecordSink interface {
	LogEvent(rec *models.RunRecord) error
}

// BlockingRecordSink waits for room instead of dropping a record.
type BlockingRecordSink interface {
	LogEventBlocking(ctx context.Context, rec *models.RunRecord) error
}

// AuditObserver forwards every finished run to the audit trail.
type AuditObserver struct {
	log func(rec *models.RunRecord) error
}

// NewAuditObserver creates an observer that hands records to sink without
// waiting. A full sink drops the record.
func NewAuditObserver(sink RecordSink) *AuditObserver {
	return &AuditObserver{log: sink.LogEvent}
}

// NewBlockingAuditObserver creates an observer that waits up to timeout
// for sink to accept each record.
func NewBlockingAuditObserver(sink BlockingRecordSink, timeout time.Duration) *AuditObserver {
	return &AuditObserver{log: func(rec *models.RunRecord) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sink.LogEventBlocking(ctx, rec)
	}}
}

func (o *AuditObserver) OnStatus(uuid.UUID, models.PipelineStatus) {}

func (o *AuditObserver) OnStep(uuid.UUID, models.TraceStep) {}

func (o *AuditObserver) OnRunFinished(p Projection) {
	// the sink reports its own drops
	_ = o.log(p.Record())
}
