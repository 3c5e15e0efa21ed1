// Package pipeline runs the agentic RAG workflow: validate, retrieve,
// generate, audit, optionally refine, filter. Each step is recorded on an
// append-only trace that callers read through Projection snapshots.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/internal/knowledge"
	"github.com/upb/agentic-rag/internal/rag"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services"
	"github.com/upb/agentic-rag/services/providers"
)

// Generator is the set of agent operations a run needs.
type Generator interface {
	ValidateInput(ctx context.Context, query string) (models.SafetyReport, error)
	MakerGenerate(ctx context.Context, query, docContext string) (string, error)
	CheckerAudit(ctx context.Context, makerOutput, query, docContext string) (models.AuditResult, error)
	OutputFilter(ctx context.Context, text string) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	// MaxAuditRounds bounds the checker calls per run. With 1 a failed
	// audit triggers a single refinement that is not re-audited.
	MaxAuditRounds int
}

// DefaultConfig returns the single-pass refinement setup
func DefaultConfig() Config {
	return Config{MaxAuditRounds: 1}
}

// Orchestrator owns at most one run at a time.
type Orchestrator struct {
	gen       Generator
	retriever rag.Retriever
	store     *knowledge.Store
	cfg       Config
	observers []Observer
	logger    *zap.Logger

	mu      sync.Mutex
	current *runState
}

// NewOrchestrator creates a pipeline orchestrator
func NewOrchestrator(
	gen Generator,
	retriever rag.Retriever,
	store *knowledge.Store,
	cfg Config,
	logger *zap.Logger,
	observers ...Observer,
) *Orchestrator {
	if cfg.MaxAuditRounds < 1 {
		cfg.MaxAuditRounds = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gen:       gen,
		retriever: retriever,
		store:     store,
		cfg:       cfg,
		observers: observers,
		logger:    logger,
	}
}

// Snapshot returns a copy of the current run, or the idle projection
// before the first run.
func (o *Orchestrator) Snapshot() Projection {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return IdleProjection()
	}
	return o.current.project()
}

// Busy reports whether a run is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil && o.current.status.IsActive()
}

// Run is a started pipeline run. Execute drives it to a terminal state.
type Run struct {
	o     *Orchestrator
	state *runState
	once  sync.Once
}

// ID returns the run id
func (r *Run) ID() string {
	return r.state.id.String()
}

// Start resets the run context and records the validation step. It fails
// with a validation error for a blank query and with ErrRunInProgress
// while another run is active.
func (o *Orchestrator) Start(query string) (*Run, Projection, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Projection{}, services.ErrEmptyQuery
	}

	o.mu.Lock()
	if o.current != nil && o.current.status.IsActive() {
		o.mu.Unlock()
		return nil, Projection{}, services.ErrRunInProgress
	}
	state := newRunState(query)
	o.current = state
	o.mu.Unlock()

	run := &Run{o: o, state: state}

	o.logger.Info("pipeline run started",
		zap.String("run_id", state.id.String()),
		zap.Int("query_len", len(query)))

	o.notifyStatus(state, models.StatusValidating)
	run.step(models.RoleSafety, fmt.Sprintf("safety.validate_input(query=%q)", query), nil)

	return run, o.Snapshot(), nil
}

// Run starts a run and executes it to completion.
func (o *Orchestrator) Run(ctx context.Context, query string) (Projection, error) {
	run, _, err := o.Start(query)
	if err != nil {
		return Projection{}, err
	}
	return run.Execute(ctx), nil
}

// Execute performs the remaining steps and returns the terminal
// projection. Calling it again returns the same outcome without
// re-running anything.
func (r *Run) Execute(ctx context.Context) Projection {
	r.once.Do(func() {
		if err := r.execute(ctx); err != nil {
			r.fail(err)
		}
	})
	return r.projection()
}

func (r *Run) execute(ctx context.Context) error {
	o := r.o
	query := r.state.query

	report, err := o.gen.ValidateInput(ctx, query)
	if err != nil {
		return err
	}
	r.update(func(s *runState) { s.safety = &report })

	if !report.Passed {
		r.step(models.RoleSafety, "Input validation failed. Terminating run.", map[string]interface{}{
			"violations": strings.Join(report.Violations, ", "),
			"severity":   string(report.Severity),
		})
		r.finish(models.StatusFailed, nil, "")
		return nil
	}

	r.setStatus(models.StatusRetrieving)
	r.step(models.RoleMaker, fmt.Sprintf("rag.retrieve(query=%q)", query), nil)

	ids, err := o.retriever.Retrieve(ctx, query)
	if err != nil {
		return err
	}
	docs := o.store.Resolve(ids)
	docContext := knowledge.BuildContext(docs)

	resolved := make([]string, len(docs))
	for i, d := range docs {
		resolved[i] = d.ID
	}
	r.update(func(s *runState) { s.documents = resolved })

	r.setStatus(models.StatusMaking)
	r.step(models.RoleMaker, fmt.Sprintf("rag.maker_generate(context_len=%d)", len(docContext)), map[string]interface{}{
		"context_len": len(docContext),
		"documents":   resolved,
	})

	output, err := r.make(ctx, query, docContext)
	if err != nil {
		return err
	}
	r.step(models.RoleMaker, output, nil)

	for round := 1; ; round++ {
		r.setStatus(models.StatusChecking)
		r.step(models.RoleChecker, fmt.Sprintf("checker.audit(output_v%d)", round), nil)

		audit, err := o.gen.CheckerAudit(ctx, output, query, docContext)
		if err != nil {
			return err
		}
		r.update(func(s *runState) {
			s.audit = &audit
			s.auditRounds++
		})

		if audit.IsGood {
			break
		}

		r.step(models.RoleChecker, fmt.Sprintf("Audit failed: %s. Refining...", audit.Feedback), nil)
		r.setStatus(models.StatusRefining)
		r.update(func(s *runState) { s.refined = true })

		output, err = r.make(ctx, query, docContext+"\n\nFEEDBACK: "+audit.Feedback)
		if err != nil {
			return err
		}
		r.step(models.RoleMaker, "Refined output:\n"+output, nil)

		if round >= o.cfg.MaxAuditRounds {
			break
		}
	}

	final, err := o.gen.OutputFilter(ctx, output)
	if err != nil {
		return err
	}
	r.finish(models.StatusCompleted, &final, "")
	return nil
}

func (r *Run) make(ctx context.Context, query, docContext string) (string, error) {
	r.update(func(s *runState) { s.makerCalls++ })
	return r.o.gen.MakerGenerate(ctx, query, docContext)
}

func (r *Run) fail(err error) {
	msg := err.Error()
	classified := classifyFailure(err)
	r.o.logger.Error("pipeline run failed",
		zap.String("run_id", r.ID()),
		zap.String("error_type", string(services.GetErrorType(classified))),
		zap.Error(classified))
	r.step(models.RoleSafety, "Runtime error: "+msg, nil)
	r.update(func(s *runState) { s.errType = services.GetErrorType(classified) })
	r.finish(models.StatusFailed, nil, msg)
}

// classifyFailure tags a step error as external when the generation
// provider produced it and as internal otherwise.
func classifyFailure(err error) error {
	if services.GetErrorType(err) != "" {
		return err
	}
	if pe, ok := providers.AsProviderError(err); ok {
		return services.WrapExternal(pe.Provider+" generation failed", err)
	}
	return services.WrapInternal("pipeline step failed", err)
}

func (r *Run) update(fn func(s *runState)) {
	r.o.mu.Lock()
	fn(r.state)
	r.o.mu.Unlock()
}

func (r *Run) projection() Projection {
	r.o.mu.Lock()
	defer r.o.mu.Unlock()
	return r.state.project()
}

func (r *Run) setStatus(status models.PipelineStatus) {
	r.update(func(s *runState) { s.status = status })
	r.o.notifyStatus(r.state, status)
}

func (r *Run) step(role models.AgentRole, content string, metadata map[string]interface{}) {
	step := models.NewTraceStep(role, content, metadata)
	r.update(func(s *runState) { s.steps = append(s.steps, step) })
	for _, obs := range r.o.observers {
		obs.OnStep(r.state.id, step.Clone())
	}
}

func (r *Run) finish(status models.PipelineStatus, answer *string, errMsg string) {
	var p Projection
	r.update(func(s *runState) {
		s.status = status
		s.finalAnswer = answer
		s.err = errMsg
		s.finishedAt = time.Now()
		p = s.project()
	})

	r.o.notifyStatus(r.state, status)

	fields := []zap.Field{
		zap.String("run_id", p.RunID.String()),
		zap.String("status", string(status)),
		zap.Int("steps", len(p.Steps)),
		zap.Int("maker_calls", p.MakerCalls),
		zap.Bool("refined", p.Refined),
	}
	if p.StartedAt != nil && p.FinishedAt != nil {
		fields = append(fields, zap.Duration("duration", p.FinishedAt.Sub(*p.StartedAt)))
	}
	r.o.logger.Info("pipeline run finished", fields...)

	for _, obs := range r.o.observers {
		obs.OnRunFinished(p)
	}
}

func (o *Orchestrator) notifyStatus(s *runState, status models.PipelineStatus) {
	for _, obs := range o.observers {
		obs.OnStatus(s.id, status)
	}
}
