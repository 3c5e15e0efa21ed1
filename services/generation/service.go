// Package generation wraps the hosted generation service behind the five
// agent operations of a pipeline run: input validation, retrieval
// guidance, answer generation, audit and output filtering.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/internal/guard"
	"github.com/upb/agentic-rag/internal/knowledge"
	"github.com/upb/agentic-rag/internal/observability"
	"github.com/upb/agentic-rag/internal/prompts"
	"github.com/upb/agentic-rag/internal/rag"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services/providers"
)

// Operation names used for metrics and logs.
const (
	OpValidateInput     = "validate_input"
	OpRetrieveDocuments = "retrieve_documents"
	OpMakerGenerate     = "maker_generate"
	OpCheckerAudit      = "checker_audit"
	OpOutputFilter      = "output_filter"
)

// EmptyMakerResponse replaces an empty maker reply.
const EmptyMakerResponse = "Failed to generate maker response."

// ViolationUnparseable is reported by the closed validation fallback.
const ViolationUnparseable = "unparseable_safety_report"

// FallbackPolicy decides what a malformed structured reply turns into.
type FallbackPolicy string

const (
	// FallbackOpen treats an unreadable verdict as a pass.
	FallbackOpen FallbackPolicy = "open"
	// FallbackClosed treats an unreadable verdict as a failure.
	FallbackClosed FallbackPolicy = "closed"
)

// ParseFallbackPolicy maps a configuration value to a policy.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackOpen:
		return FallbackOpen, nil
	case FallbackClosed:
		return FallbackClosed, nil
	}
	return "", fmt.Errorf("unknown fallback policy %q (want open or closed)", s)
}

// SafetyFallback is the report used when the validation reply is malformed.
func SafetyFallback(p FallbackPolicy) models.SafetyReport {
	if p == FallbackClosed {
		return models.SafetyReport{
			Passed:     false,
			Violations: []string{ViolationUnparseable},
			Severity:   models.SeverityHigh,
		}
	}
	return models.SafetyReport{Passed: true, Violations: []string{}, Severity: models.SeverityLow}
}

// AuditFallback is the verdict used when the audit reply is malformed.
func AuditFallback(p FallbackPolicy) models.AuditResult {
	if p == FallbackClosed {
		return models.AuditResult{IsGood: false, Feedback: "Audit response could not be parsed."}
	}
	return models.AuditResult{IsGood: true, Feedback: "Perfect"}
}

// MetricsRecorder receives one observation per provider call.
type MetricsRecorder interface {
	RecordGeneration(operation, outcome string, elapsed time.Duration)
	RecordFallback(operation, policy string)
	RecordTokens(operation string, prompt, completion int)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, time.Duration) {}
func (nopRecorder) RecordFallback(string, string)                  {}
func (nopRecorder) RecordTokens(string, int, int)                  {}

// Config holds the per-service settings.
type Config struct {
	Model          string
	SafetyFallback FallbackPolicy
	AuditFallback  FallbackPolicy
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records call outcomes on m.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGuard merges a local pre-screen into every input validation.
func WithGuard(g *guard.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// Service performs the agent operations against one provider.
type Service struct {
	provider providers.Provider
	catalog  *prompts.Catalog
	store    *knowledge.Store
	guard    *guard.Guard
	cfg      Config
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewService creates a generation service
func NewService(
	provider providers.Provider,
	catalog *prompts.Catalog,
	store *knowledge.Store,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if cfg.SafetyFallback == "" {
		cfg.SafetyFallback = FallbackOpen
	}
	if cfg.AuditFallback == "" {
		cfg.AuditFallback = FallbackOpen
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		provider: provider,
		catalog:  catalog,
		store:    store,
		cfg:      cfg,
		metrics:  nopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the model id used for every call
func (s *Service) Model() string {
	return s.cfg.Model
}

// ValidateInput asks the safety monitor to audit the query.
func (s *Service) ValidateInput(ctx context.Context, query string) (models.SafetyReport, error) {
	text, err := s.call(ctx, OpValidateInput, prompts.RoleSafety, prompts.Data{Query: query}, safetySchema)
	if err != nil {
		return models.SafetyReport{}, err
	}

	report, err := parseSafetyReport(text)
	if err != nil {
		report = SafetyFallback(s.cfg.SafetyFallback)
		s.fallback(OpValidateInput, s.cfg.SafetyFallback, text, err)
	}
	if report.Violations == nil {
		report.Violations = []string{}
	}

	if s.guard != nil {
		findings := s.guard.Scan(query)
		blocking := guard.Report(findings, guard.BlockThreshold)
		if len(findings) > 0 {
			s.logger.Info("local pre-screen findings",
				zap.Strings("violations", guard.Report(findings, 0).Violations),
				zap.Bool("blocked", !blocking.Passed))
		}
		// findings below the threshold are only logged
		report = guard.Merge(report, blocking)
	}

	return report, nil
}

// RetrieveDocuments asks for retrieval guidance and scans the reply for
// known document ids. Ids come back in store order.
func (s *Service) RetrieveDocuments(ctx context.Context, query string) ([]string, error) {
	known := s.store.IDs()
	text, err := s.call(ctx, OpRetrieveDocuments, prompts.RoleRetrieval, prompts.Data{Query: query, DocumentIDs: known}, nil)
	if err != nil {
		return nil, err
	}

	ids := rag.ScanIDs(text, known)
	s.logger.Debug("retrieval guidance scanned",
		zap.String("guidance", observability.Truncate(text, 200)),
		zap.Strings("ids", ids))
	return ids, nil
}

// Retriever exposes RetrieveDocuments as a rag.Retriever.
func (s *Service) Retriever() rag.Retriever {
	return rag.RetrieverFunc(s.RetrieveDocuments)
}

// MakerGenerate produces an answer grounded in docContext.
func (s *Service) MakerGenerate(ctx context.Context, query, docContext string) (string, error) {
	text, err := s.call(ctx, OpMakerGenerate, prompts.RoleMaker, prompts.Data{Query: query, Context: docContext}, nil)
	if err != nil {
		return "", err
	}
	if text == "" {
		return EmptyMakerResponse, nil
	}
	return text, nil
}

// CheckerAudit asks the checker for a verdict on makerOutput.
func (s *Service) CheckerAudit(ctx context.Context, makerOutput, query, docContext string) (models.AuditResult, error) {
	data := prompts.Data{Query: query, Context: docContext, MakerOutput: makerOutput}
	text, err := s.call(ctx, OpCheckerAudit, prompts.RoleChecker, data, auditSchema)
	if err != nil {
		return models.AuditResult{}, err
	}

	result, err := parseAuditResult(text)
	if err != nil {
		result = AuditFallback(s.cfg.AuditFallback)
		s.fallback(OpCheckerAudit, s.cfg.AuditFallback, text, err)
	}
	return result, nil
}

// OutputFilter sanitizes the final answer. An empty reply keeps the input.
func (s *Service) OutputFilter(ctx context.Context, text string) (string, error) {
	filtered, err := s.call(ctx, OpOutputFilter, prompts.RoleFilter, prompts.Data{Text: text}, nil)
	if err != nil {
		return "", err
	}
	if filtered == "" {
		return text, nil
	}
	return filtered, nil
}

func (s *Service) call(ctx context.Context, op string, role prompts.Role, data prompts.Data, schema *providers.Schema) (string, error) {
	p, err := s.catalog.Render(role, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	resp, err := s.provider.Generate(ctx, &providers.GenerateRequest{
		Model:             s.cfg.Model,
		Content:           p.Content,
		SystemInstruction: p.System,
		Schema:            schema,
		Metadata:          map[string]string{"operation": op},
	})
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordGeneration(op, observability.OutcomeError, elapsed)
		fields := []zap.Field{zap.String("operation", op), zap.Duration("latency", elapsed), zap.Error(err)}
		if provErr, ok := providers.AsProviderError(err); ok {
			fields = append(fields, zap.String("provider", provErr.Provider), zap.Int("status_code", provErr.StatusCode))
		}
		if errors.Is(err, context.Canceled) {
			s.logger.Info("generation call canceled", fields...)
		} else {
			s.logger.Error("generation call failed", fields...)
		}
		return "", err
	}

	s.metrics.RecordGeneration(op, observability.OutcomeSuccess, elapsed)
	s.metrics.RecordTokens(op, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	s.logger.Debug("generation call completed",
		zap.String("operation", op),
		zap.String("model", resp.Model),
		zap.Duration("latency", elapsed),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Text, nil
}

func (s *Service) fallback(op string, policy FallbackPolicy, raw string, cause error) {
	s.metrics.RecordFallback(op, string(policy))
	s.logger.Warn("structured response unreadable, using fallback",
		zap.String("operation", op),
		zap.String("policy", string(policy)),
		zap.String("raw", observability.Truncate(raw, 200)),
		zap.Error(cause))
}
