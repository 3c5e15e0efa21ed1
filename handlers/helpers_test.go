package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/config"
	"github.com/upb/agentic-rag/internal/knowledge"
	"github.com/upb/agentic-rag/internal/rag"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services/pipeline"
)

// stubGenerator answers every agent call with fixed values. A non-nil gate
// holds ValidateInput until it is closed.
type stubGenerator struct {
	gate     chan struct{}
	safety   models.SafetyReport
	answer   string
	makerErr error
	audit    models.AuditResult
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{
		safety: models.SafetyReport{Passed: true, Violations: []string{}, Severity: models.SeverityLow},
		answer: "Agentic RAG decides when to retrieve [Source doc2].",
		audit:  models.AuditResult{IsGood: true, Feedback: "Perfect"},
	}
}

func (g *stubGenerator) ValidateInput(ctx context.Context, _ string) (models.SafetyReport, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return models.SafetyReport{}, ctx.Err()
		}
	}
	return g.safety, nil
}

func (g *stubGenerator) MakerGenerate(context.Context, string, string) (string, error) {
	return g.answer, g.makerErr
}

func (g *stubGenerator) CheckerAudit(context.Context, string, string, string) (models.AuditResult, error) {
	return g.audit, nil
}

func (g *stubGenerator) OutputFilter(_ context.Context, text string) (string, error) {
	return text, nil
}

func testStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.New([]models.Document{
		{ID: "doc1", Title: "Quantum Computing Basics", Content: "Qubits can exist in superposition."},
		{ID: "doc2", Title: "Agentic RAG Architecture", Content: "Agentic RAG lets the model decide when to retrieve."},
	})
	require.NoError(t, err)
	return store
}

// testDeps wires an orchestrator around gen; a nil gen leaves the pipeline
// unconfigured.
func testDeps(t *testing.T, gen pipeline.Generator) *app.Dependencies {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := testStore(t)

	deps := &app.Dependencies{
		Config: &config.Config{
			Environment: "test",
			Server:      config.ServerConfig{ShutdownTimeout: time.Second},
			Providers:   config.ProvidersConfig{Active: config.ProviderGemini},
		},
		Logger: logger,
		Store:  store,
		Model:  "gemini-2.5-flash",
	}
	if gen != nil {
		retriever := rag.RetrieverFunc(func(context.Context, string) ([]string, error) {
			return []string{"doc2"}, nil
		})
		deps.Orchestrator = pipeline.NewOrchestrator(gen, retriever, store, pipeline.DefaultConfig(), logger)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = deps.Close(ctx)
	})
	return deps
}

func testRouter(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", HealthCheck(deps))
	r.Get("/readyz", ReadinessCheck(deps))
	r.Get("/api/v1/status", StatusHandler(deps))
	r.Get("/api/v1/documents", ListDocuments(deps))
	r.Get("/api/v1/documents/{id}", GetDocument(deps))
	r.Get("/api/v1/pipeline", GetPipeline(deps))
	r.Post("/api/v1/pipeline/runs", StartRun(deps))
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	return envelope.Data
}
