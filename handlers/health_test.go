package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services/audit"
	"github.com/upb/agentic-rag/services/providers"
	"github.com/upb/agentic-rag/services/providers/openai"
	"github.com/upb/agentic-rag/utils"
)

func TestHealthCheck(t *testing.T) {
	w := do(t, testRouter(testDeps(t, nil)), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadinessCheck(t *testing.T) {
	t.Run("not ready without provider", func(t *testing.T) {
		w := do(t, testRouter(testDeps(t, nil)), http.MethodGet, "/readyz", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp ReadinessResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "none_configured", resp.Checks["providers"])
		assert.Equal(t, "not_initialized", resp.Checks["pipeline"])
		assert.Equal(t, "loaded", resp.Checks["knowledge"])
	})

	t.Run("ready with provider and pipeline", func(t *testing.T) {
		deps := testDeps(t, newStubGenerator())
		deps.ProviderRegistry = registryWithOpenAI(t)

		w := do(t, testRouter(deps), http.MethodGet, "/readyz", "")

		assert.Equal(t, http.StatusOK, w.Code)

		var resp ReadinessResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "configured", resp.Checks["providers"])
		assert.Equal(t, "ready", resp.Checks["pipeline"])
	})
}

func TestStatusHandler(t *testing.T) {
	deps := testDeps(t, newStubGenerator())
	deps.ProviderRegistry = registryWithOpenAI(t)
	deps.Audit = audit.NewAuditService(audit.NewLogSink(deps.Logger), deps.Logger, audit.Config{BufferSize: 8, WorkerCount: 1})
	require.NoError(t, deps.Audit.Start())

	w := do(t, testRouter(deps), http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, app.Version, resp.Version)
	assert.Equal(t, "test", resp.Environment)
	assert.Equal(t, []string{"openai"}, resp.Providers)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)
	assert.Equal(t, 2, resp.Documents)
	assert.False(t, resp.Busy)
	require.NotNil(t, resp.Audit)
	assert.True(t, resp.Audit.Started)
	assert.Equal(t, 8, resp.Audit.BufferSize)
	assert.Equal(t, 1, resp.Audit.WorkerCount)
	assert.Zero(t, resp.Audit.Dropped)
}

func TestListDocuments(t *testing.T) {
	w := do(t, testRouter(testDeps(t, nil)), http.MethodGet, "/api/v1/documents", "")
	require.Equal(t, http.StatusOK, w.Code)

	docs := decodeData[[]models.Document](t, w)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc1", docs[0].ID)
	assert.Equal(t, "doc2", docs[1].ID)
	assert.Equal(t, "Agentic RAG Architecture", docs[1].Title)
}

func TestGetDocument(t *testing.T) {
	router := testRouter(testDeps(t, nil))

	t.Run("found", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/documents/doc1", "")
		require.Equal(t, http.StatusOK, w.Code)

		doc := decodeData[models.Document](t, w)
		assert.Equal(t, "Quantum Computing Basics", doc.Title)
	})

	t.Run("not found", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/documents/doc9", "")
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "not_found", resp.Error)
		assert.Equal(t, `document "doc9" not found`, resp.Message)
	})
}

func registryWithOpenAI(t *testing.T) *providers.Registry {
	t.Helper()
	registry := providers.NewRegistry()
	require.NoError(t, registry.RegisterProvider(openai.NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})))
	return registry
}
