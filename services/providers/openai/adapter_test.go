package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/upb/agentic-rag/services/providers"
)

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}
	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}
	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}
	if adapter.config.Timeout == 0 {
		t.Error("Timeout not defaulted")
	}
	if len(adapter.models) == 0 {
		t.Error("Models not initialized")
	}
}

func TestOpenAIAdapter_ValidateModel(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	tests := []struct {
		name        string
		model       string
		expectError bool
	}{
		{name: "gpt-4o-mini", model: "gpt-4o-mini"},
		{name: "gpt-4.1", model: "gpt-4.1"},
		{name: "gemini model", model: "gemini-2.5-flash", expectError: true},
		{name: "empty", model: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.ValidateModel(tt.model)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestOpenAIAdapter_ListModels(t *testing.T) {
	models := NewOpenAIAdapter(providers.ProviderConfig{}).ListModels()

	if len(models) != len(supportedModels) {
		t.Fatalf("ListModels() returned %d models, want %d", len(models), len(supportedModels))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1] > models[i] {
			t.Errorf("ListModels() not sorted: %v", models)
		}
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	var captured OpenAIChatRequest
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")

		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OpenAIChatResponse{
			ID:      "chatcmpl-1",
			Created: 1700000000,
			Model:   "gpt-4o-mini",
			Choices: []OpenAIChoice{{
				Message:      OpenAIMessage{Role: "assistant", Content: "Quantum computers use qubits."},
				FinishReason: "stop",
			}},
			Usage: OpenAIUsage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "sk-test", BaseURL: server.URL})

	resp, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:             "gpt-4o-mini",
		Content:           "Query: qubits",
		SystemInstruction: "You are the Maker.",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if authHeader != "Bearer sk-test" {
		t.Errorf("Authorization = %q", authHeader)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Errorf("messages = %+v, want system then user", captured.Messages)
	}
	if captured.ResponseFormat != nil {
		t.Error("response_format set for plain text request")
	}
	if resp.Text != "Quantum computers use qubits." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Provider != "openai" || resp.FinishReason != "stop" {
		t.Errorf("Provider = %s, FinishReason = %s", resp.Provider, resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}
}

func TestOpenAIAdapter_GenerateWithSchema(t *testing.T) {
	var raw map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &raw)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OpenAIChatResponse{
			Model:   "gpt-4o",
			Choices: []OpenAIChoice{{Message: OpenAIMessage{Content: `{"isGood":true,"feedback":"ok"}`}}},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
	schema := &providers.Schema{
		Name: "audit_result",
		Type: providers.TypeObject,
		Properties: map[string]*providers.Schema{
			"isGood":   {Type: providers.TypeBoolean},
			"feedback": {Type: providers.TypeString},
		},
		Required: []string{"isGood", "feedback"},
	}

	resp, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:   "gpt-4o",
		Content: "Audit this response.",
		Schema:  schema,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != `{"isGood":true,"feedback":"ok"}` {
		t.Errorf("Text = %q", resp.Text)
	}

	messages := raw["messages"].([]interface{})
	if len(messages) != 1 {
		t.Errorf("expected only a user message without system instruction, got %d", len(messages))
	}

	format, ok := raw["response_format"].(map[string]interface{})
	if !ok {
		t.Fatal("response_format missing")
	}
	if format["type"] != "json_schema" {
		t.Errorf("response_format.type = %v", format["type"])
	}
	js := format["json_schema"].(map[string]interface{})
	if js["name"] != "audit_result" || js["strict"] != true {
		t.Errorf("json_schema = %v", js)
	}
	inner := js["schema"].(map[string]interface{})
	if inner["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", inner["additionalProperties"])
	}
	props := inner["properties"].(map[string]interface{})
	if props["isGood"].(map[string]interface{})["type"] != "boolean" {
		t.Errorf("isGood type = %v", props["isGood"])
	}
}

func TestOpenAIAdapter_GenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantStatus int
	}{
		{
			name:       "rate limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`,
			wantCode:   "rate_limit_error",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unstructured body",
			status:     http.StatusBadGateway,
			body:       `upstream unavailable`,
			wantCode:   "UNKNOWN_ERROR",
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
			_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gpt-4o", Content: "x"})
			if err == nil {
				t.Fatal("expected error")
			}

			provErr, ok := providers.AsProviderError(err)
			if !ok {
				t.Fatalf("error %T is not a ProviderError", err)
			}
			if provErr.Code != tt.wantCode || provErr.StatusCode != tt.wantStatus {
				t.Errorf("Code = %s, StatusCode = %d", provErr.Code, provErr.StatusCode)
			}
			if calls != 1 {
				t.Errorf("server called %d times, want exactly 1", calls)
			}
		})
	}
}

func TestOpenAIAdapter_GenerateInvalidModel(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: "http://127.0.0.1:0"})

	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "unknown"})
	provErr, ok := providers.AsProviderError(err)
	if !ok || provErr.Code != "INVALID_MODEL" {
		t.Errorf("err = %v, want INVALID_MODEL", err)
	}
}

func TestOpenAIAdapter_GenerateCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
	_, err := adapter.Generate(ctx, &providers.GenerateRequest{Model: "gpt-4o", Content: "x"})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}
