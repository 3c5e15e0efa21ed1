// Package gemini adapts the Generative Language REST API to the providers.Provider interface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/upb/agentic-rag/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	providerName   = "gemini"
)

var credentialScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/generative-language",
}

var supportedModels = []string{
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
}

// GeminiAdapter implements providers.Provider for generateContent
type GeminiAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     map[string]struct{}
}

// NewGeminiAdapter builds the HTTP client. With no API key configured the
// client authenticates with Application Default Credentials.
func NewGeminiAdapter(ctx context.Context, config providers.ProviderConfig) (*GeminiAdapter, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	var client *http.Client
	if config.APIKey != "" {
		client = &http.Client{Transport: &apiKeyTransport{key: config.APIKey}}
	} else {
		adc, err := google.DefaultClient(ctx, credentialScopes...)
		if err != nil {
			return nil, fmt.Errorf("gemini: no API key and no default credentials: %w", err)
		}
		client = adc
	}
	client.Timeout = config.Timeout

	adapter := &GeminiAdapter{
		config:     config,
		httpClient: client,
		models:     make(map[string]struct{}, len(supportedModels)),
	}
	for _, m := range supportedModels {
		adapter.models[m] = struct{}{}
	}
	return adapter, nil
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return providerName
}

// Generate issues one generateContent call
func (a *GeminiAdapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	startTime := time.Now()

	if err := a.ValidateModel(req.Model); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, err)
	}

	reqBody, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", a.config.BaseURL, apiVersion, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "generateContent request failed", 0, err)
	}
	defer httpResp.Body.Close()

	if err := googleapi.CheckResponse(httpResp); err != nil {
		return nil, a.mapError(err)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, err)
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}

	return a.convertResponse(req.Model, &resp, time.Since(startTime)), nil
}

// ValidateModel accepts the known models and any other gemini-* id
func (a *GeminiAdapter) ValidateModel(model string) error {
	if _, ok := a.models[model]; ok {
		return nil
	}
	if strings.HasPrefix(model, "gemini-") {
		return nil
	}
	return fmt.Errorf("model %s is not supported by Gemini provider", model)
}

// ListModels returns the known models, sorted
func (a *GeminiAdapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for m := range a.models {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

func buildRequest(req *providers.GenerateRequest) *generateContentRequest {
	out := &generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: req.Content}},
		}},
	}

	if req.SystemInstruction != "" {
		out.SystemInstruction = &content{
			Parts: []part{{Text: req.SystemInstruction}},
		}
	}

	if req.Schema != nil {
		out.GenerationConfig = &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   toSchema(req.Schema),
		}
	}

	return out
}

// toSchema maps the neutral schema onto the OpenAPI subset the API uses,
// whose type names are upper case.
func toSchema(s *providers.Schema) *schema {
	out := &schema{
		Type:        strings.ToUpper(string(s.Type)),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if s.Items != nil {
		out.Items = toSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toSchema(p)
		}
	}
	return out
}

func (a *GeminiAdapter) convertResponse(model string, resp *generateContentResponse, latency time.Duration) *providers.GenerateResponse {
	out := &providers.GenerateResponse{
		Model:    model,
		Provider: a.Name(),
		Latency:  latency,
		Created:  time.Now(),
	}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.FinishReason = cand.FinishReason
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		out.Text = sb.String()
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = providers.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}

	return out
}

func (a *GeminiAdapter) mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := http.StatusText(apiErr.Code)
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Reason != "" {
			code = apiErr.Errors[0].Reason
		}
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", apiErr.Code)
		}
		return providers.NewProviderError(a.Name(), code, msg, apiErr.Code, err)
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "generateContent request failed", 0, err)
}

// apiKeyTransport authenticates every request with the x-goog-api-key header.
type apiKeyTransport struct {
	key string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-goog-api-key", t.key)
	return http.DefaultTransport.RoundTrip(r)
}

// Gemini REST request/response types

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type schema struct {
	Type        string             `json:"type"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type generateContentResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
