package providers

import (
	"context"
	"errors"
	"time"
)

// Provider is the boundary to an external text/JSON generation service
type Provider interface {
	// Name returns the provider name (e.g., "gemini", "openai")
	Name() string

	// Generate performs a single generation request
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// ValidateModel checks if a model is served by this provider
	ValidateModel(model string) error

	// ListModels returns the models this provider knows about
	ListModels() []string
}

// GenerateRequest is a provider-neutral generation request
type GenerateRequest struct {
	// Model identifier (e.g., "gemini-2.5-flash", "gpt-4o-mini")
	Model string `json:"model"`

	// Content is the user payload
	Content string `json:"content"`

	// SystemInstruction is the optional role instruction
	SystemInstruction string `json:"system_instruction,omitempty"`

	// Schema, when set, asks for JSON output constrained to this shape
	Schema *Schema `json:"schema,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WantsJSON reports whether the request asks for structured output
func (r *GenerateRequest) WantsJSON() bool {
	return r.Schema != nil
}

// GenerateResponse is a provider-neutral generation result
type GenerateResponse struct {
	// Text is the generated text, or a JSON string for structured requests
	Text string `json:"text"`

	// Model used for the generation
	Model string `json:"model"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// FinishReason reported by the provider, if any
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Latency of the request
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SchemaType is a JSON primitive or container type
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeBoolean SchemaType = "boolean"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
)

// Schema describes the JSON shape a structured request must return.
// Adapters translate it into their provider's native schema dialect.
type Schema struct {
	// Name identifies the schema (required by some providers)
	Name string `json:"-"`

	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// OrgID for organization-specific endpoints
	OrgID string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}
