package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/agentic-rag/models"
)

// ErrMalformedResponse marks a structured reply that could not be decoded
var ErrMalformedResponse = errors.New("malformed structured response")

// stripFences trims whitespace and removes one enclosing Markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. "json", with or without a newline after it
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	} else {
		s = strings.TrimLeftFunc(s, isInfoRune)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isInfoRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// decodeObject decodes a JSON object into out after checking that every
// required key is present and not null.
func decodeObject(text string, required []string, out interface{}) error {
	body := stripFences(text)
	if body == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	for _, key := range required {
		raw, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: missing field %q", ErrMalformedResponse, key)
		}
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func parseSafetyReport(text string) (models.SafetyReport, error) {
	var report models.SafetyReport
	if err := decodeObject(text, safetySchema.Required, &report); err != nil {
		return models.SafetyReport{}, err
	}
	if !report.Severity.Valid() {
		return models.SafetyReport{}, fmt.Errorf("%w: unknown severity %q", ErrMalformedResponse, report.Severity)
	}
	return report, nil
}

func parseAuditResult(text string) (models.AuditResult, error) {
	var result models.AuditResult
	if err := decodeObject(text, auditSchema.Required, &result); err != nil {
		return models.AuditResult{}, err
	}
	return result, nil
}
