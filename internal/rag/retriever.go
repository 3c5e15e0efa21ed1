package rag

import (
	"context"
	"strings"
)

// Retriever selects the ids of documents relevant to a query
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// RetrieverFunc adapts a plain function to the Retriever interface
type RetrieverFunc func(ctx context.Context, query string) ([]string, error)

// Retrieve calls f(ctx, query)
func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]string, error) {
	return f(ctx, query)
}

// ScanIDs returns the known ids that occur in text, compared
// case-insensitively. Results follow the order of known, not the order of
// appearance, and each id is reported at most once.
//
// This is a substring test: "doc1" also matches inside "doc10".
func ScanIDs(text string, known []string) []string {
	lower := strings.ToLower(text)
	var out []string
	seen := make(map[string]struct{}, len(known))
	for _, id := range known {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if strings.Contains(lower, strings.ToLower(id)) {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	return out
}
