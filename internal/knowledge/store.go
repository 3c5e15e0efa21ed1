// Package knowledge holds the fixed document set the pipeline retrieves from.
//
// The store is built once and never mutated. Lookups are by document id and
// enumeration always follows the order the documents were declared in.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/agentic-rag/models"
	"gopkg.in/yaml.v3"
)

//go:embed documents.yaml
var defaultDocuments []byte

// ErrEmptyStore is returned when a store would contain no documents
var ErrEmptyStore = errors.New("knowledge store has no documents")

type storeFile struct {
	Documents []models.Document `yaml:"documents"`
}

// Store is an immutable, ordered set of documents
type Store struct {
	docs  []models.Document
	index map[string]int
}

// New builds a store from docs, keeping their order
func New(docs []models.Document) (*Store, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyStore
	}

	s := &Store{
		docs:  make([]models.Document, len(docs)),
		index: make(map[string]int, len(docs)),
	}
	for i, d := range docs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("document %d has an empty id", i)
		}
		if _, dup := s.index[id]; dup {
			return nil, fmt.Errorf("duplicate document id %q", id)
		}
		d.ID = id
		s.docs[i] = d
		s.index[id] = i
	}
	return s, nil
}

// Load parses a YAML document list
func Load(data []byte) (*Store, error) {
	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge store: %w", err)
	}
	return New(f.Documents)
}

// NewDefaultStore returns the built-in document set
func NewDefaultStore() (*Store, error) {
	return Load(defaultDocuments)
}

// Has reports whether id names a document in the store
func (s *Store) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the document with the given id
func (s *Store) Get(id string) (models.Document, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.Document{}, false
	}
	return s.docs[i], true
}

// IDs returns every document id in store order
func (s *Store) IDs() []string {
	ids := make([]string, len(s.docs))
	for i, d := range s.docs {
		ids[i] = d.ID
	}
	return ids
}

// Documents returns a copy of all documents in store order
func (s *Store) Documents() []models.Document {
	return append([]models.Document(nil), s.docs...)
}

// Len returns the number of documents
func (s *Store) Len() int {
	return len(s.docs)
}

// Resolve returns the documents named by ids, in store order.
// Unknown ids are ignored.
func (s *Store) Resolve(ids []string) []models.Document {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var out []models.Document
	for _, d := range s.docs {
		if _, ok := wanted[d.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// BuildContext joins documents into a single context block, one
// "title: content" line per document.
func BuildContext(docs []models.Document) string {
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = d.Title + ": " + d.Content
	}
	return strings.Join(lines, "\n")
}
