package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/services"
	"github.com/upb/agentic-rag/utils"
)

// ListDocuments returns the knowledge store in store order
func ListDocuments(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs := []models.Document{}
		if deps.Store != nil {
			docs = deps.Store.Documents()
		}
		_ = utils.WriteOK(w, docs)
	}
}

// GetDocument returns one document by id
func GetDocument(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if deps.Store != nil {
			if doc, ok := deps.Store.Get(id); ok {
				_ = utils.WriteOK(w, doc)
				return
			}
		}

		err := services.NewDomainError(services.ErrorTypeNotFound,
			fmt.Sprintf("document %q not found", id), services.ErrDocumentNotFound)
		HandleServiceError(w, err, requestLogger(deps, r))
	}
}
