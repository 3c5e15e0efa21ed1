// Package rag defines the retrieval capability used by the pipeline.
//
// The pipeline depends only on the Retriever interface. The shipped
// implementation asks the generation service which documents look relevant
// and scans the free-text reply for known document ids; a ranked search
// backend can replace it without touching orchestration.
package rag
