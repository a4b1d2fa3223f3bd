// Package index abstracts the knowledge search backend. The remote
// implementation speaks to a hosted hybrid index over HTTP; the local
// implementation fuses lexical and vector search from the durable store.
package index

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable marks transport-level index failures. Callers degrade
// to answering without retrieved knowledge when they see it.
var ErrUnavailable = errors.New("search index unavailable")

// Chunk is one retrieved knowledge fragment.
type Chunk struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]any
	Score      float64
}

// Query is a hybrid search request. Text drives the lexical leg; Vector,
// when present, drives the semantic leg. Filter is an optional CEL
// expression evaluated against each chunk's metadata.
type Query struct {
	Text   string
	Vector []float32
	TopK   int
	Filter string
}

// SearchIndex is the retrieval backend.
type SearchIndex interface {
	Search(ctx context.Context, query *Query) ([]*Chunk, error)
}
