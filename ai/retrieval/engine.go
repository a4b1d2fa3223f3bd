package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/ai/embedding"
	"github.com/crewmind/crewmind/index"
)

// Defaults of the retrieval pipeline.
const (
	DefaultTopK    = 5
	RelevanceFloor = 0.3
)

// Citation resolves a bracketed marker in the reply to its chunk.
type Citation struct {
	Number     int
	DocumentID string
	ChunkIndex int
	// Source is the human-readable reference, "Document <id>, Chunk <i>".
	Source string
	// Title is the document title when the chunk metadata carries one,
	// otherwise Source.
	Title string
	Page  int
	Score float64
}

// Result is assembled retrieval output for one query.
type Result struct {
	// Query is the rewritten query that produced the hits.
	Query string
	// Context is the chunk contents with bracketed citation lines,
	// ready for the prompt's context slot.
	Context   string
	Citations []Citation
	Chunks    []*index.Chunk
}

// Empty reports whether retrieval found nothing relevant.
func (r *Result) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// SourcesSection renders the "Sources:" footer appended to replies
// built from this result.
func (r *Result) SourcesSection() string {
	if r.Empty() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Sources:")
	for _, c := range r.Citations {
		sb.WriteString(fmt.Sprintf("\n[%d] %s", c.Number, c.Title))
	}
	return sb.String()
}

// Engine runs the retrieval pipeline: query rewrite, hybrid search
// with one original-query retry, relevance filtering, and cited
// context assembly.
type Engine struct {
	index    index.SearchIndex
	embedder embedding.Embedder
	topK     int
	floor    float64
}

// NewEngine creates a retrieval engine. embedder may be nil, which
// disables the vector leg.
func NewEngine(searchIndex index.SearchIndex, embedder embedding.Embedder) *Engine {
	return &Engine{
		index:    searchIndex,
		embedder: embedder,
		topK:     DefaultTopK,
		floor:    RelevanceFloor,
	}
}

// Retrieve searches for chunks relevant to the query. previous holds
// earlier user queries from the same conversation, oldest first, used
// for follow-up enhancement. An empty Result (no error) means nothing
// relevant was found.
func (e *Engine) Retrieve(ctx context.Context, query string, previous []string) (*Result, error) {
	processed := Preprocess(query)
	enhanced := Enhance(processed, previous)

	chunks, err := e.search(ctx, enhanced)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 && enhanced != query {
		// One retry with the user's own words before giving up.
		slog.Debug("retrieval: rewritten query empty, retrying with original", "rewritten", enhanced)
		if chunks, err = e.search(ctx, query); err != nil {
			return nil, err
		}
	}

	kept := make([]*index.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Score >= e.floor {
			kept = append(kept, chunk)
		}
	}
	return assemble(enhanced, kept), nil
}

func (e *Engine) search(ctx context.Context, query string) ([]*index.Chunk, error) {
	q := &index.Query{Text: query, TopK: e.topK}
	if e.embedder != nil {
		vector, err := e.embedder.Embed(ctx, query)
		if err != nil {
			// The lexical leg can still answer; log and continue.
			slog.Warn("retrieval: embedding failed, lexical-only search", "error", err)
		} else {
			q.Vector = vector
		}
	}
	chunks, err := e.index.Search(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "index search")
	}
	return chunks, nil
}

// assemble numbers the chunks in result order and builds the prompt
// context with bracketed citation lines.
func assemble(query string, chunks []*index.Chunk) *Result {
	result := &Result{Query: query, Chunks: chunks}
	var sb strings.Builder
	for i, chunk := range chunks {
		citation := Citation{
			Number:     i + 1,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Source:     fmt.Sprintf("Document %s, Chunk %d", chunk.DocumentID, chunk.ChunkIndex),
			Score:      chunk.Score,
		}
		citation.Title = citation.Source
		if title, ok := chunk.Metadata["title"].(string); ok && title != "" {
			citation.Title = title
		}
		if page, ok := chunk.Metadata["page"].(float64); ok {
			citation.Page = int(page)
		}
		result.Citations = append(result.Citations, citation)

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk.Content)
		sb.WriteString(fmt.Sprintf("\n[%d] %s", citation.Number, citation.Source))
	}
	result.Context = sb.String()
	return result
}

// CitationsMetadata renders the citations for persistence on the
// assistant message.
func (r *Result) CitationsMetadata() []map[string]any {
	if r.Empty() {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Citations))
	for _, c := range r.Citations {
		entry := map[string]any{
			"number":      c.Number,
			"document_id": c.DocumentID,
			"chunk_index": c.ChunkIndex,
			"source":      c.Source,
			"score":       c.Score,
		}
		if c.Page > 0 {
			entry["page"] = c.Page
		}
		out = append(out, entry)
	}
	return out
}
