package index

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

// RRF fusion constants. k=60 is the standard dampening constant; the
// vector leg gets more weight because embeddings carry more signal for
// conversational queries than bare term matches.
const (
	rrfK          = 60.0
	lexicalWeight = 0.4
	vectorWeight  = 0.6
)

// Local fuses lexical and vector chunk search from the durable store
// with weighted reciprocal rank fusion. It is the retrieval backend
// when no hosted index is configured.
type Local struct {
	store  *store.Store
	filter *Filter
}

// NewLocal creates a store-backed index.
func NewLocal(s *store.Store, filter *Filter) *Local {
	return &Local{store: s, filter: filter}
}

// Search runs both legs in parallel and fuses their rankings.
func (l *Local) Search(ctx context.Context, query *Query) ([]*Chunk, error) {
	topK := query.TopK
	if topK <= 0 {
		topK = 5
	}
	// Each leg over-fetches so fusion has rank overlap to work with.
	legLimit := topK * 3

	var (
		wg                sync.WaitGroup
		textHits, vecHits []*store.ChunkHit
		textErr, vecErr   error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		textHits, textErr = l.store.SearchChunksByText(ctx, &store.ChunkTextSearch{Query: query.Text, Limit: legLimit})
	}()

	if len(query.Vector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecHits, vecErr = l.store.SearchChunksByVector(ctx, &store.ChunkVectorSearch{Vector: query.Vector, Limit: legLimit})
		}()
	}
	wg.Wait()

	if textErr != nil {
		return nil, errors.Wrap(textErr, "lexical search")
	}
	if vecErr != nil {
		if errors.Is(vecErr, store.ErrChunkSearchUnsupported) {
			// Lexical-only mode on drivers without vector support.
			slog.Debug("index: vector search unsupported, lexical leg only")
		} else {
			return nil, errors.Wrap(vecErr, "vector search")
		}
	}

	fused := fuse(textHits, vecHits)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	if query.Filter != "" && l.filter != nil {
		return l.filter.Apply(query.Filter, fused)
	}
	return fused, nil
}

type chunkKey struct {
	documentID string
	chunkIndex int
}

// fuse combines the two rankings with weighted RRF:
// score = sum(weight / (k + rank)) over the legs the chunk appears in.
func fuse(textHits, vecHits []*store.ChunkHit) []*Chunk {
	byKey := make(map[chunkKey]*Chunk)
	order := make([]chunkKey, 0, len(textHits)+len(vecHits))

	accumulate := func(hits []*store.ChunkHit, weight float64) {
		for rank, hit := range hits {
			key := chunkKey{hit.DocumentID, hit.ChunkIndex}
			chunk, ok := byKey[key]
			if !ok {
				chunk = &Chunk{
					DocumentID: hit.DocumentID,
					ChunkIndex: hit.ChunkIndex,
					Content:    hit.Content,
					Metadata:   hit.Metadata,
				}
				byKey[key] = chunk
				order = append(order, key)
			}
			chunk.Score += weight / (rrfK + float64(rank+1))
		}
	}
	accumulate(textHits, lexicalWeight)
	accumulate(vecHits, vectorWeight)

	fused := make([]*Chunk, 0, len(order))
	for _, key := range order {
		fused = append(fused, byKey[key])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	// Normalize so a rank-1 hit on both legs scores 1.0. This keeps the
	// relevance floor meaningful regardless of backend.
	norm := (lexicalWeight + vectorWeight) / (rrfK + 1)
	for _, chunk := range fused {
		chunk.Score /= norm
	}
	return fused
}
