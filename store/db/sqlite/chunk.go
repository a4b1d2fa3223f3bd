package sqlite

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

// SearchChunksByText runs a LIKE-based match over the chunk table. The
// score is the fraction of query terms found, which is crude but keeps
// the local retrieval path working without a full-text extension.
func (d *DB) SearchChunksByText(ctx context.Context, search *store.ChunkTextSearch) ([]*store.ChunkHit, error) {
	terms := strings.Fields(strings.ToLower(search.Query))
	if len(terms) == 0 {
		return nil, nil
	}

	where, args := []string{}, []any{}
	for _, term := range terms {
		where = append(where, "LOWER(content) LIKE ?")
		args = append(args, "%"+term+"%")
	}
	query := `
		SELECT document_id, chunk_index, content, metadata
		FROM chunk
		WHERE ` + strings.Join(where, " OR ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks")
	}
	defer rows.Close()

	var hits []*store.ChunkHit
	for rows.Next() {
		var (
			hit      store.ChunkHit
			metadata string
		)
		if err := rows.Scan(&hit.DocumentID, &hit.ChunkIndex, &hit.Content, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		if hit.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		content := strings.ToLower(hit.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		hit.Score = float32(matched) / float32(len(terms))
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if search.Limit > 0 && len(hits) > search.Limit {
		hits = hits[:search.Limit]
	}
	return hits, nil
}

// SearchChunksByVector is not supported on SQLite.
func (d *DB) SearchChunksByVector(context.Context, *store.ChunkVectorSearch) ([]*store.ChunkHit, error) {
	return nil, store.ErrChunkSearchUnsupported
}
