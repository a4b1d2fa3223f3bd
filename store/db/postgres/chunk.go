package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

// SearchChunksByText runs full-text search over the chunk table with
// ts_rank scoring.
func (d *DB) SearchChunksByText(ctx context.Context, search *store.ChunkTextSearch) ([]*store.ChunkHit, error) {
	query := `
		SELECT document_id, chunk_index, content, metadata,
		       ts_rank(content_tsv, websearch_to_tsquery('english', $1)) AS score
		FROM chunk
		WHERE content_tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC, id ASC
		LIMIT $2
	`
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.db.QueryContext(ctx, query, search.Query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks by text")
	}
	defer rows.Close()
	return scanHits(rows)
}

// SearchChunksByVector ranks chunks by cosine distance against the
// query embedding. Requires the pgvector extension.
func (d *DB) SearchChunksByVector(ctx context.Context, search *store.ChunkVectorSearch) ([]*store.ChunkHit, error) {
	if !d.vectorReady {
		return nil, store.ErrChunkSearchUnsupported
	}
	// Cosine distance is in [0, 2]; 1 - distance gives a similarity
	// score aligned with the text path's "higher is better".
	query := `
		SELECT document_id, chunk_index, content, metadata,
		       1 - (embedding <=> $1) AS score
		FROM chunk
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2
	`
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(search.Vector), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks by vector")
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]*store.ChunkHit, error) {
	var hits []*store.ChunkHit
	for rows.Next() {
		var (
			hit      store.ChunkHit
			metadata []byte
		)
		if err := rows.Scan(&hit.DocumentID, &hit.ChunkIndex, &hit.Content, &metadata, &hit.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk hit")
		}
		var err error
		if hit.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		hits = append(hits, &hit)
	}
	return hits, rows.Err()
}
