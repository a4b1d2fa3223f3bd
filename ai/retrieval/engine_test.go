package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmind/crewmind/index"
)

// fakeIndex returns canned chunks per query text and records the
// queries it saw.
type fakeIndex struct {
	results map[string][]*index.Chunk
	queries []string
	err     error
}

func (f *fakeIndex) Search(_ context.Context, q *index.Query) ([]*index.Chunk, error) {
	f.queries = append(f.queries, q.Text)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q.Text], nil
}

func TestRetrieveFiltersBelowFloorAndNumbersCitations(t *testing.T) {
	processed := Preprocess("What is the onboarding process?")
	fi := &fakeIndex{results: map[string][]*index.Chunk{
		processed: {
			{DocumentID: "handbook", ChunkIndex: 2, Content: "Orientation happens on day one.", Score: 0.9,
				Metadata: map[string]any{"title": "Orientation Guide"}},
			{DocumentID: "handbook", ChunkIndex: 7, Content: "Managers assign an onboarding buddy.", Score: 0.7},
			{DocumentID: "noise", ChunkIndex: 0, Content: "Irrelevant.", Score: 0.1},
		},
	}}
	engine := NewEngine(fi, nil)

	result, err := engine.Retrieve(context.Background(), "What is the onboarding process?", nil)
	require.NoError(t, err)
	require.False(t, result.Empty())
	require.Len(t, result.Chunks, 2, "the 0.1 chunk falls below the floor")

	require.Len(t, result.Citations, 2)
	assert.Equal(t, 1, result.Citations[0].Number)
	assert.Equal(t, "Document handbook, Chunk 2", result.Citations[0].Source)
	assert.Equal(t, "Orientation Guide", result.Citations[0].Title)
	assert.Equal(t, 2, result.Citations[1].Number)
	assert.Equal(t, "Document handbook, Chunk 7", result.Citations[1].Title,
		"title falls back to the source string")

	assert.Contains(t, result.Context, "[1] Document handbook, Chunk 2")
	assert.Contains(t, result.Context, "[2] Document handbook, Chunk 7")
	assert.NotContains(t, result.Context, "Irrelevant")

	sources := result.SourcesSection()
	assert.Contains(t, sources, "Sources:")
	assert.Contains(t, sources, "[1] Orientation Guide")
}

func TestRetrieveRetriesWithOriginalQuery(t *testing.T) {
	original := "What is the quarterly planning ritual?"
	fi := &fakeIndex{results: map[string][]*index.Chunk{
		original: {
			{DocumentID: "rituals", ChunkIndex: 1, Content: "Planning happens each quarter.", Score: 0.8},
		},
	}}
	engine := NewEngine(fi, nil)

	result, err := engine.Retrieve(context.Background(), original, nil)
	require.NoError(t, err)
	require.Len(t, fi.queries, 2, "rewritten query first, then the original")
	assert.Equal(t, original, fi.queries[1])
	require.False(t, result.Empty())
	assert.Equal(t, "rituals", result.Chunks[0].DocumentID)
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	fi := &fakeIndex{results: map[string][]*index.Chunk{}}
	engine := NewEngine(fi, nil)

	result, err := engine.Retrieve(context.Background(), "anything at all really", nil)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Empty(t, result.SourcesSection())
	assert.Nil(t, result.CitationsMetadata())
}

func TestRetrievePropagatesUnavailable(t *testing.T) {
	fi := &fakeIndex{err: index.ErrUnavailable}
	engine := NewEngine(fi, nil)

	_, err := engine.Retrieve(context.Background(), "anything", nil)
	require.ErrorIs(t, err, index.ErrUnavailable)
}

func TestCitationsMetadata(t *testing.T) {
	fi := &fakeIndex{results: map[string][]*index.Chunk{
		"vpn setup": {
			{DocumentID: "it-guide", ChunkIndex: 3, Content: "VPN setup steps.", Score: 0.85,
				Metadata: map[string]any{"page": float64(12)}},
		},
	}}
	engine := NewEngine(fi, nil)

	result, err := engine.Retrieve(context.Background(), "vpn setup", nil)
	require.NoError(t, err)

	md := result.CitationsMetadata()
	require.Len(t, md, 1)
	assert.Equal(t, 1, md[0]["number"])
	assert.Equal(t, "it-guide", md[0]["document_id"])
	assert.Equal(t, 12, md[0]["page"])
}
