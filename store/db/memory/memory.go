// Package memory is the process-local durable driver. It exists for
// development, tests, and as the degraded mode when the configured
// backend is unreachable at startup. Nothing survives a restart.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/crewmind/crewmind/store"
)

// Chunk is a seedable knowledge chunk for the local search index.
type Chunk struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]any
	Embedding  []float32
}

type DB struct {
	mu sync.RWMutex

	nextMessageID int64
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message
	chunks        []*Chunk
}

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]*store.Message),
	}
}

func (d *DB) GetDB() any { return nil }

func (d *DB) Close() error { return nil }

func (d *DB) Ping(context.Context) error { return nil }

// SeedChunks loads knowledge chunks into the local search index.
func (d *DB) SeedChunks(chunks []*Chunk) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, chunks...)
}

func cloneConversation(c *store.Conversation) *store.Conversation {
	out := *c
	out.Metadata = cloneMetadata(c.Metadata)
	return &out
}

func cloneMessage(m *store.Message) *store.Message {
	out := *m
	out.Metadata = cloneMetadata(m.Metadata)
	return &out
}

func cloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func (d *DB) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations[create.UID] = cloneConversation(create)
	return cloneConversation(create), nil
}

func (d *DB) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var list []*store.Conversation
	for _, c := range d.conversations {
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.Owner != nil && c.Owner != *find.Owner {
			continue
		}
		list = append(list, cloneConversation(c))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].UID < list[j].UID
	})
	if find.Skip > 0 {
		if find.Skip >= len(list) {
			return nil, nil
		}
		list = list[find.Skip:]
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conversations[update.UID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	if update.UpdatedTs != nil {
		c.UpdatedTs = *update.UpdatedTs
	}
	if update.Metadata != nil {
		c.Metadata = cloneMetadata(update.Metadata)
	}
	return cloneConversation(c), nil
}

func (d *DB) DeleteConversation(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conversations, uid)
	return nil
}

func (d *DB) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextMessageID++
	msg := cloneMessage(create)
	msg.ID = d.nextMessageID
	d.messages[msg.ConversationUID] = append(d.messages[msg.ConversationUID], msg)
	return cloneMessage(msg), nil
}

func (d *DB) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	src := d.messages[find.ConversationUID]
	list := make([]*store.Message, 0, len(src))
	for _, m := range src {
		list = append(list, cloneMessage(m))
	}
	// Newest first; the autoincrement id breaks same-second ties.
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Skip > 0 {
		if find.Skip >= len(list) {
			return nil, nil
		}
		list = list[find.Skip:]
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) DeleteMessages(_ context.Context, conversationUID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.messages, conversationUID)
	return nil
}

// SearchChunksByText scores chunks by query term overlap. This is a
// development stand-in for the real lexical index, good enough for the
// local path and for exercising fusion.
func (d *DB) SearchChunksByText(_ context.Context, search *store.ChunkTextSearch) ([]*store.ChunkHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	terms := strings.Fields(strings.ToLower(search.Query))
	if len(terms) == 0 {
		return nil, nil
	}
	var hits []*store.ChunkHit
	for _, chunk := range d.chunks {
		content := strings.ToLower(chunk.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, &store.ChunkHit{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Content:    chunk.Content,
			Metadata:   cloneMetadata(chunk.Metadata),
			Score:      float32(matched) / float32(len(terms)),
		})
	}
	sortHits(hits)
	return capHits(hits, search.Limit), nil
}

// SearchChunksByVector ranks chunks by cosine similarity against seeded
// embeddings.
func (d *DB) SearchChunksByVector(_ context.Context, search *store.ChunkVectorSearch) ([]*store.ChunkHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var hits []*store.ChunkHit
	for _, chunk := range d.chunks {
		if len(chunk.Embedding) == 0 || len(chunk.Embedding) != len(search.Vector) {
			continue
		}
		score := cosine(chunk.Embedding, search.Vector)
		hits = append(hits, &store.ChunkHit{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Content:    chunk.Content,
			Metadata:   cloneMetadata(chunk.Metadata),
			Score:      score,
		})
	}
	sortHits(hits)
	return capHits(hits, search.Limit), nil
}

func sortHits(hits []*store.ChunkHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
}

func capHits(hits []*store.ChunkHit, limit int) []*store.ChunkHit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
