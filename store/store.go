// Package store is the two-tier conversation store: a durable driver
// holds the full history while a volatile hot tier serves the recent
// window most reads want.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// Sentinel errors surfaced to callers.
var (
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrChunkSearchUnsupported = errors.New("chunk search unsupported by driver")
)

// ContextFormat selects the projection GetContext returns.
type ContextFormat string

const (
	// ContextString renders role-labelled lines, oldest first.
	ContextString ContextFormat = "string"
	// ContextRaw returns the message records, oldest first.
	ContextRaw ContextFormat = "raw"
	// ContextCompletion returns role/content turns ready for a
	// completion request, oldest first.
	ContextCompletion ContextFormat = "completion"
)

// Turn is one role/content pair of the completion projection.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the result of GetContext. Only the field matching the
// requested format is populated.
type Context struct {
	Text     string
	Messages []*Message
	Turns    []Turn
}

// Store mediates all conversation access. Writes go durable-first, then
// to the hot tier; reads prefer the hot tier and repopulate it on miss.
type Store struct {
	driver Driver
	hot    HotCache

	// Per-conversation write locks keep the append/push pair atomic with
	// respect to concurrent appends on the same conversation.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store over the given durable driver and hot tier.
func New(driver Driver, hot HotCache) *Store {
	return &Store{
		driver: driver,
		hot:    hot,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Driver exposes the underlying durable driver.
func (s *Store) Driver() Driver {
	return s.driver
}

// Ping checks durable connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

// Close releases the durable driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) lockFor(uid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[uid] = l
	}
	return l
}

func (s *Store) dropLock(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, uid)
}

// CreateConversation starts a new conversation owned by owner.
func (s *Store) CreateConversation(ctx context.Context, owner string, metadata map[string]any) (*Conversation, error) {
	now := time.Now().Unix()
	conv, err := s.driver.CreateConversation(ctx, &Conversation{
		UID:       shortuuid.New(),
		Owner:     owner,
		CreatedTs: now,
		UpdatedTs: now,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return conv, nil
}

// GetConversation fetches a single conversation by uid. Returns
// ErrConversationNotFound when absent.
func (s *Store) GetConversation(ctx context.Context, uid string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	if len(list) == 0 {
		return nil, ErrConversationNotFound
	}
	return list[0], nil
}

// GetUserConversations lists conversations owned by owner, most recently
// updated first. limit <= 0 returns all; skip offsets into the ordered
// list.
func (s *Store) GetUserConversations(ctx context.Context, owner string, limit, skip int) ([]*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{Owner: &owner, Limit: limit, Skip: skip})
	if err != nil {
		return nil, errors.Wrap(err, "list user conversations")
	}
	return list, nil
}

// AddMessage appends a message. The durable write happens first; the hot
// tier push is best effort and a failure there only logs.
func (s *Store) AddMessage(ctx context.Context, conversationUID string, role Role, content string, metadata map[string]any) (*Message, error) {
	l := s.lockFor(conversationUID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.GetConversation(ctx, conversationUID); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	msg, err := s.driver.CreateMessage(ctx, &Message{
		ConversationUID: conversationUID,
		Role:            role,
		Content:         content,
		CreatedTs:       now,
		Metadata:        metadata,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create message")
	}

	if _, err := s.driver.UpdateConversation(ctx, &UpdateConversation{UID: conversationUID, UpdatedTs: &now}); err != nil {
		slog.Warn("store: failed to bump conversation updated_ts", "uid", conversationUID, "error", err)
	}
	if err := s.hot.Push(ctx, conversationUID, msg); err != nil {
		slog.Warn("store: hot tier push failed", "uid", conversationUID, "error", err)
	}
	return msg, nil
}

// GetMessages returns up to limit messages, newest first. The hot tier
// answers when skip is zero and it holds enough entries; on a miss the
// durable driver answers and the hot tier is repopulated with the
// recent window. With includeMetadata false the per-message metadata is
// stripped from the result.
func (s *Store) GetMessages(ctx context.Context, conversationUID string, limit, skip int, includeMetadata bool) ([]*Message, error) {
	if limit <= 0 {
		limit = HotDepth
	}

	if skip == 0 && limit <= HotDepth {
		msgs, ok, err := s.hot.Recent(ctx, conversationUID, limit)
		if err != nil {
			slog.Warn("store: hot tier read failed", "uid", conversationUID, "error", err)
		} else if ok && len(msgs) >= limit {
			return stripMetadata(msgs, includeMetadata), nil
		}
	}

	fetch := limit
	if skip == 0 && fetch < HotDepth {
		fetch = HotDepth
	}
	msgs, err := s.driver.ListMessages(ctx, &FindMessage{ConversationUID: conversationUID, Limit: fetch, Skip: skip})
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	if skip == 0 && len(msgs) > 0 {
		window := msgs
		if len(window) > HotDepth {
			window = window[:HotDepth]
		}
		if err := s.hot.Replace(ctx, conversationUID, window); err != nil {
			slog.Warn("store: hot tier repopulate failed", "uid", conversationUID, "error", err)
		}
	}

	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return stripMetadata(msgs, includeMetadata), nil
}

func stripMetadata(msgs []*Message, includeMetadata bool) []*Message {
	if includeMetadata {
		return msgs
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		clone := *m
		clone.Metadata = nil
		out[i] = &clone
	}
	return out
}

// GetContext projects recent history into the requested shape. All
// projections are oldest-first so the conversation reads top to bottom.
func (s *Store) GetContext(ctx context.Context, conversationUID string, limit int, format ContextFormat) (*Context, error) {
	msgs, err := s.GetMessages(ctx, conversationUID, limit, 0, format == ContextRaw)
	if err != nil {
		return nil, err
	}
	// Newest-first storage order becomes chronological here.
	ordered := make([]*Message, len(msgs))
	for i, m := range msgs {
		ordered[len(msgs)-1-i] = m
	}

	switch format {
	case ContextRaw:
		return &Context{Messages: ordered}, nil
	case ContextCompletion:
		turns := make([]Turn, 0, len(ordered))
		for _, m := range ordered {
			role := string(m.Role)
			switch m.Role {
			case RoleUser, RoleAssistant, RoleSystem:
			default:
				// Unknown roles flatten to user for the completion API.
				role = string(RoleUser)
			}
			turns = append(turns, Turn{Role: role, Content: m.Content})
		}
		return &Context{Turns: turns}, nil
	case ContextString, "":
		var sb strings.Builder
		for _, m := range ordered {
			sb.WriteString(m.Role.Label())
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		return &Context{Text: strings.TrimRight(sb.String(), "\n")}, nil
	default:
		return nil, fmt.Errorf("unknown context format %q", format)
	}
}

// UpdateMetadata shallow-merges patch into the conversation's metadata.
// Keys present in patch overwrite; other keys survive.
func (s *Store) UpdateMetadata(ctx context.Context, conversationUID string, patch map[string]any) (*Conversation, error) {
	l := s.lockFor(conversationUID)
	l.Lock()
	defer l.Unlock()

	conv, err := s.GetConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(conv.Metadata)+len(patch))
	for k, v := range conv.Metadata {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	now := time.Now().Unix()
	updated, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		UID:       conversationUID,
		UpdatedTs: &now,
		Metadata:  merged,
	})
	if err != nil {
		return nil, errors.Wrap(err, "update conversation metadata")
	}
	return updated, nil
}

// DeleteConversation removes the conversation, its messages, and its hot
// entry. Deleting an absent conversation is a no-op.
func (s *Store) DeleteConversation(ctx context.Context, conversationUID string) error {
	l := s.lockFor(conversationUID)
	l.Lock()
	defer func() {
		l.Unlock()
		s.dropLock(conversationUID)
	}()

	if err := s.hot.Evict(ctx, conversationUID); err != nil {
		slog.Warn("store: hot tier evict failed", "uid", conversationUID, "error", err)
	}
	if err := s.driver.DeleteMessages(ctx, conversationUID); err != nil {
		return errors.Wrap(err, "delete messages")
	}
	if err := s.driver.DeleteConversation(ctx, conversationUID); err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	return nil
}

// SearchChunksByText proxies lexical chunk search to the driver.
func (s *Store) SearchChunksByText(ctx context.Context, search *ChunkTextSearch) ([]*ChunkHit, error) {
	return s.driver.SearchChunksByText(ctx, search)
}

// SearchChunksByVector proxies vector chunk search to the driver.
func (s *Store) SearchChunksByVector(ctx context.Context, search *ChunkVectorSearch) ([]*ChunkHit, error) {
	return s.driver.SearchChunksByVector(ctx, search)
}
