package store

import (
	"context"
)

// Driver is the durable storage interface. Implementations live under
// store/db and must be safe for concurrent use.
type Driver interface {
	GetDB() any
	Close() error
	Ping(ctx context.Context) error

	// Conversation model.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, uid string) error

	// Message model.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessages(ctx context.Context, conversationUID string) error

	// Knowledge chunk search. Drivers without a search capability return
	// ErrChunkSearchUnsupported.
	SearchChunksByText(ctx context.Context, search *ChunkTextSearch) ([]*ChunkHit, error)
	SearchChunksByVector(ctx context.Context, search *ChunkVectorSearch) ([]*ChunkHit, error)
}
