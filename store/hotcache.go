package store

import "context"

// HotDepth is how many recent messages the hot tier retains per
// conversation; HotTTLSeconds is the idle expiry of a hot entry.
const (
	HotDepth      = 50
	HotTTLSeconds = 24 * 60 * 60
)

// HotCache is the volatile recency tier in front of the durable driver.
// Lists are newest-first. The hot tier is an optimization only: every
// implementation may lose data at any time and the Store must fall back
// to the driver when Recent reports a miss.
type HotCache interface {
	// Push prepends a message to the conversation's recent list,
	// trimming it to HotDepth. Pushing to an absent key is a no-op so
	// that a partially warmed list can never shadow durable history.
	Push(ctx context.Context, conversationUID string, msg *Message) error

	// Recent returns up to limit messages, newest first. The second
	// return is false on a miss.
	Recent(ctx context.Context, conversationUID string, limit int) ([]*Message, bool, error)

	// Replace repopulates the conversation's list from durable reads.
	// Input is newest-first and already trimmed by the caller.
	Replace(ctx context.Context, conversationUID string, msgs []*Message) error

	// Evict drops the conversation's list.
	Evict(ctx context.Context, conversationUID string) error
}
