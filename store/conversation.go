package store

// Role classifies a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Title-cased label used by the string context projection.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return "User"
	}
}

// Conversation is a durable conversation record.
type Conversation struct {
	UID       string
	Owner     string
	CreatedTs int64
	UpdatedTs int64
	Metadata  map[string]any
}

// Message is one utterance inside a conversation. Messages are append-only;
// ordering is by CreatedTs with the autoincrement ID breaking ties, which
// makes the order total and stable.
type Message struct {
	ID              int64
	ConversationUID string
	Role            Role
	Content         string
	CreatedTs       int64
	Metadata        map[string]any
}

// FindConversation filters conversation listings.
type FindConversation struct {
	UID   *string
	Owner *string
	Limit int
	Skip  int
}

// UpdateConversation patches a conversation record. Metadata, when set,
// replaces the stored mapping (the shallow merge happens in the Store).
type UpdateConversation struct {
	UID       string
	UpdatedTs *int64
	Metadata  map[string]any
}

// FindMessage filters message listings. Results are newest-first.
type FindMessage struct {
	ConversationUID string
	Limit           int
	Skip            int
}

// ChunkTextSearch is a lexical query over the indexed chunk table.
type ChunkTextSearch struct {
	Query string
	Limit int
}

// ChunkVectorSearch is a vector similarity query over chunk embeddings.
type ChunkVectorSearch struct {
	Vector []float32
	Limit  int
}

// ChunkHit is one retrieval candidate with its tier-local score.
type ChunkHit struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]any
	Score      float32
}
