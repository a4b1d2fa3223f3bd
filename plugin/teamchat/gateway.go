package teamchat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/crewmind/crewmind/ai/cache"
	"github.com/crewmind/crewmind/ai/metrics"
)

// Dedup retention. The platform redelivers unacknowledged events within a
// few minutes; one hour of retention over 1000 fingerprints covers that
// with a wide margin.
const (
	dedupCapacity = 1000
	dedupTTL      = time.Hour
)

// Gateway validates, classifies, and deduplicates inbound envelopes.
// It owns the process-local fingerprint set; nothing else mutates it.
type Gateway struct {
	secret string
	appID  string
	dedup  *cache.LRU[string, struct{}]
}

// NewGateway creates a gateway for the given signing secret and
// application id.
func NewGateway(secret, appID string) *Gateway {
	return &Gateway{
		secret: secret,
		appID:  appID,
		dedup:  cache.NewLRU[string, struct{}](dedupCapacity, dedupTTL),
	}
}

// Verify checks the request signature headers against the raw body.
func (g *Gateway) Verify(timestamp, signature string, body []byte) error {
	return VerifySignature(g.secret, timestamp, signature, body)
}

// Parse decodes the envelope. Bodies that are not JSON objects of the
// expected shape yield ErrMalformedBody.
func (g *Gateway) Parse(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrMalformedBody
	}
	if env.Type == "" {
		return nil, ErrMalformedBody
	}
	return &env, nil
}

// Classify extracts the dispatchable message event from an event_callback
// envelope. It returns nil (and no error) for envelopes the pipeline
// ignores: non-message events, filtered subtypes, and self-originated
// traffic.
func (g *Gateway) Classify(env *Envelope) *Inbound {
	if env.Type != EnvelopeEventCallback || env.Event == nil {
		return nil
	}
	ev := env.Event
	if ev.Type != "message" {
		return nil
	}
	// Only plain messages and bot_message subtypes are dispatched;
	// edits, joins, file shares etc. are not utterances.
	if ev.Subtype != "" && ev.Subtype != "bot_message" {
		return nil
	}
	// Self-filter: our own posts echo back with our bot and app ids.
	if ev.BotID != "" && ev.AppID == g.appID {
		metrics.SelfEventsDropped.Inc()
		slog.Debug("gateway: dropping self-originated event", "event_id", env.EventID)
		return nil
	}
	if strings.TrimSpace(ev.Text) == "" {
		return nil
	}
	return &Inbound{
		User:        ev.User,
		Channel:     ev.Channel,
		ChannelType: ev.ChannelType,
		Text:        ev.Text,
		EventID:     env.EventID,
		Ts:          ev.Ts,
	}
}

// Fingerprint computes the dedup key of an envelope: the tuple
// (event_id, ts, client_msg_id, user, content_hash) hashed to a fixed
// width.
func (g *Gateway) Fingerprint(env *Envelope) string {
	var ts, clientMsgID, user, text string
	if env.Event != nil {
		ts = env.Event.Ts
		clientMsgID = env.Event.ClientMsgID
		user = env.Event.User
		text = env.Event.Text
	}
	contentHash := sha256.Sum256([]byte(text))
	h := sha256.New()
	h.Write([]byte(env.EventID))
	h.Write([]byte{0})
	h.Write([]byte(ts))
	h.Write([]byte{0})
	h.Write([]byte(clientMsgID))
	h.Write([]byte{0})
	h.Write([]byte(user))
	h.Write([]byte{0})
	h.Write(contentHash[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Seen atomically records the fingerprint and reports whether it was
// already present within the retention window. A true return means the
// event is a redelivery and must be acknowledged without reprocessing.
func (g *Gateway) Seen(fingerprint string) bool {
	return g.dedup.CheckAndSet(fingerprint, struct{}{}, dedupTTL)
}
