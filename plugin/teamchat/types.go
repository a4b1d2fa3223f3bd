// Package teamchat implements the inbound contract of the team-messaging
// platform: envelope parsing, webhook signature verification, redelivery
// dedup, and the outbound message-post client.
package teamchat

import "github.com/pkg/errors"

// Structural gateway errors, mapped to HTTP statuses by the server.
var (
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrMalformedBody    = errors.New("malformed request body")
	ErrRateLimited      = errors.New("rate limited by platform")
)

// Envelope is the outer payload the platform POSTs to /events/.
type Envelope struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	APIAppID  string `json:"api_app_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	EventTime int64  `json:"event_time,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Envelope types.
const (
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"
)

// Event is the inner event of an event_callback envelope.
type Event struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	Text        string `json:"text,omitempty"`
	User        string `json:"user,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`
	Ts          string `json:"ts,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	AppID       string `json:"app_id,omitempty"`
}

// Inbound is a validated, classified message event handed to the
// orchestrator.
type Inbound struct {
	User        string
	Channel     string
	ChannelType string
	Text        string
	EventID     string
	Ts          string
}

// User is the platform-side identity returned by directory lookups.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name,omitempty"`
	Email    string `json:"email,omitempty"`
}
