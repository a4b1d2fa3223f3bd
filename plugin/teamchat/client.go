package teamchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/crewmind/crewmind/ai/format"
)

// Sender is the narrow outbound interface of the messaging platform.
// Tests and alternate channels supply their own implementations.
type Sender interface {
	// Send posts a message to a channel.
	Send(ctx context.Context, channel, text string, blocks []format.Block) error

	// SendDirect posts a direct message to a user.
	SendDirect(ctx context.Context, user, text string, blocks []format.Block) error

	// LookupUserByEmail resolves a platform user from an email address.
	// Returns nil when no user matches.
	LookupUserByEmail(ctx context.Context, email string) (*User, error)
}

// Client posts messages through the platform's web API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an outbound platform client. The limiter keeps bursts
// under the platform's per-channel posting ceiling (~1 msg/s sustained).
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    20,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

type postMessageRequest struct {
	Channel string         `json:"channel"`
	Text    string         `json:"text"`
	Blocks  []format.Block `json:"blocks,omitempty"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	User  *User  `json:"user,omitempty"`
}

// Send posts a message to a channel.
func (c *Client) Send(ctx context.Context, channel, text string, blocks []format.Block) error {
	return c.post(ctx, channel, text, blocks)
}

// SendDirect posts a direct message. The platform opens the conversation
// implicitly when the channel field carries a user id.
func (c *Client) SendDirect(ctx context.Context, user, text string, blocks []format.Block) error {
	return c.post(ctx, user, text, blocks)
}

func (c *Client) post(ctx context.Context, channel, text string, blocks []format.Block) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(postMessageRequest{Channel: channel, Text: text, Blocks: blocks})
	if err != nil {
		return fmt.Errorf("marshal post payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to platform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode platform response: %w", err)
	}
	if !body.OK {
		if body.Error == "rate_limited" || body.Error == "ratelimited" {
			return ErrRateLimited
		}
		return fmt.Errorf("platform rejected post: %s", body.Error)
	}

	slog.Debug("teamchat: message posted", "channel", channel, "blocks", len(blocks))
	return nil
}

// LookupUserByEmail resolves a platform user by email.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users.lookupByEmail?email="+email, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if !body.OK {
		if body.Error == "users_not_found" {
			return nil, nil
		}
		return nil, fmt.Errorf("platform lookup failed: %s", body.Error)
	}
	return body.User, nil
}
