package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewmind/crewmind/ai/format"
	"github.com/crewmind/crewmind/ai/llm"
	"github.com/crewmind/crewmind/ai/orchestrator"
	"github.com/crewmind/crewmind/ai/skill"
	"github.com/crewmind/crewmind/internal/profile"
	"github.com/crewmind/crewmind/plugin/teamchat"
	"github.com/crewmind/crewmind/store"
	"github.com/crewmind/crewmind/store/db/memory"
	"github.com/crewmind/crewmind/store/hotcache"
)

const testSecret = "test-signing-secret"

type nullCompleter struct{}

func (nullCompleter) Complete(context.Context, []llm.Message) (string, error) {
	return "ok", nil
}

type nullSender struct{}

func (nullSender) Send(context.Context, string, string, []format.Block) error        { return nil }
func (nullSender) SendDirect(context.Context, string, string, []format.Block) error { return nil }
func (nullSender) LookupUserByEmail(context.Context, string) (*teamchat.User, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := skill.NewRegistry(skill.DefaultSkillName)
	skill.RegisterBuiltins(registry)
	s := store.New(memory.NewDB(), hotcache.NewMemory())
	orch := orchestrator.New(registry, s, nil, nullCompleter{}, nullSender{}, time.Second)
	gateway := teamchat.NewGateway(testSecret, "A-test")
	return NewServer(context.Background(), &profile.Profile{Version: "test"}, s, gateway, orch)
}

// signedRequest builds a POST with valid platform signature headers.
func signedRequest(target string, body []byte) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, teamchat.ComputeSignature(testSecret, ts, body))
	return req
}

func TestEventsRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{"type":"event_callback"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/events/", bytes.NewReader(body))
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, teamchat.ComputeSignature("wrong-secret", ts, body))
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventsRejectsStaleTimestamp(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{"type":"event_callback"}`)
	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/events/", bytes.NewReader(body))
	req.Header.Set(headerTimestamp, stale)
	req.Header.Set(headerSignature, teamchat.ComputeSignature(testSecret, stale, body))
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventsURLVerificationEchoesChallenge(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{"type":"url_verification","challenge":"ch4ll3nge"}`)

	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, signedRequest("/events/", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ch4ll3nge", resp["challenge"])
}

func TestEventsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, signedRequest("/events/", []byte("not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func eventBody(eventID, ts string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "event_callback",
		"event_id": %q,
		"event": {
			"type": "message",
			"text": "hello there",
			"user": "U1",
			"channel": "C1",
			"channel_type": "channel",
			"ts": %q
		}
	}`, eventID, ts))
}

func TestEventsDuplicateDeliveryAckedOnce(t *testing.T) {
	srv := newTestServer(t)
	body := eventBody("Ev42", "1700000000.000100")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.e.ServeHTTP(rec, signedRequest("/events/", body))
		assert.Equal(t, http.StatusOK, rec.Code, "redeliveries still ack with 200")
	}

	// Both deliveries acked, but only the first reached the store.
	// Handle runs async; poll briefly for the single conversation.
	require.Eventually(t, func() bool {
		convs, err := srv.Store.GetUserConversations(context.Background(), "U1", 0, 0)
		return err == nil && len(convs) == 1
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	convs, err := srv.Store.GetUserConversations(context.Background(), "U1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestEventsIgnoredSubtypeStillAcks(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{
		"type": "event_callback",
		"event_id": "Ev43",
		"event": {"type": "message", "subtype": "message_changed", "text": "edited", "user": "U1", "channel": "C1"}
	}`)

	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, signedRequest("/events/", body))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCommandsAckEphemeral(t *testing.T) {
	srv := newTestServer(t)
	body := []byte("command=%2Fask&text=hello")

	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, signedRequest("/commands/", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ephemeral", resp["response_type"])
}

func TestInteractiveRequiresSignature(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/interactive/", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}
