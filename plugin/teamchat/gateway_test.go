package teamchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEnvelope(eventID, ts, text string) *Envelope {
	return &Envelope{
		Type:    EnvelopeEventCallback,
		EventID: eventID,
		Event: &Event{
			Type:        "message",
			Text:        text,
			User:        "U123",
			Channel:     "C456",
			ChannelType: "channel",
			Ts:          ts,
		},
	}
}

func TestParse(t *testing.T) {
	g := NewGateway("secret", "A001")

	env, err := g.Parse([]byte(`{"type":"url_verification","challenge":"abc123"}`))
	require.NoError(t, err)
	assert.Equal(t, EnvelopeURLVerification, env.Type)
	assert.Equal(t, "abc123", env.Challenge)

	_, err = g.Parse([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedBody)

	_, err = g.Parse([]byte(`{}`))
	require.ErrorIs(t, err, ErrMalformedBody)
}

func TestClassify(t *testing.T) {
	g := NewGateway("secret", "A001")

	t.Run("plain message dispatches", func(t *testing.T) {
		in := g.Classify(messageEnvelope("Ev1", "1700000000.000100", "hello there"))
		require.NotNil(t, in)
		assert.Equal(t, "U123", in.User)
		assert.Equal(t, "hello there", in.Text)
	})

	t.Run("bot_message subtype dispatches", func(t *testing.T) {
		env := messageEnvelope("Ev2", "1700000000.000200", "from another bot")
		env.Event.Subtype = "bot_message"
		env.Event.BotID = "B999"
		env.Event.AppID = "A777"
		require.NotNil(t, g.Classify(env))
	})

	t.Run("edit subtype ignored", func(t *testing.T) {
		env := messageEnvelope("Ev3", "1700000000.000300", "edited")
		env.Event.Subtype = "message_changed"
		assert.Nil(t, g.Classify(env))
	})

	t.Run("self-originated dropped", func(t *testing.T) {
		env := messageEnvelope("Ev4", "1700000000.000400", "my own echo")
		env.Event.BotID = "B001"
		env.Event.AppID = "A001"
		assert.Nil(t, g.Classify(env))
	})

	t.Run("empty text dropped", func(t *testing.T) {
		assert.Nil(t, g.Classify(messageEnvelope("Ev5", "1700000000.000500", "   ")))
	})

	t.Run("non-message event ignored", func(t *testing.T) {
		env := messageEnvelope("Ev6", "1700000000.000600", "x")
		env.Event.Type = "reaction_added"
		assert.Nil(t, g.Classify(env))
	})
}

func TestDedupIdempotence(t *testing.T) {
	g := NewGateway("secret", "A001")
	env := messageEnvelope("Ev100", "1700000000.001000", "are we there yet")

	fp := g.Fingerprint(env)
	assert.False(t, g.Seen(fp), "first delivery must process")
	assert.True(t, g.Seen(fp), "redelivery must be suppressed")
	assert.True(t, g.Seen(fp), "every further redelivery stays suppressed")
}

func TestFingerprintDistinguishesRepeatSends(t *testing.T) {
	g := NewGateway("secret", "A001")

	// The same text sent twice carries distinct ts values, so both are
	// legitimate sends, not redeliveries.
	a := g.Fingerprint(messageEnvelope("Ev200", "1700000000.002000", "deploy please"))
	b := g.Fingerprint(messageEnvelope("Ev201", "1700000060.002000", "deploy please"))
	assert.NotEqual(t, a, b)

	// A true redelivery repeats every field.
	c := g.Fingerprint(messageEnvelope("Ev200", "1700000000.002000", "deploy please"))
	assert.Equal(t, a, c)
}
