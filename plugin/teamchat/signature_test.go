package teamchat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeSignatureFormat(t *testing.T) {
	sig := ComputeSignature("secret", "1700000000", []byte(`{"type":"event_callback"}`))
	require.True(t, strings.HasPrefix(sig, "v0="))
	require.Len(t, sig, 3+64)
}

func TestVerifySignature(t *testing.T) {
	secret := "8f742231b10e8888abcd99yyyzzz85a5"
	body := []byte(`{"type":"event_callback","event":{"type":"message","text":"hello"}}`)
	now := time.Unix(1700000100, 0)
	ts := fmt.Sprintf("%d", now.Unix()-60)

	sig := ComputeSignature(secret, ts, body)
	require.NoError(t, verifySignatureAt(secret, ts, sig, body, now))

	t.Run("wrong secret", func(t *testing.T) {
		bad := ComputeSignature("other-secret", ts, body)
		err := verifySignatureAt(secret, ts, bad, body, now)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		err := verifySignatureAt(secret, ts, sig, []byte(`{"type":"event_callback"}`), now)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		staleTs := fmt.Sprintf("%d", now.Unix()-600)
		staleSig := ComputeSignature(secret, staleTs, body)
		err := verifySignatureAt(secret, staleTs, staleSig, body, now)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("future timestamp", func(t *testing.T) {
		futureTs := fmt.Sprintf("%d", now.Unix()+600)
		futureSig := ComputeSignature(secret, futureTs, body)
		err := verifySignatureAt(secret, futureTs, futureSig, body, now)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("non-numeric timestamp", func(t *testing.T) {
		err := verifySignatureAt(secret, "not-a-number", sig, body, now)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
}
