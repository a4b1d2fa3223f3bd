package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionStub captures the upstream request body and returns a fixed
// reply.
func completionStub(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*captured = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}]
		}`))
	}))
}

func TestCompleteSendsConfiguredOptions(t *testing.T) {
	var captured map[string]any
	upstream := completionStub(t, &captured)
	defer upstream.Close()

	svc := NewService(upstream.URL+"/v1", "key", "gpt-4o", 0.2, 512)
	reply, err := svc.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	require.NotNil(t, captured)
	assert.Equal(t, "gpt-4o", captured["model"])
	assert.InDelta(t, 0.2, captured["temperature"], 1e-6)
	assert.EqualValues(t, 512, captured["max_tokens"])
}

func TestCompleteDefaultsTemperature(t *testing.T) {
	var captured map[string]any
	upstream := completionStub(t, &captured)
	defer upstream.Close()

	svc := NewService(upstream.URL+"/v1", "key", "gpt-4o", 0, 0)
	_, err := svc.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.InDelta(t, DefaultTemperature, captured["temperature"], 1e-6)
	_, hasLimit := captured["max_tokens"]
	assert.False(t, hasLimit, "no configured limit means none is sent")
}
