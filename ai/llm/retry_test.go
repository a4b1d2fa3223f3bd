package llm

import (
	"context"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiError(status int) *openai.APIError {
	return &openai.APIError{HTTPStatusCode: status, Message: http.StatusText(status)}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureTransient, Classify(apiError(429)))
	assert.Equal(t, FailureTransient, Classify(apiError(500)))
	assert.Equal(t, FailureTransient, Classify(apiError(503)))
	assert.Equal(t, FailureTransient, Classify(apiError(408)))
	assert.Equal(t, FailureTerminal, Classify(apiError(400)))
	assert.Equal(t, FailureTerminal, Classify(apiError(401)))
	assert.Equal(t, FailureTerminal, Classify(apiError(403)))
	assert.Equal(t, FailureTransient, Classify(context.DeadlineExceeded))
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return apiError(500)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two 500s then success means exactly three calls")
}

func TestWithRetryStopsOnTerminal(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return apiError(401)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal failures are not retried")

	var failed *CompletionFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, FailureTerminal, failed.Class)
}

func TestWithRetryExhaustsTransient(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return apiError(503)
	})
	require.Error(t, err)
	assert.Equal(t, maxAttempts, calls)

	var failed *CompletionFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, FailureTransient, failed.Class)
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt)
			assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
			assert.LessOrEqual(t, d, maxBackoff)
		}
	}
}

func TestCompletionFailedError(t *testing.T) {
	inner := apiError(500)
	failed := &CompletionFailed{Class: FailureTransient, Err: inner}
	assert.Contains(t, failed.Error(), "transient")
	assert.ErrorIs(t, failed, inner)
}
