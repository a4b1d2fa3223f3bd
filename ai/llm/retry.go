package llm

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/pkg/errors"
)

// FailureClass partitions completion failures for the retry policy and
// for the caller's fallback messaging.
type FailureClass string

const (
	// FailureTransient covers network errors, timeouts, throttling, and
	// upstream 5xx. Worth retrying.
	FailureTransient FailureClass = "transient"
	// FailureTerminal covers auth failures and other 4xx. Retrying
	// cannot help.
	FailureTerminal FailureClass = "terminal"
)

// CompletionFailed is the error a completion call surfaces after the
// retry policy gives up.
type CompletionFailed struct {
	Class FailureClass
	Err   error
}

func (e *CompletionFailed) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Class, e.Err)
}

func (e *CompletionFailed) Unwrap() error { return e.Err }

// Retry policy: up to 3 attempts with exponential backoff and full
// jitter, 1s base, 10s cap.
const (
	maxAttempts = 3
	baseBackoff = time.Second
	maxBackoff  = 10 * time.Second
)

// Classify buckets an upstream error. Context cancellation counts as
// transient so the caller's deadline messaging applies.
func Classify(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return FailureTransient
		case apiErr.HTTPStatusCode == 408:
			return FailureTransient
		case apiErr.HTTPStatusCode >= 500:
			return FailureTransient
		default:
			return FailureTerminal
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode == 408 || reqErr.HTTPStatusCode >= 500:
			return FailureTransient
		case reqErr.HTTPStatusCode >= 400:
			return FailureTerminal
		}
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	// Unrecognized errors are treated as transient; a retry against a
	// flaky upstream is cheaper than a wrongly terminal answer.
	return FailureTransient
}

// backoffDelay returns the sleep before the given retry (attempt is
// 1-based over the attempts already made). Full jitter: a uniform draw
// from [0, min(cap, base*2^(attempt-1))].
func backoffDelay(attempt int) time.Duration {
	ceiling := baseBackoff << (attempt - 1)
	if ceiling > maxBackoff {
		ceiling = maxBackoff
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// withRetry runs fn under the retry policy, classifying errors along
// the way.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class := Classify(err)
		if class == FailureTerminal {
			return &CompletionFailed{Class: FailureTerminal, Err: err}
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return &CompletionFailed{Class: FailureTransient, Err: ctx.Err()}
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return &CompletionFailed{Class: FailureTransient, Err: lastErr}
}
