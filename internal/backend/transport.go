package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/staffboard/internal/logging"
	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// RetryPolicy configures the retrying transport.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxDelay, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// retryTransport retries idempotent requests that fail with a network error,
// a 5xx or a 429 using exponential backoff.
type retryTransport struct {
	next   http.RoundTripper
	policy RetryPolicy
	logger *slog.Logger
}

func newRetryTransport(next http.RoundTripper, policy RetryPolicy, logger *slog.Logger) *retryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &retryTransport{next: next, policy: policy, logger: logger}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !replayable(req) {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	logger := logging.FromContextOr(ctx, t.logger)

	var (
		resp    *http.Response
		attempt int
	)
	err := retry.Do(ctx, t.policy.backoff(), func(ctx context.Context) error {
		attempt++
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return err
		}

		r, err := t.next.RoundTrip(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.WarnContext(ctx, "backend request failed", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}

		if !retryableStatus(r.StatusCode) {
			resp = r
			return nil
		}

		buffered, err := bufferBody(r)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp = buffered
		logger.WarnContext(ctx, "backend responded with retryable status", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt, "status", r.StatusCode)
		return retry.RetryableError(fmt.Errorf("backend: status %d", r.StatusCode))
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, ctxErr
	}
	if resp != nil {
		// Out of attempts on a retryable status: hand the last response to the
		// caller so it surfaces as a StatusError.
		return resp, nil
	}
	if err == nil {
		err = errors.New("backend: no response")
	}
	return nil, err
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("backend: rewind request body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}

func bufferBody(r *http.Response) (*http.Response, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return r, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
