package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/springcloudnative/edge-service/internal/circuitbreaker"
	"github.com/springcloudnative/edge-service/internal/retry"
)

// Pipeline applies the resilience policies around each proxied call in a
// fixed order: the retry policy wraps the circuit breaker, which wraps the
// time limiter, which bounds the downstream call itself. The ordering is
// load-bearing:
//
//   - a timed-out call always counts toward breaker statistics,
//   - an open breaker short-circuits before any retry re-attempts a doomed
//     call,
//   - retries never bypass the deadline, because each attempt gets its own.
type Pipeline struct {
	RouteID string
	Breaker *circuitbreaker.Breaker // nil disables circuit breaking
	Retry   *retry.Policy           // nil disables retries
	Timeout time.Duration           // per-attempt deadline; 0 disables

	// OnRetry is invoked before each re-attempt (attempt >= 2).
	OnRetry func(attempt int)
}

// Do executes the downstream call through the pipeline. The call closure
// must build a fresh outbound request from the supplied context, so that
// each attempt carries its own deadline.
func (p *Pipeline) Do(ctx context.Context, method string, call func(context.Context) (*http.Response, error)) (*http.Response, error) {
	retryable := p.Retry != nil && p.Retry.AppliesTo(method)

	maxAttempts := 1
	var sched retry.Schedule
	if retryable {
		maxAttempts = p.Retry.MaxRetries + 1
		sched = p.Retry.NewSchedule()
	}

	var lastResp *http.Response
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if lastResp != nil {
				drainAndClose(lastResp.Body)
				lastResp = nil
			}
			if p.OnRetry != nil {
				p.OnRetry(attempt)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sched.Next()):
			}
		}

		resp, err := p.attempt(ctx, call)
		if err != nil {
			// An open breaker stops further retries immediately; the
			// downstream is doomed until the wait duration elapses.
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return nil, err
			}
			lastErr = err
			if !retryable || !p.Retry.RetryableError(err) {
				return nil, err
			}
			continue
		}

		if !retryable || !p.Retry.RetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastResp = resp
		lastErr = nil
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// attempt runs one breaker-guarded, deadline-bounded call.
func (p *Pipeline) attempt(ctx context.Context, call func(context.Context) (*http.Response, error)) (*http.Response, error) {
	var done func(error)
	if p.Breaker != nil {
		var err error
		done, err = p.Breaker.Allow()
		if err != nil {
			return nil, err
		}
	}

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if p.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
	}

	resp, err := call(attemptCtx)
	if err != nil {
		cancel()
		// Normalize the fired deadline so callers and the retry policy see
		// a timeout rather than a wrapped transport error. The parent
		// context staying live distinguishes it from client cancellation.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = context.DeadlineExceeded
		}
		if done != nil {
			done(err)
		}
		return nil, err
	}

	// Server-error responses count as breaker failures; client errors do not.
	if done != nil {
		if resp.StatusCode >= 500 {
			done(errServerError)
		} else {
			done(nil)
		}
	}

	// The attempt deadline must survive until the body is consumed.
	resp.Body = &cancelOnCloseBody{rc: resp.Body, cancel: cancel}
	return resp, nil
}

var errServerError = errors.New("server error response")

// cancelOnCloseBody releases the attempt context when the response body is
// closed, so the deadline keeps guarding the body read.
type cancelOnCloseBody struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Read(p []byte) (int, error) {
	return b.rc.Read(p)
}

func (b *cancelOnCloseBody) Close() error {
	err := b.rc.Close()
	b.cancel()
	return err
}

// drainAndClose discards a bounded amount of a body before closing so the
// underlying connection can be reused.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(body, 32<<10))
	body.Close()
}
