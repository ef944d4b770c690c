package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient sends provider calls through a Breaker, retrying transport
// errors and 5xx responses with exponential backoff. 4xx responses are
// returned to the caller untouched. A nil Breaker disables circuit breaking;
// share one Breaker across calls to the same upstream.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt; zero falls back to Client.Timeout.
	Timeout  time.Duration
	Target   string
	Logger   *zerolog.Logger
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

var errNoClient = errors.New("resilience: http client not configured")

// Do sends req. The body is read once and replayed on every attempt.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errNoClient
	}
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	breaker := cl.breaker()
	attempts := max(cl.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if breaker != nil && !breaker.Allow(ctx) {
			countOutbound(cl.Target, "rejected")
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.attempt(ctx, req, body)
		if err == nil {
			breaker.report(ctx, true)
			countOutbound(cl.Target, "success")
			return resp, nil
		}
		breaker.report(ctx, false)
		lastErr = err
		if attempt >= attempts {
			countOutbound(cl.Target, "failure")
			break
		}
		countOutbound(cl.Target, "retry")
		if err := sleep(ctx, Backoff(cl.BaseBackoff, attempt, cl.Jitter)); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) breaker() *Breaker {
	b := cl.Breaker
	if b == nil {
		return nil
	}
	if cl.Target != "" {
		b = b.WithTarget(cl.Target)
	}
	if cl.Logger != nil {
		b = b.WithLogger(*cl.Logger)
	}
	return b
}

func (b *Breaker) report(ctx context.Context, success bool) {
	if b != nil {
		b.Report(ctx, success)
	}
}

// attempt performs one round trip. A 5xx response is closed and turned into
// an error so the caller retries it.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("resilience: upstream %s", resp.Status)
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose ties the attempt's context to the response body lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	defer func() { _ = src.Close() }()
	return io.ReadAll(src)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
