// Package netretry classifies transport-level failures and wraps operations
// with bounded retry and exponential backoff. Application-level errors
// (auth, validation, not-found, malformed requests) are never retried and
// propagate after exactly one attempt.
package netretry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

// Options tunes the retry loop. Zero values fall back to the defaults below.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	return o
}

// Do runs op, retrying with exponential backoff while the returned error is
// classified as network-level. Any other error returns immediately. The
// context aborts both the operation loop and backoff waits.
func Do(ctx context.Context, opts Options, op func() error) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsNetworkError(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if err := wait(ctx, backoffDelay(opts, attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func backoffDelay(opts Options, attempt int) time.Duration {
	delay := opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= opts.MaxDelay {
			return opts.MaxDelay
		}
	}
	if delay > opts.MaxDelay {
		return opts.MaxDelay
	}
	return delay
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNetworkError reports whether err is a transport-level failure: connection
// refused/reset, timeout, DNS failure, or a transport failure without an
// application response. Context cancellation is deliberately not a network
// error; cancelled operations must not be retried.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	// A truncated response body means the transport died mid-stream.
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// url.Error without any of the above still indicates the request never
	// produced an application response.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	// Provider-side throttling and 5xx responses are transient.
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	return false
}
