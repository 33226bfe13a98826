// Package ratelimit enforces a per-subject request quota over fixed
// one-minute windows. A subject's window opens with its first request and
// admits at most the configured number of requests until it closes.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Window is the length of one quota window.
const Window = time.Minute

// ErrUnavailable wraps backend failures; the request outcome is unknown.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter admits or rejects one request for subject. When the request is
// rejected, retryAfter is the time until the subject's window closes.
type Limiter interface {
	Allow(ctx context.Context, subject string) (ok bool, retryAfter time.Duration, err error)
}
