package collyfetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
)

// statusError carries the HTTP status and Retry-After hint alongside the
// transport error so the retry loop can classify the failure.
type statusError struct {
	code       int
	retryAfter time.Duration
	err        error
}

func (e *statusError) Error() string {
	if e.code > 0 {
		return "status " + strconv.Itoa(e.code) + ": " + e.err.Error()
	}
	return e.err.Error()
}

func (e *statusError) Unwrap() error { return e.err }

func wrapStatus(r *colly.Response, err error) error {
	se := &statusError{err: err}
	if r != nil {
		se.code = r.StatusCode
		if r.Headers != nil {
			se.retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"))
		}
	}
	return se
}

// retryable reports whether the failure is transient: network errors,
// 5xx, and 429 retry; other 4xx and context errors do not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusTooManyRequests:
			return true
		case se.code >= 500:
			return true
		case se.code >= 400:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return true
}

// backoff returns the jittered wait before the given retry attempt. A 429
// with a Retry-After hint overrides the exponential schedule.
func (f *Fetcher) backoff(attempt int, lastErr error) time.Duration {
	var se *statusError
	if errors.As(lastErr, &se) && se.retryAfter > 0 {
		return se.retryAfter
	}
	delay := float64(f.cfg.BackoffBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(f.cfg.BackoffMax) {
		delay = float64(f.cfg.BackoffMax)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
