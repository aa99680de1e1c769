package worker

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// RetryPolicy decides when a failed calendar sync task runs again.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of each delay taken off at random, 0..1.
	Jitter float64

	random func() float64
}

// NextDelay returns the wait before attempt (1-based) after cause. A
// Retry-After from the Calendar API wins over a shorter backoff.
func (r RetryPolicy) NextDelay(attempt int, cause error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if r.MaxDelay > 0 && (d > r.MaxDelay || d <= 0) {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}

	if j := math.Min(r.Jitter, 1); j > 0 {
		random := r.random
		if random == nil {
			random = rand.Float64
		}
		d -= time.Duration(float64(d) * j * random())
	}

	if after := retryAfter(cause); after > d {
		d = after
	}
	return d
}

// Permanent reports whether the Calendar API rejected the task for good.
// Rate limits (403 usageLimits, 429) and server errors stay retryable.
func (r RetryPolicy) Permanent(cause error) bool {
	var gerr *googleapi.Error
	if !errors.As(cause, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusGone:
		return true
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return false
			}
		}
		return true
	}
	return false
}

func retryAfter(cause error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(cause, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, err := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
