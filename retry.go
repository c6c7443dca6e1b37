package relaymq

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/relaymq/relaymq/internal/log"
)

// RetryPolicy is a pure configuration object describing how retryable
// operations back off and when they should give up, per spec.md §4.8.
type RetryPolicy struct {
	Enabled           bool
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// RetryableErrors classifies which failures are worth retrying. Each
	// entry is tried first as a regular expression and, failing to
	// compile, as a plain substring match against err.Error().
	RetryableErrors []string

	log log.Logger
}

// DefaultRetryPolicy returns a conservative, disabled-by-default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:           false,
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
		log:               log.Discard(),
	}
}

// GetDelay returns the backoff duration before the given attempt number
// (0-indexed), capped at MaxDelay.
func (rp RetryPolicy) GetDelay(attempt int) time.Duration {
	mult := rp.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(rp.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= mult
	}
	d := time.Duration(delay)
	if rp.MaxDelay > 0 && d > rp.MaxDelay {
		d = rp.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a failed attempt should be retried given
// the error encountered and the attempt number already made (0-indexed).
func (rp RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if !rp.Enabled || err == nil {
		return false
	}
	if rp.MaxAttempts > 0 && attempt >= rp.MaxAttempts {
		return false
	}
	if len(rp.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range rp.RetryableErrors {
		if re, compErr := regexp.Compile(pattern); compErr == nil {
			if re.MatchString(msg) {
				return true
			}
			continue
		}
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Execute calls fn, retrying according to the policy until it succeeds,
// the context is cancelled, or attempts are exhausted; the last error is
// returned on exhaustion.
func (rp RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	if rp.log == nil {
		rp.log = log.Discard()
	}
	var lastErr error
	attempt := 0
	for {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				rp.log.Info("operation succeeded after retry", log.Fields{"attempts": attempt + 1})
			}
			return nil
		}
		if !rp.ShouldRetry(lastErr, attempt) {
			return lastErr
		}
		delay := rp.GetDelay(attempt)
		rp.log.Warning("retrying operation", log.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		})
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		attempt++
	}
}
