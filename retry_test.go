package relaymq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyGetDelay(t *testing.T) {
	rp := RetryPolicy{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}
	assert.Equal(t, 100*time.Millisecond, rp.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, rp.GetDelay(1))
	assert.Equal(t, 400*time.Millisecond, rp.GetDelay(2))
	assert.Equal(t, time.Second, rp.GetDelay(10))
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	rp := RetryPolicy{Enabled: true, MaxAttempts: 3}
	assert.True(t, rp.ShouldRetry(errors.New("boom"), 0))
	assert.False(t, rp.ShouldRetry(errors.New("boom"), 3))
	assert.False(t, rp.ShouldRetry(nil, 0))

	disabled := DefaultRetryPolicy()
	assert.False(t, disabled.ShouldRetry(errors.New("boom"), 0))

	filtered := RetryPolicy{Enabled: true, MaxAttempts: 5, RetryableErrors: []string{"timeout"}}
	assert.True(t, filtered.ShouldRetry(errors.New("connection timeout"), 0))
	assert.False(t, filtered.ShouldRetry(errors.New("bad request"), 0))
}

func TestRetryPolicyExecuteSucceedsAfterFailures(t *testing.T) {
	rp := RetryPolicy{
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	attempts := 0
	err := rp.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyExecuteExhausted(t *testing.T) {
	rp := RetryPolicy{
		Enabled:           true,
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	attempts := 0
	err := rp.Execute(context.Background(), func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyExecuteRespectsContext(t *testing.T) {
	rp := RetryPolicy{
		Enabled:           true,
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          time.Second,
		BackoffMultiplier: 1,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rp.Execute(ctx, func() error { return errors.New("nope") })
	require.Error(t, err)
}
