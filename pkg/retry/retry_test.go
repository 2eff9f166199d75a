package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Do_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	p := Policy{
		MaxAttempts: 4,
		Delay:       time.Millisecond,
		OnRetry:     func(attempt int, err error) { retried = append(retried, attempt) },
	}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestPolicy_Do_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("server closed the connection")

	err := Fixed(4, time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestPolicy_Do_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Fixed(4, time.Millisecond).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad password"))
	})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Fixed(10, time.Hour).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Next(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		in     time.Duration
		want   time.Duration
	}{
		{"fixed", Fixed(4, time.Second), time.Second, time.Second},
		{"doubling", Policy{Multiplier: 2}, time.Second, 2 * time.Second},
		{"capped", Policy{Multiplier: 2, MaxDelay: 3 * time.Second}, 2 * time.Second, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.next(tt.in))
		})
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), Fixed(3, time.Millisecond), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("reset by peer")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
}
