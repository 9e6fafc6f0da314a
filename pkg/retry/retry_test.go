package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

type codedError struct{ fatal bool }

func (e *codedError) Error() string { return "coded" }
func (e *codedError) IsFatal() bool { return e.fatal }

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", attempts: 3, failures: 0, err: errors.New("x"), wantCalls: 1},
		{name: "recovers", attempts: 3, failures: 2, err: errors.New("x"), wantCalls: 3},
		{name: "exhausted", attempts: 3, failures: 5, err: errors.New("x"), wantCalls: 3, wantErr: true},
		{name: "single attempt", attempts: 1, failures: 5, err: errors.New("x"), wantCalls: 1, wantErr: true},
		{name: "zero attempts means one", attempts: 0, failures: 5, err: errors.New("x"), wantCalls: 1, wantErr: true},
		{name: "fatal stops", attempts: 5, failures: 5, err: Fatal(errors.New("x")), wantCalls: 1, wantErr: true},
		{name: "non-fatal coded retries", attempts: 3, failures: 1, err: &codedError{fatal: false}, wantCalls: 2},
		{name: "fatal coded stops", attempts: 3, failures: 3, err: &codedError{fatal: true}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(tt.attempts), func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, nil)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_FatalKeepsCause(t *testing.T) {
	cause := errors.New("bad credentials")
	err := Do(context.Background(), fastPolicy(3), func() error { return Fatal(cause) }, nil)
	assert.ErrorIs(t, err, cause)
}

func TestDo_ReportsDelayActuallyUsed(t *testing.T) {
	var attempts []int
	var delays []time.Duration
	err := Do(context.Background(), fastPolicy(3), func() error {
		return errors.New("down")
	}, func(attempt int, err error, next time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, next)
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
	for _, d := range delays {
		assert.Greater(t, d, time.Duration(0))
		// MaxInterval plus the default 50% jitter.
		assert.LessOrEqual(t, d, 3*time.Millisecond)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 1}, func() error {
		calls++
		return errors.New("x")
	}, nil)

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestConnectPolicy(t *testing.T) {
	p := ConnectPolicy(config.RetryConfig{MaxAttempts: 0, InitialInterval: time.Second, Multiplier: 2})
	assert.Equal(t, 1, p.MaxAttempts)

	p = ConnectPolicy(config.RetryConfig{MaxAttempts: 4, MaxElapsedTime: 30 * time.Second})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 30*time.Second, p.MaxElapsedTime)
}

func TestPublishPolicy(t *testing.T) {
	assert.Equal(t, 2, PublishPolicy().MaxAttempts)
}
