package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDoSucceedsAfterRetries(t *testing.T) {
	p := Fixed(time.Millisecond, 5, 0)

	calls := 0
	err := p.Do(context.Background(), "flaky op", func(attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Fixed(0, 4, 0)

	calls := 0
	err := p.Do(context.Background(), "never", func(int) error {
		calls++
		return errFlaky
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "never", te.Op)
	assert.Equal(t, 4, te.Attempts)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	p := Fixed(time.Millisecond, 10, 0)

	calls := 0
	err := p.Do(context.Background(), "permanent", func(int) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errFlaky, err)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoKeepsContextAroundPermanent(t *testing.T) {
	p := Fixed(time.Millisecond, 10, 0)

	calls := 0
	err := p.Do(context.Background(), "wrapped", func(int) error {
		calls++
		return fmt.Errorf("node i-1: %w", Permanent(errFlaky))
	})

	assert.Equal(t, 1, calls)
	require.Error(t, err)
	assert.Equal(t, "node i-1: "+errFlaky.Error(), err.Error())
	assert.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Interval: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "cancelled", func(int) error { return errFlaky })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoDeadlineWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	p := Policy{Interval: time.Second, Deadline: 5 * time.Second, Clock: mock}

	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- p.Do(context.Background(), "deadline", func(int) error {
			calls++
			return errFlaky
		})
	}()

	for {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrExhausted)
			// at most one attempt per simulated second up to the deadline
			assert.GreaterOrEqual(t, calls, 1)
			assert.LessOrEqual(t, calls, 6)
			return
		default:
			time.Sleep(time.Millisecond)
			mock.Add(time.Second)
		}
	}
}
