package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(attempts int, base, max, jitter time.Duration) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	p := &Policy{
		MaxAttempts: attempts,
		BaseDelay:   base,
		MaxDelay:    max,
		Jitter:      jitter,
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func TestPolicy_Delay(t *testing.T) {
	p := &Policy{BaseDelay: 400 * time.Millisecond, MaxDelay: 4 * time.Second}

	assert.Equal(t, 400*time.Millisecond, p.Delay(1))
	assert.Equal(t, 800*time.Millisecond, p.Delay(2))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(3))
	assert.Equal(t, 3200*time.Millisecond, p.Delay(4))
	assert.Equal(t, 4*time.Second, p.Delay(5))
	assert.Equal(t, 4*time.Second, p.Delay(40))
}

func TestRun_SucceedsAfterFailures(t *testing.T) {
	p, slept := recordingPolicy(3, 10*time.Millisecond, time.Second, 0)

	calls := 0
	value, err := Run(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestRun_ReturnsLastErrorWhenExhausted(t *testing.T) {
	p, slept := recordingPolicy(3, time.Millisecond, time.Second, 0)

	calls := 0
	_, err := Run(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("failure " + string(rune('0'+calls)))
	})

	require.Error(t, err)
	assert.Equal(t, "failure 3", err.Error())
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestRun_OnRetryObserver(t *testing.T) {
	p, _ := recordingPolicy(3, time.Millisecond, time.Second, 0)

	var attempts []int
	p = p.WithOnRetry(func(attempt int, err error) {
		attempts = append(attempts, attempt)
	})

	err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRun_JitterStaysInRange(t *testing.T) {
	p, slept := recordingPolicy(20, 100*time.Millisecond, 100*time.Millisecond, 50*time.Millisecond)

	_ = p.Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	})

	require.Len(t, *slept, 19)
	for _, d := range *slept {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("fail")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}

func TestRun_SingleAttempt(t *testing.T) {
	p, slept := recordingPolicy(0, time.Millisecond, time.Second, 0)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRun_RetryableStopsEarly(t *testing.T) {
	p, slept := recordingPolicy(5, time.Millisecond, time.Second, 0)
	fatal := errors.New("fatal")
	p = p.WithRetryable(func(err error) bool { return !errors.Is(err, fatal) })

	calls := 0
	_, err := Run(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}
