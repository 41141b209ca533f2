package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
		Name:       "test",
	}
}

func TestWithRetryAttempts(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		maxRetry  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, 3, 1, false},
		{"success after retries", 2, 3, 3, false},
		{"gives up after max retries", 10, 2, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := WithRetry(context.Background(), fastConfig(tt.maxRetry), func(ctx context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errors.New("temporary failure")
				}
				return "ok", nil
			})

			if tt.wantErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantErr && (err != nil || result != "ok") {
				t.Errorf("Expected ok, got %q, %v", result, err)
			}
			if calls != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad token")
	config := fastConfig(5)
	config.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	_, err := WithRetry(context.Background(), config, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWithRetryInfiniteUntilCancelled(t *testing.T) {
	config := fastConfig(0)
	config.InfiniteRetry = true

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, config, func(ctx context.Context) (string, error) {
		calls++
		if calls == 7 {
			cancel()
		}
		return "", errors.New("still down")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 7 {
		t.Errorf("Expected retries past MaxRetries until cancel, got %d calls", calls)
	}
}

func TestWithRetryContextTimeout(t *testing.T) {
	config := Config{
		MaxRetries: 10,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Timeout:    time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := WithRetry(ctx, config, func(ctx context.Context) (string, error) {
		return "", errors.New("failure")
	})
	duration := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if duration > 150*time.Millisecond {
		t.Errorf("Expected operation to time out around 100ms, took %v", duration)
	}
}

func TestWithRetryZeroTimeoutKeepsParentContext(t *testing.T) {
	config := fastConfig(0)
	config.Timeout = 0

	_, err := WithRetry(context.Background(), config, func(ctx context.Context) (bool, error) {
		if _, ok := ctx.Deadline(); ok {
			return false, errors.New("unexpected deadline")
		}
		return true, nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestDo(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("once")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	baseDelay := 10 * time.Millisecond
	maxDelay := 100 * time.Millisecond

	tests := []struct {
		attempt     int
		minDelay    time.Duration
		maxExpected time.Duration
	}{
		{0, 5 * time.Millisecond, 15 * time.Millisecond},
		{1, 10 * time.Millisecond, 30 * time.Millisecond},
		{2, 20 * time.Millisecond, 60 * time.Millisecond},
		{3, 40 * time.Millisecond, 100 * time.Millisecond},
		{5, 50 * time.Millisecond, 100 * time.Millisecond},
		{100, 50 * time.Millisecond, 100 * time.Millisecond},
	}

	for _, test := range tests {
		for i := 0; i < 10; i++ {
			result := calculateBackoffDelay(test.attempt, baseDelay, maxDelay)
			if result < test.minDelay || result > test.maxExpected {
				t.Errorf("calculateBackoffDelay(%d) = %v, expected between %v and %v",
					test.attempt, result, test.minDelay, test.maxExpected)
			}
		}
	}
}
