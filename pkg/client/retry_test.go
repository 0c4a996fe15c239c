package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetryConfig keeps test backoff waits in the low milliseconds.
func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_SuccessFirstTry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_RetryableExhausts(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return &APIError{StatusCode: 503, Class: ErrorClassServer}
	})

	if calls != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: 429, Class: ErrorClassRateLimit}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_FatalClassImmediate(t *testing.T) {
	calls := 0
	fatal := &APIError{StatusCode: 418, Class: ErrorClassClient, Body: "teapot"}
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return fatal
	})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error to surface unchanged, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Fatal error must not be reported as retry exhaustion")
	}
}

func TestRetryWithBackoff_PlainErrorImmediate(t *testing.T) {
	calls := 0
	plain := errors.New("broken invariant")
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		calls++
		return plain
	})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if !errors.Is(err, plain) {
		t.Errorf("Expected plain error to surface unchanged, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := retryWithBackoff(ctx, cfg, func() error {
		calls++
		return &APIError{StatusCode: 500, Class: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}
