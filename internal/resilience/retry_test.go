package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/audit-engine/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_DefaultConfigMakesOneAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("overloaded"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(4), func(_ context.Context) error {
		calls++
		return errors.New("invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(10)
	cfg.InitialBackoff = 20 * time.Millisecond

	var calls int
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 504)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("bad gateway"), 502)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
}

func TestDo_OnRetryCalledPerRetry(t *testing.T) {
	cfg := fastRetry(3)
	var seen []int
	cfg.OnRetry = func(attempt int, _ error) { seen = append(seen, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 500)
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("unexpected retry attempts: %v", seen)
	}
}

func TestBackoff_CappedAtMax(t *testing.T) {
	cfg := withDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
	})
	if d := backoff(5, cfg); d > 2*time.Second {
		t.Errorf("expected delay capped at 2s, got %s", d)
	}
}

func TestRetryFromConfig_KeepsDefaults(t *testing.T) {
	cfg := RetryFromConfig(config.RetryConfig{})
	if cfg.MaxAttempts != 1 {
		t.Errorf("expected 1 attempt by default, got %d", cfg.MaxAttempts)
	}
	cfg = RetryFromConfig(config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 100, MaxBackoffMs: 1000})
	if cfg.MaxAttempts != 3 || cfg.InitialBackoff != 100*time.Millisecond || cfg.MaxBackoff != time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
