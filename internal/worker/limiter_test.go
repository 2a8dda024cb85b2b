package worker

import (
	"context"
	"testing"
	"time"
)

// passes reports whether a call to key would go through within 20ms.
func passes(l *Limiter, key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	return l.Wait(ctx, key) == nil
}

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1) // 100 rps, burst 1
	ctx := context.Background()

	url := "http://example.com/foo"
	if err := limiter.Wait(ctx, url); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different backend should also work
	if err := limiter.Wait(ctx, "http://google.com"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	// 1 rps, burst 1
	limiter := NewLimiter(1, 1)
	url := "http://example.com"

	if !passes(limiter, url) {
		t.Errorf("first call should pass")
	}

	// Token consumed; the next one is a second away
	if passes(limiter, url) {
		t.Errorf("expected second call to be held back")
	}

	// Other backends keep their own budget
	if !passes(limiter, "http://other.com") {
		t.Errorf("expected other backend to pass")
	}
}

func TestBackendKey(t *testing.T) {
	if got := BackendKey("http://example.com/foo"); got != "example.com" {
		t.Errorf("expected example.com, got %s", got)
	}
	if got := BackendKey("openai"); got != "openai" {
		t.Errorf("expected plain names to pass through, got %s", got)
	}
}

func TestLimiter_NilAndUnlimited(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background(), "openai"); err != nil {
		t.Errorf("nil limiter should not block: %v", err)
	}

	unlimited := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !passes(unlimited, "ollama") {
			t.Fatalf("expected unlimited limiter to pass call %d", i)
		}
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	_ = limiter.Wait(context.Background(), "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "slow"); err == nil {
		t.Error("expected wait to fail once the context deadline is too short")
	}
}
