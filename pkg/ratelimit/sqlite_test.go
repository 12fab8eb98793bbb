package ratelimit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/state"
)

func testSQLiteLimiter(t *testing.T, cfg Config) *SQLiteLimiter {
	t.Helper()

	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	l, err := NewSQLiteLimiter(db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestSQLiteLimiterWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := testSQLiteLimiter(t, Config{Window: time.Minute, DefaultMax: 3})
	l.now = func() time.Time { return now }

	ctx := context.Background()

	t.Run("N calls pass, N+1 rejected", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := l.Allow(ctx, "u1", "chat"); err != nil {
				t.Fatalf("call %d unexpectedly rejected: %v", i+1, err)
			}
		}
		if err := l.Allow(ctx, "u1", "chat"); !errors.Is(err, ErrRateLimited) {
			t.Errorf("4th call error = %v, want ErrRateLimited", err)
		}
	})

	t.Run("rejection does not consume a slot", func(t *testing.T) {
		// Отказ идёт через rollback: событие не записано
		if err := l.Allow(ctx, "u1", "chat"); !errors.Is(err, ErrRateLimited) {
			t.Errorf("still expected rejection, got %v", err)
		}
	})

	t.Run("other key unaffected", func(t *testing.T) {
		if err := l.Allow(ctx, "u1", "report"); err != nil {
			t.Errorf("different function must have its own window: %v", err)
		}
		if err := l.Allow(ctx, "u2", "chat"); err != nil {
			t.Errorf("different user must have its own window: %v", err)
		}
	})

	t.Run("window elapses and resets", func(t *testing.T) {
		now = now.Add(61 * time.Second)
		if err := l.Allow(ctx, "u1", "chat"); err != nil {
			t.Errorf("call after window elapsed rejected: %v", err)
		}
	})
}

func TestSQLiteLimiterConcurrency(t *testing.T) {
	l := testSQLiteLimiter(t, Config{Window: time.Minute, DefaultMax: 50})
	ctx := context.Background()

	done := make(chan error, 100)
	for i := 0; i < 100; i++ {
		go func() {
			done <- l.Allow(ctx, "u1", "chat")
		}()
	}

	allowed := 0
	for i := 0; i < 100; i++ {
		if err := <-done; err == nil {
			allowed++
		}
	}

	// Транзакция с writer lock: check-and-increment атомарен,
	// через последний слот не проходят двое
	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
