package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter — in-process sliding window на timestamps.
//
// Подходит для одного инстанса (CLI, тесты). Для нескольких
// процессов используйте SQLiteLimiter поверх общей базы.
type MemoryLimiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string][]time.Time // "userID|function" → timestamps вызовов

	// now injectable для тестов
	now func() time.Time
}

// NewMemoryLimiter создает in-process limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow реализует Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, userID, function string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + "|" + function
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	// Выкидываем события старше окна
	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.cfg.MaxFor(function) {
		l.windows[key] = kept
		return ErrRateLimited
	}

	l.windows[key] = append(kept, now)
	return nil
}
