package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteLimiter — sliding window поверх общей SQLite базы.
//
// Атомарность check-and-increment обеспечивается транзакцией
// BEGIN IMMEDIATE: writer lock берётся до SELECT, конкурентный
// процесс ждёт, двойной проход через последний слот исключён.
type SQLiteLimiter struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// NewSQLiteLimiter создает limiter и таблицу событий.
func NewSQLiteLimiter(db *sql.DB, cfg Config) (*SQLiteLimiter, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS rate_limit_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL,
		function    TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rate_limit_key
		ON rate_limit_events(user_id, function, occurred_at);`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_events table: %w", err)
	}

	return &SQLiteLimiter{db: db, cfg: cfg, now: time.Now}, nil
}

// Allow реализует Limiter.
func (l *SQLiteLimiter) Allow(ctx context.Context, userID, function string) error {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window).UnixMilli()

	// BEGIN IMMEDIATE: берём writer lock сразу, чтобы SELECT и INSERT
	// были одной атомарной операцией относительно других процессов.
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rate limit tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_limit_events WHERE occurred_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune rate limit events: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limit_events
		 WHERE user_id = ? AND function = ? AND occurred_at >= ?`,
		userID, function, cutoff).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count rate limit events: %w", err)
	}

	if count >= l.cfg.MaxFor(function) {
		return ErrRateLimited
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_limit_events (user_id, function, occurred_at) VALUES (?, ?, ?)`,
		userID, function, now.UnixMilli()); err != nil {
		return fmt.Errorf("failed to record rate limit event: %w", err)
	}

	return tx.Commit()
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*SQLiteLimiter)(nil)
)
