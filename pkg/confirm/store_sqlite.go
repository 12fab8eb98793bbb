package confirm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore реализует Store поверх общей SQLite базы.
//
// Инвариант "не более одного открытого действия на диалог"
// закреплён на уровне схемы: partial unique index по
// conversation_id среди строк со статусом created. Гонка двух
// конкурентных Create разрешается базой, а не кодом.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore создает store и таблицу pending actions.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS pending_actions (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		tool_name       TEXT NOT NULL,
		args            TEXT NOT NULL,
		tool_call_id    TEXT NOT NULL,
		summary         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		expires_at      INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_action_per_conversation
		ON pending_actions(conversation_id) WHERE status = 'created';`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create pending_actions table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create реализует Store.
func (s *SQLiteStore) Create(ctx context.Context, action PendingAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_actions
			(id, conversation_id, user_id, tool_name, args, tool_call_id, summary, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.ConversationID, action.UserID,
		action.ToolName, action.Args, action.ToolCallID, action.Summary,
		string(action.Status),
		action.CreatedAt.UnixMilli(), action.ExpiresAt.UnixMilli())
	if err != nil {
		// Нарушение partial unique index = уже есть открытое действие
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrActionPending
		}
		return fmt.Errorf("failed to insert pending action: %w", err)
	}
	return nil
}

// Open реализует Store.
func (s *SQLiteStore) Open(ctx context.Context, conversationID string) (PendingAction, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, user_id, tool_name, args, tool_call_id, summary, status, created_at, expires_at
		 FROM pending_actions
		 WHERE conversation_id = ? AND status = 'created'`, conversationID)

	var a PendingAction
	var status string
	var createdAt, expiresAt int64
	err := row.Scan(&a.ID, &a.ConversationID, &a.UserID, &a.ToolName,
		&a.Args, &a.ToolCallID, &a.Summary, &status, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return PendingAction{}, false, nil
	}
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("failed to query open action: %w", err)
	}

	a.Status = Status(status)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.ExpiresAt = time.UnixMilli(expiresAt)
	return a, true, nil
}

// Resolve реализует Store.
func (s *SQLiteStore) Resolve(ctx context.Context, actionID string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ? WHERE id = ? AND status = 'created'`,
		string(status), actionID)
	if err != nil {
		return fmt.Errorf("failed to resolve pending action: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolve result: %w", err)
	}
	if affected == 0 {
		return ErrActionNotFound
	}
	return nil
}

// ExpireStale реализует Store.
func (s *SQLiteStore) ExpireStale(ctx context.Context, conversationID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = 'expired'
		 WHERE conversation_id = ? AND status = 'created' AND expires_at < ?`,
		conversationID, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale actions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired actions: %w", err)
	}
	return int(affected), nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
