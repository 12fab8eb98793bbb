package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
)

// ConversationStore — история сообщений диалога.
//
// История хранится полностью, включая assistant tool calls и tool
// результаты: при replay в вендора последовательность должна остаться
// wire-валидной (tool message следует за своим tool call).
type ConversationStore interface {
	// History возвращает сообщения диалога в хронологическом порядке.
	History(ctx context.Context, conversationID string) ([]llm.Message, error)

	// Append дописывает сообщения в конец истории.
	Append(ctx context.Context, conversationID string, messages ...llm.Message) error
}

// SQLiteConversations реализует ConversationStore поверх SQLite.
type SQLiteConversations struct {
	db *sql.DB
}

// NewSQLiteConversations создает store и таблицу сообщений.
func NewSQLiteConversations(db *sql.DB) (*SQLiteConversations, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS conversation_messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		tool_call_id    TEXT NOT NULL DEFAULT '',
		tool_calls      TEXT NOT NULL DEFAULT '',
		images          TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_messages
		ON conversation_messages(conversation_id, id);`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create conversation_messages table: %w", err)
	}

	return &SQLiteConversations{db: db}, nil
}

// History реализует ConversationStore.
func (s *SQLiteConversations) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_call_id, tool_calls, images
		 FROM conversation_messages
		 WHERE conversation_id = ?
		 ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var role, content, toolCallID, toolCallsJSON, imagesJSON string
		if err := rows.Scan(&role, &content, &toolCallID, &toolCallsJSON, &imagesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		msg := llm.Message{
			Role:       llm.Role(role),
			Content:    content,
			ToolCallID: toolCallID,
		}
		if toolCallsJSON != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		if imagesJSON != "" {
			if err := json.Unmarshal([]byte(imagesJSON), &msg.Images); err != nil {
				return nil, fmt.Errorf("failed to decode images: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Append реализует ConversationStore.
func (s *SQLiteConversations) Append(ctx context.Context, conversationID string, messages ...llm.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversation_messages
			(conversation_id, role, content, tool_call_id, tool_calls, images, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, msg := range messages {
		toolCallsJSON := ""
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCallsJSON = string(data)
		}
		imagesJSON := ""
		if len(msg.Images) > 0 {
			data, err := json.Marshal(msg.Images)
			if err != nil {
				return fmt.Errorf("failed to encode images: %w", err)
			}
			imagesJSON = string(data)
		}

		if _, err := stmt.ExecContext(ctx,
			conversationID, string(msg.Role), msg.Content,
			msg.ToolCallID, toolCallsJSON, imagesJSON, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// MemoryConversations — in-process реализация для тестов и CLI.
type MemoryConversations struct {
	mu       sync.RWMutex
	messages map[string][]llm.Message
}

// NewMemoryConversations создает пустой in-memory store.
func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{messages: make(map[string][]llm.Message)}
}

// History реализует ConversationStore.
func (s *MemoryConversations) History(_ context.Context, conversationID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[conversationID]
	out := make([]llm.Message, len(history))
	copy(out, history)
	return out, nil
}

// Append реализует ConversationStore.
func (s *MemoryConversations) Append(_ context.Context, conversationID string, messages ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[conversationID] = append(s.messages[conversationID], messages...)
	return nil
}

var (
	_ ConversationStore = (*SQLiteConversations)(nil)
	_ ConversationStore = (*MemoryConversations)(nil)
)
