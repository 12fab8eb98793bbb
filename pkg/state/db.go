// Package state — локальное персистентное состояние runtime'а.
//
// Одна SQLite база на процессный узел: история диалогов, pending
// actions и события rate limiter'а живут в одном файле и делят
// одно соединение.
package state

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open открывает (или создает) SQLite базу по пути path.
//
// DSN включает:
//   - WAL: параллельное чтение при записи
//   - busy_timeout: ожидание вместо SQLITE_BUSY при конкуренции
//   - txlock=immediate: транзакции берут writer lock сразу,
//     что нужно атомарному check-and-increment rate limiter'а
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite — однописательная база; ограничиваем пул чтобы
	// не плодить соединения, дерущиеся за writer lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}
