// Package ratelimit — sliding window лимиты на пользовательские операции.
//
// Ключ лимита — пара (user, function): квота на отчёты не съедает
// квоту на чат. Проверка и инкремент выполняются одной атомарной
// операцией — два параллельных запроса не могут оба пройти через
// последний слот окна.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited возвращается когда окно исчерпано.
//
// Вызывающий код обязан превратить её в понятное пользователю
// сообщение, а не в общий "internal error".
var ErrRateLimited = errors.New("rate limit exceeded, try again later")

// Config — параметры окна и квоты.
type Config struct {
	Window      time.Duration  // Размер sliding window
	DefaultMax  int            // Квота для неперечисленных функций
	PerFunction map[string]int // Переопределения по имени функции
}

// MaxFor возвращает квоту для функции.
func (c Config) MaxFor(function string) int {
	if max, ok := c.PerFunction[function]; ok {
		return max
	}
	return c.DefaultMax
}

// Limiter — контракт check-and-increment.
type Limiter interface {
	// Allow атомарно проверяет квоту (user, function) и занимает слот.
	// Возвращает ErrRateLimited если окно исчерпано; слот при этом
	// НЕ занимается.
	Allow(ctx context.Context, userID, function string) error
}
