package llm

import (
	"errors"
	"fmt"
)

// APIError — типизированная ошибка вендора с HTTP статусом.
//
// StatusCode используется для классификации retry/fallback:
// 429 — единственный статус, который запускает автоматический fallback
// (см. gateway). Все остальные non-2xx терминальны для вызова.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited проверяет что вендор ответил 429 Too Many Requests.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// AsAPIError извлекает *APIError из цепочки обёрток.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrNoChoices — вендор вернул 2xx но без вариантов ответа.
var ErrNoChoices = errors.New("no choices in response")
