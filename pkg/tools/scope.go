package tools

import "context"

// Scope — действующая identity и tenant границы для handler'ов.
//
// Передаётся через context: инструменты выполняют durable side effects
// от имени конкретного пользователя в пределах его организации.
type Scope struct {
	UserID   string
	TenantID string
}

type scopeKey struct{}

// WithScope кладёт Scope в context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom извлекает Scope из context.
//
// Возвращает нулевой Scope если он не был установлен — handler'ы
// обязаны проверять UserID перед мутирующими операциями.
func ScopeFrom(ctx context.Context) Scope {
	if scope, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return scope
	}
	return Scope{}
}
