package std

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/bizapi"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
)

// SendQuoteTool — отправка коммерческого предложения клиенту.
//
// Мутирующий инструмент (исходящее письмо): попадает в gated_tools
// и выполняется только после подтверждения пользователя.
type SendQuoteTool struct {
	client *bizapi.Client
}

// NewSendQuoteTool создает инструмент отправки предложений.
func NewSendQuoteTool(c *bizapi.Client) *SendQuoteTool {
	return &SendQuoteTool{client: c}
}

// Definition возвращает определение инструмента для function calling.
func (t *SendQuoteTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "send_quote",
		Description: "Отправить клиенту коммерческое предложение на указанную сумму",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"customer_id": map[string]interface{}{
					"type":        "string",
					"description": "ID клиента из CRM",
				},
				"amount": map[string]interface{}{
					"type":        "number",
					"description": "Сумма предложения",
				},
				"currency": map[string]interface{}{
					"type":        "string",
					"description": "Валюта (ISO 4217, например RUB)",
				},
				"comment": map[string]interface{}{
					"type":        "string",
					"description": "Комментарий для клиента",
				},
			},
			"required": []string{"customer_id", "amount", "currency"},
		},
	}
}

// Execute выполняет инструмент согласно контракту "Raw In, String Out".
func (t *SendQuoteTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	if tools.ScopeFrom(ctx).UserID == "" {
		return "", fmt.Errorf("sending a quote requires an acting user")
	}

	var args bizapi.QuoteRequest
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	if args.Amount <= 0 {
		return "", fmt.Errorf("quote amount must be positive")
	}

	result, err := t.client.SendQuote(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to send quote (%s): %w",
			t.client.ClassifyError(err).HumanMessage(), err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
