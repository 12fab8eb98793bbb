package std

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/bizapi"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
)

// FindCustomerTool — поиск клиентов в CRM. Read-only.
type FindCustomerTool struct {
	client *bizapi.Client
}

// NewFindCustomerTool создает инструмент поиска клиентов.
func NewFindCustomerTool(c *bizapi.Client) *FindCustomerTool {
	return &FindCustomerTool{client: c}
}

// Definition возвращает определение инструмента для function calling.
func (t *FindCustomerTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "find_customer",
		Description: "Найти клиента по имени, компании или email",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Поисковая строка: имя, компания или email",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Максимум результатов (по умолчанию 10)",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Execute выполняет инструмент согласно контракту "Raw In, String Out".
func (t *FindCustomerTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	customers, err := t.client.FindCustomers(ctx, args.Query, args.Limit)
	if err != nil {
		return "", fmt.Errorf("failed to search customers (%s): %w",
			t.client.ClassifyError(err).HumanMessage(), err)
	}

	if len(customers) == 0 {
		return `{"customers": [], "note": "ничего не найдено"}`, nil
	}

	data, err := json.Marshal(map[string]interface{}{"customers": customers})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
