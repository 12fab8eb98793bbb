// Package std содержит стандартные инструменты OpsDesk.
//
// Каждый инструмент — тонкая обертка над pkg/bizapi SDK:
// распарсить аргументы, вызвать метод клиента, сериализовать ответ.
// Бизнес-логика живет в SDK, здесь только адаптация под
// function calling контракт.
package std

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/bizapi"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
)

// SalesReportTool — отчет продаж за период. Read-only, не требует
// подтверждения.
type SalesReportTool struct {
	client *bizapi.Client
}

// NewSalesReportTool создает инструмент отчета продаж.
func NewSalesReportTool(c *bizapi.Client) *SalesReportTool {
	return &SalesReportTool{client: c}
}

// Definition возвращает определение инструмента для function calling.
func (t *SalesReportTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "get_sales_report",
		Description: "Получить отчет продаж по вендинговым точкам за период",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"date_from": map[string]interface{}{
					"type":        "string",
					"description": "Начало периода в формате YYYY-MM-DD",
				},
				"date_to": map[string]interface{}{
					"type":        "string",
					"description": "Конец периода в формате YYYY-MM-DD",
				},
				"machine_id": map[string]interface{}{
					"type":        "string",
					"description": "ID точки; пусто = все точки",
				},
			},
			"required": []string{"date_from", "date_to"},
		},
	}
}

// Execute выполняет инструмент согласно контракту "Raw In, String Out".
func (t *SalesReportTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args struct {
		DateFrom  string `json:"date_from"`
		DateTo    string `json:"date_to"`
		MachineID string `json:"machine_id"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	report, err := t.client.GetSalesReport(ctx, args.DateFrom, args.DateTo, args.MachineID)
	if err != nil {
		return "", fmt.Errorf("failed to get sales report (%s): %w",
			t.client.ClassifyError(err).HumanMessage(), err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
