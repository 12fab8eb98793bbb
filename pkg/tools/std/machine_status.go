package std

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/bizapi"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
)

// MachineStatusTool — смена статуса вендинговой точки.
//
// Мутирующий инструмент: попадает в gated_tools конфигурации
// и выполняется только после подтверждения пользователя.
type MachineStatusTool struct {
	client *bizapi.Client
}

// NewMachineStatusTool создает инструмент смены статуса точки.
func NewMachineStatusTool(c *bizapi.Client) *MachineStatusTool {
	return &MachineStatusTool{client: c}
}

// Definition возвращает определение инструмента для function calling.
func (t *MachineStatusTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "update_machine_status",
		Description: "Перевести вендинговую точку в новый статус (online, offline, maintenance, retired)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"machine_id": map[string]interface{}{
					"type":        "string",
					"description": "ID точки",
				},
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"online", "offline", "maintenance", "retired"},
					"description": "Новый статус точки",
				},
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Причина смены статуса",
				},
			},
			"required": []string{"machine_id", "status"},
		},
	}
}

// Execute выполняет инструмент согласно контракту "Raw In, String Out".
//
// Проверка scope: мутация без действующего пользователя запрещена.
func (t *MachineStatusTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	if tools.ScopeFrom(ctx).UserID == "" {
		return "", fmt.Errorf("machine status update requires an acting user")
	}

	var args struct {
		MachineID string `json:"machine_id"`
		Status    string `json:"status"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	machine, err := t.client.UpdateMachineStatus(ctx, args.MachineID, args.Status, args.Reason)
	if err != nil {
		return "", fmt.Errorf("failed to update machine status (%s): %w",
			t.client.ClassifyError(err).HumanMessage(), err)
	}

	data, err := json.Marshal(machine)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
