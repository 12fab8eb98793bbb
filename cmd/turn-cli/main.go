// turn-cli — одноразовый ход диалога из командной строки.
//
// Удобен для скриптов и отладки без TUI:
//   go run cmd/turn-cli/main.go -agent sales -text "найди клиента Иванов"
//
// Если ход приостановился на подтверждении, утилита печатает
// pending action и ждет y/n на stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk-ai/pkg/app"
	"github.com/opsdesk/opsdesk-ai/pkg/orchestrator"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	agentID := flag.String("agent", "sales", "ID агента")
	userID := flag.String("user", "operator", "ID пользователя")
	conversationID := flag.String("conversation", "", "ID диалога (пусто = новый)")
	text := flag.String("text", "", "текст сообщения")
	asJSON := flag.Bool("json", false, "печатать результат как JSON")
	flag.Parse()

	if *text == "" {
		log.Fatal("Usage: turn-cli -text \"сообщение\" [-agent sales]")
	}

	components, err := app.Build(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to build components: %v", err)
	}
	defer components.Close()

	convID := *conversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	out, err := components.Orchestrator.Run(ctx, orchestrator.TurnInput{
		ConversationID: convID,
		UserID:         *userID,
		AgentID:        *agentID,
		Text:           *text,
	})
	if err != nil {
		log.Fatalf("Turn failed: %v", err)
	}

	// Интерактивное подтверждение gated действия
	if out.Suspended() {
		fmt.Printf("⚠ Требуется подтверждение действия:\n")
		fmt.Printf("  Инструмент: %s\n", out.Pending.ToolName)
		fmt.Printf("  Аргументы:  %s\n", out.Pending.Args)
		fmt.Printf("Выполнить? [y/n]: ")

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		approve := strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")

		out, err = components.Orchestrator.Resume(ctx, orchestrator.ResumeInput{
			ConversationID: convID,
			UserID:         *userID,
			AgentID:        *agentID,
			ActionID:       out.Pending.ID,
			Approve:        approve,
		})
		if err != nil {
			log.Fatalf("Resume failed: %v", err)
		}
	}

	if *asJSON {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"conversation_id": convID,
			"reply":           out.Reply,
			"model":           out.Route.Model,
			"route_reason":    out.Route.Reason,
			"tools_invoked":   out.ToolsInvoked,
			"degraded":        out.Degraded,
			"qa_severity":     out.QA.Severity,
			"qa_flags":        out.QA.Flags,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("\n%s\n", out.Reply)
	fmt.Printf("\n[диалог: %s · модель: %s · маршрут: %s]\n", convID, out.Route.Model, out.Route.Reason)
}
