// opsdesk — интерактивный TUI оператора.
//
// Использование:
//   go run cmd/opsdesk/main.go [config.yaml]
//
// Переменные окружения:
//   OPENAI_API_KEY   - API ключ OpenAI
//   ZAI_API_KEY      - API ключ Zai
//   BACKEND_API_KEY  - API ключ бизнес-бекенда
package main

import (
	"flag"
	"log"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk-ai/pkg/app"
	"github.com/opsdesk/opsdesk-ai/pkg/tui"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	agentID := flag.String("agent", "sales", "ID агента из конфигурации")
	userID := flag.String("user", "operator", "ID действующего пользователя")
	conversationID := flag.String("conversation", "", "ID диалога (пусто = новый)")
	flag.Parse()

	// 1. Собираем все компоненты
	components, err := app.Build(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to build components: %v", err)
	}
	defer components.Close()

	// 2. Проверяем что агент существует
	if _, err := components.Agents.Get(*agentID); err != nil {
		log.Fatalf("Unknown agent '%s'. Available: %v", *agentID, components.Agents.IDs())
	}

	convID := *conversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	// 3. Запускаем TUI
	session := tui.Session{
		ConversationID: convID,
		UserID:         *userID,
		AgentID:        *agentID,
	}
	if err := tui.Run(components.Orchestrator, session); err != nil {
		log.Fatalf("TUI error: %v", err)
	}
}
