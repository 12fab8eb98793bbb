// llm-ping — утилита для проверки доступности AI вендоров.
//
// Использование:
//   go run cmd/llm-ping/main.go [config.yaml]
//
// Прогоняет короткий запрос через каждый настроенный вендор
// и печатает статус. Полезно для диагностики:
//   - проверка валидности API ключей (401)
//   - проверка endpoint'ов (base_url)
//   - определение сетевых проблем
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/factory"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

func main() {
	// 1. Загружаем конфигурацию
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", cfgPath, err)
	}

	if err := utils.InitLogger(); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer utils.Close()

	// 2. Пингуем каждую настроенную модель
	failed := 0
	for alias, def := range cfg.Models.Definitions {
		creds, ok := cfg.GetProvider(def.Provider)
		if !ok {
			fmt.Printf("❌ %s: provider '%s' not configured\n", alias, def.Provider)
			failed++
			continue
		}

		provider, err := factory.NewProvider(def.Provider, creds, def.ModelName)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", alias, err)
			failed++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		start := time.Now()
		msg, err := provider.Generate(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: "ping"},
		}, llm.WithMaxTokens(8))
		cancel()

		if err != nil {
			fmt.Printf("❌ %s (%s/%s): %v\n", alias, def.Provider, def.ModelName, err)
			failed++
			continue
		}

		fmt.Printf("✅ %s (%s/%s): %dms, %d chars\n",
			alias, def.Provider, def.ModelName,
			time.Since(start).Milliseconds(), len(msg.Content))
	}

	if failed > 0 {
		os.Exit(1)
	}
}
