// Package app предоставляет переиспользуемые компоненты для инициализации
// runtime'а в разных контекстах (TUI, CLI утилиты, тесты).
//
// Одна точка сборки: конфигурация → хранилище → инструменты → gate →
// limiter → gateway → QA → orchestrator. Все потребители (TUI и CLI)
// делят этот код вместо дублирования инициализации.
package app

import (
	"database/sql"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/agent"
	"github.com/opsdesk/opsdesk-ai/pkg/bizapi"
	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/orchestrator"
	"github.com/opsdesk/opsdesk-ai/pkg/qa"
	"github.com/opsdesk/opsdesk-ai/pkg/ratelimit"
	"github.com/opsdesk/opsdesk-ai/pkg/s3storage"
	"github.com/opsdesk/opsdesk-ai/pkg/selector"
	"github.com/opsdesk/opsdesk-ai/pkg/state"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
	"github.com/opsdesk/opsdesk-ai/pkg/tools/std"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Components содержит все собранные компоненты приложения.
type Components struct {
	Config        *config.AppConfig
	Agents        *agent.Registry
	Gateway       *gateway.Gateway
	Registry      *tools.Registry
	Backend       *bizapi.Client
	Attachments   *s3storage.Client // nil если S3 не сконфигурирован
	Orchestrator  *orchestrator.Orchestrator
	Conversations state.ConversationStore

	db *sql.DB
}

// Close освобождает ресурсы (база, лог).
func (c *Components) Close() {
	if c.db != nil {
		c.db.Close()
	}
	utils.Close()
}

// Build собирает все компоненты из файла конфигурации.
func Build(cfgPath string) (*Components, error) {
	if err := utils.InitLogger(); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	// 1. Конфигурация
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	// 2. Профили агентов
	agents, err := agent.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	// 3. Локальное состояние: диалоги, pending actions, rate limits
	db, err := state.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	conversations, err := state.NewSQLiteConversations(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	actionStore, err := confirm.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	limiter, err := ratelimit.NewSQLiteLimiter(db, ratelimit.Config{
		Window:      cfg.RateLimits.Window,
		DefaultMax:  cfg.RateLimits.Default,
		PerFunction: cfg.RateLimits.PerFunction,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	// 4. Бизнес-бекенд и инструменты
	backend, err := bizapi.NewFromConfig(cfg.Backend)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		std.NewSalesReportTool(backend),
		std.NewFindCustomerTool(backend),
		std.NewMachineStatusTool(backend),
		std.NewSendQuoteTool(backend),
	} {
		if err := registry.Register(tool); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}

	executor := tools.NewExecutor(registry)
	gate := confirm.NewGate(cfg.Gating.GatedTools, actionStore, cfg.Gating.TTL)

	// 5. Маршрутизация и gateway
	policy, err := selector.NewPolicy(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	gw := gateway.New(cfg)

	// 6. QA reviewer (если сконфигурирован)
	opts := []orchestrator.Option{}
	if cfg.QA.Model != "" {
		qaModel, _ := cfg.GetModel(cfg.QA.Model)
		reviewer := qa.NewReviewer(gw, qa.Config{
			HighRiskAgents:  cfg.HighRiskAgents(),
			Provider:        qaModel.Provider,
			Model:           qaModel.ModelName,
			MinReplyLen:     cfg.QA.MinReplyLen,
			MaxReplyChars:   cfg.QA.MaxReplyChars,
			MaxContextChars: cfg.QA.MaxContextChars,
		})
		opts = append(opts, orchestrator.WithReviewer(reviewer))
	}

	orch := orchestrator.New(agents, policy, gw, registry, executor, gate, limiter, conversations, opts...)

	// 7. Вложения (опционально)
	var attachments *s3storage.Client
	if cfg.S3.Endpoint != "" {
		attachments, err = s3storage.New(cfg.S3)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to init attachment storage: %w", err)
		}
	}

	return &Components{
		Config:        cfg,
		Agents:        agents,
		Gateway:       gw,
		Registry:      registry,
		Backend:       backend,
		Attachments:   attachments,
		Orchestrator:  orch,
		Conversations: conversations,
		db:            db,
	}, nil
}
