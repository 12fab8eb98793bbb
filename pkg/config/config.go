package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig — корневая структура конфигурации.
// Зеркалит структуру config.yaml.
type AppConfig struct {
	Models          ModelsConfig        `yaml:"models"`
	Agents          map[string]AgentDef `yaml:"agents"`
	Routing         RoutingConfig       `yaml:"routing"`
	Gating          GatingConfig        `yaml:"gating"`
	QA              QAConfig            `yaml:"qa"`
	RateLimits      RateLimitConfig     `yaml:"rate_limits"`
	Storage         StorageConfig       `yaml:"storage"`
	S3              S3Config            `yaml:"s3"`
	Backend         BackendConfig       `yaml:"backend"`
	ImageProcessing ImageProcConfig     `yaml:"image_processing"`
	App             AppSpecific         `yaml:"app"`
}

// ModelsConfig — настройки AI вендоров и моделей.
//
// Providers — credentials и endpoint по тегу вендора ("openai", "zai").
// Definitions — словарь определений моделей по алиасу.
type ModelsConfig struct {
	DefaultChat string                 `yaml:"default_chat"` // Алиас модели по умолчанию
	Providers   map[string]ProviderDef `yaml:"providers"`
	Definitions map[string]ModelDef    `yaml:"definitions"`
}

// ProviderDef — credentials и endpoint одного вендора.
type ProviderDef struct {
	APIKey  string `yaml:"api_key"`  // Поддерживает ${VAR}
	BaseURL string `yaml:"base_url"` // Пусто = дефолтный endpoint вендора
}

// ModelDef — параметры конкретной модели.
type ModelDef struct {
	Provider    string        `yaml:"provider"`   // Тег вендора из providers
	ModelName   string        `yaml:"model_name"` // Реальное имя в API
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`  // Go умеет парсить строки вида "60s", "1m"
	Fallback    *FallbackDef  `yaml:"fallback"` // Опциональный fallback при 429
}

// FallbackDef — вендор/модель для одноразового retry при rate limit.
type FallbackDef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// AgentDef — описание AI-персоны (агента).
type AgentDef struct {
	Name             string `yaml:"name"`
	SystemPrompt     string `yaml:"system_prompt"` // Текст или путь к файлу в prompts_dir
	HighRisk         bool   `yaml:"high_risk"`     // Ответы проходят QA review
	VisionHeavy      bool   `yaml:"vision_heavy"`  // Документо-ориентированный агент
	ComplexReasoning bool   `yaml:"complex_reasoning"`
}

// RoutingConfig — соответствие уровней (tiers) алиасам моделей.
//
// Selector выбирает tier по предикатам; здесь tier резолвится в алиас.
type RoutingConfig struct {
	Multimodal string  `yaml:"multimodal"` // Vision-агенты с вложениями
	Heavy      string  `yaml:"heavy"`      // Отчёты, сводки
	Mid        string  `yaml:"mid"`        // Анализ, стратегия
	Fast       string  `yaml:"fast"`       // Дефолт
	// ReportTemperature — пониженная температура для отчётного tier'а.
	ReportTemperature float64 `yaml:"report_temperature"`
}

// GatingConfig — политика подтверждений для мутирующих инструментов.
type GatingConfig struct {
	GatedTools []string      `yaml:"gated_tools"`
	TTL        time.Duration `yaml:"ttl"` // Время жизни pending action до expired
}

// QAConfig — настройки вторичной safety-проверки ответов.
//
// Allow-list высокорисковых агентов выводится из Agents (high_risk: true).
// Пороги имеют захардкоженные дефолты и настраиваются здесь при необходимости.
type QAConfig struct {
	Model           string `yaml:"model"`             // Алиас модели-ревьюера
	MinReplyLen     int    `yaml:"min_reply_len"`     // Минимальная длина ответа для review (default 80)
	MaxReplyChars   int    `yaml:"max_reply_chars"`   // Усечение ответа в payload (default 1500)
	MaxContextChars int    `yaml:"max_context_chars"` // Усечение контекста в payload (default 600)
}

// RateLimitConfig — sliding window лимиты по (user, function).
type RateLimitConfig struct {
	Window      time.Duration  `yaml:"window"`  // Размер окна (default 1m)
	Default     int            `yaml:"default"` // Лимит если функция не перечислена
	PerFunction map[string]int `yaml:"per_function"`
}

// StorageConfig — локальное SQLite хранилище состояния.
type StorageConfig struct {
	Path string `yaml:"path"` // default "opsdesk.db"
}

// S3Config — объектное хранилище вложений.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// BackendConfig — бизнес-бекенд, предоставляющий данные для инструментов.
type BackendConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	RateLimit     int    `yaml:"rate_limit"`     // Запросов в минуту
	BurstLimit    int    `yaml:"burst_limit"`    // Burst для rate limiter
	RetryAttempts int    `yaml:"retry_attempts"` // Количество retry попыток
	Timeout       string `yaml:"timeout"`        // Timeout для HTTP запросов ("30s")
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c *BackendConfig) GetDefaults() BackendConfig {
	result := *c

	if result.RateLimit == 0 {
		result.RateLimit = 120 // запросов в минуту
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 5
	}
	if result.RetryAttempts == 0 {
		result.RetryAttempts = 3
	}
	if result.Timeout == "" {
		result.Timeout = "30s"
	}

	return result
}

// ImageProcConfig — настройки обработки изображений перед vision вызовами.
type ImageProcConfig struct {
	MaxWidth int `yaml:"max_width"`
	Quality  int `yaml:"quality"`
}

// AppSpecific — общие настройки приложения.
type AppSpecific struct {
	Debug      bool   `yaml:"debug"`
	PromptsDir string `yaml:"prompts_dir"`
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	// 1. Проверяем существование файла
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	// 2. Читаем файл целиком
	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 3. Подставляем переменные окружения.
	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(rawBytes))

	// 4. Парсим YAML в структуру
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()

	// 5. Валидируем критические настройки
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults заполняет нулевые поля дефолтами.
func (c *AppConfig) applyDefaults() {
	if c.QA.MinReplyLen == 0 {
		c.QA.MinReplyLen = 80
	}
	if c.QA.MaxReplyChars == 0 {
		c.QA.MaxReplyChars = 1500
	}
	if c.QA.MaxContextChars == 0 {
		c.QA.MaxContextChars = 600
	}
	if c.RateLimits.Window == 0 {
		c.RateLimits.Window = time.Minute
	}
	if c.RateLimits.Default == 0 {
		c.RateLimits.Default = 20
	}
	if c.Gating.TTL == 0 {
		c.Gating.TTL = 15 * time.Minute
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "opsdesk.db"
	}
	if c.Routing.ReportTemperature == 0 {
		c.Routing.ReportTemperature = 0.2
	}
	if c.ImageProcessing.MaxWidth == 0 {
		c.ImageProcessing.MaxWidth = 1024
	}
	if c.ImageProcessing.Quality == 0 {
		c.ImageProcessing.Quality = 85
	}
}

// validate проверяет обязательные поля и ссылочную целостность.
func (c *AppConfig) validate() error {
	for alias, def := range c.Models.Definitions {
		if def.ModelName == "" {
			return fmt.Errorf("model '%s': model_name is required", alias)
		}
		if _, ok := c.Models.Providers[def.Provider]; !ok {
			return fmt.Errorf("model '%s' references unknown provider '%s'", alias, def.Provider)
		}
		if def.Fallback != nil {
			if _, ok := c.Models.Providers[def.Fallback.Provider]; !ok {
				return fmt.Errorf("model '%s': fallback references unknown provider '%s'", alias, def.Fallback.Provider)
			}
		}
	}

	if c.Models.DefaultChat != "" {
		if _, ok := c.Models.Definitions[c.Models.DefaultChat]; !ok {
			return fmt.Errorf("default_chat model '%s' is not defined in definitions", c.Models.DefaultChat)
		}
	}

	// Routing tiers должны ссылаться на существующие алиасы
	for tier, alias := range map[string]string{
		"multimodal": c.Routing.Multimodal,
		"heavy":      c.Routing.Heavy,
		"mid":        c.Routing.Mid,
		"fast":       c.Routing.Fast,
	} {
		if alias == "" {
			continue
		}
		if _, ok := c.Models.Definitions[alias]; !ok {
			return fmt.Errorf("routing.%s references unknown model alias '%s'", tier, alias)
		}
	}

	if c.QA.Model != "" {
		if _, ok := c.Models.Definitions[c.QA.Model]; !ok {
			return fmt.Errorf("qa.model references unknown model alias '%s'", c.QA.Model)
		}
	}

	return nil
}

// Helper методы для удобства доступа (Syntactic sugar)

// GetModel возвращает конфигурацию модели по алиасу (или дефолтную).
func (c *AppConfig) GetModel(alias string) (ModelDef, bool) {
	if alias == "" {
		alias = c.Models.DefaultChat
	}
	m, ok := c.Models.Definitions[alias]
	return m, ok
}

// GetProvider возвращает credentials вендора по тегу.
func (c *AppConfig) GetProvider(tag string) (ProviderDef, bool) {
	p, ok := c.Models.Providers[tag]
	return p, ok
}

// HighRiskAgents возвращает allow-list агентов подлежащих QA review.
func (c *AppConfig) HighRiskAgents() []string {
	var ids []string
	for id, def := range c.Agents {
		if def.HighRisk {
			ids = append(ids, id)
		}
	}
	return ids
}
