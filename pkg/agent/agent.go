// Package agent описывает AI-персоны (профили агентов).
//
// Профиль агрегирует system prompt и флаги, влияющие на маршрутизацию
// модели и safety-политику. Профили иммутабельны после загрузки.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
)

// Profile — загруженный профиль агента.
type Profile struct {
	ID           string // Ключ из config.Agents
	Name         string // Человекочитаемое имя
	SystemPrompt string // Уже разрезолвленный текст (не путь)

	// HighRisk — ответы агента проходят вторичную QA проверку.
	HighRisk bool
	// VisionHeavy — агент работает с документами/изображениями.
	VisionHeavy bool
	// ComplexReasoning — агенту нужна модель среднего уровня и выше.
	ComplexReasoning bool
}

// Registry — справочник загруженных профилей по ID.
type Registry struct {
	profiles map[string]Profile
}

// FromConfig загружает все профили из конфигурации.
//
// SystemPrompt резолвится: если значение выглядит как имя .md/.txt файла,
// текст читается из promptsDir; иначе значение используется как есть.
func FromConfig(cfg *config.AppConfig) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(cfg.Agents))}

	for id, def := range cfg.Agents {
		prompt, err := resolvePrompt(def.SystemPrompt, cfg.App.PromptsDir)
		if err != nil {
			return nil, fmt.Errorf("agent '%s': %w", id, err)
		}

		name := def.Name
		if name == "" {
			name = id
		}

		r.profiles[id] = Profile{
			ID:               id,
			Name:             name,
			SystemPrompt:     prompt,
			HighRisk:         def.HighRisk,
			VisionHeavy:      def.VisionHeavy,
			ComplexReasoning: def.ComplexReasoning,
		}
	}

	return r, nil
}

// Get возвращает профиль по ID.
func (r *Registry) Get(id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("agent '%s' not found", id)
	}
	return p, nil
}

// IDs возвращает список всех зарегистрированных агентов.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}

// resolvePrompt превращает значение system_prompt в текст промпта.
func resolvePrompt(value, promptsDir string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("system_prompt is empty")
	}

	// Файлы отличаем по расширению, а не по наличию на диске:
	// опечатка в имени файла должна быть ошибкой, а не промптом.
	if strings.HasSuffix(value, ".md") || strings.HasSuffix(value, ".txt") {
		path := value
		if promptsDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(promptsDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return value, nil
}
