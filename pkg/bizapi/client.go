// Package bizapi — SDK для бизнес-бекенда OpsDesk.
//
// Это именно SDK, а не "тупой" HTTP клиент:
//   - HTTP клиент с retry, rate limiting и классификацией ошибок
//   - Высокоуровневые методы, знающие обертки ответов бекенда
//
// Паттерн использования:
//   - pkg/bizapi — переиспользуемый SDK
//   - pkg/tools/std — тонкие обертки для LLM function calling
package bizapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"golang.org/x/time/rate"
)

// ErrorType представляет тип ошибки при работе с бекендом.
type ErrorType int

const (
	ErrUnknown ErrorType = iota
	ErrAuthFailed
	ErrTimeout
	ErrNetwork
	ErrRateLimit
)

// String возвращает строковое представление типа ошибки.
func (e ErrorType) String() string {
	switch e {
	case ErrAuthFailed:
		return "authentication_failed"
	case ErrTimeout:
		return "timeout"
	case ErrNetwork:
		return "network_error"
	case ErrRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// HumanMessage возвращает человекочитаемое сообщение для типа ошибки.
func (e ErrorType) HumanMessage() string {
	switch e {
	case ErrAuthFailed:
		return "API ключ бекенда недействителен или отсутствует. Проверьте BACKEND_API_KEY."
	case ErrTimeout:
		return "Превышено время ожидания. Бекенд не отвечает или проблемы с сетью."
	case ErrNetwork:
		return "Бекенд недоступен. Проверьте подключение к сети."
	case ErrRateLimit:
		return "Превышен лимит запросов к бекенду. Подождите перед следующей попыткой."
	default:
		return "Неизвестная ошибка при обращении к бекенду."
	}
}

// HTTPClient интерфейс для выполнения HTTP запросов.
//
// Позволяет мокировать HTTP клиент в тестах.
// Стандартный *http.Client реализует этот интерфейс.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client — клиент бизнес-бекенда с retry и rate limiting.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    HTTPClient
	retryAttempts int
	rateLimit     int // запросов в минуту
	burstLimit    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // endpoint ID → limiter
}

// NewFromConfig создает клиент из конфигурации.
func NewFromConfig(cfg config.BackendConfig) (*Client, error) {
	cfg = cfg.GetDefaults()

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend.api_key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid backend.timeout format: %w", err)
	}

	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		retryAttempts: cfg.RetryAttempts,
		rateLimit:     cfg.RateLimit,
		burstLimit:    cfg.BurstLimit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// SetHTTPClient подменяет HTTP клиент (для тестов).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// ClassifyError классифицирует ошибку по типу для диагностики.
func (c *Client) ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	errMsg := err.Error()
	errMsgLower := strings.ToLower(errMsg)

	if strings.Contains(errMsg, "401") ||
		strings.Contains(errMsgLower, "unauthorized") ||
		strings.Contains(errMsg, "Forbidden") {
		return ErrAuthFailed
	}

	if strings.Contains(errMsgLower, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return ErrTimeout
	}

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") {
		return ErrNetwork
	}

	if strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "Too Many Requests") {
		return ErrRateLimit
	}

	return ErrUnknown
}

// httpRequest описывает параметры HTTP запроса.
type httpRequest struct {
	method string
	url    string
	body   io.Reader
}

// doRequest выполняет HTTP запрос с retry логикой и rate limiting.
//
// 429 от бекенда ретраится с ожиданием Retry-After; сетевые ошибки
// ретраятся сразу; остальные non-200 — терминальные.
func (c *Client) doRequest(ctx context.Context, endpointID string, req httpRequest, dest interface{}) error {
	limiter := c.getOrCreateLimiter(endpointID)

	var lastErr error

	for i := 0; i < c.retryAttempts; i++ {
		// Ждем разрешения от лимитера
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, req.body)
		if err != nil {
			return err
		}

		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue // Сетевая ошибка, пробуем еще
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := 1 * time.Second
			if s := resp.Header.Get("Retry-After"); s != "" {
				if sec, err := strconv.Atoi(s); err == nil {
					retryAfter = time.Duration(sec) * time.Second
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
				lastErr = fmt.Errorf("backend api error: status 429")
				continue
			}
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("backend api error: status %d, body: %s", resp.StatusCode, string(body))
		}

		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				return fmt.Errorf("unmarshal error: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded, last error: %v", lastErr)
}

// get выполняет GET запрос к бекенду.
func (c *Client) get(ctx context.Context, endpointID, path string, params url.Values, dest interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	return c.doRequest(ctx, endpointID, httpRequest{
		method: http.MethodGet,
		url:    u.String(),
	}, dest)
}

// post выполняет POST запрос к бекенду.
func (c *Client) post(ctx context.Context, endpointID, path string, body interface{}, dest interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	return c.doRequest(ctx, endpointID, httpRequest{
		method: http.MethodPost,
		url:    u.String(),
		body:   strings.NewReader(string(bodyJSON)),
	}, dest)
}

// getOrCreateLimiter возвращает limiter для endpoint'а или создаёт новый.
func (c *Client) getOrCreateLimiter(endpointID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limiter, exists := c.limiters[endpointID]; exists {
		return limiter
	}

	// rateLimit в запросах/минуту → rate.Limit в запросах/секунду
	ratePerSec := float64(c.rateLimit) / 60.0
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), c.burstLimit)
	c.limiters[endpointID] = limiter

	return limiter
}

// PingResponse представляет ответ от ping endpoint бекенда.
type PingResponse struct {
	Status string `json:"status"`
	TS     string `json:"ts"`
}

// Ping проверяет доступность бекенда и валидность ключа.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var resp PingResponse

	if err := c.get(ctx, "ping", "/api/v1/ping", nil, &resp); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	if !strings.EqualFold(resp.Status, "ok") {
		return nil, fmt.Errorf("ping status not OK: %s", resp.Status)
	}

	return &resp, nil
}
