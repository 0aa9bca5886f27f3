package okta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenProvider выдает bearer-токен для API IdP.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type Config struct {
	Domain string
	// BaseURL перекрывает https://{Domain}/api/v1 (тесты, прокси).
	BaseURL        string
	RequestTimeout time.Duration
	RateLimit      float64 // исходящих запросов в секунду, 0 — без ограничения
	RateBurst      int
}

// Response — тело и заголовки ответа IdP.
type Response struct {
	StatusCode int
	Data       json.RawMessage
	Header     http.Header
}

// Decode разбирает тело ответа в v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("okta: decode response: %w", err)
	}
	return nil
}

// RateLimitObserver получает остаток квоты провайдера (для метрик).
type RateLimitObserver func(remaining int)

// BreakerObserver получает состояние предохранителя: true — разомкнут или полуоткрыт.
type BreakerObserver func(open bool)

type Client struct {
	baseURL    string
	http       *http.Client
	tokens     TokenProvider
	guard      *guard
	logger     *zap.Logger
	onRateInfo RateLimitObserver
	onBreaker  BreakerObserver
}

func NewClient(cfg Config, tokens TokenProvider, logger *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/api/v1", cfg.Domain)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		tokens:  tokens,
		logger:  logger.Named("okta"),
	}
	c.guard = newGuard("okta-api", cfg.RateLimit, cfg.RateBurst, func(open bool) {
		c.logger.Warn("okta circuit breaker state changed", zap.Bool("open", open))
		if c.onBreaker != nil {
			c.onBreaker(open)
		}
	})
	return c
}

// ObserveRateLimit подключает наблюдателя квоты.
func (c *Client) ObserveRateLimit(fn RateLimitObserver) {
	c.onRateInfo = fn
}

// ObserveBreaker подключает наблюдателя предохранителя.
func (c *Client) ObserveBreaker(fn BreakerObserver) {
	c.onBreaker = fn
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, query url.Values, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, query, body)
}

func (c *Client) Put(ctx context.Context, path string, query url.Values, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, query, body)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, query, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	return c.guard.run(ctx, func() (*Response, error) {
		return c.send(ctx, method, path, query, body)
	})
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("okta: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("okta: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("okta api request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("okta: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get("X-Okta-Request-Id")
	traceFrom(ctx).add(requestID)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("okta: read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := newAPIError(method, path, resp.StatusCode, requestID, data)
		c.logger.Error("okta api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Summary))
		return nil, apiErr
	}

	c.logger.Debug("okta api request successful",
		zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	c.HandleRateLimit(resp.Header)
	return &Response{StatusCode: resp.StatusCode, Data: data, Header: resp.Header}, nil
}

// HandleRateLimit только предупреждает о приближении к лимиту. Никаких
// автоматических действий (пауз, повторов) слой не предпринимает.
func (c *Client) HandleRateLimit(h http.Header) {
	remainingRaw := h.Get("X-Rate-Limit-Remaining")
	if remainingRaw == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}
	if c.onRateInfo != nil {
		c.onRateInfo(remaining)
	}
	if remaining < 10 {
		c.logger.Warn("approaching okta rate limit",
			zap.Int("remaining", remaining),
			zap.String("reset", h.Get("X-Rate-Limit-Reset")))
	}
}
