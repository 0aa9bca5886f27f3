package okta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// DefaultScopes — набор прав сервисного приложения.
var DefaultScopes = []string{
	"okta.users.read",
	"okta.groups.read",
	"okta.apps.read",
	"okta.logs.read",
	"okta.users.manage",
	"okta.groups.manage",
	"okta.sessions.manage",
}

// TokenCache — единственная запись токена на процесс. Текущее время передается
// снаружи, поэтому кэш детерминированно тестируется без часов.
// Мьютекс защищает только память: параллельные обновления не сериализуются,
// двойной запрос токена допустим.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt int64 // epoch seconds
	margin    time.Duration
}

func NewTokenCache(margin time.Duration) *TokenCache {
	return &TokenCache{margin: margin}
}

// Token возвращает закэшированный токен, если он жив с учетом запаса.
func (c *TokenCache) Token(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if now.Unix() >= c.expiresAt-int64(c.margin/time.Second) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) Store(token string, expiresAt int64) {
	c.mu.Lock()
	c.token = token
	c.expiresAt = expiresAt
	c.mu.Unlock()
}

type TokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	Attempts     uint
	// Clock подменяется в тестах.
	Clock func() time.Time
}

// TokenSource получает токен по OAuth client-credentials и кэширует его.
type TokenSource struct {
	cfg    TokenConfig
	http   *http.Client
	cache  *TokenCache
	logger *zap.Logger
}

func NewTokenSource(cfg TokenConfig, cache *TokenCache, logger *zap.Logger) *TokenSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cache == nil {
		cache = NewTokenCache(30 * time.Second)
	}
	return &TokenSource{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
		logger: logger.Named("okta-token"),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cache.Token(s.cfg.Clock()); ok {
		return tok, nil
	}

	s.logger.Info("fetching new okta oauth token")

	var tr tokenResponse
	// Получение токена идемпотентно, поэтому его (и только его) можно ретраить
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.cfg.Attempts),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	err := r.Do(func() error {
		var fetchErr error
		tr, fetchErr = s.fetch(ctx)
		// Неверные учетные данные повтором не исправить: ретраим только сеть, 429 и 5xx
		var statusErr *TokenStatusError
		if errors.As(fetchErr, &statusErr) && !statusErr.Retryable() {
			return retry.Unrecoverable(fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		s.logger.Error("failed to obtain okta oauth token", zap.Error(err))
		return "", fmt.Errorf("oauth token request failed: %w", err)
	}

	s.cache.Store(tr.AccessToken, s.cfg.Clock().Unix()+tr.ExpiresIn)
	s.logger.Info("obtained okta oauth token", zap.Int64("expires_in", tr.ExpiresIn))
	return tr.AccessToken, nil
}

// TokenStatusError — token endpoint ответил не 200.
type TokenStatusError struct {
	StatusCode int
}

func (e *TokenStatusError) Error() string {
	return fmt.Sprintf("token endpoint returned %d", e.StatusCode)
}

func (e *TokenStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (s *TokenSource) fetch(ctx context.Context) (tokenResponse, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {strings.Join(s.cfg.Scopes, " ")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := s.http.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, &TokenStatusError{StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token response has no access_token")
	}
	return tr, nil
}
