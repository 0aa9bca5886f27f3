package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

// Config — корневая структура конфигурации шлюза.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Okta     OktaConfig     `mapstructure:"okta"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit — запросов в минуту на одного вызывающего, 0 — без ограничения
	RateLimit int `mapstructure:"rate_limit"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Port int `mapstructure:"port"` // 0 — gRPC выключен
}

// OktaConfig — доступ к API провайдера через OAuth client credentials.
type OktaConfig struct {
	Domain         string        `mapstructure:"domain"`
	OAuthTokenURL  string        `mapstructure:"oauth_token_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Scopes         []string      `mapstructure:"scopes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TokenTimeout   time.Duration `mapstructure:"token_timeout"`
	TokenAttempts  uint          `mapstructure:"token_attempts"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL — аудит только в лог.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub аудита). Пустой адрес — выключено.
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	AuditChannel string `mapstructure:"audit_channel"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки JWT вызывающих.
// Без ключа шлюз доверяет заголовкам X-Caller / X-Caller-Role (dev-режим).
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// EngineConfig — буферизация аудита перед записью в БД.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// OKTA_CLIENT_ID перекроет okta.client_id
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv не видит ключи, которых нет ни в файле, ни в дефолтах
	for _, key := range []string{"okta.domain", "okta.oauth_token_url", "okta.client_id", "okta.client_secret",
		"database.url", "redis.addr", "redis.password", "auth.public_key_path"} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключ из ENV (Docker/K8s) или из файла. Указанный, но нечитаемый ключ —
	// ошибка старта: иначе шлюз молча перешел бы в режим доверия заголовкам.
	key, err := loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	if err != nil {
		return nil, fmt.Errorf("auth public key: %w", err)
	}
	cfg.Auth.PublicKey = key

	return &cfg, nil
}

// Validate проверяет обязательные настройки провайдера. Ошибка перечисляет
// все отсутствующие ключи сразу.
func (c *Config) Validate() error {
	var missing []string
	for _, req := range []struct {
		env, value string
	}{
		{"OKTA_DOMAIN", c.Okta.Domain},
		{"OKTA_OAUTH_TOKEN_URL", c.Okta.OAuthTokenURL},
		{"OKTA_CLIENT_ID", c.Okta.ClientID},
		{"OKTA_CLIENT_SECRET", c.Okta.ClientSecret},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.env)
		}
	}
	if len(missing) > 0 {
		return &domain.ConfigError{Missing: missing}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("grpc.port", 0)
	v.SetDefault("okta.scopes", okta.DefaultScopes)
	v.SetDefault("okta.request_timeout", 20*time.Second)
	v.SetDefault("okta.token_timeout", 10*time.Second)
	v.SetDefault("okta.token_attempts", 3)
	v.SetDefault("okta.rate_limit", 0)
	v.SetDefault("okta.rate_burst", 1)
	v.SetDefault("redis.audit_channel", RedisChanAudit)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
}

// loadKeyResource: ключ напрямую из ENV (PEM), иначе файл по пути из конфига.
// Пустой результат без ошибки — ключ не настроен вовсе.
func loadKeyResource(path string, envDataKey string) ([]byte, error) {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data), nil
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}
