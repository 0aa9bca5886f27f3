package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/engine"
	"github.com/xela07ax/idp-admin-gateway/internal/infra"
	"github.com/xela07ax/idp-admin-gateway/internal/infra/auth"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
	"github.com/xela07ax/idp-admin-gateway/internal/repository/postgres"
	"github.com/xela07ax/idp-admin-gateway/internal/tools"
)

func main() {
	// 1. Конфигурация. Без обязательных настроек IdP не стартуем.
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Приемники аудита (опциональные): Postgres через AgentFS и Redis Pub/Sub
	var sinks []audit.Sink

	var auditRepo *postgres.AuditRepo
	var agentFS *audit.AgentFS
	var publisher *audit.Publisher
	if cfg.Database.URL != "" {
		repo, err := postgres.NewAuditRepo(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("audit storage: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = repo.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		defer repo.Close()
		auditRepo = repo

		// Теперь записи полетят в базу пачками
		agentFS = audit.NewAgentFS(repo, logger, audit.AgentFSOptions{
			BufferSize:    cfg.Engine.AuditBufferSize,
			BatchSize:     cfg.Engine.AuditBatchSize,
			FlushInterval: cfg.Engine.AuditFlushInterval,
		})
		agentFS.Start()
		metrics.TrackAuditBuffer(agentFS.Pending)
		sinks = append(sinks, agentFS)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		publisher = audit.NewPublisher(rdb, cfg.Redis.AuditChannel, logger)
		publisher.Start()
		sinks = append(sinks, publisher)
	}

	// 4. Клиент IdP
	tokens := okta.NewTokenSource(okta.TokenConfig{
		TokenURL:     cfg.Okta.OAuthTokenURL,
		ClientID:     cfg.Okta.ClientID,
		ClientSecret: cfg.Okta.ClientSecret,
		Scopes:       cfg.Okta.Scopes,
		Timeout:      cfg.Okta.TokenTimeout,
		Attempts:     cfg.Okta.TokenAttempts,
	}, okta.NewTokenCache(30*time.Second), logger)

	client := okta.NewClient(okta.Config{
		Domain:         cfg.Okta.Domain,
		RequestTimeout: cfg.Okta.RequestTimeout,
		RateLimit:      cfg.Okta.RateLimit,
		RateBurst:      cfg.Okta.RateBurst,
	}, tokens, logger)
	client.ObserveRateLimit(metrics.ObserveRateLimit)
	client.ObserveBreaker(metrics.ObserveBreaker)

	// 5. Политика и каталог. Рассогласование allow-листов и каталога — ошибка старта.
	rolePolicy := policy.Default()
	catalog := tools.NewCatalog(tools.Deps{
		IdP:     client,
		Guard:   policy.NewGuard(rolePolicy),
		Auditor: audit.NewRecorder(logger, rolePolicy, sinks...),
		Clock:   time.Now,
	})
	if err := rolePolicy.Validate(catalog.Has); err != nil {
		return fmt.Errorf("role policy: %w", err)
	}
	gateway := engine.NewGateway(catalog, rolePolicy, metrics, logger)

	// 6. Проверка вызывающих. Режим доверия заголовкам — только когда ключ не задан вовсе:
	// нечитаемый ключ уже остановил LoadConfig.
	var validator auth.TokenValidator
	var httpAuth func(http.Handler) http.Handler
	if len(cfg.Auth.PublicKey) == 0 {
		httpAuth = auth.NewHeaderMiddleware(logger)
	} else {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		v := auth.NewBaseValidator(pub)
		validator = v
		httpAuth = auth.NewMiddleware(v, logger)
	}

	// 7. HTTP
	opts := engine.HTTPOptions{Auth: httpAuth, Gatherer: reg, RateLimit: cfg.Server.RateLimit}
	if auditRepo != nil {
		opts.Audit = engine.NewAuditHandler(auditRepo, logger)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine.NewHTTPServer(gateway, logger, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr), zap.Int("tools", len(catalog.Operations())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 8. gRPC (опционально)
	var grpcSrv *grpc.Server
	if cfg.GRPC.Port > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryAuthInterceptor(validator, logger)))
		engine.RegisterToolServiceServer(grpcSrv, engine.NewGRPCGatewayServer(gateway, logger))
		go func() {
			logger.Info("grpc server started", zap.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	// Дожидаемся, пока AgentFS сбросит остаток буфера в базу
	if agentFS != nil {
		agentFS.Stop()
	}
	// Publisher останавливается до rdb.Close (defer выше)
	if publisher != nil {
		publisher.Stop()
	}
	logger.Info("gateway stopped")
	return runErr
}
