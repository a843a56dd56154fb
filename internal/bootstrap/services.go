package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomchat/loom-api/config"
	redisadapters "github.com/loomchat/loom-api/internal/adapters/redis"
	"github.com/loomchat/loom-api/internal/adapters/sender"
	"github.com/loomchat/loom-api/internal/carrier"
	"github.com/loomchat/loom-api/internal/data"
	domainoutbox "github.com/loomchat/loom-api/internal/domain/outbox"
	"github.com/loomchat/loom-api/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Outbox *service.OutboxService
	Auth   *service.AuthService
	Chats  *service.ChatService
	Sender *sender.Runner
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	OutboxRepo *data.OutboxRepo
	ChatRepo   *data.ChatRepo
	Sessions   *redisadapters.SessionStore
	LoginCodes *redisadapters.LoginCodeStore
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	return &serviceRepositories{
		OutboxRepo: data.NewOutboxRepo(deps.DB, data.OutboxRepoConfig{
			MaxAttempts: deps.Config.Outbox.MaxAttempts,
			Logger:      deps.Logger,
		}),
		ChatRepo:   data.NewChatRepo(deps.DB, nil),
		Sessions:   redisadapters.NewSessionStore(deps.RedisClient),
		LoginCodes: redisadapters.NewLoginCodeStore(deps.RedisClient),
	}
}

// buildCarrier selects the SMS carrier adapter from configuration. The
// console carrier is the dev default; the gateway carrier requires its
// credentials to be present.
//
//nolint:ireturn // carrier kind is a runtime decision.
func buildCarrier(cfg config.CarrierConfig, logger *slog.Logger) (carrier.Sender, error) {
	if err := carrier.ValidateKind(cfg.Kind); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case carrier.KindGateway:
		gw, err := carrier.NewGatewaySender(carrier.GatewayConfig{
			BaseURL:       cfg.GatewayBaseURL,
			APIToken:      cfg.GatewayAPIToken,
			SigningSecret: cfg.GatewaySigningSecret,
			SenderID:      cfg.GatewaySenderID,
			Timeout:       cfg.GatewayTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build gateway carrier: %w", err)
		}
		return gw, nil
	default:
		return carrier.NewConsoleSender(logger), nil
	}
}

// NewServices wires repositories, stores and carriers into the service layer.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repos := buildRepositories(deps)
	cfg := deps.Config

	outboxSvc, err := service.NewOutboxService(service.OutboxServiceOptions{
		Repo:          repos.OutboxRepo,
		Backoff:       domainoutbox.NewBackoffPolicy(cfg.Outbox.BaseDelay(), cfg.Outbox.MaxDelay()),
		ProcessingTTL: cfg.Outbox.ProcessingTTL,
		AuthTTL:       cfg.Outbox.AuthTTL,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build outbox service: %w", err)
	}

	authSvc, err := service.NewAuthService(service.AuthServiceOptions{
		Sessions:   repos.Sessions,
		LoginCodes: repos.LoginCodes,
		Outbox:     outboxSvc,
		SessionTTL: cfg.Session.TTL,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build auth service: %w", err)
	}

	chatSvc, err := service.NewChatService(service.ChatServiceOptions{
		Repo:   repos.ChatRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build chat service: %w", err)
	}

	container := ServiceContainer{
		Outbox: outboxSvc,
		Auth:   authSvc,
		Chats:  chatSvc,
	}

	if cfg.IsSenderEnabled() {
		smsCarrier, carrierErr := buildCarrier(cfg.Carrier, logger)
		if carrierErr != nil {
			return ServiceContainer{}, carrierErr
		}
		runner, runnerErr := sender.NewRunner(sender.RunnerOptions{
			Outbox:       outboxSvc,
			Sender:       smsCarrier,
			Logger:       logger,
			WorkerID:     cfg.Carrier.WorkerID,
			BatchSize:    cfg.Carrier.BatchSize,
			PollInterval: cfg.Carrier.PollInterval,
			Concurrency:  cfg.Carrier.Concurrency,
		})
		if runnerErr != nil {
			return ServiceContainer{}, fmt.Errorf("build sender runner: %w", runnerErr)
		}
		container.Sender = runner
	}

	return container, nil
}

// ServiceOrchestrationConfig groups everything needed to run the enabled
// service modes and keep them alive until shutdown.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// ServiceStartupResult tracks what startServices launched.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// serviceStartupDeps carries shared context for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Services.Sender == nil {
		return nil
	}
	runner := deps.cfg.Services.Sender
	return []backgroundService{{
		mode: config.ServiceModeSender,
		name: "sms sender",
		start: func(ctx context.Context) error {
			return runner.Run(ctx)
		},
	}}
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}

	return handles
}

func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
