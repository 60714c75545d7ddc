package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/MaysHroub/cst-management-info-system/internal/api/http"
	"github.com/MaysHroub/cst-management-info-system/internal/api/http/handlers"
	"github.com/MaysHroub/cst-management-info-system/internal/auth"
	"github.com/MaysHroub/cst-management-info-system/internal/config"
	"github.com/MaysHroub/cst-management-info-system/internal/dispatch"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	"github.com/MaysHroub/cst-management-info-system/internal/locking"
	"github.com/MaysHroub/cst-management-info-system/internal/observability"
	"github.com/MaysHroub/cst-management-info-system/internal/persistence"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	"github.com/MaysHroub/cst-management-info-system/internal/repository/memory"
	"github.com/MaysHroub/cst-management-info-system/internal/service"
	"github.com/MaysHroub/cst-management-info-system/internal/worker"
	"github.com/MaysHroub/cst-management-info-system/migrations"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	policyFile string
	migrate    bool
	issueToken string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("cst-dispatch: %v", err)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("cst-dispatch", pflag.ContinueOnError)
	flagSet.StringVar(&opts.policyFile, "policy-file", "", "YAML file overriding categories, SLA, registry and skills (env POLICY_FILE)")
	flagSet.BoolVar(&opts.migrate, "migrate", false, "apply database migrations before serving (env POSTGRES_RUN_MIGRATIONS)")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print a bearer token for TYPE:ID (citizen, staff, agent, system) and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.policyFile != "" {
		cfg.Policy.File = opts.policyFile
	}
	if opts.migrate {
		cfg.Postgres.RunMigrations = true
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	if opts.issueToken != "" {
		return printToken(tokens, opts.issueToken)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, cfg.App)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	tables := policy.Default()
	if cfg.Policy.File != "" {
		tables, err = policy.LoadFile(cfg.Policy.File)
		if err != nil {
			return err
		}
		logger.Info("loaded policy tables", zap.String("file", cfg.Policy.File))
	}

	healthDeps := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var stores storeSet
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		version, err := pg.PostGISVersion(ctx)
		if err != nil {
			return err
		}
		logger.Info("postgis ready", zap.String("version", version))
		stores = storeSet{
			requests: repository.NewRequestRepository(pool),
			agents:   repository.NewAgentRepository(pool),
			audit:    repository.NewAuditRepository(pool),
			zones:    repository.NewZoneRepository(pool),
		}
		healthDeps["postgres"] = pg
	} else {
		logger.Warn("using in-memory stores; data is lost on restart")
		stores = storeSet{
			requests: memory.NewRequestStore(),
			agents:   memory.NewAgentStore(),
			audit:    memory.NewAuditStore(),
			zones:    memory.NewZoneStore(),
		}
	}

	var locker locking.Locker = locking.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		locker = locking.NewRedisLocker(redis.Client)
		healthDeps["redis"] = redis
	} else {
		logger.Info("REDIS_ADDR not set; dispatch locks are process-local")
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService, logger)

	deps := service.Dependencies{
		RequestRepo: stores.requests,
		AgentRepo:   stores.agents,
		AuditRepo:   stores.audit,
		ZoneRepo:    stores.zones,
		Dispatcher:  dispatcher,
		Locker:      locker,
		Metrics:     metrics,
		Logger:      logger,
		Tables:      tables,
		Dispatch: dispatch.Options{
			Strict:             cfg.Dispatch.StrictFunnel,
			FallbackSampleSize: cfg.Dispatch.FallbackSampleSize,
		},
		LockTTL: cfg.Dispatch.LockTTL(),
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Requests:       handlers.NewRequestsHandler(service.NewRequestService(deps), service.NewMilestoneService(deps)),
		Agents:         handlers.NewAgentsHandler(service.NewAgentService(deps), service.NewAssignmentService(deps)),
		Zones:          handlers.NewZonesHandler(service.NewZoneService(deps)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Required),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.Bool("strict_funnel", cfg.Dispatch.StrictFunnel))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-waitForSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.ShutdownWithTimeout(shutdownTimeout)
}

type storeSet struct {
	requests repository.RequestRepository
	agents   repository.AgentRepository
	audit    repository.AuditRepository
	zones    repository.ZoneRepository
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

func printToken(tokens *auth.TokenManager, value string) error {
	actorType, actorID, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("--issue-token expects TYPE:ID, got %q", value)
	}
	token, expires, err := tokens.GenerateToken(domain.Actor{Type: domain.ActorType(actorType), ID: actorID})
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, expires.UTC().Format(time.RFC3339))
	return nil
}
