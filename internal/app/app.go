package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxtour/voxtour-go/internal/config"
	"github.com/voxtour/voxtour-go/internal/postgres"
	"github.com/voxtour/voxtour-go/internal/redis"
	postgresrepo "github.com/voxtour/voxtour-go/internal/repository/postgres"
	redisrepo "github.com/voxtour/voxtour-go/internal/repository/redis"
	"github.com/voxtour/voxtour-go/internal/service"
	"github.com/voxtour/voxtour-go/internal/service/tours"
	httpgin "github.com/voxtour/voxtour-go/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

// sweepInterval is how often overdue active tours are force-completed.
const sweepInterval = 5 * time.Minute

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewTourSyncPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl:code", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, logger, service.Config{
		Tours: tours.Config{},
		Token: cfg.Token,
		Fees:  cfg.Fees,
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, limiter, cache, cfg.Webhook.Secret, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Auto-end sweeper: a guide whose device died mid-tour must not leave the
	// tour active forever.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				n, err := a.services.Tours.EndOverdue(gCtx)
				if err != nil {
					a.logger.Error("auto-end sweep failed", "error", err)
					continue
				}
				if n > 0 {
					a.logger.Info("auto-ended overdue tours", "count", n)
				}
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
