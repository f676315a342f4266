// Package server initializes and runs the API process: it wires the
// database, the Redis queue and event bus, the pinning provider client,
// and the HTTP server, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/config"
	"github.com/dmitrijs2005/filepin/internal/server/httpapi"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
	"github.com/dmitrijs2005/filepin/internal/server/repomanager"
	"github.com/dmitrijs2005/filepin/internal/server/uploads"
)

const sweepInterval = 10 * time.Minute

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	bus           *events.RedisBus
	uploadService *uploads.Service
	httpServer    *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	if _, err := filex.EnsureDir(cfg.TempUploadDir); err != nil {
		return nil, fmt.Errorf("temp dir init error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	q := queue.NewRedisQueue(rdb)
	bus := events.NewRedisBus(rdb, logger)

	store := pinata.NewClient(cfg.ProviderBaseURL, cfg.ProviderGatewayURL, cfg.ProviderToken, cfg.ProviderTimeout)

	policy := queue.Policy{
		MaxAttempts: cfg.QueueMaxAttempts,
		BackoffBase: cfg.QueueBackoffBase,
		BackoffCap:  cfg.QueueBackoffCap,
	}

	objectRepo := rm.Objects(db)
	uploadRepo := rm.Uploads(db)

	objectService := objects.NewService(objectRepo, q, store, bus, logger, policy)
	uploadService := uploads.NewService(uploadRepo, objectRepo, q, logger, cfg.TempUploadDir, policy)

	api := httpapi.NewServer(uploadService, objectService, bus, logger, []byte(cfg.SecretKey))

	httpServer := &http.Server{
		Addr:    cfg.EndpointAddrHTTP,
		Handler: api.Router(),
	}

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		bus:           bus,
		uploadService: uploadService,
		httpServer:    httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSessionSweeper expires idle upload sessions on a fixed interval.
func (app *App) runSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.uploadService.CleanupStale(ctx, app.config.UploadSessionTTL)
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	app.bus.Start(ctx)
	defer app.bus.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSessionSweeper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server error", "error", err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer shutdownCancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err.Error())
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close error", "error", err.Error())
	}

	app.logger.Info(context.WithoutCancel(ctx), "server stopped")
}
