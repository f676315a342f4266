package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/config"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
	"github.com/dmitrijs2005/filepin/internal/server/repomanager"
)

// Per-kind pool sizes. Pin and unpin talk to the provider concurrently;
// verify and thumbnail are kept single-flight since both pull whole
// objects through the gateway.
const (
	pinConcurrency       = 2
	unpinConcurrency     = 2
	verifyConcurrency    = 1
	thumbnailConcurrency = 1
)

// App is the worker process: one consumer loop per job kind over the
// shared Redis queue, publishing lifecycle events to the shared bus.
type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	consumers []*queue.Consumer
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
	objectRepo := rm.Objects(db)

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

	pinWorker := NewPinWorker(objectRepo, store, q, bus, logger, policy)
	unpinWorker := NewUnpinWorker(objectRepo, store, bus, logger)
	verifyWorker := NewVerifyWorker(objectRepo, store, bus, logger, cfg.TempUploadDir)
	thumbWorker := NewThumbnailWorker(objectRepo, store, bus, logger, cfg.TempUploadDir, cfg.ThumbMaxWidth)

	exhausted := markObjectFailed(objectRepo, logger)

	consumers := []*queue.Consumer{
		queue.NewConsumer(q, bus, logger, queue.KindPin, pinConcurrency, pinWorker.Handle).OnExhausted(exhausted),
		queue.NewConsumer(q, bus, logger, queue.KindUnpin, unpinConcurrency, unpinWorker.Handle).OnExhausted(exhausted),
		queue.NewConsumer(q, bus, logger, queue.KindVerify, verifyConcurrency, verifyWorker.Handle).OnExhausted(exhausted),
		queue.NewConsumer(q, bus, logger, queue.KindThumbnail, thumbnailConcurrency, thumbWorker.Handle).OnExhausted(exhausted),
	}

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		consumers: consumers,
	}, nil
}

// markObjectFailed is the exhaustion hook shared by every consumer: when a
// job burns its last attempt the referenced object is parked in failed.
// For objects deleted in the meantime the update is a no-op.
func markObjectFailed(repo objects.Repository, logger logging.Logger) func(ctx context.Context, job *queue.Job, jobErr error) {
	return func(ctx context.Context, job *queue.Job, jobErr error) {
		if err := repo.SetStatus(ctx, job.ObjectID, models.ObjectFailed); err != nil {
			logger.Error(ctx, "failed to mark object after job exhaustion",
				"object_id", job.ObjectID, "job_id", job.ID, "error", err.Error())
		}
	}
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting worker")

	app.initSignalHandler(cancelFunc)

	g := &errgroup.Group{}
	for _, c := range app.consumers {
		c := c
		g.Go(func() error {
			return c.Run(ctx)
		})
	}

	_ = g.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close error", "error", err.Error())
	}

	app.logger.Info(context.WithoutCancel(ctx), "worker stopped")
}
