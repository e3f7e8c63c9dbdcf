// Command scheduler runs periodic sales imports: an asynq worker consumes
// import tasks, and a ticker enqueues one per interval so reporting tables
// heal from any webhooks the API missed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/importer"
	"trafficops_backend/internal/origin"
	"trafficops_backend/internal/scheduler"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/db"
	"trafficops_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	crm := amocrm.NewClient(cfg, log)
	trackingRepo := tracking.New(pool)
	origins := origin.NewResolver(crm, cfg.GetUTMFieldIDs(), log)

	express := importer.NewExpressImporter(crm, trackingRepo, cfg, log)
	challenge := importer.NewChallenge3DImporter(crm, trackingRepo, origins, cfg, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	go enqueuePeriodically(ctx, client, cfg.GetImportInterval(), log)

	worker, err := scheduler.NewWorker(cfg, express, challenge, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// enqueuePeriodically schedules one full import per interval. The window
// is the interval doubled, so runs overlap and missed webhooks are
// re-imported; the upserts make the overlap harmless.
func enqueuePeriodically(ctx context.Context, client *scheduler.Client, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	days := int(interval.Hours()/24)*2 + 1

	enqueue := func() {
		payload := scheduler.SalesImportPayload{Target: scheduler.TargetAll, Days: days}
		if err := client.ScheduleSalesImport(ctx, payload, time.Now()); err != nil {
			log.Error("failed to enqueue sales import", "error", err)
		}
	}

	enqueue()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
