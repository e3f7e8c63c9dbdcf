package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"trafficops_backend/internal/importer"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
)

// Worker runs scheduled sales imports off the Redis queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	express   *importer.ExpressImporter
	challenge *importer.Challenge3DImporter
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, express *importer.ExpressImporter, challenge *importer.Challenge3DImporter, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		// Imports hit the CRM's rate limit, one at a time is enough.
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		express:   express,
		challenge: challenge,
		log:       log,
	}

	mux.HandleFunc(TaskSalesImport, w.handleSalesImport)

	return w, nil
}

func (w *Worker) handleSalesImport(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSalesImportPayload(task)
	if err != nil {
		return err
	}

	var from, to time.Time
	if payload.Days > 0 {
		to = time.Now().UTC()
		from = to.AddDate(0, 0, -payload.Days)
	}

	w.log.Info("scheduled sales import starting", "target", payload.Target, "days", payload.Days)

	if payload.Target == TargetExpress || payload.Target == TargetAll {
		stats, err := w.express.Run(ctx, from, to)
		if err != nil {
			return fmt.Errorf("express import: %w", err)
		}
		stats.WriteSummary(os.Stdout)
	}

	if payload.Target == TargetChallenge3D || payload.Target == TargetAll {
		stats, err := w.challenge.Run(ctx, from, to)
		if err != nil {
			return fmt.Errorf("challenge3d import: %w", err)
		}
		stats.WriteSummary(os.Stdout)
	}

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
