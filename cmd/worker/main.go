package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"basegraph.app/radar/common/id"
	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/common/otel"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/core/db"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/notifier"
	"basegraph.app/radar/internal/orchestrator"
	"basegraph.app/radar/internal/queue"
	"basegraph.app/radar/internal/scheduler"
	"basegraph.app/radar/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	modeFlag := flag.String("mode", "daily", "cycle mode for -once: daily, weekly or monthly")
	emailPreview := flag.Bool("email-preview", false, "with -once, write the email report to the output directory instead of sending it")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)
	defer func() {
		if telemetry == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}()

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	if *once {
		mode, err := model.ParseMode(*modeFlag)
		if err != nil {
			slog.ErrorContext(ctx, "invalid mode", "error", err)
			os.Exit(2)
		}
		if err := runOnce(ctx, cfg, mode, *emailPreview); err != nil {
			slog.ErrorContext(ctx, "cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "worker exited with error", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "worker shutdown complete")
}

// runOnce runs a single cycle in the foreground. Postgres is only needed for
// the pgvector backend; Redis is not used.
func runOnce(ctx context.Context, cfg config.Config, mode model.Mode, emailPreview bool) error {
	var database *db.DB
	if cfg.VectorStore.Backend == "pgvector" {
		var err error
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
	}

	orch, err := buildOrchestrator(cfg, pipelineOptions{
		database:     database,
		notifier:     notifier.FromConfig(cfg.Notifications, nil, ""),
		emailPreview: emailPreview,
	})
	if err != nil {
		return err
	}

	run, err := orch.Run(ctx, orchestrator.RunOptions{Mode: mode, Trigger: model.RunTriggerCLI})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "cycle finished",
		"run_id", run.ID,
		"status", run.Status,
		"report", run.Metrics.ReportPath,
		"items_analyzed", run.Metrics.ItemsAnalyzed)
	return nil
}

func runDaemon(ctx context.Context, cfg config.Config) error {
	slog.InfoContext(ctx, "radar worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer)

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.RunStream)

	orch, err := buildOrchestrator(cfg, pipelineOptions{
		database: database,
		notifier: notifier.FromConfig(cfg.Notifications, redisClient, cfg.Redis.EventStream),
	})
	if err != nil {
		return err
	}

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.RunStream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    1, // one cycle at a time
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	lock := worker.NewCycleLock(redisClient, cfg.Redis.LockKey, cfg.Redis.LockTTL)
	w := worker.New(consumer, orch, lock, worker.Config{MaxAttempts: 3})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:   cfg.Redis.RunStream,
		Group:    cfg.Redis.Group,
		Consumer: cfg.Redis.Consumer + "-reclaimer",
		// Longer than a cycle can run, so an in-flight request is never stolen.
		MinIdle:   cfg.Redis.LockTTL,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	sched, err := scheduler.New(cfg.Schedule, func(ctx context.Context, mode model.Mode, trigger model.RunTrigger) error {
		_, err := w.RunCycle(ctx, orchestrator.RunOptions{Mode: mode, Trigger: trigger})
		if errors.Is(err, worker.ErrCycleRunning) {
			slog.WarnContext(ctx, "skipping scheduled cycle, another is running")
			return nil
		}
		return err
	}, cfg.Redis.LockTTL)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	for _, job := range sched.ListJobs() {
		slog.InfoContext(ctx, "scheduled cycle", "mode", job.Name, "schedule", job.Schedule)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		reclaimer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	slog.InfoContext(ctx, "worker initialized and running")
	return g.Wait()
}

const banner = `
██████╗  █████╗ ██████╗  █████╗ ██████╗     ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔══██╗██╔══██╗██╔══██╗██╔══██╗██╔══██╗    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
██████╔╝███████║██║  ██║███████║██████╔╝    ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██╔══██╗██╔══██║██║  ██║██╔══██║██╔══██╗    ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
██║  ██║██║  ██║██████╔╝██║  ██║██║  ██║    ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝     ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
