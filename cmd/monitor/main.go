package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/flood-monitor/internal/alarming"
	"github.com/smukkama/flood-monitor/internal/cache"
	"github.com/smukkama/flood-monitor/internal/classifier"
	"github.com/smukkama/flood-monitor/internal/database"
	"github.com/smukkama/flood-monitor/internal/evidence"
	"github.com/smukkama/flood-monitor/internal/monitor"
	"github.com/smukkama/flood-monitor/internal/queue"
	"github.com/smukkama/flood-monitor/internal/registry"
	"github.com/smukkama/flood-monitor/internal/stream"
	"github.com/smukkama/flood-monitor/internal/timer"
	"github.com/smukkama/flood-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	fmt.Println("Starting Flood Monitor...")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	fmt.Println("Connected to Redis")

	var reg registry.Registry = registry.NewDBRegistry(db)
	if cfg.Monitor.CamerasFile != "" {
		fileReg, err := registry.LoadFile(cfg.Monitor.CamerasFile)
		if err != nil {
			log.Fatalf("Failed to load camera file: %v", err)
		}
		reg = fileReg
		fmt.Printf("Loaded %d cameras from %s\n", len(fileReg.All()), cfg.Monitor.CamerasFile)
	}

	alertProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
	defer alertProducer.Close()
	fmt.Println("Alert producer initialized")

	mon := monitor.New(monitor.Options{
		Registry:    reg,
		Opener:      stream.OpenCV{},
		Classifiers: classifier.NewHTTPClassifier(&cfg.Classifier).Factory(),
		Recorder:    evidence.NewRecorder(db, evidence.NewStore(cfg.Monitor.EvidenceDir)),
		Sampling:    cfg.Sampling,
		Thresholds:  cfg.Thresholds,
		Workers:     cfg.Monitor.Workers,
		Logger:      logger,
		Summary:     os.Stdout,
	})
	results := cache.NewResultCache(redisClient, cfg.Monitor.CacheKey, cfg.Monitor.CacheTTL)
	tracker := alarming.NewTracker(alarming.NewRedisStateStore(redisClient), alertProducer, logger)

	scheduler := timer.NewScheduler(1)
	scheduler.Start()

	err = scheduler.Every("flood-evaluation", cfg.Monitor.Interval, func() {
		runOnce(ctx, mon, results, tracker, logger)
		fmt.Printf("Next evaluation scheduled for: %s\n", time.Now().Add(cfg.Monitor.Interval).Format("2006-01-02 15:04:05"))
	})
	if err != nil {
		log.Fatalf("Failed to schedule evaluation: %v", err)
	}

	fmt.Println("\n✓ Flood Monitor is running")
	fmt.Printf("✓ Evaluating every %s with %d worker(s)\n", cfg.Monitor.Interval, cfg.Monitor.Workers)
	fmt.Println("✓ Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
	scheduler.Stop()
}

func runOnce(ctx context.Context, mon *monitor.Monitor, results *cache.ResultCache, tracker *alarming.Tracker, logger *slog.Logger) {
	fmt.Println("\n--- Running Flood Evaluation ---")
	defer fmt.Println("--- Flood Evaluation Complete ---")

	out, saved, err := mon.RunAll(ctx)
	if err != nil {
		logger.Error("evaluation run failed", "error", err)
		return
	}

	cached := 0
	if err := results.Publish(ctx, out); err != nil {
		logger.Error("failed to cache results", "error", err)
	} else {
		cached = len(out)
	}

	sent, err := tracker.Observe(ctx, out)
	if err != nil {
		logger.Error("failed to update alert states", "error", err)
	}

	logger.Info("evaluation complete", "saved", saved, "cached", cached, "alerts", sent)
}
