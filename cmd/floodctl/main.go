package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/flood-monitor/internal/cache"
	"github.com/smukkama/flood-monitor/internal/capture"
	"github.com/smukkama/flood-monitor/internal/classifier"
	"github.com/smukkama/flood-monitor/internal/database"
	"github.com/smukkama/flood-monitor/internal/monitor"
	"github.com/smukkama/flood-monitor/internal/queue"
	"github.com/smukkama/flood-monitor/internal/registry"
	"github.com/smukkama/flood-monitor/internal/stream"
	"github.com/smukkama/flood-monitor/pkg/config"
)

const usage = `usage: floodctl <command> [flags]

commands:
  migrate                      apply SQL migrations
  seed <cameras.yaml>          upsert cameras from a YAML file
  snapshot -url U [-timeout D] classify a single frame from a stream
  results                      print the cached results of the last run
  detections [-limit N]        print the latest detection per camera
  topic [-partitions N]        create the alerts topic
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	args := os.Args[2:]

	switch os.Args[1] {
	case "migrate":
		err = migrate(cfg)
	case "seed":
		err = seed(ctx, cfg, args)
	case "snapshot":
		err = snapshot(ctx, cfg, args)
	case "results":
		err = results(ctx, cfg)
	case "detections":
		err = detections(ctx, cfg, args)
	case "topic":
		err = topic(cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func connectDB(cfg *config.Config) (*database.DB, error) {
	return database.Connect(cfg.Database.ConnectionString())
}

func migrate(cfg *config.Config) error {
	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		return err
	}
	fmt.Println("✓ Migrations applied")
	return nil
}

func seed(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected a single camera file")
	}

	reg, err := registry.LoadFile(args[0])
	if err != nil {
		return err
	}

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cameras := reg.All()
	for _, c := range cameras {
		if err := db.UpsertCamera(ctx, registry.ToRow(c)); err != nil {
			return fmt.Errorf("camera %s: %w", c.Name, err)
		}
		fmt.Printf("  %s  %-8s %s\n", c.ID, c.Status, c.Name)
	}
	fmt.Printf("✓ Seeded %d cameras\n", len(cameras))
	return nil
}

func snapshot(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	url := fs.String("url", "", "stream source")
	timeout := fs.Duration("timeout", cfg.Monitor.SnapshotTimeout, "maximum wait for a usable frame")
	fs.Parse(args)

	if *url == "" {
		return errors.New("-url is required")
	}

	img, err := capture.Snapshot(ctx, stream.OpenCV{}, *url, *timeout, 50*time.Millisecond)
	if err != nil {
		return err
	}

	clf := classifier.NewHTTPClassifier(&cfg.Classifier)
	p, err := clf.Predict(ctx, img)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"source":        *url,
		"frame_bytes":   len(img),
		"probabilities": p,
		"strong":        p.Flooded >= cfg.Thresholds.StrongMin,
	})
}

func results(ctx context.Context, cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	rc := cache.NewResultCache(client, cfg.Monitor.CacheKey, cfg.Monitor.CacheTTL)
	p, err := rc.Latest(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Println("No cached results")
		return nil
	}

	fmt.Printf("Last run %s ago (%d cameras)\n\n", rc.Age(p).Round(time.Second), len(p.Data))
	return monitor.WriteSummary(os.Stdout, p.Data)
}

func detections(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("detections", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum number of cameras")
	fs.Parse(args)

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.LatestDetections(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMERA\tAT\tFLOODED\tMEDIUM\tCONF\tIMAGE")
	for _, r := range recs {
		image := "-"
		if r.ImagePath != nil {
			image = *r.ImagePath
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%.1f\t%s\n",
			r.CameraID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.IsFlooded, r.Medium, r.Confidence, image)
	}
	return tw.Flush()
}

func topic(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("topic", flag.ExitOnError)
	partitions := fs.Int("partitions", 3, "number of partitions")
	replication := fs.Int("replication", 1, "replication factor")
	fs.Parse(args)

	return queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, *partitions, *replication)
}
