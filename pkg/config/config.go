package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	SMTP       SMTPConfig
	Sampling   SamplingConfig
	Thresholds ThresholdConfig
	Classifier ClassifierConfig
	Monitor    MonitorConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers     []string
	TopicAlerts string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SamplingConfig controls how frames are pulled from a camera in one pass.
type SamplingConfig struct {
	SampleFrames   int
	SampleInterval time.Duration
	WarmupDrops    int
}

// ThresholdConfig holds the decision thresholds, all in percent.
type ThresholdConfig struct {
	StrongMin       float64
	MediumMin       float64
	MediumMax       float64
	TrendMinDelta   float64
	MinMediumFrames int
}

type ClassifierConfig struct {
	URL     string
	Timeout time.Duration
}

type MonitorConfig struct {
	Interval        time.Duration
	Workers         int
	CacheTTL        time.Duration
	CacheKey        string
	EvidenceDir     string
	CamerasFile     string
	SnapshotTimeout time.Duration
}

// DefaultSampling returns the sampling policy used when nothing is overridden.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		SampleFrames:   3,
		SampleInterval: 150 * time.Millisecond,
		WarmupDrops:    2,
	}
}

// DefaultThresholds returns the stock decision thresholds.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		StrongMin:       60.0,
		MediumMin:       25.0,
		MediumMax:       60.0,
		TrendMinDelta:   10.0,
		MinMediumFrames: 2,
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	sampling := DefaultSampling()
	thresholds := DefaultThresholds()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "flood_user"),
			Password: getEnv("DB_PASSWORD", "flood_pass"),
			DBName:   getEnv("DB_NAME", "flood_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicAlerts: getEnv("KAFKA_TOPIC_ALERTS", "flood.alerts"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "flood-monitor@example.com"),
			To:       getEnv("SMTP_TO", "civil-defense@example.com"),
		},
		Sampling: SamplingConfig{
			SampleFrames:   getEnvAsInt("FLOOD_SAMPLE_FRAMES", sampling.SampleFrames),
			SampleInterval: time.Duration(getEnvAsInt("FLOOD_SAMPLE_INTERVAL_MS", int(sampling.SampleInterval/time.Millisecond))) * time.Millisecond,
			WarmupDrops:    getEnvAsInt("FLOOD_WARMUP_DROPS", sampling.WarmupDrops),
		},
		Thresholds: ThresholdConfig{
			StrongMin:       getEnvAsFloat("FLOOD_STRONG_MIN", thresholds.StrongMin),
			MediumMin:       getEnvAsFloat("FLOOD_MEDIUM_MIN", thresholds.MediumMin),
			MediumMax:       getEnvAsFloat("FLOOD_MEDIUM_MAX", thresholds.MediumMax),
			TrendMinDelta:   getEnvAsFloat("FLOOD_TREND_MIN_DELTA", thresholds.TrendMinDelta),
			MinMediumFrames: getEnvAsInt("FLOOD_MIN_MEDIUM_FRAMES", thresholds.MinMediumFrames),
		},
		Classifier: ClassifierConfig{
			URL:     getEnv("CLASSIFIER_URL", "http://localhost:8000"),
			Timeout: getEnvAsDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			Interval:        getEnvAsDuration("MONITOR_INTERVAL", 5*time.Minute),
			Workers:         getEnvAsInt("MONITOR_WORKERS", 1),
			CacheTTL:        time.Duration(getEnvAsInt("PREDICT_CACHE_TTL_SECONDS", 300)) * time.Second,
			CacheKey:        getEnv("PREDICT_CACHE_KEY", "flood:predict_all"),
			EvidenceDir:     getEnv("EVIDENCE_DIR", "media"),
			CamerasFile:     getEnv("CAMERAS_FILE", ""),
			SnapshotTimeout: getEnvAsDuration("SNAPSHOT_TIMEOUT", 5*time.Second),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate rejects settings that would make the decision policy meaningless.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Sampling.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Monitor.Workers < 1 {
		errs = append(errs, fmt.Errorf("MONITOR_WORKERS must be >= 1, got %d", c.Monitor.Workers))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("MONITOR_INTERVAL must be positive, got %s", c.Monitor.Interval))
	}
	return errors.Join(errs...)
}

func (s SamplingConfig) Validate() error {
	var errs []error
	if s.SampleFrames < 1 {
		errs = append(errs, fmt.Errorf("FLOOD_SAMPLE_FRAMES must be >= 1, got %d", s.SampleFrames))
	}
	if s.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("FLOOD_SAMPLE_INTERVAL_MS must be >= 0, got %s", s.SampleInterval))
	}
	if s.WarmupDrops < 0 {
		errs = append(errs, fmt.Errorf("FLOOD_WARMUP_DROPS must be >= 0, got %d", s.WarmupDrops))
	}
	return errors.Join(errs...)
}

func (t ThresholdConfig) Validate() error {
	var errs []error
	bounded := []struct {
		name  string
		value float64
	}{
		{"FLOOD_STRONG_MIN", t.StrongMin},
		{"FLOOD_MEDIUM_MIN", t.MediumMin},
		{"FLOOD_MEDIUM_MAX", t.MediumMax},
		{"FLOOD_TREND_MIN_DELTA", t.TrendMinDelta},
	}
	for _, b := range bounded {
		if math.IsNaN(b.value) || b.value < 0 || b.value > 100 {
			errs = append(errs, fmt.Errorf("%s must be within [0,100], got %.2f", b.name, b.value))
		}
	}
	if t.MediumMin > t.MediumMax {
		errs = append(errs, fmt.Errorf("FLOOD_MEDIUM_MIN (%.2f) exceeds FLOOD_MEDIUM_MAX (%.2f)", t.MediumMin, t.MediumMax))
	}
	if t.MediumMin > t.StrongMin {
		errs = append(errs, fmt.Errorf("FLOOD_MEDIUM_MIN (%.2f) exceeds FLOOD_STRONG_MIN (%.2f)", t.MediumMin, t.StrongMin))
	}
	if t.MinMediumFrames < 1 {
		errs = append(errs, fmt.Errorf("FLOOD_MIN_MEDIUM_FRAMES must be >= 1, got %d", t.MinMediumFrames))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	warnUnparsed(key, valueStr, defaultValue)
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	warnUnparsed(key, valueStr, defaultValue)
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	warnUnparsed(key, valueStr, defaultValue)
	return defaultValue
}

// warnUnparsed reports a set but malformed variable that fell back to its default
func warnUnparsed(key, raw string, defaultValue any) {
	if raw == "" {
		return
	}
	slog.Warn("ignoring malformed environment variable", "key", key, "value", raw, "default", defaultValue)
}
