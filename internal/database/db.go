package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in lexical order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		slog.Info("running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	slog.Info("migrations completed", "count", len(sqlFiles))
	return nil
}

// ListActiveCameras returns every camera with ACTIVE status, oldest first
func (db *DB) ListActiveCameras(ctx context.Context) ([]*Camera, error) {
	query := `
		SELECT id, status, video_hls, description, latitude, longitude,
		       created_at, updated_at
		FROM cameras
		WHERE status = $1
		ORDER BY created_at, id
	`

	rows, err := db.QueryContext(ctx, query, CameraStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []*Camera
	for rows.Next() {
		var c Camera
		if err := rows.Scan(
			&c.ID,
			&c.Status,
			&c.VideoHLS,
			&c.Description,
			&c.Latitude,
			&c.Longitude,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cameras = append(cameras, &c)
	}

	return cameras, rows.Err()
}

// UpsertCamera inserts or updates a camera by id
func (db *DB) UpsertCamera(ctx context.Context, c *Camera) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	query := `
		INSERT INTO cameras (id, status, video_hls, description, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    video_hls = EXCLUDED.video_hls,
		    description = EXCLUDED.description,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := db.ExecContext(ctx, query, c.ID, c.Status, c.VideoHLS, c.Description, c.Latitude, c.Longitude)
	return err
}

// InsertDetectionRecord persists an alert; ID and CreatedAt are filled in when empty
func (db *DB) InsertDetectionRecord(ctx context.Context, rec *DetectionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO flood_detection_records (
			id, camera_id, is_flooded, medium, confidence,
			prob_normal, prob_flooded, prob_medium, image_path, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.ExecContext(ctx, query,
		rec.ID,
		rec.CameraID,
		rec.IsFlooded,
		rec.Medium,
		rec.Confidence,
		rec.ProbNormal,
		rec.ProbFlooded,
		rec.ProbMedium,
		rec.ImagePath,
		rec.CreatedAt,
	)
	return err
}

// LatestDetections returns the most recent alert of each camera
func (db *DB) LatestDetections(ctx context.Context, limit int) ([]*DetectionRecord, error) {
	query := `
		SELECT DISTINCT ON (camera_id)
		       id, camera_id, is_flooded, medium, confidence,
		       prob_normal, prob_flooded, prob_medium, image_path, created_at
		FROM flood_detection_records
		ORDER BY camera_id, created_at DESC
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DetectionRecord
	for rows.Next() {
		var r DetectionRecord
		if err := rows.Scan(
			&r.ID,
			&r.CameraID,
			&r.IsFlooded,
			&r.Medium,
			&r.Confidence,
			&r.ProbNormal,
			&r.ProbFlooded,
			&r.ProbMedium,
			&r.ImagePath,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}
