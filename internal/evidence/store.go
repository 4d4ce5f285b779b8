package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/flood-monitor/internal/database"
)

// Store keeps evidence images on the local filesystem, bucketed by day.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Save writes image and returns its path relative to the store root
func (s *Store) Save(cameraID string, image []byte, at time.Time) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty evidence image")
	}

	rel := filepath.Join(
		"flood_detections",
		at.Format("2006"), at.Format("01"), at.Format("02"),
		fmt.Sprintf("%s-%d-%s.jpg", cameraID, at.Unix(), uuid.NewString()[:8]),
	)
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}
	if err := os.WriteFile(full, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write evidence image: %w", err)
	}

	return rel, nil
}

// Path resolves a stored relative path
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, rel)
}

// Inserter writes detection rows; *database.DB implements it.
type Inserter interface {
	InsertDetectionRecord(ctx context.Context, rec *database.DetectionRecord) error
}

// Recorder persists detection records, storing the evidence image first.
type Recorder struct {
	db    Inserter
	store *Store
}

// NewRecorder creates a recorder writing rows to db and images to store
func NewRecorder(db Inserter, store *Store) *Recorder {
	return &Recorder{db: db, store: store}
}

// SaveDetection stores rec.Image (when present) and inserts the record. An
// image failure is returned as-is so the caller can retry without the image.
func (r *Recorder) SaveDetection(ctx context.Context, rec *database.DetectionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	rec.ImagePath = nil
	if len(rec.Image) > 0 {
		path, err := r.store.Save(rec.CameraID, rec.Image, rec.CreatedAt)
		if err != nil {
			return err
		}
		rec.ImagePath = &path
	}

	if err := r.db.InsertDetectionRecord(ctx, rec); err != nil {
		if rec.ImagePath != nil {
			_ = os.Remove(r.store.Path(*rec.ImagePath))
		}
		return fmt.Errorf("failed to insert detection record: %w", err)
	}
	return nil
}
