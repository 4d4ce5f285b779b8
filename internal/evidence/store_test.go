package evidence

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smukkama/flood-monitor/internal/database"
)

func TestStore_Save(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	at := time.Date(2024, 1, 12, 15, 4, 5, 0, time.UTC)

	rel, err := s.Save("cam-1", []byte("jpeg-bytes"), at)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wantDir := filepath.Join("flood_detections", "2024", "01", "12")
	if filepath.Dir(rel) != wantDir {
		t.Errorf("Expected directory %s, got %s", wantDir, filepath.Dir(rel))
	}
	if !strings.HasPrefix(filepath.Base(rel), "cam-1-1705071845-") {
		t.Errorf("Unexpected file name %s", filepath.Base(rel))
	}

	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		t.Fatalf("Failed to read stored image: %v", err)
	}
	if !bytes.Equal(data, []byte("jpeg-bytes")) {
		t.Errorf("Stored content mismatch: %q", data)
	}
}

func TestStore_SaveUniqueNames(t *testing.T) {
	s := NewStore(t.TempDir())
	at := time.Now()

	a, _ := s.Save("cam", []byte("a"), at)
	b, _ := s.Save("cam", []byte("b"), at)
	if a == b {
		t.Error("Two saves in the same second must not collide")
	}
}

func TestStore_SaveErrors(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Save("cam", nil, time.Now()); err == nil {
		t.Error("Expected error for empty image")
	}

	// a regular file where the directory tree should go
	root := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(root).Save("cam", []byte("img"), time.Now()); err == nil {
		t.Error("Expected error when the store root is not a directory")
	}
}

type fakeInserter struct {
	err     error
	calls   int
	lastRec database.DetectionRecord
}

func (f *fakeInserter) InsertDetectionRecord(ctx context.Context, rec *database.DetectionRecord) error {
	f.calls++
	f.lastRec = *rec
	return f.err
}

func TestRecorder_SaveDetection(t *testing.T) {
	root := t.TempDir()
	db := &fakeInserter{}
	r := NewRecorder(db, NewStore(root))

	rec := &database.DetectionRecord{CameraID: "cam-1", IsFlooded: true, Image: []byte("jpeg")}
	if err := r.SaveDetection(context.Background(), rec); err != nil {
		t.Fatalf("SaveDetection failed: %v", err)
	}

	if db.calls != 1 {
		t.Fatalf("Expected 1 insert, got %d", db.calls)
	}
	if rec.ImagePath == nil || db.lastRec.ImagePath == nil {
		t.Fatal("Expected image path on the inserted record")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if data, err := os.ReadFile(filepath.Join(root, *rec.ImagePath)); err != nil || string(data) != "jpeg" {
		t.Errorf("Expected stored image, got %q (%v)", data, err)
	}
}

func TestRecorder_SaveDetectionWithoutImage(t *testing.T) {
	db := &fakeInserter{}
	r := NewRecorder(db, NewStore(t.TempDir()))

	path := "stale.jpg"
	rec := &database.DetectionRecord{CameraID: "cam-1", Medium: true, ImagePath: &path}
	if err := r.SaveDetection(context.Background(), rec); err != nil {
		t.Fatalf("SaveDetection failed: %v", err)
	}
	if db.calls != 1 {
		t.Errorf("Expected 1 insert, got %d", db.calls)
	}
	if rec.ImagePath != nil {
		t.Errorf("Expected no image path, got %s", *rec.ImagePath)
	}
}

func TestRecorder_ImageFailureSkipsInsert(t *testing.T) {
	// a regular file as the root makes every directory creation fail
	root := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := &fakeInserter{}
	r := NewRecorder(db, NewStore(root))

	rec := &database.DetectionRecord{CameraID: "cam-1", Image: []byte("jpeg")}
	if err := r.SaveDetection(context.Background(), rec); err == nil {
		t.Fatal("Expected image store error")
	}
	if db.calls != 0 {
		t.Errorf("Expected no insert after an image failure, got %d", db.calls)
	}
	if rec.ImagePath != nil {
		t.Error("Expected no image path after an image failure")
	}
}

func TestRecorder_InsertFailureRemovesImage(t *testing.T) {
	root := t.TempDir()
	dbErr := errors.New("connection reset")
	db := &fakeInserter{err: dbErr}
	r := NewRecorder(db, NewStore(root))

	rec := &database.DetectionRecord{CameraID: "cam-1", Image: []byte("jpeg")}
	err := r.SaveDetection(context.Background(), rec)
	if !errors.Is(err, dbErr) {
		t.Fatalf("Expected wrapped insert error, got %v", err)
	}

	if rec.ImagePath == nil {
		t.Fatal("Expected the attempted image path on the record")
	}
	if _, err := os.Stat(filepath.Join(root, *rec.ImagePath)); !os.IsNotExist(err) {
		t.Errorf("Expected orphan image to be removed, stat err: %v", err)
	}
}
