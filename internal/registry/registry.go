package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/smukkama/flood-monitor/internal/database"
)

// Status is a camera's operational status.
type Status int

const (
	StatusActive   Status = database.CameraStatusActive
	StatusInactive Status = database.CameraStatusInactive
	StatusOffline  Status = database.CameraStatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusOffline:
		return "OFFLINE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return StatusActive, nil
	case "INACTIVE":
		return StatusInactive, nil
	case "OFFLINE":
		return StatusOffline, nil
	default:
		return 0, fmt.Errorf("invalid camera status %q", s)
	}
}

// Camera is what the monitor needs to know about one camera.
type Camera struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	StreamSource string   `json:"stream" yaml:"stream"`
	Status       Status   `json:"-" yaml:"-"`
	Latitude     *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude    *float64 `json:"longitude,omitempty" yaml:"longitude"`
}

// Registry lists the cameras to evaluate.
type Registry interface {
	ListActive(ctx context.Context) ([]Camera, error)
}

// DBRegistry reads cameras from the cameras table.
type DBRegistry struct {
	db *database.DB
}

func NewDBRegistry(db *database.DB) *DBRegistry {
	return &DBRegistry{db: db}
}

func (r *DBRegistry) ListActive(ctx context.Context) ([]Camera, error) {
	rows, err := r.db.ListActiveCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active cameras: %w", err)
	}

	cameras := make([]Camera, 0, len(rows))
	for _, row := range rows {
		cameras = append(cameras, FromRow(row))
	}
	return cameras, nil
}

// FromRow converts a database row into a registry camera.
func FromRow(row *database.Camera) Camera {
	c := Camera{
		ID:        row.ID,
		Name:      row.Description,
		Status:    Status(row.Status),
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
	}
	if row.VideoHLS != nil {
		c.StreamSource = strings.TrimSpace(*row.VideoHLS)
	}
	return c
}

// ToRow converts a registry camera into a database row.
func ToRow(c Camera) *database.Camera {
	row := &database.Camera{
		ID:          c.ID,
		Status:      int(c.Status),
		Description: c.Name,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
	}
	if c.StreamSource != "" {
		src := c.StreamSource
		row.VideoHLS = &src
	}
	return row
}
