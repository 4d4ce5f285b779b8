package database

import (
	"time"
)

// Camera status values as stored in the cameras table
const (
	CameraStatusActive   = 1
	CameraStatusInactive = 2
	CameraStatusOffline  = 3
)

// Camera represents a registered street camera
type Camera struct {
	ID          string
	Status      int
	VideoHLS    *string
	Description string
	Latitude    *float64
	Longitude   *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DetectionRecord represents a persisted flood or early-warning alert.
// Image carries the evidence bytes on the way in and is never read back;
// ImagePath is set once the image has been stored.
type DetectionRecord struct {
	ID          string
	CameraID    string
	IsFlooded   bool
	Medium      bool
	Confidence  float64
	ProbNormal  float64
	ProbFlooded float64
	ProbMedium  float64
	Image       []byte
	ImagePath   *string
	CreatedAt   time.Time
}
