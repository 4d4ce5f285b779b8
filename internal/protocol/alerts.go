package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert levels, ordered by severity
const (
	LevelClear   = "CLEAR"
	LevelMedium  = "MEDIUM"
	LevelFlooded = "FLOODED"
)

// Notification types published on the alerts topic
const (
	AlertTypeRaised  = "FLOOD_ALERT_RAISED"
	AlertTypeChanged = "FLOOD_ALERT_CHANGED"
	AlertTypeCleared = "FLOOD_ALERT_CLEARED"
)

// AlertNotification is the message format for flood alert notifications
type AlertNotification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CameraID      string    `json:"camera_id"`
	CameraName    string    `json:"camera_name"`
	Stream        string    `json:"stream,omitempty"`
	Level         string    `json:"level"`
	PreviousLevel string    `json:"previous_level"`
	Confidence    float64   `json:"confidence"`
	MeanFlooded   float64   `json:"mean_flooded"`
	Rising        bool      `json:"rising"`
	Since         time.Time `json:"since"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Key is the partition key; all alerts of a camera stay ordered
func (n *AlertNotification) Key() string {
	return n.CameraID
}

// LevelRank orders levels by severity; unknown levels rank as CLEAR
func LevelRank(level string) int {
	switch level {
	case LevelMedium:
		return 1
	case LevelFlooded:
		return 2
	default:
		return 0
	}
}

// EncodeAlertNotification encodes an AlertNotification to JSON
func EncodeAlertNotification(n *AlertNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeAlertNotification decodes JSON to AlertNotification
func DecodeAlertNotification(data []byte) (*AlertNotification, error) {
	var n AlertNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	switch n.Type {
	case AlertTypeRaised, AlertTypeChanged, AlertTypeCleared:
	default:
		return nil, fmt.Errorf("unknown alert type %q", n.Type)
	}
	if n.CameraID == "" {
		return nil, fmt.Errorf("alert without camera id")
	}
	return &n, nil
}
