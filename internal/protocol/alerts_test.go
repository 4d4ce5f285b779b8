package protocol

import (
	"testing"
	"time"
)

func TestDecodeAlertNotification(t *testing.T) {
	in := &AlertNotification{
		ID:            "n-1",
		Type:          AlertTypeRaised,
		CameraID:      "cam-1",
		Level:         LevelFlooded,
		PreviousLevel: LevelClear,
		Confidence:    77.5,
		Since:         time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	data, err := EncodeAlertNotification(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := DecodeAlertNotification(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Key() != "cam-1" || out.Level != LevelFlooded || !out.Since.Equal(in.Since) {
		t.Errorf("Unexpected notification %+v", out)
	}
}

func TestDecodeAlertNotification_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"type":`},
		{"unknown type", `{"type":"ALARM_TRIGGERED","camera_id":"c"}`},
		{"missing camera", `{"type":"FLOOD_ALERT_CLEARED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeAlertNotification([]byte(tt.data)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLevelRank(t *testing.T) {
	if !(LevelRank(LevelClear) < LevelRank(LevelMedium) && LevelRank(LevelMedium) < LevelRank(LevelFlooded)) {
		t.Error("Levels must be ordered CLEAR < MEDIUM < FLOODED")
	}
	if LevelRank("bogus") != LevelRank(LevelClear) {
		t.Error("Unknown level should rank as CLEAR")
	}
}
