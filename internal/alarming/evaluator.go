package alarming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/flood-monitor/internal/monitor"
	"github.com/smukkama/flood-monitor/internal/protocol"
)

// Publisher delivers alert notifications
type Publisher interface {
	PublishAlert(ctx context.Context, n *protocol.AlertNotification) error
}

// Tracker follows each camera's alert level across runs and announces changes
type Tracker struct {
	states    StateStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewTracker creates a new alert tracker
func NewTracker(states StateStore, publisher Publisher, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		states:    states,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// LevelOf maps a run result to an alert level
func LevelOf(r monitor.CameraResult) string {
	switch {
	case r.IsFlooded:
		return protocol.LevelFlooded
	case r.Medium:
		return protocol.LevelMedium
	default:
		return protocol.LevelClear
	}
}

// Observe folds one run into the per-camera alert states and returns the
// number of notifications published. Results that were never classified keep
// the camera's current state. A failing camera does not stop the others.
func (t *Tracker) Observe(ctx context.Context, results []monitor.CameraResult) (int, error) {
	published := 0
	var errs []error

	for _, r := range results {
		if r.Sentinel() {
			continue
		}
		sent, err := t.observe(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", r.Camera.ID, err))
			continue
		}
		if sent {
			published++
		}
	}

	return published, errors.Join(errs...)
}

func (t *Tracker) observe(ctx context.Context, r monitor.CameraResult) (bool, error) {
	state, err := t.states.GetState(ctx, r.Camera.ID)
	if err != nil {
		return false, err
	}

	now := t.now()
	level := LevelOf(r)

	if state.Level == level {
		if level == protocol.LevelClear {
			return false, nil
		}
		state.LastChecked = now
		state.LastConfidence = r.Confidence
		return false, t.states.SetState(ctx, r.Camera.ID, state)
	}

	n := &protocol.AlertNotification{
		ID:            uuid.NewString(),
		CameraID:      r.Camera.ID,
		CameraName:    r.Camera.Name,
		Stream:        r.Camera.Stream,
		Level:         level,
		PreviousLevel: state.Level,
		Confidence:    r.Confidence,
		MeanFlooded:   r.Probabilities.Flooded,
		Since:         now,
		ObservedAt:    now,
	}
	if r.Meta.Trend != nil {
		n.Rising = r.Meta.Trend.Rising
	}

	switch {
	case state.Level == protocol.LevelClear:
		n.Type = protocol.AlertTypeRaised
	case level == protocol.LevelClear:
		n.Type = protocol.AlertTypeCleared
		n.Since = state.Since
	default:
		n.Type = protocol.AlertTypeChanged
	}

	// state only moves once the notification is out, so a failed publish is retried next run
	if err := t.publisher.PublishAlert(ctx, n); err != nil {
		return false, fmt.Errorf("failed to publish alert: %w", err)
	}

	t.logger.Info("flood alert level changed",
		"camera_id", r.Camera.ID,
		"camera", r.Camera.Name,
		"type", n.Type,
		"from", n.PreviousLevel,
		"to", n.Level,
		"confidence", r.Confidence)

	if level == protocol.LevelClear {
		return true, t.states.DeleteState(ctx, r.Camera.ID)
	}
	return true, t.states.SetState(ctx, r.Camera.ID, &AlertState{
		Level:          level,
		Since:          now,
		LastChecked:    now,
		LastConfidence: r.Confidence,
		NotificationID: n.ID,
	})
}
