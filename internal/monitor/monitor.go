package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
	"github.com/smukkama/flood-monitor/internal/capture"
	"github.com/smukkama/flood-monitor/internal/classifier"
	"github.com/smukkama/flood-monitor/internal/database"
	"github.com/smukkama/flood-monitor/internal/evaluation"
	"github.com/smukkama/flood-monitor/internal/registry"
	"github.com/smukkama/flood-monitor/pkg/config"
)

// Recorder persists a detection record. A non-nil Image asks for the
// evidence image to be stored along with the row.
type Recorder interface {
	SaveDetection(ctx context.Context, rec *database.DetectionRecord) error
}

// Options wires a Monitor to its collaborators
type Options struct {
	Registry    registry.Registry
	Opener      capture.Opener
	Classifiers classifier.Factory
	Recorder    Recorder
	Sampling    config.SamplingConfig
	Thresholds  config.ThresholdConfig
	Workers     int
	Logger      *slog.Logger
	// Summary receives the end-of-run table; nil disables it
	Summary io.Writer
}

// Monitor evaluates every active camera once per RunAll call.
type Monitor struct {
	registry    registry.Registry
	opener      capture.Opener
	classifiers classifier.Factory
	recorder    Recorder
	sampling    config.SamplingConfig
	thresholds  config.ThresholdConfig
	workers     int
	logger      *slog.Logger
	summary     io.Writer
	now         func() time.Time
}

// New creates a monitor
func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Monitor{
		registry:    opts.Registry,
		opener:      opts.Opener,
		classifiers: opts.Classifiers,
		recorder:    opts.Recorder,
		sampling:    opts.Sampling,
		thresholds:  opts.Thresholds,
		workers:     workers,
		logger:      logger,
		summary:     opts.Summary,
		now:         time.Now,
	}
}

// cameraJob is one camera queued for evaluation
type cameraJob struct {
	index  int
	camera registry.Camera
}

// RunAll evaluates every active camera and returns one result per camera in
// registry order together with the number of records saved. Per-camera
// failures never abort the run; only a registry or classifier set-up failure
// is returned as an error.
func (m *Monitor) RunAll(ctx context.Context) ([]CameraResult, int, error) {
	runID := uuid.NewString()
	started := m.now()

	cameras, err := m.registry.ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cameras: %w", err)
	}

	clf, err := m.classifiers()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create classifier: %w", err)
	}

	log := m.logger.With("run_id", runID)
	log.Info("evaluation run started", "cameras", len(cameras), "workers", m.workers)

	results := make([]CameraResult, len(cameras))
	var saved atomic.Int64

	workers := min(m.workers, len(cameras))
	jobs := make(chan cameraJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				res := m.evaluate(ctx, clf, job.camera, log.With("worker", id))
				if res.Saved {
					saved.Add(1)
				}
				// each index is written by exactly one worker
				results[job.index] = res
			}
		}(i)
	}

	for i, cam := range cameras {
		jobs <- cameraJob{index: i, camera: cam}
	}
	close(jobs)
	wg.Wait()

	total := int(saved.Load())
	log.Info("evaluation run finished",
		"cameras", len(results),
		"saved", total,
		"duration", time.Since(started).Round(time.Millisecond))

	if m.summary != nil {
		if err := WriteSummary(m.summary, results); err != nil {
			log.Warn("failed to write run summary", "error", err)
		}
	}

	return results, total, nil
}

// evaluate runs capture, classify, decide and persist for one camera. It
// never panics and never returns without a result.
func (m *Monitor) evaluate(ctx context.Context, clf classifier.Classifier, cam registry.Camera, log *slog.Logger) (res CameraResult) {
	log = log.With("camera_id", cam.ID, "camera", cam.Name)
	state := StatePending

	defer func() {
		if r := recover(); r != nil {
			err := xerrors.New(fmt.Errorf("panic during %s: %v", state, r))
			log.Error("camera evaluation panicked", slog.Any("error", err))
			res = sentinelResult(cam, StateNoFrames, m.now())
		}
	}()

	source := strings.TrimSpace(cam.StreamSource)
	if source == "" {
		log.Warn("camera has no stream source")
		return sentinelResult(cam, StateNoStream, m.now())
	}
	if strings.HasPrefix(source, DemoLoopPrefix) {
		log.Info("skipping demo loop camera", "source", source)
		return demoLoopResult(cam, m.now())
	}

	state = StateCapturing
	frames, err := capture.Frames(ctx, m.opener, source, m.sampling)
	if err != nil {
		log.Warn("frame capture failed", slog.Any("error", xerrors.New(err)))
	}
	if len(frames) == 0 {
		log.Info("no frames captured", "source", source)
		return sentinelResult(cam, StateNoFrames, m.now())
	}

	summary, _, err := evaluation.Aggregate(ctx, frames, clf, m.thresholds)
	if err != nil {
		log.Warn("frame classification failed", "frames", len(frames), slog.Any("error", xerrors.New(err)))
		return sentinelResult(cam, StateNoFrames, m.now())
	}
	state = StateClassified
	if summary.FailedFrames > 0 {
		log.Warn("some frames could not be classified", "failed", summary.FailedFrames, "frames", len(frames))
	}

	at := m.now()
	switch {
	case summary.Strong:
		state = StateStrongSave
	case summary.Medium:
		state = StateMediumSave
	default:
		state = StateNoFlood
	}

	res = classifiedResult(cam, summary, state, at)
	log.Debug("camera classified",
		"state", state,
		"decision_flooded", summary.DecisionFlooded,
		"mean_flooded", summary.MeanFlooded,
		"rising", summary.Trend.Rising)

	if state == StateNoFlood {
		return res
	}

	rec := &database.DetectionRecord{
		CameraID:    cam.ID,
		IsFlooded:   summary.Strong,
		Medium:      summary.Medium,
		Confidence:  summary.DecisionFlooded,
		ProbNormal:  summary.MeanNormal,
		ProbFlooded: summary.MeanFlooded,
		ProbMedium:  summary.MeanMedium,
		Image:       summary.ChosenBytes,
		CreatedAt:   at,
	}
	res.Saved = m.persist(ctx, rec, log)
	return res
}

// persist saves rec with its evidence image and falls back to a record
// without the image when that fails.
func (m *Monitor) persist(ctx context.Context, rec *database.DetectionRecord, log *slog.Logger) bool {
	if m.recorder == nil {
		return false
	}

	retry := *rec
	err := m.recorder.SaveDetection(ctx, rec)
	if err == nil {
		log.Info("detection saved", "record_id", rec.ID, "flooded", rec.IsFlooded, "medium", rec.Medium, "confidence", rec.Confidence)
		return true
	}
	if len(rec.Image) == 0 {
		log.Error("failed to save detection", slog.Any("error", xerrors.New(err)))
		return false
	}

	log.Warn("failed to save detection with image, retrying without it", slog.Any("error", xerrors.New(err)))
	retry.ID = ""
	retry.Image = nil
	retry.ImagePath = nil
	if err := m.recorder.SaveDetection(ctx, &retry); err != nil {
		log.Error("failed to save detection without image", slog.Any("error", xerrors.New(err)))
		return false
	}

	log.Info("detection saved without image", "record_id", retry.ID, "confidence", retry.Confidence)
	return true
}
