package monitor

import (
	"time"

	"github.com/smukkama/flood-monitor/internal/evaluation"
	"github.com/smukkama/flood-monitor/internal/registry"
)

// State is the position of one camera in an evaluation pass.
type State string

const (
	StatePending    State = "PENDING"
	StateCapturing  State = "CAPTURING"
	StateNoStream   State = "NO_STREAM"
	StateNoFrames   State = "NO_FRAMES"
	StateClassified State = "CLASSIFIED"
	StateStrongSave State = "STRONG_SAVE"
	StateMediumSave State = "MEDIUM_SAVE"
	StateNoFlood    State = "NO_FLOOD"
)

// Terminal reports whether no further transition can happen in this pass.
func (s State) Terminal() bool {
	switch s {
	case StateNoStream, StateNoFrames, StateStrongSave, StateMediumSave, StateNoFlood:
		return true
	}
	return false
}

// Sentinel notes carried by results that were never classified
const (
	NoteNoStream = "no-stream"
	NoteNoFrame  = "no-frame"
	NoteDemoLoop = "demo-loop"
)

// DemoLoopPrefix marks looping local demo feeds, which are never captured or persisted
const DemoLoopPrefix = "loop:"

// Status labels shown to result consumers
const (
	StatusNoStream = "no stream"
	StatusNoFrame  = "no frame"
	StatusDemoLoop = "demo loop"
	StatusFlooded  = "flooded"
	StatusMedium   = "medium"
	StatusNoFlood  = "no flood"
)

// CameraRef identifies the camera a result belongs to
type CameraRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Stream string `json:"stream"`
}

// ResultProbabilities are the normalized batch means in percent
type ResultProbabilities struct {
	Normal  float64 `json:"normal"`
	Flooded float64 `json:"flooded"`
	Medium  float64 `json:"medium"`
}

// ResultMeta carries the aggregation details behind a decision
type ResultMeta struct {
	Frames           int               `json:"frames"`
	BestFlooded      float64           `json:"best_flooded"`
	DecisionFlooded  float64           `json:"decision_flooded"`
	ChosenConfidence float64           `json:"chosen_confidence"`
	Trend            *evaluation.Trend `json:"trend,omitempty"`
	Note             string            `json:"note,omitempty"`
}

// CameraResult is the uniform per-camera entry of a run, one per active camera.
type CameraResult struct {
	Camera        CameraRef           `json:"camera"`
	Status        string              `json:"status"`
	State         State               `json:"-"`
	IsFlooded     bool                `json:"is_flooded"`
	Medium        bool                `json:"medium"`
	Confidence    float64             `json:"confidence"`
	Probabilities ResultProbabilities `json:"probabilities"`
	Saved         bool                `json:"saved"`
	Meta          ResultMeta          `json:"meta"`
	EvaluatedAt   time.Time           `json:"evaluated_at"`
}

// Sentinel reports whether the result was produced without a classification
func (r CameraResult) Sentinel() bool {
	switch r.Meta.Note {
	case NoteNoStream, NoteNoFrame, NoteDemoLoop:
		return true
	}
	return false
}

func refOf(cam registry.Camera) CameraRef {
	return CameraRef{ID: cam.ID, Name: cam.Name, Stream: cam.StreamSource}
}

func sentinelResult(cam registry.Camera, state State, at time.Time) CameraResult {
	r := CameraResult{
		Camera:      refOf(cam),
		State:       state,
		EvaluatedAt: at,
	}
	if state == StateNoStream {
		r.Status = StatusNoStream
		r.Meta.Note = NoteNoStream
	} else {
		r.Status = StatusNoFrame
		r.Meta.Note = NoteNoFrame
	}
	return r
}

func demoLoopResult(cam registry.Camera, at time.Time) CameraResult {
	r := sentinelResult(cam, StateNoStream, at)
	r.Status = StatusDemoLoop
	r.Meta.Note = NoteDemoLoop
	return r
}

func classifiedResult(cam registry.Camera, s *evaluation.Summary, state State, at time.Time) CameraResult {
	trend := s.Trend
	r := CameraResult{
		Camera:     refOf(cam),
		State:      state,
		IsFlooded:  s.Strong,
		Medium:     s.Medium,
		Confidence: s.DecisionFlooded,
		Probabilities: ResultProbabilities{
			Normal:  s.MeanNormal,
			Flooded: s.MeanFlooded,
			Medium:  s.MeanMedium,
		},
		Meta: ResultMeta{
			Frames:           s.FramesCount + s.FailedFrames,
			BestFlooded:      s.BestFlooded,
			DecisionFlooded:  s.DecisionFlooded,
			ChosenConfidence: s.ChosenConfidence,
			Trend:            &trend,
		},
		EvaluatedAt: at,
	}
	switch state {
	case StateStrongSave:
		r.Status = StatusFlooded
	case StateMediumSave:
		r.Status = StatusMedium
	default:
		r.Status = StatusNoFlood
	}
	return r
}
