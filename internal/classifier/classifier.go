package classifier

import (
	"context"
)

// Probabilities is one frame's class distribution in percent (0..100).
// Medium is nil for two-class models.
type Probabilities struct {
	Normal  float64  `json:"normal"`
	Flooded float64  `json:"flooded"`
	Medium  *float64 `json:"medium,omitempty"`
}

// MediumOrZero returns the medium probability, treating an absent class as 0.
func (p Probabilities) MediumOrZero() float64 {
	if p.Medium == nil {
		return 0
	}
	return *p.Medium
}

// HasMedium reports whether the producing model has a medium class.
func (p Probabilities) HasMedium() bool {
	return p.Medium != nil
}

// Dominant returns the larger of the flooded and normal probabilities.
func (p Probabilities) Dominant() float64 {
	if p.Flooded > p.Normal {
		return p.Flooded
	}
	return p.Normal
}

// Classifier maps one encoded image to a class distribution.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, image []byte) (Probabilities, error)
}

// Factory builds the classifier shared by every camera in one run.
type Factory func() (Classifier, error)

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, image []byte) (Probabilities, error)

func (f Func) Predict(ctx context.Context, image []byte) (Probabilities, error) {
	return f(ctx, image)
}

// Float is a convenience for building an optional medium value.
func Float(v float64) *float64 {
	return &v
}
