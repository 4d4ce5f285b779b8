package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/smukkama/flood-monitor/internal/classifier"
	"github.com/smukkama/flood-monitor/pkg/config"
)

var (
	// ErrNoFrames is returned when Aggregate is called with an empty batch.
	ErrNoFrames = errors.New("no frames to aggregate")
	// ErrNoClassifiedFrames is returned when every frame in the batch failed classification.
	ErrNoClassifiedFrames = errors.New("no frame could be classified")
)

// Trend is the ordered flooded-probability series of a batch.
type Trend struct {
	Series []float64 `json:"series"`
	Rising bool      `json:"rising"`
}

// Assessment is the classifier outcome for one frame of the batch.
type Assessment struct {
	Index         int
	Probabilities classifier.Probabilities
	Err           error
}

// Summary is the aggregated decision for one camera batch.
type Summary struct {
	MeanNormal       float64
	MeanFlooded      float64
	MeanMedium       float64
	BestFlooded      float64
	BestIndex        int
	DecisionFlooded  float64
	ChosenConfidence float64
	Strong           bool
	Medium           bool
	MediumBand       bool
	MediumFrames     int
	Trend            Trend
	ChosenBytes      []byte
	FramesCount      int
	FailedFrames     int
}

// Aggregate classifies every frame and folds the results into one decision.
//
// A frame whose classification fails is left out of every statistic; the
// batch is only rejected when no frame could be classified. Frame order is
// preserved because the trend compares the first and last classified frames.
func Aggregate(ctx context.Context, frames [][]byte, clf classifier.Classifier, cfg config.ThresholdConfig) (*Summary, []Assessment, error) {
	if len(frames) == 0 {
		return nil, nil, ErrNoFrames
	}

	assessments := make([]Assessment, 0, len(frames))
	classified := make([]Assessment, 0, len(frames))
	for idx, img := range frames {
		if err := ctx.Err(); err != nil {
			return nil, assessments, err
		}
		p, err := clf.Predict(ctx, img)
		a := Assessment{Index: idx, Probabilities: p, Err: err}
		assessments = append(assessments, a)
		if err == nil {
			classified = append(classified, a)
		}
	}

	if len(classified) == 0 {
		return nil, assessments, fmt.Errorf("%w: %d frames failed", ErrNoClassifiedFrames, len(frames))
	}

	s := summarize(classified, cfg)
	s.ChosenBytes = frames[s.BestIndex]
	s.FailedFrames = len(frames) - len(classified)
	return s, assessments, nil
}

func summarize(classified []Assessment, cfg config.ThresholdConfig) *Summary {
	n := float64(len(classified))

	best := classified[0]
	series := make([]float64, 0, len(classified))
	threeClass := false
	var sumNormal, sumFlooded, sumMedium float64
	for _, a := range classified {
		p := a.Probabilities
		// strict comparison keeps the earliest frame on ties
		if p.Flooded > best.Probabilities.Flooded {
			best = a
		}
		series = append(series, p.Flooded)
		sumNormal += p.Normal
		sumFlooded += p.Flooded
		sumMedium += p.MediumOrZero()
		threeClass = threeClass || p.HasMedium()
	}

	meanNormal, meanFlooded, meanMedium := normalize(sumNormal/n, sumFlooded/n, sumMedium/n, threeClass)

	bestFlooded := best.Probabilities.Flooded
	decision := max(bestFlooded, meanFlooded)

	chosen := best.Probabilities.Dominant()
	if decision == meanFlooded {
		chosen = meanFlooded
	}

	rising := false
	last := series[len(series)-1]
	if len(series) >= 2 {
		rising = last-series[0] >= cfg.TrendMinDelta
	}

	strong := decision >= cfg.StrongMin
	band := cfg.MediumMin <= meanFlooded && meanFlooded < cfg.MediumMax
	mediumFrames := 0
	for _, v := range series {
		if cfg.MediumMin <= v && v < cfg.StrongMin {
			mediumFrames++
		}
	}
	medium := !strong && (band ||
		mediumFrames >= cfg.MinMediumFrames ||
		(rising && last >= cfg.MediumMin))

	return &Summary{
		MeanNormal:       meanNormal,
		MeanFlooded:      meanFlooded,
		MeanMedium:       meanMedium,
		BestFlooded:      bestFlooded,
		BestIndex:        best.Index,
		DecisionFlooded:  decision,
		ChosenConfidence: chosen,
		Strong:           strong,
		Medium:           medium,
		MediumBand:       band,
		MediumFrames:     mediumFrames,
		Trend:            Trend{Series: series, Rising: rising},
		FramesCount:      len(classified),
	}
}

// normalize rescales the class means so they sum to exactly 100. Normal and
// flooded are scaled first and medium takes the remainder. An all-zero
// distribution falls back to an even split across the model's classes.
func normalize(normal, flooded, medium float64, threeClass bool) (float64, float64, float64) {
	total := normal + flooded + medium
	if total <= 0 {
		if threeClass {
			normal, flooded = 100.0/3, 100.0/3
			return normal, flooded, 100 - normal - flooded
		}
		return 50, 50, 0
	}
	normal = normal / total * 100
	flooded = flooded / total * 100
	return normal, flooded, 100 - (normal + flooded)
}
