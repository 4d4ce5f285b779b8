package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/smukkama/flood-monitor/internal/classifier"
	"github.com/smukkama/flood-monitor/pkg/config"
)

// tableClassifier answers with probabilities keyed by the frame bytes.
type tableClassifier struct {
	table map[string]classifier.Probabilities
	fail  map[string]bool
	calls []string
}

func (c *tableClassifier) Predict(ctx context.Context, img []byte) (classifier.Probabilities, error) {
	c.calls = append(c.calls, string(img))
	if c.fail[string(img)] {
		return classifier.Probabilities{}, fmt.Errorf("corrupt frame %s", img)
	}
	p, ok := c.table[string(img)]
	if !ok {
		return classifier.Probabilities{}, fmt.Errorf("unknown frame %s", img)
	}
	return p, nil
}

// twoClass builds a classifier that returns flooded=f, normal=100-f for frame "fN".
func twoClass(flooded ...float64) ([][]byte, *tableClassifier) {
	c := &tableClassifier{table: map[string]classifier.Probabilities{}, fail: map[string]bool{}}
	frames := make([][]byte, len(flooded))
	for i, f := range flooded {
		name := fmt.Sprintf("f%d", i)
		frames[i] = []byte(name)
		c.table[name] = classifier.Probabilities{Normal: 100 - f, Flooded: f}
	}
	return frames, c
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestAggregate_DegenerateTwoClass(t *testing.T) {
	c := &tableClassifier{table: map[string]classifier.Probabilities{
		"a": {}, "b": {},
	}}

	s, _, err := Aggregate(context.Background(), [][]byte{[]byte("a"), []byte("b")}, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if s.MeanNormal != 50 || s.MeanFlooded != 50 || s.MeanMedium != 0 {
		t.Errorf("Expected 50/50/0 split, got %.2f/%.2f/%.2f", s.MeanNormal, s.MeanFlooded, s.MeanMedium)
	}
	if s.Strong {
		t.Error("50% should not be strong")
	}
}

func TestAggregate_DegenerateThreeClass(t *testing.T) {
	c := &tableClassifier{table: map[string]classifier.Probabilities{
		"a": {Medium: classifier.Float(0)},
	}}

	s, _, err := Aggregate(context.Background(), [][]byte{[]byte("a")}, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if !approx(s.MeanNormal, 100.0/3) || !approx(s.MeanFlooded, 100.0/3) {
		t.Errorf("Expected even thirds, got %.4f/%.4f", s.MeanNormal, s.MeanFlooded)
	}
	if !approx(s.MeanNormal+s.MeanFlooded+s.MeanMedium, 100) {
		t.Errorf("Expected sum of 100, got %v", s.MeanNormal+s.MeanFlooded+s.MeanMedium)
	}
}

func TestAggregate_SingleStrongFrame(t *testing.T) {
	frames, c := twoClass(85)

	s, _, err := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if s.BestFlooded != 85 || s.MeanFlooded != 85 || s.DecisionFlooded != 85 {
		t.Errorf("Expected 85 across the board, got best=%.2f mean=%.2f decision=%.2f",
			s.BestFlooded, s.MeanFlooded, s.DecisionFlooded)
	}
	if !s.Strong {
		t.Error("Expected strong decision")
	}
	if s.Medium {
		t.Error("Strong decision must not be medium")
	}
	if s.Trend.Rising {
		t.Error("A single frame cannot have a rising trend")
	}
}

func TestAggregate_MediumBand(t *testing.T) {
	frames, c := twoClass(20, 30, 58)

	s, _, err := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if !approx(s.MeanFlooded, 36) {
		t.Errorf("Expected mean flooded 36, got %.4f", s.MeanFlooded)
	}
	if s.BestFlooded != 58 || s.DecisionFlooded != 58 {
		t.Errorf("Expected best/decision 58, got %.2f/%.2f", s.BestFlooded, s.DecisionFlooded)
	}
	if s.Strong {
		t.Error("58 should not be strong")
	}
	if !s.MediumBand || !s.Medium {
		t.Errorf("Expected medium band and flag, got band=%v medium=%v", s.MediumBand, s.Medium)
	}
	if s.MediumFrames != 2 {
		t.Errorf("Expected 2 medium frames, got %d", s.MediumFrames)
	}
	if !s.Trend.Rising {
		t.Error("20 -> 58 should be rising")
	}
	if string(s.ChosenBytes) != "f2" || s.BestIndex != 2 {
		t.Errorf("Expected evidence from frame 2, got %s (idx %d)", s.ChosenBytes, s.BestIndex)
	}
}

func TestAggregate_MediumByFrameCount(t *testing.T) {
	// mean 20 is below the band but two frames sit inside [25, 60)
	frames, c := twoClass(30, 0, 30)

	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.MediumBand {
		t.Error("Mean 20 should be outside the medium band")
	}
	if s.MediumFrames != 2 || !s.Medium {
		t.Errorf("Expected medium via frame count, got frames=%d medium=%v", s.MediumFrames, s.Medium)
	}
}

func TestAggregate_MediumByRisingTrend(t *testing.T) {
	cfg := config.DefaultThresholds()
	cfg.MinMediumFrames = 5
	frames, c := twoClass(0, 0, 26)

	s, _, _ := Aggregate(context.Background(), frames, c, cfg)
	if s.MediumBand {
		t.Error("Mean should be outside the medium band")
	}
	if !s.Trend.Rising || !s.Medium {
		t.Errorf("Expected medium via rising trend, got rising=%v medium=%v", s.Trend.Rising, s.Medium)
	}
}

func TestAggregate_RisingTrendBelowMediumMin(t *testing.T) {
	frames, c := twoClass(0, 5, 15)

	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if !s.Trend.Rising {
		t.Error("0 -> 15 should be rising")
	}
	if s.Medium {
		t.Error("Last frame below medium_min must not raise medium")
	}
}

func TestAggregate_NoFlood(t *testing.T) {
	frames, c := twoClass(5, 3, 4)

	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.Strong || s.Medium {
		t.Errorf("Expected no flood, got strong=%v medium=%v", s.Strong, s.Medium)
	}
	// decision comes from the best frame (5), whose dominant class is normal
	if s.ChosenConfidence != 95 {
		t.Errorf("Expected chosen confidence 95, got %.2f", s.ChosenConfidence)
	}
}

func TestAggregate_ChosenConfidence(t *testing.T) {
	// best frame dominates the mean, so confidence is the best frame's dominant class
	frames, c := twoClass(10, 70)
	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.ChosenConfidence != 70 {
		t.Errorf("Expected 70, got %.2f", s.ChosenConfidence)
	}

	// identical frames: the mean equals the best, so the mean is used
	frames, c = twoClass(50, 50)
	s, _, _ = Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.ChosenConfidence != s.MeanFlooded {
		t.Errorf("Expected mean flooded %.2f, got %.2f", s.MeanFlooded, s.ChosenConfidence)
	}
}

func TestAggregate_TieKeepsFirstFrame(t *testing.T) {
	frames, c := twoClass(10, 65, 30, 65)

	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.BestIndex != 1 || string(s.ChosenBytes) != "f1" {
		t.Errorf("Expected first maximal frame (1), got %d", s.BestIndex)
	}
}

func TestAggregate_StrongThresholdInclusive(t *testing.T) {
	frames, c := twoClass(60)
	s, _, _ := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if !s.Strong {
		t.Error("Decision equal to strong_min must be strong")
	}

	frames, c = twoClass(59.999)
	s, _, _ = Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if s.Strong {
		t.Error("Decision just below strong_min must not be strong")
	}
}

func TestAggregate_ThreeClassNormalization(t *testing.T) {
	c := &tableClassifier{table: map[string]classifier.Probabilities{
		"a": {Normal: 30, Flooded: 30, Medium: classifier.Float(30)},
		"b": {Normal: 10, Flooded: 50, Medium: classifier.Float(20)},
	}}

	s, _, err := Aggregate(context.Background(), [][]byte{[]byte("a"), []byte("b")}, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	// means 20/40/25 over a total of 85
	if !approx(s.MeanNormal, 20.0/85*100) || !approx(s.MeanFlooded, 40.0/85*100) {
		t.Errorf("Unexpected normalized means %.4f/%.4f", s.MeanNormal, s.MeanFlooded)
	}
	if !approx(s.MeanNormal+s.MeanFlooded+s.MeanMedium, 100) {
		t.Errorf("Means do not sum to 100: %v", s.MeanNormal+s.MeanFlooded+s.MeanMedium)
	}
}

func TestAggregate_SkipsFailedFrames(t *testing.T) {
	frames, c := twoClass(20, 90, 40)
	c.fail["f1"] = true

	s, assessments, err := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(assessments) != 3 || assessments[1].Err == nil {
		t.Fatalf("Expected failed assessment for frame 1, got %+v", assessments)
	}
	if s.FramesCount != 2 || s.FailedFrames != 1 {
		t.Errorf("Expected 2 classified / 1 failed, got %d / %d", s.FramesCount, s.FailedFrames)
	}
	if !approx(s.MeanFlooded, 30) {
		t.Errorf("Expected mean over remaining frames (30), got %.4f", s.MeanFlooded)
	}
	if len(s.Trend.Series) != 2 || s.Trend.Series[1] != 40 {
		t.Errorf("Expected series [20 40], got %v", s.Trend.Series)
	}
	if string(s.ChosenBytes) != "f2" {
		t.Errorf("Expected evidence from frame 2, got %s", s.ChosenBytes)
	}
}

func TestAggregate_AllFramesFail(t *testing.T) {
	frames, c := twoClass(20, 90)
	c.fail["f0"], c.fail["f1"] = true, true

	_, _, err := Aggregate(context.Background(), frames, c, config.DefaultThresholds())
	if !errors.Is(err, ErrNoClassifiedFrames) {
		t.Errorf("Expected ErrNoClassifiedFrames, got %v", err)
	}
}

func TestAggregate_EmptyBatch(t *testing.T) {
	c := &tableClassifier{}
	_, _, err := Aggregate(context.Background(), nil, c, config.DefaultThresholds())
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
	if len(c.calls) != 0 {
		t.Error("Classifier must not be called for an empty batch")
	}
}

func TestAggregate_Properties(t *testing.T) {
	cfg := config.DefaultThresholds()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		c := &tableClassifier{table: map[string]classifier.Probabilities{}}
		frames := make([][]byte, n)
		for j := range frames {
			name := fmt.Sprintf("%d-%d", i, j)
			frames[j] = []byte(name)
			flooded := rng.Float64() * 100
			rest := 100 - flooded
			p := classifier.Probabilities{Flooded: flooded, Normal: rest}
			if i%2 == 0 {
				m := rest * rng.Float64()
				p.Normal, p.Medium = rest-m, classifier.Float(m)
			}
			c.table[name] = p
		}

		s, _, err := Aggregate(context.Background(), frames, c, cfg)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}

		if sum := s.MeanNormal + s.MeanFlooded + s.MeanMedium; math.Abs(sum-100) > 1e-6 {
			t.Fatalf("Case %d: means sum to %v", i, sum)
		}
		if s.Strong && s.Medium {
			t.Fatalf("Case %d: strong and medium both set", i)
		}
		if (s.DecisionFlooded >= cfg.StrongMin) != s.Strong {
			t.Fatalf("Case %d: strong=%v with decision %.4f", i, s.Strong, s.DecisionFlooded)
		}
		if n == 1 && s.Trend.Rising {
			t.Fatalf("Case %d: single frame reported rising trend", i)
		}
	}
}
