package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smukkama/flood-monitor/pkg/config"
)

// sumTolerance absorbs float rounding in model outputs that are nominally 100%.
const sumTolerance = 0.5

// HTTPClassifier calls a model-serving endpoint that accepts a JPEG body.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

type predictResponse struct {
	Probabilities *Probabilities `json:"probabilities"`
}

// NewHTTPClassifier creates a classifier client for the configured model server
func NewHTTPClassifier(cfg *config.ClassifierConfig) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/predict",
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Factory returns a Factory that hands out this client.
func (c *HTTPClassifier) Factory() Factory {
	return func() (Classifier, error) { return c, nil }
}

// Predict sends the image to the model server and validates the distribution
func (c *HTTPClassifier) Predict(ctx context.Context, image []byte) (Probabilities, error) {
	if len(image) == 0 {
		return Probabilities{}, fmt.Errorf("empty image")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return Probabilities{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Probabilities{}, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Probabilities{}, fmt.Errorf("classifier returned %d after %s: %s",
			resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(body)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Probabilities{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if out.Probabilities == nil {
		return Probabilities{}, fmt.Errorf("classifier response has no probabilities")
	}

	if err := validate(*out.Probabilities); err != nil {
		return Probabilities{}, err
	}
	return *out.Probabilities, nil
}

func validate(p Probabilities) error {
	if p.Normal < 0 || p.Flooded < 0 || p.MediumOrZero() < 0 {
		return fmt.Errorf("negative probability in %+v", p)
	}
	if sum := p.Normal + p.Flooded + p.MediumOrZero(); sum > 100+sumTolerance {
		return fmt.Errorf("probabilities sum to %.2f, expected <= 100", sum)
	}
	return nil
}
