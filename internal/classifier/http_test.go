package classifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smukkama/flood-monitor/pkg/config"
)

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *HTTPClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClassifier(&config.ClassifierConfig{URL: srv.URL + "/", Timeout: time.Second})
}

func TestHTTPClassifier_TwoClass(t *testing.T) {
	var gotType string
	var gotBody []byte
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("Expected /predict, got %s", r.URL.Path)
		}
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"probabilities":{"normal":30.5,"flooded":69.5}}`))
	})

	p, err := c.Predict(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if gotType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", gotType)
	}
	if string(gotBody) != "jpeg" {
		t.Errorf("Expected body to be forwarded, got %q", gotBody)
	}
	if p.Flooded != 69.5 || p.Normal != 30.5 {
		t.Errorf("Unexpected probabilities %+v", p)
	}
	if p.HasMedium() {
		t.Error("Two-class response should not carry medium")
	}
}

func TestHTTPClassifier_ThreeClass(t *testing.T) {
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probabilities":{"normal":20,"flooded":50,"medium":30}}`))
	})

	p, err := c.Predict(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if !p.HasMedium() || p.MediumOrZero() != 30 {
		t.Errorf("Expected medium 30, got %+v", p)
	}
}

func TestHTTPClassifier_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `boom`},
		{"missing probabilities", http.StatusOK, `{}`},
		{"malformed json", http.StatusOK, `{"probabilities":`},
		{"negative", http.StatusOK, `{"probabilities":{"normal":-1,"flooded":50}}`},
		{"over 100", http.StatusOK, `{"probabilities":{"normal":80,"flooded":80}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			})
			if _, err := c.Predict(context.Background(), []byte("jpeg")); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestHTTPClassifier_EmptyImage(t *testing.T) {
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Server should not be called for an empty image")
	})
	if _, err := c.Predict(context.Background(), nil); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestProbabilities_Dominant(t *testing.T) {
	p := Probabilities{Normal: 40, Flooded: 35, Medium: Float(25)}
	if p.Dominant() != 40 {
		t.Errorf("Expected 40, got %.2f", p.Dominant())
	}
}
