package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smukkama/flood-monitor/internal/capture"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when the decoder hands back an empty image.
var ErrEmptyFrame = errors.New("empty frame")

// OpenCV opens HLS, RTSP and file sources through OpenCV's FFmpeg backend.
type OpenCV struct{}

var _ capture.Opener = OpenCV{}

func (OpenCV) Open(ctx context.Context, source string) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture is not opened")
	}

	// keep the decoder close to live instead of replaying buffered frames
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &openCVStream{capture: vc, frame: gocv.NewMat()}, nil
}

type openCVStream struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	closed  bool
}

func (s *openCVStream) Grab() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}
	if !s.capture.Read(&s.frame) {
		return nil, fmt.Errorf("failed to read frame")
	}
	if s.frame.Empty() {
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// the native buffer is freed on Close
	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (s *openCVStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	return s.capture.Close()
}
