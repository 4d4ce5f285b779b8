package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smukkama/flood-monitor/pkg/config"
)

var (
	ErrOpen            = errors.New("stream could not be opened")
	ErrSnapshotTimeout = errors.New("no frame captured before timeout")
)

// Stream is an open video source. Grab returns (nil, nil) when no frame is
// available right now. Close must be safe to call more than once.
type Stream interface {
	Grab() ([]byte, error)
	Close() error
}

// Opener opens a stream for a camera's source descriptor (URL, file path, ...).
type Opener interface {
	Open(ctx context.Context, source string) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, source string) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, source string) (Stream, error) {
	return f(ctx, source)
}

// Frames pulls one frame batch from source: WarmupDrops frames are discarded,
// then SampleFrames grabs are attempted with SampleInterval between them.
// Grabs that return no data still use up an attempt. The stream is closed on
// every exit path. The only error returned is an open failure, in which case
// the batch is empty; a cancelled context ends sampling with what was captured.
func Frames(ctx context.Context, opener Opener, source string, cfg config.SamplingConfig) ([][]byte, error) {
	stream, err := opener.Open(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("stream close failed", "source", source, "error", cerr)
		}
	}()

	for i := 0; i < cfg.WarmupDrops; i++ {
		if ctx.Err() != nil {
			return nil, nil
		}
		_, _ = stream.Grab()
	}

	attempts := cfg.SampleFrames
	if attempts < 1 {
		attempts = 1
	}

	frames := make([][]byte, 0, attempts)
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			break
		}

		img, err := stream.Grab()
		if err != nil {
			slog.Debug("frame grab failed", "source", source, "attempt", i, "error", err)
		} else if len(img) > 0 {
			frames = append(frames, img)
		}

		if i < attempts-1 && cfg.SampleInterval > 0 {
			if !sleep(ctx, cfg.SampleInterval) {
				break
			}
		}
	}

	return frames, nil
}

// Snapshot waits up to timeout for a single usable frame, polling every poll.
func Snapshot(ctx context.Context, opener Opener, source string, timeout, poll time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := opener.Open(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer stream.Close()

	if poll <= 0 {
		poll = 50 * time.Millisecond
	}

	for {
		img, err := stream.Grab()
		if err == nil && len(img) > 0 {
			return img, nil
		}
		if !sleep(ctx, poll) {
			return nil, ErrSnapshotTimeout
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
