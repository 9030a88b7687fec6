package detector

import (
	"context"
	"errors"
	"image"
	"sync"

	"gate-service/internal/domain/anpr"
)

type scriptedRecognizer struct {
	mu        sync.Mutex
	responses [][]anpr.Fragment
	err       error
	calls     int
}

func (s *scriptedRecognizer) Recognize(_ context.Context, crop image.Image) ([]anpr.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, nil
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func (s *scriptedRecognizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type blockingRecognizer struct {
	release chan struct{}
	frags   []anpr.Fragment
	started chan string
}

func newBlockingRecognizer(frags []anpr.Fragment) *blockingRecognizer {
	return &blockingRecognizer{
		release: make(chan struct{}),
		frags:   frags,
		started: make(chan string, 16),
	}
}

func (b *blockingRecognizer) Recognize(ctx context.Context, _ image.Image) ([]anpr.Fragment, error) {
	b.started <- "started"
	select {
	case <-b.release:
		return b.frags, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errRecognizer = errors.New("sidecar unavailable")

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

// plateBox is 100x40, 200x80 after the default 2x upscale.
var plateBox = anpr.Box{X1: 100, Y1: 100, X2: 200, Y2: 140}

func oneFragment(text string, score float64) []anpr.Fragment {
	return []anpr.Fragment{{Box: anpr.Box{X1: 0, Y1: 0, X2: 80, Y2: 20}, Text: text, Score: score}}
}
