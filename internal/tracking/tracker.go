// Package tracking assigns persistent identities to plate detections across
// frames with greedy IoU association.
package tracking

import (
	"context"
	"image"
	"strconv"
	"sync"

	"gate-service/internal/detector"
	"gate-service/internal/domain/anpr"
)

type Options struct {
	// MaxAge is the number of consecutive missed frames after which a track
	// is dropped.
	MaxAge int
	// MinHits is the number of matched frames before a track is confirmed.
	MinHits      int
	IoUThreshold float64
}

func DefaultOptions() Options {
	return Options{MaxAge: 30, MinHits: 3, IoUThreshold: 0.3}
}

type track struct {
	id    string
	box   anpr.Box
	hits  int
	since int
}

// Tracker is a SORT-like tracker without motion prediction: each detection
// is matched to the unmatched live track it overlaps most, above the IoU
// threshold, and unmatched detections start new tracks.
type Tracker struct {
	opts Options

	mu     sync.Mutex
	tracks []*track
	nextID int
}

func New(opts Options) *Tracker {
	if opts.MinHits < 1 {
		opts.MinHits = 1
	}
	if opts.MaxAge < 0 {
		opts.MaxAge = 0
	}
	return &Tracker{opts: opts}
}

// Track updates the tracker with one frame's detections and returns the
// tracks matched or created in this frame, in detection order.
func (t *Tracker) Track(_ context.Context, dets []anpr.Detection, _ image.Image) ([]anpr.Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tr := range t.tracks {
		tr.since++
	}

	matched := make(map[*track]bool, len(t.tracks))
	out := make([]anpr.Track, 0, len(dets))

	for _, det := range dets {
		var best *track
		bestIoU := t.opts.IoUThreshold
		for _, tr := range t.tracks {
			if matched[tr] {
				continue
			}
			if v := detector.IoU(det.Box, tr.box); v > bestIoU {
				bestIoU = v
				best = tr
			}
		}
		if best == nil {
			t.nextID++
			best = &track{id: strconv.Itoa(t.nextID)}
			t.tracks = append(t.tracks, best)
		}
		best.box = det.Box
		best.hits++
		best.since = 0
		matched[best] = true

		out = append(out, anpr.Track{
			ID:        best.id,
			Box:       best.box,
			Confirmed: best.hits >= t.opts.MinHits,
		})
	}

	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.since <= t.opts.MaxAge {
			kept = append(kept, tr)
		}
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept

	return out, nil
}

// Alive lists the IDs of tracks that have not aged out, including ones
// missed in the latest frame.
func (t *Tracker) Alive() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, len(t.tracks))
	for i, tr := range t.tracks {
		ids[i] = tr.id
	}
	return ids
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}
