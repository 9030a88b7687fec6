// Package pipeline runs the single-owner frame loop: detect, deduplicate,
// track, consolidate, match and advance the gate state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/rs/zerolog"

	"gate-service/internal/camera"
	"gate-service/internal/detector"
	"gate-service/internal/domain/anpr"
	"gate-service/internal/gate"
	"gate-service/internal/metrics"
	"gate-service/internal/utils"
)

type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]anpr.Detection, error)
}

type Tracker interface {
	Track(ctx context.Context, dets []anpr.Detection, frame image.Image) ([]anpr.Track, error)
}

// aliveTracker is implemented by trackers that keep coasting tracks alive
// across frames in which they were not detected.
type aliveTracker interface {
	Alive() []string
}

type OwnerLookup interface {
	Lookup(ctx context.Context, plate string) *anpr.Owner
}

type Snapshotter interface {
	Save(frame image.Image, plate string) (string, error)
}

type Deps struct {
	Source       camera.Source
	Detector     Detector
	Tracker      Tracker
	Consolidator *detector.Consolidator
	Owners       OwnerLookup
	Machine      *gate.Machine
	// Snapshots is optional.
	Snapshots Snapshotter
}

type Options struct {
	ScoreThreshold float64
	IoUThreshold   float64
}

func DefaultOptions() Options {
	return Options{
		ScoreThreshold: detector.DefaultScoreThreshold,
		IoUThreshold:   detector.DefaultIoUThreshold,
	}
}

type Pipeline struct {
	deps    Deps
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics

	// notified maps tracks that already triggered an alert to their plate,
	// so a resolved plate is only re-notified by a fresh track. A timeout
	// releases the track: once the cool-down lapses the same vehicle is
	// alerted again.
	notified map[string]string
}

func New(deps Deps, opts Options, m *metrics.Metrics, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		deps:     deps,
		opts:     opts,
		log:      log.With().Str("component", "pipeline").Logger(),
		metrics:  m,
		notified: make(map[string]string),
	}
}

// Run processes frames until the source is exhausted or ctx is cancelled,
// both of which return nil. A source read failure ends the loop with an
// error.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info().Msg("frame loop started")
	defer p.deps.Consolidator.Close()

	frames := 0
	for {
		if ctx.Err() != nil {
			p.log.Info().Int("frames", frames).Msg("frame loop stopped")
			return nil
		}
		frame, err := p.deps.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info().Int("frames", frames).Msg("frame source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				p.log.Info().Int("frames", frames).Msg("frame loop stopped")
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}
		frames++
		p.Process(ctx, frame)
	}
}

// Process runs one frame through the pipeline. Detector and tracker
// failures skip the frame but still advance pending approvals.
func (p *Pipeline) Process(ctx context.Context, frame image.Image) {
	p.metrics.Frame()
	defer p.poll(ctx)

	dets, err := p.deps.Detector.Detect(ctx, frame)
	if err != nil {
		p.log.Warn().Err(err).Msg("detection failed, skipping frame")
		return
	}
	scored := detector.FilterByScore(dets, p.opts.ScoreThreshold)
	kept := detector.Deduplicate(scored, p.opts.IoUThreshold)
	p.metrics.Detections("low_score", len(dets)-len(scored))
	p.metrics.Detections("suppressed", len(scored)-len(kept))
	p.metrics.Detections("kept", len(kept))

	tracks, err := p.deps.Tracker.Track(ctx, kept, frame)
	if err != nil {
		p.log.Warn().Err(err).Msg("tracking failed, skipping frame")
		return
	}

	for _, t := range tracks {
		if !t.Confirmed {
			continue
		}
		p.handleTrack(ctx, frame, t)
	}

	alive := p.alive(tracks)
	p.deps.Consolidator.Collect(alive)
	p.deps.Consolidator.Retain(alive)
	for id := range p.notified {
		if _, ok := alive[id]; !ok {
			delete(p.notified, id)
		}
	}
	p.metrics.Tracks(len(alive))
}

func (p *Pipeline) handleTrack(ctx context.Context, frame image.Image, t anpr.Track) {
	plate, ok := p.deps.Consolidator.Consolidate(ctx, t.ID, frame, t.Box)
	if !ok {
		return
	}
	if _, done := p.notified[t.ID]; done {
		return
	}
	if p.deps.Machine.Suppressed(plate) {
		return
	}
	owner := p.deps.Owners.Lookup(ctx, plate)
	if owner == nil {
		return
	}

	imageRef := ""
	if p.deps.Snapshots != nil {
		ref, err := p.deps.Snapshots.Save(frame, plate)
		if err != nil {
			p.log.Warn().Err(err).Str("plate", plate).Msg("failed to save snapshot")
		} else {
			imageRef = ref
		}
	}
	if p.deps.Machine.Detect(ctx, plate, *owner, t.ID, imageRef) {
		p.notified[t.ID] = utils.NormalizePlate(plate)
	}
}

// poll advances the gate and releases tracks whose plate timed out.
func (p *Pipeline) poll(ctx context.Context) {
	for _, plate := range p.deps.Machine.Poll(ctx) {
		for id, notifiedPlate := range p.notified {
			if notifiedPlate == plate {
				delete(p.notified, id)
			}
		}
	}
}

func (p *Pipeline) alive(tracks []anpr.Track) map[string]struct{} {
	alive := make(map[string]struct{}, len(tracks))
	if at, ok := p.deps.Tracker.(aliveTracker); ok {
		for _, id := range at.Alive() {
			alive[id] = struct{}{}
		}
		return alive
	}
	for _, t := range tracks {
		alive[t.ID] = struct{}{}
	}
	return alive
}
