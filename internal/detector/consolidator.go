package detector

import (
	"context"
	"errors"
	"image"

	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
	"gate-service/internal/metrics"
	"gate-service/internal/utils"
)

// Recognizer reads text fragments from a plate crop.
type Recognizer interface {
	Recognize(ctx context.Context, crop image.Image) ([]anpr.Fragment, error)
}

type Policy string

const (
	// PolicyOnce stops recognizing a track as soon as it has a plate.
	PolicyOnce Policy = "once"
	// PolicyRepeat keeps recognizing every RepeatEvery frames until the
	// winning candidate holds ConfidentVotes votes.
	PolicyRepeat Policy = "repeat"
)

type Options struct {
	Crop           CropOptions
	Line           LineOptions
	Policy         Policy
	RepeatEvery    int
	ConfidentVotes int
	// Workers > 0 moves recognition onto a background Pool.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Crop:           DefaultCropOptions(),
		Line:           DefaultLineOptions(),
		Policy:         PolicyOnce,
		RepeatEvery:    10,
		ConfidentVotes: 3,
	}
}

// Consolidator owns the per-track vote table and consolidated plates. It is
// not safe for concurrent use; the frame loop is its only caller.
type Consolidator struct {
	recognizer Recognizer
	opts       Options
	votes      *VoteTable
	plates     map[string]string
	sinceTry   map[string]int
	pool       *Pool
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

func NewConsolidator(recognizer Recognizer, opts Options, m *metrics.Metrics, log zerolog.Logger) *Consolidator {
	if opts.Policy == "" {
		opts.Policy = PolicyOnce
	}
	c := &Consolidator{
		recognizer: recognizer,
		opts:       opts,
		votes:      NewVoteTable(),
		plates:     make(map[string]string),
		sinceTry:   make(map[string]int),
		log:        log.With().Str("component", "consolidator").Logger(),
		metrics:    m,
	}
	if opts.Workers > 0 {
		c.pool = NewPool(recognizer, opts.Workers)
	}
	return c
}

// Consolidate returns the consolidated plate of trackID, running recognition
// on the box region of frame when the track still needs it. ok is false while
// the track has no plate yet.
func (c *Consolidator) Consolidate(ctx context.Context, trackID string, frame image.Image, box anpr.Box) (string, bool) {
	plate, has := c.plates[trackID]
	if has && !c.retryDue(trackID) {
		return plate, true
	}
	if c.pool != nil && c.pool.Busy(trackID) {
		return plate, has
	}

	crop, err := PrepareCrop(frame, box, c.opts.Crop)
	if err != nil {
		c.metrics.OCRAttempt("skipped")
		if !errors.Is(err, ErrCropEmpty) {
			c.log.Debug().Err(err).Str("track", trackID).Msg("crop skipped")
		}
		return plate, has
	}

	if c.pool != nil {
		if !c.pool.Submit(ctx, trackID, crop) {
			c.metrics.OCRAttempt("skipped")
		}
		return plate, has
	}

	frags, err := c.recognizer.Recognize(ctx, crop)
	if err != nil {
		c.metrics.OCRAttempt("error")
		c.log.Warn().Err(err).Str("track", trackID).Msg("recognition failed")
		return plate, has
	}
	return c.apply(trackID, frags)
}

// Collect applies finished background recognitions for tracks in alive and
// drops the rest. It is a no-op when recognition runs inline.
func (c *Consolidator) Collect(alive map[string]struct{}) {
	if c.pool == nil {
		return
	}
	for _, res := range c.pool.Drain() {
		if _, ok := alive[res.TrackID]; !ok {
			continue
		}
		if res.Err != nil {
			c.metrics.OCRAttempt("error")
			c.log.Warn().Err(res.Err).Str("track", res.TrackID).Msg("recognition failed")
			continue
		}
		c.apply(res.TrackID, res.Fragments)
	}
}

func (c *Consolidator) apply(trackID string, frags []anpr.Fragment) (string, bool) {
	text, conf := ExtractMainLine(frags, c.opts.Line)
	text = utils.NormalizePlate(text)
	if text == "" {
		c.metrics.OCRAttempt("empty")
		plate, has := c.plates[trackID]
		return plate, has
	}
	c.metrics.OCRAttempt("text")

	winner := c.votes.Vote(trackID, text)
	previous, had := c.plates[trackID]
	c.plates[trackID] = winner

	if !had || previous != winner {
		c.log.Info().
			Str("track", trackID).
			Str("candidate", text).
			Float64("confidence", conf).
			Str("plate", winner).
			Int("votes", c.votes.Count(trackID)).
			Msg("plate consolidated")
	}
	return winner, true
}

func (c *Consolidator) retryDue(trackID string) bool {
	if c.opts.Policy != PolicyRepeat || c.votes.Count(trackID) >= c.opts.ConfidentVotes {
		return false
	}
	c.sinceTry[trackID]++
	if c.sinceTry[trackID] < c.opts.RepeatEvery {
		return false
	}
	c.sinceTry[trackID] = 0
	return true
}

func (c *Consolidator) Plate(trackID string) (string, bool) {
	p, ok := c.plates[trackID]
	return p, ok
}

func (c *Consolidator) Votes(trackID string) map[string]int {
	return c.votes.Counts(trackID)
}

// Retain drops every piece of per-track state whose track is not in alive
// and cancels its pending recognition.
func (c *Consolidator) Retain(alive map[string]struct{}) {
	for id := range c.plates {
		if _, ok := alive[id]; !ok {
			c.forget(id)
		}
	}
	for id := range c.sinceTry {
		if _, ok := alive[id]; !ok {
			c.forget(id)
		}
	}
	if c.pool == nil {
		return
	}
	for _, id := range c.pool.Tracks() {
		if _, ok := alive[id]; !ok {
			c.pool.Cancel(id)
		}
	}
}

func (c *Consolidator) forget(trackID string) {
	delete(c.plates, trackID)
	delete(c.sinceTry, trackID)
	c.votes.Forget(trackID)
	if c.pool != nil {
		c.pool.Cancel(trackID)
	}
}

// Close stops background recognition.
func (c *Consolidator) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
