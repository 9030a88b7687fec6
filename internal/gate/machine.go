// Package gate tracks the notification and approval lifecycle of each
// detected plate.
//
// A plate is idle until a registered owner's vehicle is detected. Detection
// sends one alert and makes the plate pending; the pending plate is polled
// against the approval store until a decision arrives or the response
// deadline passes. A timed-out plate is blacklisted for a cool-down during
// which detections are ignored.
package gate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gate-service/internal/approval"
	"gate-service/internal/domain/anpr"
	"gate-service/internal/events"
	"gate-service/internal/metrics"
	"gate-service/internal/notify"
	"gate-service/internal/utils"
)

type State int

const (
	Idle State = iota
	Pending
	Resolved
	Blacklisted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Blacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

type Options struct {
	ResponseTimeout time.Duration
	Cooldown        time.Duration
	// PollInterval spaces approval store reads for one plate.
	PollInterval time.Duration
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		ResponseTimeout: 60 * time.Second,
		Cooldown:        30 * time.Second,
		PollInterval:    500 * time.Millisecond,
		Now:             time.Now,
	}
}

// Entry is a read-only view of one non-idle plate.
type Entry struct {
	Plate    string     `json:"plate"`
	State    string     `json:"state"`
	Owner    anpr.Owner `json:"owner"`
	TrackID  string     `json:"track_id,omitempty"`
	Deadline time.Time  `json:"deadline"`
}

type entry struct {
	state    State
	owner    anpr.Owner
	trackID  string
	imageRef string
	// deadline is the response deadline while pending and the cool-down
	// expiry while blacklisted.
	deadline time.Time
	nextPoll time.Time
}

// Machine holds one entry per canonical plate; a plate without an entry is
// idle. Methods are safe for concurrent use, though the frame loop is the
// only writer.
type Machine struct {
	store     approval.Store
	sink      notify.Sink
	publisher events.Publisher
	opts      Options
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	// outbox holds events raised under mu; they are published after it is
	// released.
	outbox []anpr.GateEvent
}

func NewMachine(store approval.Store, sink notify.Sink, publisher events.Publisher, opts Options, m *metrics.Metrics, log zerolog.Logger) *Machine {
	def := DefaultOptions()
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = def.ResponseTimeout
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = notify.Noop{}
	}
	return &Machine{
		store:     store,
		sink:      sink,
		publisher: publisher,
		opts:      opts,
		log:       log.With().Str("component", "gate").Logger(),
		metrics:   m,
		entries:   make(map[string]*entry),
	}
}

// State returns the current state of plate, expiring a lapsed blacklist.
func (m *Machine) State(plate string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(utils.NormalizePlate(plate), m.opts.Now())
	if e == nil {
		return Idle
	}
	return e.state
}

// Suppressed reports whether detections of plate must be ignored because it
// is pending or blacklisted.
func (m *Machine) Suppressed(plate string) bool {
	return m.State(plate) != Idle
}

// Detect moves an idle plate to pending, marks it in the approval store and
// sends exactly one alert. It reports whether the transition happened;
// detections of pending or blacklisted plates are no-ops.
func (m *Machine) Detect(ctx context.Context, plate string, owner anpr.Owner, trackID, imageRef string) bool {
	key := utils.NormalizePlate(plate)
	if key == "" {
		return false
	}

	defer m.flush(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	if m.lookup(key, now) != nil {
		return false
	}

	e := &entry{
		state:    Pending,
		owner:    owner,
		trackID:  trackID,
		imageRef: imageRef,
		deadline: now.Add(m.opts.ResponseTimeout),
		nextPoll: now,
	}
	m.entries[key] = e

	log := m.log.With().Str("plate", key).Str("track", trackID).Str("owner", owner.Name).Logger()

	if err := m.store.MarkPending(ctx, key); err != nil {
		log.Warn().Err(err).Msg("failed to mark plate pending")
	}
	if err := m.sink.Notify(ctx, owner, key, imageRef); err != nil {
		log.Error().Err(err).Msg("failed to notify owner")
	}
	log.Info().Time("deadline", e.deadline).Msg("plate pending approval")

	m.publish(ctx, anpr.EventNotified, key, e, now)
	m.updateGauges()
	return true
}

// Poll advances every pending and blacklisted plate: it consumes decisions
// from the approval store, times out plates past their deadline and expires
// lapsed blacklists. It returns the plates that timed out in this call.
func (m *Machine) Poll(ctx context.Context) []string {
	defer m.flush(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()

	var timedOut []string

	now := m.opts.Now()
	plates := make([]string, 0, len(m.entries))
	for plate := range m.entries {
		plates = append(plates, plate)
	}
	sort.Strings(plates)

	for _, plate := range plates {
		if ctx.Err() != nil {
			break
		}
		e := m.entries[plate]
		switch e.state {
		case Blacklisted:
			if now.After(e.deadline) {
				delete(m.entries, plate)
				m.log.Info().Str("plate", plate).Msg("cool-down expired")
			}
		case Pending:
			expired := !now.Before(e.deadline)
			if !expired && now.Before(e.nextPoll) {
				continue
			}
			e.nextPoll = now.Add(m.opts.PollInterval)
			if m.consume(ctx, plate, e, now) {
				continue
			}
			if expired {
				m.expire(ctx, plate, e, now)
				timedOut = append(timedOut, plate)
			}
		}
	}
	m.updateGauges()
	return timedOut
}

// Snapshot lists every non-idle plate ordered by plate.
func (m *Machine) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	out := make([]Entry, 0, len(m.entries))
	for plate := range m.entries {
		e := m.lookup(plate, now)
		if e == nil {
			continue
		}
		out = append(out, Entry{
			Plate:    plate,
			State:    e.state.String(),
			Owner:    e.owner,
			TrackID:  e.trackID,
			Deadline: e.deadline,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return out
}

// consume reads the decision for a pending plate and resolves it when
// terminal. A store error counts as no decision yet.
func (m *Machine) consume(ctx context.Context, plate string, e *entry, now time.Time) bool {
	status, err := m.store.Consume(ctx, plate)
	if err != nil {
		m.log.Warn().Err(err).Str("plate", plate).Msg("failed to read approval store")
		return false
	}
	if !status.IsTerminal() {
		return false
	}

	// Removing the entry cancels the response deadline.
	delete(m.entries, plate)
	m.metrics.Decision(string(status))
	m.log.Info().
		Str("plate", plate).
		Str("decision", string(status)).
		Str("state", Resolved.String()).
		Msg("plate resolved")

	eventType := anpr.EventDenied
	if status == approval.StatusAllowed {
		eventType = anpr.EventAllowed
	}
	m.publish(ctx, eventType, plate, e, now)
	return true
}

func (m *Machine) expire(ctx context.Context, plate string, e *entry, now time.Time) {
	e.state = Blacklisted
	e.deadline = now.Add(m.opts.Cooldown)

	log := m.log.With().Str("plate", plate).Logger()
	if err := m.store.Remove(ctx, plate); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending marker")
	}
	if err := m.sink.NotifyTimeout(ctx, e.owner, plate); err != nil {
		log.Error().Err(err).Msg("failed to send timeout notification")
	}
	m.metrics.Timeout()
	log.Info().Time("until", e.deadline).Msg("no response, plate blacklisted")

	m.publish(ctx, anpr.EventTimeout, plate, e, now)
}

// lookup returns the entry for plate, dropping a blacklist whose cool-down
// has lapsed. Callers hold m.mu.
func (m *Machine) lookup(plate string, now time.Time) *entry {
	e, ok := m.entries[plate]
	if !ok {
		return nil
	}
	if e.state == Blacklisted && now.After(e.deadline) {
		delete(m.entries, plate)
		return nil
	}
	return e
}

// publish queues an event for flush. Callers hold m.mu.
func (m *Machine) publish(_ context.Context, t anpr.EventType, plate string, e *entry, now time.Time) {
	if m.publisher == nil {
		return
	}
	event := anpr.NewGateEvent(t, plate, e.owner, now)
	event.TrackID = e.trackID
	event.ImageRef = e.imageRef
	m.outbox = append(m.outbox, event)
}

// flush publishes queued events without holding m.mu, so a slow publisher
// never blocks State or Snapshot readers.
func (m *Machine) flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.outbox
	m.outbox = nil
	m.mu.Unlock()

	for _, event := range pending {
		if err := m.publisher.Publish(ctx, event); err != nil {
			m.log.Warn().Err(err).Str("plate", event.Plate).Str("type", string(event.Type)).Msg("failed to publish gate event")
		}
	}
}

func (m *Machine) updateGauges() {
	if m.metrics == nil {
		return
	}
	var pending, blacklisted int
	for _, e := range m.entries {
		switch e.state {
		case Pending:
			pending++
		case Blacklisted:
			blacklisted++
		}
	}
	m.metrics.States(pending, blacklisted)
}
