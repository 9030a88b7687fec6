package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
)

var ErrQueueFull = errors.New("event queue full")

// Async hands events to a single background worker so slow brokers or a
// slow event log never hold up the caller. Publish never blocks; a full
// queue drops the event.
type Async struct {
	target  Publisher
	timeout time.Duration
	queue   chan anpr.GateEvent
	log     zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewAsync(target Publisher, size int, timeout time.Duration, log zerolog.Logger) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		target:  target,
		timeout: timeout,
		queue:   make(chan anpr.GateEvent, size),
		log:     log.With().Str("component", "events").Logger(),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, event anpr.GateEvent) error {
	select {
	case a.queue <- event:
		return nil
	default:
		a.log.Warn().
			Str("plate", event.Plate).
			Str("type", string(event.Type)).
			Msg("gate event dropped, queue full")
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be published.
// It must not race with Publish.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
	})
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.queue {
		a.publish(event)
	}
}

func (a *Async) publish(event anpr.GateEvent) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.target.Publish(ctx, event); err != nil {
		a.log.Debug().Err(err).Str("plate", event.Plate).Msg("gate event publish failed")
	}
}
