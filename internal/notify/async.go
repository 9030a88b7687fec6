package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
	"gate-service/internal/metrics"
)

var ErrQueueFull = errors.New("notification queue full")

type job struct {
	timeout  bool
	owner    anpr.Owner
	plate    string
	imageRef string
}

// Async runs a Sink on a single background worker so slow deliveries never
// block the frame loop. Enqueue never blocks; a full queue drops the message.
type Async struct {
	sink    Sink
	timeout time.Duration
	queue   chan job
	log     zerolog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

func NewAsync(sink Sink, size int, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		sink:    sink,
		timeout: timeout,
		queue:   make(chan job, size),
		log:     log.With().Str("component", "notify").Logger(),
		metrics: m,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, owner anpr.Owner, plate, imageRef string) error {
	return a.enqueue(job{owner: owner, plate: plate, imageRef: imageRef})
}

func (a *Async) NotifyTimeout(_ context.Context, owner anpr.Owner, plate string) error {
	return a.enqueue(job{timeout: true, owner: owner, plate: plate})
}

func (a *Async) enqueue(j job) error {
	select {
	case a.queue <- j:
		return nil
	default:
		a.log.Warn().Str("plate", j.plate).Bool("timeout", j.timeout).Msg("notification dropped, queue full")
		a.metrics.Notification(kind(j), ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
// It must not race with Notify or NotifyTimeout.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
	})
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var err error
	if j.timeout {
		err = a.sink.NotifyTimeout(ctx, j.owner, j.plate)
	} else {
		err = a.sink.Notify(ctx, j.owner, j.plate, j.imageRef)
	}
	a.metrics.Notification(kind(j), err)
	if err != nil {
		a.log.Error().Err(err).Str("plate", j.plate).Bool("timeout", j.timeout).Msg("notification failed")
		return
	}
	a.log.Info().Str("plate", j.plate).Bool("timeout", j.timeout).Msg("notification sent")
}

func kind(j job) string {
	if j.timeout {
		return "timeout"
	}
	return "alert"
}
