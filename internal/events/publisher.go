// Package events fans gate state changes out to observers: message brokers,
// websocket clients and the event log.
package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
)

type Publisher interface {
	Publish(ctx context.Context, event anpr.GateEvent) error
}

type PublisherFunc func(ctx context.Context, event anpr.GateEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event anpr.GateEvent) error {
	return f(ctx, event)
}

// Multi publishes to every target in order. A failing target is logged and
// does not stop the others; the joined error is returned.
type Multi struct {
	targets []Publisher
	log     zerolog.Logger
}

func NewMulti(log zerolog.Logger, targets ...Publisher) *Multi {
	m := &Multi{log: log.With().Str("component", "events").Logger()}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

func (m *Multi) Add(p Publisher) {
	if p != nil {
		m.targets = append(m.targets, p)
	}
}

func (m *Multi) Len() int { return len(m.targets) }

func (m *Multi) Publish(ctx context.Context, event anpr.GateEvent) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Publish(ctx, event); err != nil {
			m.log.Warn().Err(err).
				Str("plate", event.Plate).
				Str("type", string(event.Type)).
				Msg("failed to publish gate event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventStore persists gate events.
type EventStore interface {
	RecordEvent(ctx context.Context, event anpr.GateEvent) error
}

// Recorder adapts an EventStore into a Publisher.
func Recorder(store EventStore) Publisher {
	return PublisherFunc(store.RecordEvent)
}
