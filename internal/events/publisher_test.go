package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/domain/anpr"
)

func testEvent(t anpr.EventType) anpr.GateEvent {
	return anpr.NewGateEvent(t, "B1234AB", anpr.Owner{Name: "Budi", Plate: "B1234AB", ChatID: 7},
		time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
}

func TestMultiContinuesPastFailures(t *testing.T) {
	var got []string
	failing := PublisherFunc(func(context.Context, anpr.GateEvent) error {
		got = append(got, "failing")
		return errors.New("broker down")
	})
	ok := PublisherFunc(func(_ context.Context, e anpr.GateEvent) error {
		got = append(got, "ok:"+string(e.Type))
		return nil
	})

	m := NewMulti(zerolog.Nop(), failing, nil)
	m.Add(ok)
	m.Add(nil)
	require.Equal(t, 2, m.Len())

	err := m.Publish(context.Background(), testEvent(anpr.EventNotified))
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, []string{"failing", "ok:notified"}, got)
}

type memoryStore struct{ events []anpr.GateEvent }

func (s *memoryStore) RecordEvent(_ context.Context, e anpr.GateEvent) error {
	s.events = append(s.events, e)
	return nil
}

func TestRecorder(t *testing.T) {
	store := &memoryStore{}
	e := testEvent(anpr.EventAllowed)
	require.NoError(t, Recorder(store).Publish(context.Background(), e))
	assert.Equal(t, []anpr.GateEvent{e}, store.events)
}
