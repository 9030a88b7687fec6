package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolOneJobPerTrack(t *testing.T) {
	rec := newBlockingRecognizer(oneFragment("B1234AB", 0.9))
	p := NewPool(rec, 4)
	defer p.Close()
	ctx := context.Background()

	require.True(t, p.Submit(ctx, "7", testFrame()))
	<-rec.started
	assert.False(t, p.Submit(ctx, "7", testFrame()), "second job for the same track")
	assert.True(t, p.Busy("7"))

	close(rec.release)
	require.Eventually(t, func() bool { return !p.Busy("7") }, 2*time.Second, 5*time.Millisecond)

	results := p.Drain()
	require.Len(t, results, 1)
	assert.Equal(t, "7", results[0].TrackID)
	assert.NoError(t, results[0].Err)
	assert.Empty(t, p.Drain())
}

func TestPoolBoundedWorkers(t *testing.T) {
	rec := newBlockingRecognizer(nil)
	p := NewPool(rec, 1)
	defer p.Close()
	ctx := context.Background()

	require.True(t, p.Submit(ctx, "1", testFrame()))
	<-rec.started
	assert.False(t, p.Submit(ctx, "2", testFrame()), "no free worker")
	assert.False(t, p.Busy("2"))

	close(rec.release)
}

func TestPoolCancelledJobIsDiscarded(t *testing.T) {
	rec := newBlockingRecognizer(oneFragment("B1234AB", 0.9))
	p := NewPool(rec, 1)
	ctx := context.Background()

	require.True(t, p.Submit(ctx, "7", testFrame()))
	<-rec.started
	p.Cancel("7")
	p.Close()

	assert.Empty(t, p.Drain())
}
