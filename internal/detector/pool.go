package detector

import (
	"context"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"

	"gate-service/internal/domain/anpr"
)

// Result is the outcome of one background recognition job.
type Result struct {
	TrackID   string
	Fragments []anpr.Fragment
	Err       error
}

type job struct {
	gen    uint64
	cancel context.CancelFunc
}

// Pool runs recognition jobs on a bounded set of goroutines with at most one
// outstanding job per track. Results of cancelled jobs are dropped.
type Pool struct {
	recognizer Recognizer
	group      errgroup.Group

	mu       sync.Mutex
	inflight map[string]job
	results  []Result
	nextGen  uint64
}

func NewPool(recognizer Recognizer, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		recognizer: recognizer,
		inflight:   make(map[string]job),
	}
	p.group.SetLimit(workers)
	return p
}

// Submit starts recognition of crop for trackID. It returns false when the
// track already has a job in flight or every worker is busy.
func (p *Pool) Submit(ctx context.Context, trackID string, crop image.Image) bool {
	p.mu.Lock()
	if _, busy := p.inflight[trackID]; busy {
		p.mu.Unlock()
		return false
	}
	p.nextGen++
	gen := p.nextGen
	jobCtx, cancel := context.WithCancel(ctx)
	p.inflight[trackID] = job{gen: gen, cancel: cancel}
	p.mu.Unlock()

	started := p.group.TryGo(func() error {
		defer cancel()
		frags, err := p.recognizer.Recognize(jobCtx, crop)
		p.finish(trackID, gen, frags, err)
		return nil
	})
	if !started {
		p.mu.Lock()
		if j, ok := p.inflight[trackID]; ok && j.gen == gen {
			delete(p.inflight, trackID)
		}
		p.mu.Unlock()
		cancel()
	}
	return started
}

func (p *Pool) finish(trackID string, gen uint64, frags []anpr.Fragment, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.inflight[trackID]
	if !ok || j.gen != gen {
		return
	}
	delete(p.inflight, trackID)
	p.results = append(p.results, Result{TrackID: trackID, Fragments: frags, Err: err})
}

// Cancel aborts the in-flight job of trackID, if any. Its result is discarded.
func (p *Pool) Cancel(trackID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.inflight[trackID]; ok {
		j.cancel()
		delete(p.inflight, trackID)
	}
}

func (p *Pool) Busy(trackID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[trackID]
	return ok
}

// Tracks lists the tracks with a job in flight.
func (p *Pool) Tracks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.inflight))
	for id := range p.inflight {
		ids = append(ids, id)
	}
	return ids
}

// Drain returns and clears the results finished since the previous call.
func (p *Pool) Drain() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.results
	p.results = nil
	return out
}

// Close cancels every in-flight job and waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	for id, j := range p.inflight {
		j.cancel()
		delete(p.inflight, id)
	}
	p.mu.Unlock()
	_ = p.group.Wait()
}
