package sim

import (
	"context"

	"github.com/arla-sim/agentsim/internal/ecs"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

// ScaffoldRequest is a deferred query against the embedder's
// CognitiveScaffold. Handlers that want an answer enqueue a request instead
// of spawning a detached goroutine, keeping every scaffold call bounded and
// joined at a turn boundary rather than left to run free.
type ScaffoldRequest struct {
	EntityID ecs.EntityID
	Purpose  string
	Prompt   string
	Tick     int
	// Apply is invoked on the scheduler's goroutine, after every queued
	// request for this drain has resolved, with the scaffold's answer (or
	// err if the query failed). It is the only place request results may
	// touch the component store.
	Apply func(answer string, err error)
}

// ScaffoldQueue buffers ScaffoldRequests raised during a tick's event
// dispatch and drains them between entity turns (never mid-turn), bounding
// concurrent CognitiveScaffold.Query calls to Concurrency workers. This is
// the only place the core itself spawns goroutines that call into embedder
// code; results are always applied back on the caller's goroutine once the
// whole batch completes, so the store is never mutated from more than one
// task at a time.
type ScaffoldQueue struct {
	scaffold    CognitiveScaffold
	concurrency int
	pending     []ScaffoldRequest
}

// NewScaffoldQueue returns a queue bound to scaffold, draining at most
// concurrency requests at once. concurrency <= 0 is treated as 1.
func NewScaffoldQueue(scaffold CognitiveScaffold, concurrency int) *ScaffoldQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ScaffoldQueue{scaffold: scaffold, concurrency: concurrency}
}

// Enqueue appends a request to be drained at the next turn boundary. If the
// queue has no backing CognitiveScaffold (the embedder didn't supply one),
// the request is not queued and its Apply, if set, is called at once with
// ErrCancelled.
func (q *ScaffoldQueue) Enqueue(req ScaffoldRequest) {
	if q.scaffold == nil {
		if req.Apply != nil {
			req.Apply("", ErrCancelled)
		}
		return
	}
	q.pending = append(q.pending, req)
}

// Len reports how many requests are waiting to be drained.
func (q *ScaffoldQueue) Len() int { return len(q.pending) }

// Drain runs every pending request through the bounded worker pool and
// applies each result on the calling goroutine, then clears the queue. It
// returns the first error from a worker's group-level failure (context
// cancellation); individual query failures are delivered to each request's
// Apply callback instead of aborting the whole drain.
func (q *ScaffoldQueue) Drain(ctx context.Context) error {
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil

	type result struct {
		idx    int
		answer string
		err    error
	}

	done := ctx.Done()
	results := make(chan result, len(batch))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(q.concurrency)

	for i, req := range batch {
		i, req := i, req
		group.Go(func() error {
			answer, err := q.scaffold.Query(gctx, req.EntityID, req.Purpose, req.Prompt, req.Tick)
			select {
			case results <- result{idx: i, answer: answer, err: err}:
			case <-done:
			}
			return nil
		})
	}

	go func() {
		_ = group.Wait()
		close(results)
	}()

	collected := make([]result, 0, len(batch))
	for r := range channerics.OrDone(done, results) {
		collected = append(collected, r)
	}

	for _, r := range collected {
		if batch[r.idx].Apply != nil {
			batch[r.idx].Apply(r.answer, r.err)
		}
	}

	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}
