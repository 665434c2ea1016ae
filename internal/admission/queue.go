// Package admission provides the per-provider request admission queue. It
// enforces a requests-per-minute ceiling by deferring excess work, never by
// rejecting it: every enqueued task is eventually admitted in FIFO order.
package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// retryEpsilon pads the deferred re-attempt timer so the oldest window
// stamp has definitely aged out when the timer fires.
const retryEpsilon = 50 * time.Millisecond

// Result carries the outcome of an admitted task.
type Result struct {
	Value any
	Err   error
}

// Status is a point-in-time snapshot of one provider's queue.
type Status struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	InWindow   int `json:"in_window"`
	Limit      int `json:"limit"`
}

type task struct {
	id         string
	execute    func() (any, error)
	enqueuedAt time.Time
	done       chan Result
}

type providerState struct {
	pending    []*task
	processing int
	stamps     []time.Time
	timerSet   bool
}

// Queue admits tasks per provider against a sliding rate window. Providers
// without a configured limit bypass the queue entirely.
type Queue struct {
	logger *slog.Logger
	window time.Duration

	mu        sync.Mutex
	limits    map[string]int
	providers map[string]*providerState
}

// Option adjusts queue construction.
type Option func(*Queue)

// WithWindow overrides the sliding window duration. Used by tests; the
// production window is one minute.
func WithWindow(d time.Duration) Option {
	return func(q *Queue) {
		q.window = d
	}
}

func NewQueue(limits map[string]int, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		logger:    logger,
		window:    time.Minute,
		limits:    make(map[string]int, len(limits)),
		providers: make(map[string]*providerState),
	}

	for provider, limit := range limits {
		q.limits[provider] = limit
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// SetLimit updates a provider's requests-per-minute cap. Zero or negative
// means unlimited.
func (q *Queue) SetLimit(provider string, perMinute int) {
	q.mu.Lock()
	q.limits[provider] = perMinute
	q.mu.Unlock()

	q.pump(provider)
}

// Enqueue submits a task for the provider and returns a channel that
// receives exactly one Result once the task has been admitted and run.
// Tasks for unlimited providers execute immediately on the calling
// goroutine.
func (q *Queue) Enqueue(provider string, execute func() (any, error)) <-chan Result {
	done := make(chan Result, 1)

	q.mu.Lock()
	limit := q.limits[provider]

	if limit <= 0 {
		q.mu.Unlock()

		value, err := execute()
		done <- Result{Value: value, Err: err}

		return done
	}

	state := q.stateLocked(provider)
	state.pending = append(state.pending, &task{
		id:         uuid.NewString(),
		execute:    execute,
		enqueuedAt: time.Now(),
		done:       done,
	})
	q.mu.Unlock()

	q.pump(provider)

	return done
}

// Do enqueues the task and blocks until its result arrives or the context
// is cancelled. Cancellation abandons the caller's wait; an already
// admitted task still runs to completion so the rate window stays accurate.
func (q *Queue) Do(ctx context.Context, provider string, execute func() (any, error)) (any, error) {
	done := q.Enqueue(provider, execute)

	select {
	case res := <-done:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StatusAll reports the queue state for every provider with a configured
// limit or pending work.
func (q *Queue) StatusAll() map[string]Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	all := make(map[string]Status)

	for provider, limit := range q.limits {
		if limit <= 0 {
			continue
		}

		all[provider] = q.statusLocked(provider, limit, now)
	}

	for provider, state := range q.providers {
		if _, ok := all[provider]; ok {
			continue
		}

		if len(state.pending) > 0 || state.processing > 0 {
			all[provider] = q.statusLocked(provider, q.limits[provider], now)
		}
	}

	return all
}

func (q *Queue) statusLocked(provider string, limit int, now time.Time) Status {
	state := q.stateLocked(provider)
	state.stamps = pruneStamps(state.stamps, now, q.window)

	return Status{
		Queued:     len(state.pending),
		Processing: state.processing,
		InWindow:   len(state.stamps),
		Limit:      limit,
	}
}

// pump admits pending head tasks while the window has room, then schedules
// a single coalesced retry timer when capacity is exhausted.
func (q *Queue) pump(provider string) {
	for {
		q.mu.Lock()

		state := q.stateLocked(provider)
		if len(state.pending) == 0 {
			q.mu.Unlock()
			return
		}

		limit := q.limits[provider]
		now := time.Now()

		if limit > 0 {
			state.stamps = pruneStamps(state.stamps, now, q.window)

			if len(state.stamps) >= limit {
				q.scheduleRetryLocked(provider, state, now)
				q.mu.Unlock()

				return
			}

			state.stamps = append(state.stamps, now)
		}

		head := state.pending[0]
		state.pending = state.pending[1:]
		state.processing++
		q.mu.Unlock()

		q.logger.Debug("admitting queued request",
			"provider", provider,
			"task", head.id,
			"waited", time.Since(head.enqueuedAt),
		)

		go q.run(provider, head)
	}
}

// run executes an admitted task. Task failure never blocks the queue; the
// next head is pumped regardless of the outcome.
func (q *Queue) run(provider string, t *task) {
	value, err := t.execute()
	t.done <- Result{Value: value, Err: err}

	q.mu.Lock()
	q.stateLocked(provider).processing--
	q.mu.Unlock()

	q.pump(provider)
}

func (q *Queue) scheduleRetryLocked(provider string, state *providerState, now time.Time) {
	if state.timerSet || len(state.stamps) == 0 {
		return
	}

	wait := state.stamps[0].Add(q.window).Sub(now) + retryEpsilon
	if wait < retryEpsilon {
		wait = retryEpsilon
	}

	state.timerSet = true

	time.AfterFunc(wait, func() {
		q.mu.Lock()
		q.stateLocked(provider).timerSet = false
		q.mu.Unlock()

		q.pump(provider)
	})
}

func (q *Queue) stateLocked(provider string) *providerState {
	state, ok := q.providers[provider]
	if !ok {
		state = &providerState{}
		q.providers[provider] = state
	}

	return state
}

// pruneStamps drops timestamps that have aged out of the window.
func pruneStamps(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)

	kept := stamps[:0]
	for _, s := range stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}

	return kept
}
