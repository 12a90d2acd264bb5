// Package flight coordinates per-key fetches: a Loader runs at most one
// fetch cycle at a time and detects invalidations that land while a fetch is
// in flight, and a Registry deduplicates Loaders per key.
package flight

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// Generation states. Any negative generation means the current cycle was
// invalidated before it could finish.
const (
	running  int64 = 0
	finished int64 = math.MaxInt64
)

// ErrAbandoned is returned to the callers waiting on a cycle whose fetch
// panicked.
var ErrAbandoned = errors.New("flight: fetch cycle abandoned")

// Cancel classifies the effect of Loader.Invalidate.
type Cancel int

const (
	// CancelClean: a fetch was in flight and will be repeated.
	CancelClean Cancel = iota
	// CancelMultiple: the running cycle had already been invalidated.
	CancelMultiple
	// CancelTooLate: no fetch was in flight; whatever was published stays
	// published and must be evicted by the caller.
	CancelTooLate
)

// String returns a stable label for the outcome.
func (c Cancel) String() string {
	switch c {
	case CancelClean:
		return "canceled_clean"
	case CancelMultiple:
		return "canceled_multiple"
	default:
		return "cancel_too_late"
	}
}

// Source wires a Loader to the outside world.
//
//   - Fetch performs the slow call. It runs without any Loader lock held.
//   - Publish makes a fetched value visible (caches). It runs only for a
//     value whose fetch window saw no invalidation.
//   - Retract undoes Publish. It runs when an invalidation slipped in
//     between the end of the fetch window and the end of Publish.
//   - OnRetry is told about every repeated fetch.
//
// Retract and OnRetry may be nil.
type Source[V any] struct {
	Fetch   func(ctx context.Context) (V, error)
	Publish func(V)
	Retract func(V)
	OnRetry func()
}

// Loader performs single-flight fetches for one key.
//
// Concurrency notes:
//   - The first caller of Load leads a cycle; later callers wait on the
//     cycle's done channel and get the same value or error. Writing the
//     cycle result happens-before close(done).
//   - The leader swaps the generation to running, fetches, then CASes
//     running→finished. A failed CAS means Invalidate ran during the fetch:
//     the value is dropped and the fetch repeats. There is no retry cap.
//   - A successful result is kept in an atomic slot written under mu, so
//     later callers return it without locking.
//   - Errors are never kept: the next Load starts a fresh cycle.
type Loader[V any] struct {
	gen atomic.Int64
	src Source[V]

	published atomic.Bool // set once a fetch window closed cleanly

	res atomic.Pointer[outcome[V]]

	mu  sync.Mutex
	cur *cycle[V] // guarded by mu
}

type outcome[V any] struct{ val V }

type cycle[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// NewLoader returns an idle Loader for src. src.Fetch and src.Publish are
// required.
func NewLoader[V any](src Source[V]) *Loader[V] {
	if src.Fetch == nil || src.Publish == nil {
		panic("flight: Source needs Fetch and Publish")
	}
	l := &Loader[V]{src: src}
	l.gen.Store(finished)
	return l
}

// Load returns the loaded value, running a fetch cycle if none has
// succeeded yet. ctx is handed to Fetch when this caller leads the cycle and
// otherwise only bounds how long this caller waits. A follower whose leader
// failed because of the leader's own context retries with its own.
func (l *Loader[V]) Load(ctx context.Context) (V, error) {
	for {
		// Fast path: a cycle already succeeded.
		if r := l.res.Load(); r != nil {
			return r.val, nil
		}

		l.mu.Lock()
		if r := l.res.Load(); r != nil {
			l.mu.Unlock()
			return r.val, nil
		}
		c, leader := l.cur, false
		if c == nil {
			c = &cycle[V]{done: make(chan struct{})}
			l.cur, leader = c, true
		}
		l.mu.Unlock()

		if leader {
			l.lead(ctx, c)
			return c.val, c.err
		}

		select {
		case <-c.done:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
		if c.err != nil && isContextErr(c.err) && ctx.Err() == nil {
			continue
		}
		return c.val, c.err
	}
}

// Invalidate moves the generation back and reports what it interrupted.
// It never blocks.
func (l *Loader[V]) Invalidate() Cancel {
	prev := l.gen.Add(-1) + 1
	switch {
	case prev == running:
		return CancelClean
	case prev < running:
		return CancelMultiple
	default:
		return CancelTooLate
	}
}

// Done reports whether a cycle has succeeded.
func (l *Loader[V]) Done() bool { return l.res.Load() != nil }

// Published reports whether a value got past its fetch window. It turns true
// before Publish runs, so an Invalidate that observes CancelTooLate while
// Publish is still in progress can tell a publication from an idle loader.
func (l *Loader[V]) Published() bool { return l.published.Load() }

// Stale reports whether the loader succeeded and was invalidated afterwards.
// A stale loader must not be reused for new requests.
func (l *Loader[V]) Stale() bool {
	return l.res.Load() != nil && l.gen.Load() != finished
}

// Generation exposes the raw counter for diagnostics and tests.
func (l *Loader[V]) Generation() int64 { return l.gen.Load() }

func (l *Loader[V]) lead(ctx context.Context, c *cycle[V]) {
	completed := false
	defer func() {
		if !completed {
			// Fetch or Publish panicked: release the followers, keep panicking.
			l.gen.CompareAndSwap(running, finished)
			c.err = ErrAbandoned
			l.finish(c, false)
		}
	}()

	c.val, c.err = l.run(ctx)
	completed = true
	l.finish(c, c.err == nil)
}

// run repeats the fetch until one completes without an intervening
// invalidation, or fails.
func (l *Loader[V]) run(ctx context.Context) (V, error) {
	for {
		if prev := l.gen.Swap(running); prev < running && l.src.OnRetry != nil {
			l.src.OnRetry()
		}

		v, err := l.src.Fetch(ctx)
		if err != nil {
			l.gen.CompareAndSwap(running, finished)
			var zero V
			return zero, err
		}
		// Set before the CAS; callers only read it once the generation is
		// past running.
		l.published.Store(true)
		if !l.gen.CompareAndSwap(running, finished) {
			l.published.Store(false)
			continue
		}

		l.src.Publish(v)
		if l.gen.Load() != finished && l.src.Retract != nil {
			// Invalidated after the CAS: the invalidator's eviction may have
			// run before Publish wrote anything.
			l.src.Retract(v)
		}
		return v, nil
	}
}

func (l *Loader[V]) finish(c *cycle[V], ok bool) {
	l.mu.Lock()
	if ok {
		l.res.Store(&outcome[V]{val: c.val})
	}
	l.cur = nil
	l.mu.Unlock()
	close(c.done)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
