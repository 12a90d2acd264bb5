package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// gatedSource returns a Source whose Fetch reports on started and then
// blocks until gate yields the value to return.
func gatedSource(started chan<- int, gate <-chan string, fetches *atomic.Int32, published *[]string, mu *sync.Mutex) Source[string] {
	return Source[string]{
		Fetch: func(ctx context.Context) (string, error) {
			n := int(fetches.Add(1))
			started <- n
			select {
			case v := <-gate:
				return v, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
		Publish: func(v string) {
			mu.Lock()
			*published = append(*published, v)
			mu.Unlock()
		},
	}
}

func TestLoader_SingleFlight(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	l := NewLoader(Source[string]{
		Fetch: func(context.Context) (string, error) {
			fetches.Add(1)
			time.Sleep(20 * time.Millisecond)
			return "v", nil
		},
		Publish: func(string) {},
	})

	const n = 64
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			v, err := l.Load(context.Background())
			if err != nil {
				return err
			}
			if v != "v" {
				return errors.New("unexpected value " + v)
			}
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("Fetch called %d times, want 1", got)
	}
	if !l.Done() || l.Stale() {
		t.Fatalf("Done=%v Stale=%v, want true/false", l.Done(), l.Stale())
	}
}

func TestLoader_InvalidateDuringFetchRefetches(t *testing.T) {
	t.Parallel()

	var (
		fetches   atomic.Int32
		retries   atomic.Int32
		mu        sync.Mutex
		published []string
	)
	started := make(chan int, 4)
	gate := make(chan string)
	src := gatedSource(started, gate, &fetches, &published, &mu)
	src.OnRetry = func() { retries.Add(1) }
	l := NewLoader(src)

	type result struct {
		v   string
		err error
	}
	out := make(chan result, 1)
	go func() {
		v, err := l.Load(context.Background())
		out <- result{v, err}
	}()

	<-started
	if c := l.Invalidate(); c != CancelClean {
		t.Fatalf("first Invalidate = %v, want %v", c, CancelClean)
	}
	if c := l.Invalidate(); c != CancelMultiple {
		t.Fatalf("second Invalidate = %v, want %v", c, CancelMultiple)
	}
	gate <- "old"

	<-started
	gate <- "new"

	r := <-out
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.v != "new" {
		t.Fatalf("Load = %q, want value of the second fetch", r.v)
	}
	if got := fetches.Load(); got != 2 {
		t.Fatalf("Fetch called %d times, want 2", got)
	}
	if got := retries.Load(); got != 1 {
		t.Fatalf("OnRetry called %d times, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0] != "new" {
		t.Fatalf("published %v, want [new]", published)
	}
}

func TestLoader_InvalidateAfterFinishIsTooLate(t *testing.T) {
	t.Parallel()

	l := NewLoader(Source[int]{
		Fetch:   func(context.Context) (int, error) { return 7, nil },
		Publish: func(int) {},
	})
	if c := l.Invalidate(); c != CancelTooLate {
		t.Fatalf("Invalidate on idle loader = %v, want %v", c, CancelTooLate)
	}
	if l.Stale() {
		t.Fatal("a loader that never succeeded is not stale")
	}
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.Generation() != finished {
		t.Fatalf("Generation = %d, want finished", l.Generation())
	}
	if c := l.Invalidate(); c != CancelTooLate {
		t.Fatalf("Invalidate after success = %v, want %v", c, CancelTooLate)
	}
	if !l.Stale() {
		t.Fatal("loader invalidated after success must be stale")
	}
}

func TestLoader_ErrorIsNotKept(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	var calls atomic.Int32
	var published atomic.Int32
	l := NewLoader(Source[string]{
		Fetch: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", boom
			}
			return "ok", nil
		},
		Publish: func(string) { published.Add(1) },
	})

	if _, err := l.Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("first Load err = %v, want %v", err, boom)
	}
	if published.Load() != 0 || l.Done() {
		t.Fatal("a failed fetch must not publish")
	}
	v, err := l.Load(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("second Load = %q, %v", v, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("Fetch called %d times, want 2", calls.Load())
	}
}

func TestLoader_RetractWhenInvalidatedDuringPublish(t *testing.T) {
	t.Parallel()

	var l *Loader[string]
	var retracted atomic.Int32
	l = NewLoader(Source[string]{
		Fetch: func(context.Context) (string, error) { return "v", nil },
		Publish: func(string) {
			if c := l.Invalidate(); c != CancelTooLate {
				t.Errorf("Invalidate during publish = %v, want %v", c, CancelTooLate)
			}
		},
		Retract: func(string) { retracted.Add(1) },
	})

	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if retracted.Load() != 1 {
		t.Fatalf("Retract called %d times, want 1", retracted.Load())
	}
	if !l.Stale() {
		t.Fatal("loader must be stale after a late invalidation")
	}
}

func TestLoader_PublishedPrecedesPublish(t *testing.T) {
	t.Parallel()

	var l *Loader[string]
	var fetches atomic.Int32
	l = NewLoader(Source[string]{
		Fetch: func(context.Context) (string, error) {
			if l.Published() {
				t.Error("Published during a fetch window")
			}
			if fetches.Add(1) == 1 {
				l.Invalidate() // forces a second cycle
			}
			return "v", nil
		},
		Publish: func(string) {
			if !l.Published() {
				t.Error("Published must be set before Publish runs")
			}
			if l.Done() {
				t.Error("Done must stay false until the cycle finishes")
			}
		},
	})
	if l.Published() {
		t.Fatal("an idle loader has published nothing")
	}
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fetches.Load() != 2 || !l.Published() {
		t.Fatalf("fetches = %d published = %v", fetches.Load(), l.Published())
	}

	failing := NewLoader(Source[string]{
		Fetch:   func(context.Context) (string, error) { return "", errors.New("backend down") },
		Publish: func(string) {},
	})
	_, _ = failing.Load(context.Background())
	if failing.Published() {
		t.Fatal("a failed fetch has published nothing")
	}
}

func TestLoader_FollowerContextOnlyBoundsWaiting(t *testing.T) {
	t.Parallel()

	var (
		fetches   atomic.Int32
		mu        sync.Mutex
		published []string
	)
	started := make(chan int, 2)
	gate := make(chan string)
	l := NewLoader(gatedSource(started, gate, &fetches, &published, &mu))

	out := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background())
		out <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("follower err = %v, want context.Canceled", err)
	}

	gate <- "v"
	if err := <-out; err != nil {
		t.Fatalf("leader err = %v", err)
	}
	if fetches.Load() != 1 {
		t.Fatalf("Fetch called %d times, want 1", fetches.Load())
	}
}

func TestLoader_PanicReleasesFollowers(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	gate := make(chan struct{})
	var calls atomic.Int32
	l := NewLoader(Source[string]{
		Fetch: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-gate
				panic("fetch exploded")
			}
			return "second", nil
		},
		Publish: func(string) {},
	})

	leaderDone := make(chan any, 1)
	go func() {
		defer func() { leaderDone <- recover() }()
		_, _ = l.Load(context.Background())
	}()
	<-started

	followerDone := make(chan error, 1)
	go func() {
		v, err := l.Load(context.Background())
		if err == nil && v != "second" {
			err = errors.New("unexpected value " + v)
		}
		followerDone <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(gate)

	if p := <-leaderDone; p == nil {
		t.Fatal("leader must re-panic")
	}
	select {
	case err := <-followerDone:
		if err != nil && !errors.Is(err, ErrAbandoned) {
			t.Fatalf("follower err = %v, want ErrAbandoned or a fresh value", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follower still blocked after the leader panicked")
	}
	if l.Generation() < running {
		t.Fatalf("Generation = %d after panic", l.Generation())
	}
}

func TestCancel_String(t *testing.T) {
	t.Parallel()

	for c, want := range map[Cancel]string{
		CancelClean:    "canceled_clean",
		CancelMultiple: "canceled_multiple",
		CancelTooLate:  "cancel_too_late",
	} {
		if got := c.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", c, got, want)
		}
	}
}
