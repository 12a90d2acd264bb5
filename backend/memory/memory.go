// Package memory is an in-process BackingStore, used by tests, examples and
// the bench tool. An optional latency simulates a slow backend.
package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/doccache/backend"
	"github.com/IvanBrykalov/doccache/store"
)

// Backend stores documents in a map guarded by a RWMutex.
type Backend struct {
	mu   sync.RWMutex
	docs map[string]*store.Document

	latency time.Duration
	fetches atomic.Int64
	writes  atomic.Int64
}

// Option configures a Backend.
type Option func(*Backend)

// WithLatency delays every Fetch by d (or until ctx is done).
func WithLatency(d time.Duration) Option {
	return func(b *Backend) { b.latency = d }
}

// New returns an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{docs: make(map[string]*store.Document)}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ store.BackingStore = (*Backend)(nil)

func key(ref store.Ref, lang string) string { return store.KeyOf(ref, lang).String() }

// Fetch implements store.BackingStore.
func (b *Backend) Fetch(ctx context.Context, ref store.Ref, lang string) (*store.Document, bool, error) {
	b.fetches.Add(1)
	if b.latency > 0 {
		t := time.NewTimer(b.latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, false, ctx.Err()
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if lang != "" {
		if d, ok := b.docs[key(ref, lang)]; ok {
			return d.Clone(), true, nil
		}
	}
	d, ok := b.docs[key(ref, "")]
	if !ok || (lang != "" && d.DefaultLanguage != lang) {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

// Write implements store.BackingStore. A set PreviousRef removes the old
// identity first.
func (b *Backend) Write(_ context.Context, doc *store.Document) error {
	b.writes.Add(1)
	c := doc.Clone()
	c.PreviousRef = nil

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev := doc.PreviousRef; prev != nil && *prev != doc.Ref {
		b.removeEntityLocked(*prev)
	}
	b.docs[key(doc.Ref, backend.StorageLanguage(doc))] = c
	return nil
}

// Remove implements store.BackingStore.
func (b *Backend) Remove(_ context.Context, doc *store.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if doc.IsTranslation() {
		delete(b.docs, key(doc.Ref, doc.Language))
		return nil
	}
	b.removeEntityLocked(doc.Ref)
	return nil
}

func (b *Backend) removeEntityLocked(ref store.Ref) {
	coarse := ref.String()
	delete(b.docs, coarse)
	prefix := coarse + store.Separator
	for k := range b.docs {
		if strings.HasPrefix(k, prefix) {
			delete(b.docs, k)
		}
	}
}

// Len returns the number of stored documents.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

// Fetches returns how many Fetch calls were made.
func (b *Backend) Fetches() int64 { return b.fetches.Load() }

// Writes returns how many Write calls were made.
func (b *Backend) Writes() int64 { return b.writes.Load() }
