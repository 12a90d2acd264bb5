package store

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/doccache/cache"
	"github.com/IvanBrykalov/doccache/internal/flight"
	"github.com/IvanBrykalov/doccache/internal/util"
)

// Store is a read-through document cache. All methods are safe for
// concurrent use, except that Flush is meant for maintenance windows.
type Store struct {
	backing BackingStore
	opts    Options
	log     *zap.Logger
	diag    Diagnostics

	tables  atomic.Pointer[tables]
	loaders *flight.Registry[fetched]

	hits        util.PaddedAtomicInt64
	misses      util.PaddedAtomicInt64
	negHits     util.PaddedAtomicInt64
	fetches     util.PaddedAtomicInt64
	retries     util.PaddedAtomicInt64
	fetchErrors util.PaddedAtomicInt64
}

// tables are the two bounded maps; Flush replaces them together.
type tables struct {
	entity cache.Map[*Document]
	exists cache.Map[bool]
}

// fetched is the outcome of one backing Fetch.
type fetched struct {
	doc    *Document
	found  bool
	cached bool // taken from the entity map, nothing to publish
	absent bool // the entity has no default version; already recorded
}

// Stats is a point-in-time snapshot of a Store.
type Stats struct {
	Entities  int // resident documents
	Existence int // resident presence/absence flags
	Loaders   int // registered loaders

	Hits         int64
	Misses       int64
	NegativeHits int64
	Fetches      int64
	Retries      int64
	FetchErrors  int64

	EntityMap    cache.Stats
	ExistenceMap cache.Stats
}

// New builds a Store over backing.
func New(backing BackingStore, opts Options) (*Store, error) {
	if backing == nil {
		return nil, ErrNilBackingStore
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts, requested, clamped := opts.normalize()

	s := &Store{
		backing: backing,
		opts:    opts,
		log:     opts.Logger.Named("doccache"),
		diag:    opts.Diagnostics,
		loaders: flight.NewRegistry[fetched](),
	}
	if clamped {
		s.log.Warn("existence capacity below entity capacity, clamping",
			zap.Int("requested", requested),
			zap.Int("clamped", opts.ExistenceCapacity))
		s.diag.CapacityClamped(requested, opts.ExistenceCapacity)
	}
	s.tables.Store(s.newTables())
	return s, nil
}

func (s *Store) newTables() *tables {
	var entityMetrics, existsMetrics cache.Metrics
	if p, ok := s.diag.(MapMetricsProvider); ok {
		entityMetrics = p.MapMetrics("entity")
		existsMetrics = p.MapMetrics("existence")
	}
	entity := cache.New[*Document](cache.Options[*Document]{
		Capacity: s.opts.EntityCapacity,
		Shards:   s.opts.Shards,
		Metrics:  entityMetrics,
	})
	exists := cache.New[bool](cache.Options[bool]{
		Capacity: s.opts.ExistenceCapacity,
		Shards:   s.opts.Shards,
		Metrics:  existsMetrics,
		// A cached document never outlives its positive flag.
		OnEvict: func(k string, present bool) {
			if present {
				entity.Remove(k)
			}
		},
	})
	return &tables{entity: entity, exists: exists}
}

// Load returns the document for ref in lang (""=default version).
//
// found=false with a nil error means the backing store confirmed absence.
// The returned document is shared and must not be mutated. A failed fetch is
// never cached: the next Load retries the backing store.
func (s *Store) Load(ctx context.Context, ref Ref, lang string) (*Document, bool, error) {
	if err := ref.validate(); err != nil {
		return nil, false, err
	}
	t := s.tables.Load()
	ck := KeyOf(ref, lang)
	key := resolve(t, ck)

	if doc, ok := t.entity.Get(key); ok {
		// Keep the flag as recent as the document it vouches for.
		t.exists.Get(key)
		s.hits.Add(1)
		s.diag.Hit()
		return doc, true, nil
	}
	if s.knownAbsent(t, key, ck.Coarse()) {
		s.negHits.Add(1)
		s.diag.NegativeHit()
		return nil, false, nil
	}

	s.misses.Add(1)
	s.diag.Miss()
	r, err := s.await(ctx, key, ck)
	if err != nil {
		return nil, false, err
	}
	return r.doc, r.found, nil
}

// Exists reports whether ref exists, answering from the caches when possible
// and loading the default version otherwise. An entity without a default
// version does not exist, whatever translations the backing store holds.
func (s *Store) Exists(ctx context.Context, ref Ref) (bool, error) {
	if err := ref.validate(); err != nil {
		return false, err
	}
	t := s.tables.Load()
	coarse := ref.String()
	if present, ok := t.exists.Get(coarse); ok {
		return present, nil
	}
	if _, ok := t.entity.Peek(coarse); ok {
		t.exists.Add(coarse, true)
		return true, nil
	}
	_, found, err := s.Load(ctx, ref, "")
	return found, err
}

// Save writes doc and evicts every cached key it affects, including the
// whole previous identity when doc.PreviousRef is set. Cached entries are
// never updated in place: the next Load refetches.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return ErrNilDocument
	}
	if err := doc.Ref.validate(); err != nil {
		return err
	}
	if err := s.backing.Write(ctx, doc); err != nil {
		return err
	}
	res := s.evictDocument(doc)
	if prev := doc.PreviousRef; prev != nil && *prev != doc.Ref {
		res = worse(res, s.evictEntity(*prev))
	}
	s.log.Debug("saved", zap.Stringer("key", doc.Key()), zap.Stringer("evict", res))
	return nil
}

// Delete removes doc from the backing store and records its absence.
// Deleting the default version drops the whole entity: every cached
// translation is evicted and the coarse key is marked absent.
func (s *Store) Delete(ctx context.Context, doc *Document) error {
	if doc == nil {
		return ErrNilDocument
	}
	if err := doc.Ref.validate(); err != nil {
		return err
	}
	if err := s.backing.Remove(ctx, doc); err != nil {
		return err
	}

	ck := doc.Key()
	var res InvalidateResult
	if doc.IsTranslation() {
		res = s.evictDocument(doc)
		t, pk := s.tables.Load(), ck.Specific(doc.DefaultLanguage)
		t.exists.Set(pk, false)
		t.entity.Remove(pk)
	} else {
		res = s.evictEntity(doc.Ref)
		s.tables.Load().exists.Set(ck.Coarse(), false)
	}
	if prev := doc.PreviousRef; prev != nil && *prev != doc.Ref {
		res = worse(res, s.evictEntity(*prev))
	}
	s.log.Debug("deleted", zap.Stringer("key", ck), zap.Stringer("evict", res))
	return nil
}

// Invalidate evicts ref in lang and intercepts its in-flight fetch, if any.
// It never blocks on a fetch. With a non-empty lang both the resolved key
// and the uncollapsed "ns:id:lang" key are handled; the most severe outcome
// is returned. Invalidating an absent key returns Miss.
func (s *Store) Invalidate(ref Ref, lang string) InvalidateResult {
	t := s.tables.Load()
	ck := KeyOf(ref, lang)
	key := resolve(t, ck)

	res := s.invalidateKey(t, key)
	if raw := ck.String(); raw != key {
		res = worse(res, s.invalidateKey(t, raw))
	}
	s.diag.Invalidation(res)
	if res >= CanceledClean {
		s.log.Debug("invalidated in-flight load", zap.String("key", key), zap.Stringer("result", res))
	}
	return res
}

// Flush replaces both maps with empty ones and invalidates every registered
// loader. It is a maintenance operation: loads racing with it may still
// publish into the discarded maps or return documents read before it.
func (s *Store) Flush() {
	old := s.tables.Swap(s.newTables())
	s.loaders.Range(func(_ string, l *flight.Loader[fetched]) bool {
		l.Invalidate()
		return true
	})
	_ = old.entity.Close()
	_ = old.exists.Close()
	s.log.Info("flushed")
}

// Stats returns a snapshot of sizes and counters.
func (s *Store) Stats() Stats {
	t := s.tables.Load()
	return Stats{
		Entities:     t.entity.Len(),
		Existence:    t.exists.Len(),
		Loaders:      s.loaders.Len(),
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		NegativeHits: s.negHits.Load(),
		Fetches:      s.fetches.Load(),
		Retries:      s.retries.Load(),
		FetchErrors:  s.fetchErrors.Load(),
		EntityMap:    t.entity.Stats(),
		ExistenceMap: t.exists.Stats(),
	}
}

// Close drops both maps. Later calls behave as an always-missing cache.
func (s *Store) Close() error {
	t := s.tables.Load()
	_ = t.entity.Close()
	_ = t.exists.Close()
	s.loaders.Clear()
	return nil
}

// -------------------- internals --------------------

// resolve picks the key a request is cached under. A language equal to the
// default language of the cached coarse entity collapses to the coarse key.
func resolve(t *tables, ck CacheKey) string {
	coarse := ck.Coarse()
	if ck.Language == "" {
		return coarse
	}
	if doc, ok := t.entity.Peek(coarse); ok && doc.DefaultLanguage == ck.Language {
		return coarse
	}
	return ck.String()
}

func (s *Store) knownAbsent(t *tables, key, coarse string) bool {
	if present, ok := t.exists.Get(key); ok && !present {
		return true
	}
	if key == coarse {
		return false
	}
	present, ok := t.exists.Get(coarse)
	return ok && !present
}

// await joins or starts the loader registered under key and releases it
// once it has published.
func (s *Store) await(ctx context.Context, key string, ck CacheKey) (fetched, error) {
	l := s.loaders.Acquire(key, func() *flight.Loader[fetched] { return s.newLoader(key, ck) })
	r, err := l.Load(ctx)
	if err != nil {
		return fetched{}, err
	}
	s.loaders.Release(key, l)
	return r, nil
}

func (s *Store) newLoader(key string, ck CacheKey) *flight.Loader[fetched] {
	// Cycles of one loader run one after another, so first needs no lock.
	first := true
	return flight.NewLoader(flight.Source[fetched]{
		Fetch: func(ctx context.Context) (fetched, error) {
			if first {
				first = false
				return s.firstFetch(ctx, key, ck)
			}
			return s.fetch(ctx, ck)
		},
		Publish: func(r fetched) { s.publish(key, ck, r) },
		Retract: func(r fetched) { s.retract(key, ck, r) },
		OnRetry: func() {
			s.retries.Add(1)
			s.diag.Retry()
			s.log.Debug("reloading after invalidation", zap.String("key", key))
		},
	})
}

// firstFetch runs the first cycle of a loader. A document published since
// the caller missed is reused. A language key first joins the load of the
// default version: the language may turn out to be the default one, and a
// missing default version means the whole entity is missing. Retries skip
// both shortcuts and always ask the backing store.
func (s *Store) firstFetch(ctx context.Context, key string, ck CacheKey) (fetched, error) {
	t := s.tables.Load()
	if doc, ok := t.entity.Peek(key); ok {
		return fetched{doc: doc, found: true, cached: true}, nil
	}
	coarse := ck.Coarse()
	if key == coarse {
		return s.fetch(ctx, ck)
	}

	var def fetched
	if doc, ok := t.entity.Peek(coarse); ok {
		def = fetched{doc: doc, found: true}
	} else if present, ok := t.exists.Peek(coarse); !ok || present {
		var err error
		if def, err = s.await(ctx, coarse, KeyOf(ck.Ref, "")); err != nil {
			return fetched{}, err
		}
	}
	switch {
	case !def.found:
		return fetched{absent: true}, nil
	case def.doc.DefaultLanguage == ck.Language:
		return fetched{doc: def.doc, found: true, cached: true}, nil
	}
	return s.fetch(ctx, ck)
}

func (s *Store) fetch(ctx context.Context, ck CacheKey) (fetched, error) {
	s.fetches.Add(1)
	s.diag.Fetch()
	doc, found, err := s.backing.Fetch(ctx, ck.Ref, ck.Language)
	if err != nil {
		s.fetchErrors.Add(1)
		s.diag.FetchError()
		s.log.Debug("fetch failed", zap.Stringer("key", ck), zap.Error(err))
		return fetched{}, err
	}
	if !found || doc == nil {
		return fetched{}, nil
	}
	doc.fromCache = true
	return fetched{doc: doc, found: true}, nil
}

// publish runs inside the loader once the fetch window closed cleanly.
// A positive result sets the coarse flag only if it is absent, so a
// recorded absence is never overwritten by a load of another key.
func (s *Store) publish(key string, ck CacheKey, r fetched) {
	if r.cached {
		return
	}
	t := s.tables.Load()
	if !r.found {
		if !r.absent {
			t.exists.Set(key, false)
		}
		return
	}
	pk := ck.Specific(r.doc.DefaultLanguage)
	t.entity.Set(pk, r.doc)
	t.exists.Set(pk, true)
	if coarse := ck.Coarse(); pk != coarse {
		t.exists.Add(coarse, true)
	}
}

func (s *Store) retract(key string, ck CacheKey, r fetched) {
	if r.cached {
		return
	}
	t := s.tables.Load()
	if r.found {
		pk := ck.Specific(r.doc.DefaultLanguage)
		t.entity.Remove(pk)
		t.exists.Remove(pk)
	}
	t.exists.Remove(key)
	s.log.Debug("retracted late publication", zap.String("key", key))
}

func (s *Store) invalidateKey(t *tables, key string) InvalidateResult {
	res := Miss
	if l, ok := s.loaders.Lookup(key); ok {
		switch c := l.Invalidate(); {
		case c == flight.CancelClean:
			res = CanceledClean
		case c == flight.CancelMultiple:
			res = CanceledMultiple
		case l.Published():
			// Past its fetch window; it will not retry.
			res = CancelFailed
			s.loaders.Release(key, l)
		}
	}
	removed := t.entity.Remove(key)
	if t.exists.Remove(key) {
		removed = true
	}
	if removed {
		res = worse(res, Removed)
	}
	return res
}

// evictDocument invalidates the coarse key and both language keys of doc.
func (s *Store) evictDocument(doc *Document) InvalidateResult {
	res := s.Invalidate(doc.Ref, "")
	for _, lang := range []string{doc.Language, doc.DefaultLanguage} {
		if lang != "" {
			res = worse(res, s.Invalidate(doc.Ref, lang))
		}
	}
	return res
}

// evictEntity invalidates every cached key and every registered loader of
// ref, translations included.
func (s *Store) evictEntity(ref Ref) InvalidateResult {
	res := s.Invalidate(ref, "")
	t := s.tables.Load()
	prefix := KeyOf(ref, "").prefix()

	var inflight []string
	s.loaders.Range(func(k string, _ *flight.Loader[fetched]) bool {
		if strings.HasPrefix(k, prefix) {
			inflight = append(inflight, k)
		}
		return true
	})
	for _, k := range inflight {
		res = worse(res, s.invalidateKey(t, k))
	}

	n := t.entity.RemoveFunc(func(k string, _ *Document) bool { return strings.HasPrefix(k, prefix) })
	n += t.exists.RemoveFunc(func(k string, _ bool) bool { return strings.HasPrefix(k, prefix) })
	if n > 0 {
		res = worse(res, Removed)
	}
	return res
}
