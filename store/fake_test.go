package store

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeBacking is an in-memory BackingStore with call counters and an
// optional hook that runs inside Fetch after the lookup.
type fakeBacking struct {
	mu   sync.Mutex
	docs map[string]*Document

	fetches atomic.Int32
	onFetch func(n int32, ref Ref, lang string) error
}

func newFakeBacking(docs ...*Document) *fakeBacking {
	f := &fakeBacking{docs: map[string]*Document{}}
	for _, d := range docs {
		f.put(d)
	}
	return f
}

func storageKey(d *Document) string { return d.Key().Specific(d.DefaultLanguage) }

func (f *fakeBacking) put(d *Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := d.Clone()
	c.PreviousRef = nil
	f.docs[storageKey(c)] = c
}

func (f *fakeBacking) Fetch(_ context.Context, ref Ref, lang string) (*Document, bool, error) {
	n := f.fetches.Add(1)
	doc, found := f.lookup(ref, lang)
	if f.onFetch != nil {
		if err := f.onFetch(n, ref, lang); err != nil {
			return nil, false, err
		}
	}
	return doc, found, nil
}

func (f *fakeBacking) lookup(ref Ref, lang string) (*Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[KeyOf(ref, lang).String()]; ok {
		return d.Clone(), true
	}
	if d, ok := f.docs[ref.String()]; ok && (lang == "" || d.DefaultLanguage == lang) {
		return d.Clone(), true
	}
	return nil, false
}

func (f *fakeBacking) Write(_ context.Context, d *Document) error {
	if d.PreviousRef != nil {
		f.removeEntity(*d.PreviousRef)
	}
	f.put(d)
	return nil
}

func (f *fakeBacking) Remove(_ context.Context, d *Document) error {
	if !d.IsTranslation() {
		f.removeEntity(d.Ref)
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, storageKey(d))
	return nil
}

func (f *fakeBacking) removeEntity(ref Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := KeyOf(ref, "").prefix()
	for k := range f.docs {
		if k == ref.String() || len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(f.docs, k)
		}
	}
}

// recordingDiagnostics counts every event.
type recordingDiagnostics struct {
	hits, misses, negHits, fetches, retries, fetchErrors atomic.Int32

	mu            sync.Mutex
	invalidations []InvalidateResult
	clamped       [][2]int
}

func (r *recordingDiagnostics) Hit()         { r.hits.Add(1) }
func (r *recordingDiagnostics) Miss()        { r.misses.Add(1) }
func (r *recordingDiagnostics) NegativeHit() { r.negHits.Add(1) }
func (r *recordingDiagnostics) Fetch()       { r.fetches.Add(1) }
func (r *recordingDiagnostics) Retry()       { r.retries.Add(1) }
func (r *recordingDiagnostics) FetchError()  { r.fetchErrors.Add(1) }

func (r *recordingDiagnostics) Invalidation(res InvalidateResult) {
	r.mu.Lock()
	r.invalidations = append(r.invalidations, res)
	r.mu.Unlock()
}

func (r *recordingDiagnostics) CapacityClamped(requested, clamped int) {
	r.mu.Lock()
	r.clamped = append(r.clamped, [2]int{requested, clamped})
	r.mu.Unlock()
}

var page = Ref{Namespace: "wiki", ID: "space.page"}

func pageDoc(lang, title string) *Document {
	return &Document{Ref: page, Language: lang, DefaultLanguage: "en", Title: title, Version: 1}
}
