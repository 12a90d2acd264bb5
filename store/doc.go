// Package store is a read-through document cache in front of a slow
// BackingStore.
//
// A Store keeps two bounded LRU maps: the entity map holds published
// documents, the existence map holds confirmed presence (true) or absence
// (false) per key. Misses go through a per-key Loader so that a key is
// fetched by at most one backing call at a time, and an invalidation that
// lands while that call is in flight forces a refetch instead of letting the
// stale value be published.
//
// # Keys
//
// Documents are addressed by Ref (namespace + id) and an optional language.
// The coarse key "ns:id" tracks the entity as a whole. The specific key
// "ns:id:lang" addresses one translation; the suffix is dropped when the
// language is empty or equals the document's default language, so
// ("wiki:space.page", "en") and ("wiki:space.page", "") share one entry when
// "en" is the default.
//
// The default version defines the entity: an entity whose default version
// is missing is missing as a whole, and its translations are not served
// even if the backing store holds them. A language request on a cold cache
// therefore joins the load of the default version first.
//
// # Basic usage
//
//	s, err := store.New(backend, store.DefaultOptions())
//	if err != nil { ... }
//	doc, found, err := s.Load(ctx, store.Ref{Namespace: "wiki", ID: "space.page"}, "")
//	...
//	edited := doc.Clone()
//	edited.Content = "..."
//	err = s.Save(ctx, edited) // evicts; the next Load refetches
//
// Documents returned by Load are shared between callers and must not be
// mutated; use Clone.
package store
