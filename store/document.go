package store

import "time"

// Document is a snapshot of one language version of an entity.
//
// Instances handed out by the Store are shared between callers and are never
// mutated by it; callers that want to edit one must Clone it first.
type Document struct {
	Ref             Ref
	Language        string // "" for the default version
	DefaultLanguage string
	Title           string
	Content         string
	Version         int64
	UpdatedAt       time.Time

	// PreviousRef is set by callers saving a renamed or moved entity; every
	// cached key of the old identity is evicted.
	PreviousRef *Ref

	fromCache bool
}

// FromCache reports whether the instance was published by a Store.
func (d *Document) FromCache() bool { return d != nil && d.fromCache }

// IsTranslation reports whether d is a non-default language version.
func (d *Document) IsTranslation() bool {
	return d.Language != "" && d.Language != d.DefaultLanguage
}

// Key returns the CacheKey of d.
func (d *Document) Key() CacheKey { return KeyOf(d.Ref, d.Language) }

// Clone returns a mutable copy that is not marked as cached.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.fromCache = false
	if d.PreviousRef != nil {
		prev := *d.PreviousRef
		c.PreviousRef = &prev
	}
	return &c
}
