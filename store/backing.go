package store

import "context"

// BackingStore is the authoritative source of documents.
//
// Implementations must be safe for concurrent use. The Store never issues
// concurrent Fetch calls for the same key.
type BackingStore interface {
	// Fetch returns the document for ref in lang. lang == "" selects the
	// default version; a lang equal to the default language returns the
	// default version as well. Absence is (nil, false, nil).
	// The returned document must be a fresh instance owned by the caller.
	Fetch(ctx context.Context, ref Ref, lang string) (*Document, bool, error)

	// Write creates or replaces doc.
	Write(ctx context.Context, doc *Document) error

	// Remove deletes doc. Removing the default version removes every
	// translation of the entity too.
	Remove(ctx context.Context, doc *Document) error
}
