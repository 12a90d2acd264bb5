// Package backend holds BackingStore implementations for the document
// store: an in-process map (memory), Redis (redis) and a bun-backed SQL
// table (bunstore).
//
// All of them share one addressing scheme. The default version of an entity
// is stored under its Ref with an empty language; a translation is stored
// under its language. Fetch with the default language falls back to the
// default version, and removing the default version removes every
// translation with it.
package backend

import "github.com/IvanBrykalov/doccache/store"

// StorageLanguage returns the language a document is stored under:
// "" for the default version.
func StorageLanguage(doc *store.Document) string {
	if doc.IsTranslation() {
		return doc.Language
	}
	return ""
}
