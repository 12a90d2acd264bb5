package store

import "strings"

// Separator joins the parts of a cache key.
const Separator = ":"

// Ref identifies an entity inside a namespace (tenant).
type Ref struct {
	Namespace string
	ID        string
}

// ParseRef parses "namespace:id". Both parts must be non-empty and the id
// must not contain the separator.
func ParseRef(s string) (Ref, error) {
	ns, id, ok := strings.Cut(s, Separator)
	r := Ref{Namespace: ns, ID: id}
	if !ok {
		return Ref{}, &RefError{Input: s, Reason: "missing separator"}
	}
	if err := r.validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// String returns the coarse form "namespace:id".
func (r Ref) String() string { return r.Namespace + Separator + r.ID }

func (r Ref) validate() error {
	switch {
	case r.Namespace == "":
		return &RefError{Input: r.String(), Reason: "empty namespace"}
	case r.ID == "":
		return &RefError{Input: r.String(), Reason: "empty id"}
	case strings.Contains(r.Namespace, Separator) || strings.Contains(r.ID, Separator):
		return &RefError{Input: r.String(), Reason: "separator inside a part"}
	}
	return nil
}

// CacheKey is the cache identity of a (ref, language) request.
type CacheKey struct {
	Ref
	Language string
}

// KeyOf builds the CacheKey for ref and lang.
func KeyOf(ref Ref, lang string) CacheKey { return CacheKey{Ref: ref, Language: lang} }

// Coarse returns the language independent key "namespace:id".
func (k CacheKey) Coarse() string { return k.Ref.String() }

// Specific returns "namespace:id:lang", collapsed to the coarse key when the
// language is empty or equals defaultLang.
func (k CacheKey) Specific(defaultLang string) string {
	if k.Language == "" || k.Language == defaultLang {
		return k.Coarse()
	}
	return k.Coarse() + Separator + k.Language
}

// String returns the uncollapsed key.
func (k CacheKey) String() string { return k.Specific("") }

// prefix matches every specific key of the entity.
func (k CacheKey) prefix() string { return k.Coarse() + Separator }
