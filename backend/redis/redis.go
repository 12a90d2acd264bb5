// Package redis is a BackingStore on Redis. Documents are msgpack-encoded
// under "<prefix>doc:<ns>:<id>[:<lang>]"; the languages of each entity's
// translations are tracked in the set "<prefix>langs:<ns>:<id>" so that
// removing the default version can remove them all.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/IvanBrykalov/doccache/backend"
	"github.com/IvanBrykalov/doccache/store"
)

// DefaultPrefix namespaces every key written by a Backend.
const DefaultPrefix = "doccache:"

// record is the stored form of a document.
type record struct {
	Namespace       string    `msgpack:"ns"`
	ID              string    `msgpack:"id"`
	Language        string    `msgpack:"lang,omitempty"`
	DefaultLanguage string    `msgpack:"dlang,omitempty"`
	Title           string    `msgpack:"title,omitempty"`
	Content         string    `msgpack:"content,omitempty"`
	Version         int64     `msgpack:"v"`
	UpdatedAt       time.Time `msgpack:"at"`
}

func toRecord(d *store.Document) record {
	return record{
		Namespace:       d.Ref.Namespace,
		ID:              d.Ref.ID,
		Language:        d.Language,
		DefaultLanguage: d.DefaultLanguage,
		Title:           d.Title,
		Content:         d.Content,
		Version:         d.Version,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (r record) document() *store.Document {
	return &store.Document{
		Ref:             store.Ref{Namespace: r.Namespace, ID: r.ID},
		Language:        r.Language,
		DefaultLanguage: r.DefaultLanguage,
		Title:           r.Title,
		Content:         r.Content,
		Version:         r.Version,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Backend implements store.BackingStore on a Redis client.
type Backend struct {
	rdb    goredis.UniversalClient
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(p string) Option {
	return func(b *Backend) { b.prefix = p }
}

// New wraps rdb. It panics on a nil client.
func New(rdb goredis.UniversalClient, opts ...Option) *Backend {
	if rdb == nil {
		panic("redis backend: nil client")
	}
	b := &Backend{rdb: rdb, prefix: DefaultPrefix}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ store.BackingStore = (*Backend)(nil)

func (b *Backend) docKey(ref store.Ref, lang string) string {
	return b.prefix + "doc:" + store.KeyOf(ref, lang).String()
}

func (b *Backend) langsKey(ref store.Ref) string {
	return b.prefix + "langs:" + ref.String()
}

// Fetch implements store.BackingStore.
func (b *Backend) Fetch(ctx context.Context, ref store.Ref, lang string) (*store.Document, bool, error) {
	if lang != "" {
		d, found, err := b.get(ctx, b.docKey(ref, lang))
		if err != nil || found {
			return d, found, err
		}
	}
	d, found, err := b.get(ctx, b.docKey(ref, ""))
	if err != nil || !found {
		return nil, false, err
	}
	if lang != "" && d.DefaultLanguage != lang {
		return nil, false, nil
	}
	return d, true, nil
}

func (b *Backend) get(ctx context.Context, key string) (*store.Document, bool, error) {
	raw, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	var r record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return r.document(), true, nil
}

// Write implements store.BackingStore. A set PreviousRef removes the old
// identity in the same transaction.
func (b *Backend) Write(ctx context.Context, doc *store.Document) error {
	raw, err := msgpack.Marshal(toRecord(doc))
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.Key(), err)
	}

	var stale []string
	if prev := doc.PreviousRef; prev != nil && *prev != doc.Ref {
		if stale, err = b.entityKeys(ctx, *prev); err != nil {
			return err
		}
	}

	lang := backend.StorageLanguage(doc)
	_, err = b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		pipe.Set(ctx, b.docKey(doc.Ref, lang), raw, 0)
		if lang != "" {
			pipe.SAdd(ctx, b.langsKey(doc.Ref), lang)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", doc.Key(), err)
	}
	return nil
}

// Remove implements store.BackingStore.
func (b *Backend) Remove(ctx context.Context, doc *store.Document) error {
	if doc.IsTranslation() {
		_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, b.docKey(doc.Ref, doc.Language))
			pipe.SRem(ctx, b.langsKey(doc.Ref), doc.Language)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis remove %s: %w", doc.Key(), err)
		}
		return nil
	}

	keys, err := b.entityKeys(ctx, doc.Ref)
	if err != nil {
		return err
	}
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", doc.Ref, err)
	}
	return nil
}

// entityKeys lists every key owned by ref: the default version, each
// translation and the language set.
func (b *Backend) entityKeys(ctx context.Context, ref store.Ref) ([]string, error) {
	langs, err := b.rdb.SMembers(ctx, b.langsKey(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", ref, err)
	}
	keys := make([]string, 0, len(langs)+2)
	keys = append(keys, b.docKey(ref, ""), b.langsKey(ref))
	for _, l := range langs {
		keys = append(keys, b.docKey(ref, l))
	}
	return keys, nil
}
