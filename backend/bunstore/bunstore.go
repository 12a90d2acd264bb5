// Package bunstore is a BackingStore on a relational table through bun.
// Every language version is one row of "documents", keyed by
// (namespace, id, language) with language "" for the default version.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver for Open
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/IvanBrykalov/doccache/backend"
	"github.com/IvanBrykalov/doccache/store"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Namespace       string    `bun:"namespace,pk"`
	ID              string    `bun:"id,pk"`
	Language        string    `bun:"language,pk"`
	DefaultLanguage string    `bun:"default_language,notnull"`
	Title           string    `bun:"title,notnull"`
	Content         string    `bun:"content,notnull"`
	Version         int64     `bun:"version,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func toRow(d *store.Document) *documentRow {
	return &documentRow{
		Namespace:       d.Ref.Namespace,
		ID:              d.Ref.ID,
		Language:        backend.StorageLanguage(d),
		DefaultLanguage: d.DefaultLanguage,
		Title:           d.Title,
		Content:         d.Content,
		Version:         d.Version,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (r *documentRow) document() *store.Document {
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

// Backend implements store.BackingStore on a bun.DB.
type Backend struct {
	db *bun.DB
}

// New wraps db. The documents table must exist; see CreateSchema.
func New(db *bun.DB) *Backend { return &Backend{db: db} }

// Open opens a sqlite3 database at dsn (for example "file::memory:?cache=shared")
// and creates the schema.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	b := New(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := b.CreateSchema(ctx); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return b, nil
}

// CreateSchema creates the documents table if it does not exist.
func (b *Backend) CreateSchema(ctx context.Context) error {
	_, err := b.db.NewCreateTable().Model((*documentRow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *Backend) Close() error { return b.db.Close() }

var _ store.BackingStore = (*Backend)(nil)

// Fetch implements store.BackingStore.
func (b *Backend) Fetch(ctx context.Context, ref store.Ref, lang string) (*store.Document, bool, error) {
	if lang != "" {
		row, found, err := b.selectRow(ctx, ref, lang)
		if err != nil || found {
			return rowDocument(row), found, err
		}
	}
	row, found, err := b.selectRow(ctx, ref, "")
	if err != nil || !found {
		return nil, false, err
	}
	if lang != "" && row.DefaultLanguage != lang {
		return nil, false, nil
	}
	return row.document(), true, nil
}

func rowDocument(r *documentRow) *store.Document {
	if r == nil {
		return nil
	}
	return r.document()
}

func (b *Backend) selectRow(ctx context.Context, ref store.Ref, lang string) (*documentRow, bool, error) {
	row := new(documentRow)
	err := b.db.NewSelect().
		Model(row).
		Where("namespace = ?", ref.Namespace).
		Where("id = ?", ref.ID).
		Where("language = ?", lang).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", store.KeyOf(ref, lang), err)
	}
	return row, true, nil
}

// Write implements store.BackingStore as an upsert. A set PreviousRef
// removes the old identity in the same transaction.
func (b *Backend) Write(ctx context.Context, doc *store.Document) error {
	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if prev := doc.PreviousRef; prev != nil && *prev != doc.Ref {
			if err := deleteEntity(ctx, tx, *prev); err != nil {
				return err
			}
		}
		_, err := tx.NewInsert().
			Model(toRow(doc)).
			On("CONFLICT (namespace, id, language) DO UPDATE").
			Set("default_language = EXCLUDED.default_language").
			Set("title = EXCLUDED.title").
			Set("content = EXCLUDED.content").
			Set("version = EXCLUDED.version").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", doc.Key(), err)
		}
		return nil
	})
}

// Remove implements store.BackingStore.
func (b *Backend) Remove(ctx context.Context, doc *store.Document) error {
	if !doc.IsTranslation() {
		return deleteEntity(ctx, b.db, doc.Ref)
	}
	_, err := b.db.NewDelete().
		Model((*documentRow)(nil)).
		Where("namespace = ?", doc.Ref.Namespace).
		Where("id = ?", doc.Ref.ID).
		Where("language = ?", doc.Language).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", doc.Key(), err)
	}
	return nil
}

func deleteEntity(ctx context.Context, db bun.IDB, ref store.Ref) error {
	_, err := db.NewDelete().
		Model((*documentRow)(nil)).
		Where("namespace = ?", ref.Namespace).
		Where("id = ?", ref.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}
