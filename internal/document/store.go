package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/metasync/internal/core/db"
	"github.com/solatis/metasync/internal/types"
)

// Store persists documents and their blobs.
// Blob content is stored zstd-compressed next to its blake3 digest.
type Store struct {
	queries *db.Queries
	codec   *blobCodec
	now     func() time.Time
}

// NewStore creates a store over the named queries.
func NewStore(queries *db.Queries) (*Store, error) {
	codec, err := newBlobCodec()
	if err != nil {
		return nil, err
	}
	return &Store{
		queries: queries,
		codec:   codec,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

type documentRow struct {
	ID         string    `db:"document_id"`
	Type       string    `db:"doc_type"`
	Facets     string    `db:"facets"`
	Properties string    `db:"properties"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type blobRow struct {
	DocumentID string `db:"document_id"`
	Path       string `db:"path"`
	Filename   string `db:"filename"`
	MimeType   string `db:"mime_type"`
	Length     int64  `db:"length"`
	Digest     string `db:"digest"`
	Data       []byte `db:"data"`
}

// Create inserts doc under a new id and resets its dirty state.
func (s *Store) Create(ctx context.Context, doc *Document) error {
	if doc.Exists() {
		return fmt.Errorf("document %s already created", doc.ID())
	}

	id := types.NewDocumentID()
	facets, props, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.queries.InTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.ExecContext(ctx, "insert-document", string(id), doc.Type(), facets, props, now, now); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		for _, path := range doc.BinaryPaths() {
			if err := s.insertBlob(ctx, tx, id, path, doc.blobs[path]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	doc.markPersisted(id)
	return nil
}

// Save persists doc, creating it when it has no identity yet. Only dirty
// blobs are rewritten.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	if !doc.Exists() {
		return s.Create(ctx, doc)
	}

	facets, props, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	err = s.queries.InTx(ctx, func(tx *db.Queries) error {
		res, err := tx.ExecContext(ctx, "update-document", doc.Type(), facets, props, s.now(), string(doc.ID()))
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, doc.ID())
		}

		for path := range doc.baseBlobs {
			if _, attached := doc.blobs[path]; attached {
				continue
			}
			if _, err := tx.ExecContext(ctx, "delete-blob", string(doc.ID()), path); err != nil {
				return fmt.Errorf("delete blob %s: %w", path, err)
			}
		}
		for _, path := range doc.BinaryPaths() {
			if !doc.IsDirty(path) {
				continue
			}
			if _, err := tx.ExecContext(ctx, "delete-blob", string(doc.ID()), path); err != nil {
				return fmt.Errorf("replace blob %s: %w", path, err)
			}
			if err := s.insertBlob(ctx, tx, doc.ID(), path, doc.blobs[path]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	doc.markPersisted(doc.ID())
	return nil
}

func (s *Store) insertBlob(ctx context.Context, tx *db.Queries, id types.DocumentID, path string, b *types.Blob) error {
	_, err := tx.ExecContext(ctx, "insert-blob",
		string(id), path, b.Filename, b.MimeType, int64(b.Length()), Digest(b.Data), s.codec.compress(b.Data))
	if err != nil {
		return fmt.Errorf("insert blob %s: %w", path, err)
	}
	return nil
}

// Get loads a document. Unknown ids fail with types.ErrDocumentNotFound.
func (s *Store) Get(ctx context.Context, id types.DocumentID) (*Document, error) {
	var row documentRow
	err := s.queries.GetContext(ctx, "get-document", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	var blobs []blobRow
	if err := s.queries.SelectContext(ctx, "list-blobs", &blobs, string(id)); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	doc := New(row.Type)
	if err := json.Unmarshal([]byte(row.Facets), &doc.facets); err != nil {
		return nil, fmt.Errorf("decode facets of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(row.Properties), &doc.props); err != nil {
		return nil, fmt.Errorf("decode properties of %s: %w", id, err)
	}
	if doc.props == nil {
		doc.props = make(map[string]any)
	}
	for _, b := range blobs {
		data, err := s.codec.decompress(b.Data, b.Digest)
		if err != nil {
			return nil, fmt.Errorf("blob %s of %s: %w", b.Path, id, err)
		}
		doc.blobs[b.Path] = &types.Blob{Filename: b.Filename, MimeType: b.MimeType, Data: data}
	}

	doc.markPersisted(types.DocumentID(row.ID))
	return doc, nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(ctx context.Context, id types.DocumentID) (bool, error) {
	if id == "" {
		return false, nil
	}
	var count int
	if err := s.queries.GetContext(ctx, "count-document", &count, string(id)); err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return count > 0, nil
}

// Delete removes a document and its blobs.
func (s *Store) Delete(ctx context.Context, id types.DocumentID) error {
	return s.queries.InTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.ExecContext(ctx, "delete-blobs", string(id)); err != nil {
			return fmt.Errorf("delete blobs: %w", err)
		}
		res, err := tx.ExecContext(ctx, "delete-document", string(id))
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
		}
		return nil
	})
}

func encodeDocument(doc *Document) (facets, props string, err error) {
	facetList := doc.Facets()
	if facetList == nil {
		facetList = []string{}
	}
	facetsJSON, err := json.Marshal(facetList)
	if err != nil {
		return "", "", fmt.Errorf("encode facets: %w", err)
	}
	propsJSON, err := json.Marshal(doc.props)
	if err != nil {
		return "", "", fmt.Errorf("encode properties: %w", err)
	}
	return string(facetsJSON), string(propsJSON), nil
}
