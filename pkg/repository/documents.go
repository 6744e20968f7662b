package repository

import (
	"context"
)

// DocumentRepository reads and writes document metadata of one project
type DocumentRepository struct {
	t *table[Document]
}

func newDocumentRepository(s scope) *DocumentRepository {
	return &DocumentRepository{t: newTable[Document](s, "documents", "Document", "name")}
}

// FindMany lists documents newest first
func (r *DocumentRepository) FindMany(ctx context.Context, page Page) ([]*Document, int64, error) {
	return r.t.findMany(ctx, nil, "created_at DESC", page)
}

// FindByID returns one document
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*Document, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts document metadata
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}
	_, err := r.t.insert(ctx, doc)
	return err
}

// Rename changes the display name
func (r *DocumentRepository) Rename(ctx context.Context, id, name string) (*Document, error) {
	return r.t.update(ctx, id, map[string]interface{}{"name": name})
}

// Delete removes the metadata row. The stored object is removed by the caller.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}
