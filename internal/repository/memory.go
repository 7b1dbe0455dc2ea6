package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// MemoryDocumentRepository keeps documents in process. It is used when no
// database is configured.
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string][]model.UploadedDocument

	// Fail, when set, is returned by every call.
	Fail error
}

// NewMemoryDocumentRepository creates an empty repository.
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string][]model.UploadedDocument)}
}

func (r *MemoryDocumentRepository) Insert(_ context.Context, doc *model.UploadedDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}

	doc.ID = uuid.New().String()
	doc.CreatedAt = time.Now().UTC()
	doc.Persisted = true
	r.docs[doc.OwnerID] = append(r.docs[doc.OwnerID], *doc)
	return nil
}

func (r *MemoryDocumentRepository) ListByOwner(_ context.Context, ownerID string) ([]model.UploadedDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Fail != nil {
		return nil, r.Fail
	}

	stored := r.docs[ownerID]
	out := make([]model.UploadedDocument, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
