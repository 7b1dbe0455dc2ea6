// Package model defines data structures for the journal coach.
package model

import (
	"time"
)

// UploadedDocument is a journal entry after extraction and analysis.
// Analysis is always complete before a document is persisted or selectable.
type UploadedDocument struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`

	// Persisted is false for documents kept only for the current session.
	Persisted bool `json:"persisted"`
}

// DocumentSummary is the list projection of a document without its full text.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
	Persisted bool      `json:"persisted"`
	Selected  bool      `json:"selected"`
}

// UploadResponse is returned after a document has been analyzed.
type UploadResponse struct {
	Document *UploadedDocument `json:"document"`
	Warning  string            `json:"warning,omitempty"`
}

// ListDocumentsResponse is the response for listing documents.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Selected  string            `json:"selected_id,omitempty"`
}

// SelectDocumentRequest selects a document for the live session. An empty id clears the selection.
type SelectDocumentRequest struct {
	DocumentID string `json:"document_id" validate:"omitempty,max=64"`
}

// ChatRef ties a voice conversation to the user who started it.
type ChatRef struct {
	OwnerID     string    `json:"owner_id"`
	ChatID      string    `json:"chat_id"`
	ChatGroupID string    `json:"chat_group_id"`
	CreatedAt   time.Time `json:"created_at"`
}
