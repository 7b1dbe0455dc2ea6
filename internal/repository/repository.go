// Package repository persists analyzed journal documents.
package repository

import (
	"context"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// DocumentRepository stores documents per owner.
type DocumentRepository interface {
	// Insert assigns doc an id and creation time and stores it.
	Insert(ctx context.Context, doc *model.UploadedDocument) error

	// ListByOwner returns the owner's documents, most recent first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.UploadedDocument, error)
}

// ChatRepository records which user started each voice conversation so
// history can be scoped to its owner.
type ChatRepository interface {
	// RecordChat stores the chat and its group for ownerID. Recording the
	// same chat again is a no-op.
	RecordChat(ctx context.Context, ownerID, chatID, chatGroupID string) error

	// ChatsByOwner returns the owner's chats.
	ChatsByOwner(ctx context.Context, ownerID string) ([]model.ChatRef, error)

	// OwnsChatGroup reports whether any of the owner's chats belongs to the group.
	OwnsChatGroup(ctx context.Context, ownerID, chatGroupID string) (bool, error)
}
