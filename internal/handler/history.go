package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/voice"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// ChatHistory lists past voice conversations.
type ChatHistory interface {
	ListChats(ctx context.Context, page, size int) (*voice.ChatsPage, error)
	ListChatGroupEvents(ctx context.Context, groupID string, page, size int) (*voice.EventsPage, error)
}

// ChatOwners tells which conversations belong to a user.
type ChatOwners interface {
	ChatsByOwner(ctx context.Context, ownerID string) ([]model.ChatRef, error)
	OwnsChatGroup(ctx context.Context, ownerID, chatGroupID string) (bool, error)
}

// TranscriptReader replays recorded conversation messages.
type TranscriptReader interface {
	GetMessages(ctx context.Context, ownerID, chatID string, afterSequence uint64, limit int) ([]model.ConversationMessage, uint64, bool, error)
}

// HistoryHandler handles past conversation endpoints. Either source may be
// nil when it is not configured. Chat history is only served with owners,
// since the voice service lists every conversation on the account.
type HistoryHandler struct {
	chats       ChatHistory
	owners      ChatOwners
	transcripts TranscriptReader
	logger      *logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(chats ChatHistory, owners ChatOwners, transcripts TranscriptReader, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		chats:       chats,
		owners:      owners,
		transcripts: transcripts,
		logger:      log,
	}
}

// Chats handles GET /api/v1/chats
// The page is fetched from the voice service and narrowed to the caller's
// conversations, so a page may hold fewer than size chats.
func (h *HistoryHandler) Chats(w http.ResponseWriter, r *http.Request) {
	if h.chats == nil || h.owners == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history is not configured")
		return
	}

	ctx := r.Context()
	refs, err := h.owners.ChatsByOwner(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, "failed to list chat owners", err)
		return
	}

	page, err := h.chats.ListChats(ctx, intQuery(r, "page", 0, 0), intQuery(r, "size", 10, 100))
	if err != nil {
		writeServiceError(w, h.logger, "failed to list chats", err)
		return
	}

	writeJSON(w, http.StatusOK, ownedChats(page, refs))
}

func ownedChats(page *voice.ChatsPage, refs []model.ChatRef) *voice.ChatsPage {
	chatIDs := make(map[string]bool, len(refs))
	groupIDs := make(map[string]bool, len(refs))
	for _, ref := range refs {
		chatIDs[ref.ChatID] = true
		if ref.ChatGroupID != "" {
			groupIDs[ref.ChatGroupID] = true
		}
	}

	out := *page
	out.Chats = make([]voice.Chat, 0, len(page.Chats))
	for _, chat := range page.Chats {
		if chatIDs[chat.ID] || groupIDs[chat.ChatGroupID] {
			out.Chats = append(out.Chats, chat)
		}
	}
	return &out
}

// ChatEvents handles GET /api/v1/chats/:groupID/events
func (h *HistoryHandler) ChatEvents(w http.ResponseWriter, r *http.Request) {
	if h.chats == nil || h.owners == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history is not configured")
		return
	}

	ctx := r.Context()
	groupID := chi.URLParam(r, "groupID")
	if err := middleware.ValidateDocumentID(groupID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat group id")
		return
	}

	owned, err := h.owners.OwnsChatGroup(ctx, middleware.GetUserID(ctx), groupID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to check chat owner", err)
		return
	}
	if !owned {
		writeError(w, http.StatusNotFound, "chat group not found")
		return
	}

	page, err := h.chats.ListChatGroupEvents(ctx, groupID, intQuery(r, "page", 0, 0), intQuery(r, "size", 10, 100))
	if err != nil {
		writeServiceError(w, h.logger, "failed to list chat events", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Transcript handles GET /api/v1/transcripts/:chatID
// Supports ?after_sequence=N&limit=N for paging.
func (h *HistoryHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		writeError(w, http.StatusServiceUnavailable, "transcripts are not configured")
		return
	}

	ctx := r.Context()
	chatID := chi.URLParam(r, "chatID")
	if err := middleware.ValidateDocumentID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	after := uint64(intQuery(r, "after_sequence", 0, 0))
	messages, last, hasMore, err := h.transcripts.GetMessages(ctx, middleware.GetUserID(ctx), chatID, after, intQuery(r, "limit", 50, 100))
	if err != nil {
		writeServiceError(w, h.logger, "failed to replay transcript", err)
		return
	}
	if messages == nil {
		messages = []model.ConversationMessage{}
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages:     messages,
		HasMore:      hasMore,
		LastSequence: last,
	})
}
