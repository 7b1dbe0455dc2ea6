package handler

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/service"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// DocumentHandler handles journal document endpoints.
type DocumentHandler struct {
	coach          *service.CoachService
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(coach *service.CoachService, maxUploadBytes int64, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		coach:          coach,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

// Upload handles POST /api/v1/documents
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "a PDF file is required in the \"file\" field")
		return
	}
	defer file.Close()

	body := bufio.NewReader(file)
	head, _ := body.Peek(5)
	if err := middleware.ValidatePDF(header.Filename, head); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	doc, err := h.coach.Workspace(userID).Upload(ctx, header.Filename, body)
	if doc == nil {
		writeServiceError(w, h.logger, "failed to upload document", err)
		return
	}

	resp := &model.UploadResponse{Document: doc}
	if err != nil {
		h.logger.Warn("document kept for this session only",
			zap.String("user_id", userID),
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		resp.Warning = "your journal was analyzed but could not be saved; it is available until you leave"
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, selectedID, err := h.coach.Workspace(middleware.GetUserID(ctx)).Documents(ctx)
	if err != nil && len(docs) == 0 {
		writeServiceError(w, h.logger, "failed to list documents", err)
		return
	}
	if err != nil {
		h.logger.Warn("listing session documents only", zap.Error(err))
	}

	summaries := make([]model.DocumentSummary, len(docs))
	for i, doc := range docs {
		summaries[i] = model.DocumentSummary{
			ID:        doc.ID,
			Name:      doc.Name,
			Analysis:  doc.Analysis,
			CreatedAt: doc.CreatedAt,
			Persisted: doc.Persisted,
			Selected:  doc.ID == selectedID,
		}
	}

	writeJSON(w, http.StatusOK, &model.ListDocumentsResponse{
		Documents: summaries,
		Selected:  selectedID,
	})
}

// Get handles GET /api/v1/documents/:id
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := chi.URLParam(r, "id")

	if err := middleware.ValidateDocumentID(documentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.coach.Workspace(middleware.GetUserID(ctx)).Document(ctx, documentID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to get document", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}
