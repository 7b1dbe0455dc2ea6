package handler

import (
	"net/http"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/internal/service"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// SearchHandler handles web search endpoints.
type SearchHandler struct {
	coach  *service.CoachService
	logger *logger.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(coach *service.CoachService, log *logger.Logger) *SearchHandler {
	return &SearchHandler{
		coach:  coach,
		logger: log,
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.coach.Workspace(middleware.GetUserID(ctx)).Search(ctx)
	if err != nil {
		writeServiceError(w, h.logger, "search failed", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Results handles GET /api/v1/search
func (h *SearchHandler) Results(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coach.Workspace(middleware.GetUserID(r.Context())).SearchResults())
}
