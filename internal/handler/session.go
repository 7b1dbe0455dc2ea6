package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/service"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// maxAudioChunk bounds one POST of captured audio.
const maxAudioChunk = 1 << 20

// SessionHandler handles live voice session endpoints.
type SessionHandler struct {
	coach  *service.CoachService
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(coach *service.CoachService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		coach:  coach,
		logger: log,
	}
}

func (h *SessionHandler) workspace(r *http.Request) *service.Workspace {
	return h.coach.Workspace(middleware.GetUserID(r.Context()))
}

// State handles GET /api/v1/session
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workspace(r).Session().State())
}

// SelectDocument handles PUT /api/v1/session/document
func (h *SessionHandler) SelectDocument(w http.ResponseWriter, r *http.Request) {
	var req model.SelectDocumentRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.workspace(r)
	if err := ws.Select(r.Context(), req.DocumentID); err != nil {
		writeServiceError(w, h.logger, "failed to select document", err)
		return
	}

	writeJSON(w, http.StatusOK, ws.Session().State())
}

// Connect handles POST /api/v1/session/connect
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	session := h.workspace(r).Session()
	if err := session.Connect(r.Context()); err != nil {
		writeServiceError(w, h.logger, "failed to connect voice session", err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// Disconnect handles POST /api/v1/session/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	session := h.workspace(r).Session()
	session.Disconnect()
	writeJSON(w, http.StatusOK, session.State())
}

// Mute handles POST /api/v1/session/mute
func (h *SessionHandler) Mute(w http.ResponseWriter, r *http.Request) {
	session := h.workspace(r).Session()
	if err := session.Mute(); err != nil {
		writeServiceError(w, h.logger, "failed to mute", err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// Unmute handles POST /api/v1/session/unmute
func (h *SessionHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	session := h.workspace(r).Session()
	if err := session.Unmute(); err != nil {
		writeServiceError(w, h.logger, "failed to unmute", err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// Audio handles POST /api/v1/session/audio. The body is one chunk of
// encoded audio captured by the client.
func (h *SessionHandler) Audio(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioChunk))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio chunk is too large")
		return
	}

	if err := h.workspace(r).Session().SendAudio(data); err != nil {
		writeServiceError(w, h.logger, "failed to forward audio", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Text handles POST /api/v1/session/text
func (h *SessionHandler) Text(w http.ResponseWriter, r *http.Request) {
	var req model.SendTextRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.workspace(r).Session().SendText(req.Text); err != nil {
		writeServiceError(w, h.logger, "failed to send text", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Messages handles GET /api/v1/session/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	messages := h.workspace(r).Session().Messages()
	h.logger.Debug("listing session messages", zap.Int("count", len(messages)))
	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{Messages: messages})
}
