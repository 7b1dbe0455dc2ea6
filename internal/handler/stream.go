package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/internal/service"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler handles SSE streaming of the live session.
type StreamHandler struct {
	coach     *service.CoachService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(coach *service.CoachService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		coach:     coach,
		logger:    log,
		heartbeat: heartbeatInterval,
	}
}

// ReplayCompleteEvent marks the end of the replayed conversation.
type ReplayCompleteEvent struct {
	MessageCount int `json:"message_count"`
}

// Stream handles GET /api/v1/session/stream
//
// The stream starts with the current state, replays the messages of the
// current conversation, then follows live session events until the client
// goes away or the workspace is closed.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	session := h.coach.Workspace(userID).Session()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The server WriteTimeout would otherwise cut the stream off.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("failed to clear stream write deadline", zap.Error(err))
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Subscribe before the snapshot so nothing falls between the two.
	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	first, ok := <-events
	if !ok {
		return
	}
	sendSSEEvent(w, flusher, string(first.Type), first)

	replayed := make(map[string]bool)
	for _, msg := range session.Messages() {
		replayed[msg.ID] = true
		sendSSEEvent(w, flusher, string(model.SessionEventMessage), &model.SessionEvent{
			Type:    model.SessionEventMessage,
			Message: &msg,
			At:      msg.ReceivedAt,
		})
	}
	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{MessageCount: len(replayed)})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("user_id", userID))
			return

		case ev, ok := <-events:
			if !ok {
				sendSSEEvent(w, flusher, "closed", map[string]bool{"closed": true})
				return
			}
			if ev.Type == model.SessionEventMessage && ev.Message != nil && replayed[ev.Message.ID] {
				continue
			}
			if err := sendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				h.logger.Warn("failed to write session event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			h.coach.Touch(userID)
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				h.logger.Debug("SSE heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
