// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorStatus maps an error kind to a status and a short message that is
// safe to show to the user.
func errorStatus(err error) (int, string) {
	kinds := []struct {
		kind   error
		status int
	}{
		{model.ErrDocumentNotFound, http.StatusNotFound},
		{model.ErrExtraction, http.StatusUnprocessableEntity},
		{model.ErrEmptyQuery, http.StatusUnprocessableEntity},
		{model.ErrNoContext, http.StatusConflict},
		{model.ErrNotConnected, http.StatusConflict},
		{model.ErrSuperseded, http.StatusConflict},
		{model.ErrAnalysis, http.StatusBadGateway},
		{model.ErrSearch, http.StatusBadGateway},
		{model.ErrTransport, http.StatusBadGateway},
		{model.ErrPersistence, http.StatusServiceUnavailable},
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.status, k.kind.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// writeServiceError logs err and writes its mapped response.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, msg string, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	} else {
		log.Info(msg, zap.Error(err))
	}
	writeError(w, status, message)
}

// intQuery parses a non-negative integer query parameter, falling back to def.
func intQuery(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (max > 0 && n > max) {
		return def
	}
	return n
}
