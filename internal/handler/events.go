package handler

import (
	"encoding/json"
	"net/http"

	"github.com/flagstream-io/feature-flag-platform/internal/events"
	"github.com/flagstream-io/feature-flag-platform/internal/middleware"
	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
)

// EventsHandler exposes event recording and flush control.
type EventsHandler struct {
	processor *events.Processor
	logger    *logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(processor *events.Processor, log *logger.Logger) *EventsHandler {
	return &EventsHandler{processor: processor, logger: log}
}

// IdentifyRequest is the body of POST /api/v1/events/identify.
type IdentifyRequest struct {
	User *model.User `json:"user"`
}

// Identify handles POST /api/v1/events/identify
func (h *EventsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == nil || middleware.ValidateUserKey(req.User.Key) != nil {
		writeError(w, http.StatusBadRequest, "user with a key is required")
		return
	}
	h.processor.RecordIdentifyEvent(req.User)
	w.WriteHeader(http.StatusAccepted)
}

// CustomRequest is the body of POST /api/v1/events/custom.
type CustomRequest struct {
	User        *model.User `json:"user"`
	Key         string      `json:"key"`
	Data        any         `json:"data,omitempty"`
	MetricValue *float64    `json:"metricValue,omitempty"`
}

// Custom handles POST /api/v1/events/custom
func (h *EventsHandler) Custom(w http.ResponseWriter, r *http.Request) {
	var req CustomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "event key is required")
		return
	}
	if req.User == nil || middleware.ValidateUserKey(req.User.Key) != nil {
		writeError(w, http.StatusBadRequest, "user with a key is required")
		return
	}
	h.processor.RecordCustomEvent(req.User, req.Key, req.Data, req.MetricValue)
	w.WriteHeader(http.StatusAccepted)
}

// AliasRequest is the body of POST /api/v1/events/alias.
type AliasRequest struct {
	User         *model.User `json:"user"`
	PreviousUser *model.User `json:"previousUser"`
}

// Alias handles POST /api/v1/events/alias
func (h *EventsHandler) Alias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == nil || req.PreviousUser == nil {
		writeError(w, http.StatusBadRequest, "user and previousUser are required")
		return
	}
	h.processor.RecordAliasEvent(req.User, req.PreviousUser)
	w.WriteHeader(http.StatusAccepted)
}

// Flush handles POST /admin/events/flush. The flush itself is asynchronous.
func (h *EventsHandler) Flush(w http.ResponseWriter, r *http.Request) {
	h.processor.Flush()
	w.WriteHeader(http.StatusAccepted)
}
