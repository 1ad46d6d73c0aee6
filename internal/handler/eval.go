// Package handler provides the relay's HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/flagstream-io/feature-flag-platform/internal/eval"
	"github.com/flagstream-io/feature-flag-platform/internal/events"
	"github.com/flagstream-io/feature-flag-platform/internal/middleware"
	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/internal/store"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/metrics"
)

// EvalHandler evaluates flags and feeds the resulting events into the
// pipeline.
type EvalHandler struct {
	store     *store.FeatureStore
	evaluator *eval.Evaluator
	processor *events.Processor
	logger    *logger.Logger
}

// NewEvalHandler creates a new evaluation handler.
func NewEvalHandler(featureStore *store.FeatureStore, evaluator *eval.Evaluator, processor *events.Processor, log *logger.Logger) *EvalHandler {
	return &EvalHandler{
		store:     featureStore,
		evaluator: evaluator,
		processor: processor,
		logger:    log,
	}
}

// EvaluateRequest is the body of POST /api/v1/evaluate.
type EvaluateRequest struct {
	FlagKey      string      `json:"flagKey"`
	User         *model.User `json:"user"`
	DefaultValue any         `json:"defaultValue,omitempty"`
}

// EvaluateResponse is the result of an evaluation.
type EvaluateResponse struct {
	FlagKey        string                 `json:"flagKey"`
	Value          any                    `json:"value"`
	VariationIndex *int                   `json:"variationIndex,omitempty"`
	Reason         model.EvaluationReason `json:"reason"`
}

// Evaluate handles POST /api/v1/evaluate
func (h *EvalHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateFlagKey(req.FlagKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.User == nil || middleware.ValidateUserKey(req.User.Key) != nil {
		writeError(w, http.StatusBadRequest, "user with a key is required")
		return
	}

	if !h.store.IsInitialized() {
		writeJSON(w, http.StatusServiceUnavailable, EvaluateResponse{
			FlagKey: req.FlagKey,
			Value:   req.DefaultValue,
			Reason:  model.NewErrorReason(model.ErrorClientNotReady),
		})
		return
	}

	flag := h.store.GetFlag(req.FlagKey)
	if flag == nil {
		h.processor.RecordEvalEvent(model.EvalEvent{
			BaseEvent: model.BaseEvent{User: req.User},
			Key:       req.FlagKey,
			Value:     req.DefaultValue,
			Default:   req.DefaultValue,
		})
		metrics.EvaluationErrors.WithLabelValues(string(model.ErrorFlagNotFound)).Inc()
		writeJSON(w, http.StatusNotFound, EvaluateResponse{
			FlagKey: req.FlagKey,
			Value:   req.DefaultValue,
			Reason:  model.NewErrorReason(model.ErrorFlagNotFound),
		})
		return
	}

	result := h.evaluator.Evaluate(flag, req.User)
	detail := result.Detail

	// Prerequisite evaluations are recorded before the flag they unblocked.
	for _, prereq := range result.PrereqEvals {
		prereqOf := prereq.PrereqOf
		h.processor.RecordEvalEvent(evalEventForFlag(prereq.Flag, req.User, prereq.Detail, nil, &prereqOf))
	}
	h.processor.RecordEvalEvent(evalEventForFlag(flag, req.User, detail, req.DefaultValue, nil))

	metrics.EvaluationsTotal.WithLabelValues(flag.Key, string(detail.Reason.Kind)).Inc()
	if detail.Reason.Kind == model.ReasonError {
		metrics.EvaluationErrors.WithLabelValues(string(detail.Reason.ErrorKind)).Inc()
		h.logger.Warn("evaluation returned an error reason",
			zap.String("flag", flag.Key),
			zap.String("error_kind", string(detail.Reason.ErrorKind)),
		)
	}

	value := detail.Value
	if detail.Reason.Kind == model.ReasonError {
		value = req.DefaultValue
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{
		FlagKey:        flag.Key,
		Value:          value,
		VariationIndex: detail.VariationIndex,
		Reason:         detail.Reason,
	})
}

func evalEventForFlag(flag *model.FeatureFlag, user *model.User, detail model.EvaluationDetail, defaultValue any, prereqOf *string) model.EvalEvent {
	version := flag.Version
	reason := detail.Reason
	return model.EvalEvent{
		BaseEvent:   model.BaseEvent{User: user},
		Key:         flag.Key,
		Version:     &version,
		Variation:   detail.VariationIndex,
		Value:       detail.Value,
		Default:     defaultValue,
		Reason:      &reason,
		TrackEvents: flag.TrackEvents,
		DebugUntil:  flag.DebugEventsUntilDate,
		PrereqOf:    prereqOf,
	}
}
