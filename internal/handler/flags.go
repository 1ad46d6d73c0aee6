package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/flagstream-io/feature-flag-platform/internal/middleware"
	"github.com/flagstream-io/feature-flag-platform/internal/store"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
)

// FlagsHandler serves read access to the flag store.
type FlagsHandler struct {
	store  *store.FeatureStore
	logger *logger.Logger
}

// NewFlagsHandler creates a new flags handler.
func NewFlagsHandler(featureStore *store.FeatureStore, log *logger.Logger) *FlagsHandler {
	return &FlagsHandler{store: featureStore, logger: log}
}

// FlagListItem is one entry of the flag listing.
type FlagListItem struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
	On      bool   `json:"on"`
}

// List handles GET /api/v1/flags
func (h *FlagsHandler) List(w http.ResponseWriter, r *http.Request) {
	flags := h.store.AllFlags()
	items := make([]FlagListItem, 0, len(flags))
	for _, f := range flags {
		items = append(items, FlagListItem{Key: f.Key, Version: f.Version, On: f.On})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Get handles GET /api/v1/flags/{key}
func (h *FlagsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := middleware.ValidateFlagKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flag := h.store.GetFlag(key)
	if flag == nil {
		writeError(w, http.StatusNotFound, "flag not found")
		return
	}
	writeJSON(w, http.StatusOK, flag)
}
