package events

import (
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/flagstream-io/feature-flag-platform/internal/config"
)

// DiagnosticID identifies one SDK client instance across diagnostic events.
type DiagnosticID struct {
	DiagnosticID string `json:"diagnosticId"`
	SDKKeySuffix string `json:"sdkKeySuffix,omitempty"`
}

// DiagnosticsManager accumulates the counters reported in periodic
// diagnostic events and builds the init event. All mutation happens on the
// dispatcher, so no locking is needed.
type DiagnosticsManager struct {
	id            DiagnosticID
	startTime     int64
	dataSinceTime int64
	configBlock   map[string]any
}

// NewDiagnosticsManager creates a manager for one client instance.
func NewDiagnosticsManager(cfg *config.Config, startTime time.Time) *DiagnosticsManager {
	id := DiagnosticID{DiagnosticID: uuid.NewString()}
	if n := len(cfg.SDKKey); n >= 6 {
		id.SDKKeySuffix = cfg.SDKKey[n-6:]
	}
	ms := startTime.UnixMilli()
	return &DiagnosticsManager{
		id:            id,
		startTime:     ms,
		dataSinceTime: ms,
		configBlock: map[string]any{
			"eventsCapacity":              cfg.Capacity,
			"eventsFlushIntervalMillis":   cfg.FlushInterval.Milliseconds(),
			"userKeysCapacity":            cfg.UserKeysCapacity,
			"userKeysFlushIntervalMillis": cfg.UserKeysFlushInterval.Milliseconds(),
			"diagnosticRecordingIntervalMillis": cfg.DiagnosticRecordingInterval.
				Milliseconds(),
			"inlineUsersInEvents":  cfg.InlineUsersInEvents,
			"allAttributesPrivate": cfg.AllAttributesPrivate,
			"eventsURI":            cfg.EventsURI,
		},
	}
}

// CreateInitEvent builds the one-time diagnostic-init event.
func (m *DiagnosticsManager) CreateInitEvent() map[string]any {
	return map[string]any{
		"kind":         "diagnostic-init",
		"id":           m.id,
		"creationDate": m.startTime,
		"sdk": map[string]any{
			"name":    "feature-flag-platform",
			"version": Version,
		},
		"platform": map[string]any{
			"name":      "go",
			"goVersion": runtime.Version(),
			"osName":    runtime.GOOS,
			"osArch":    runtime.GOARCH,
		},
		"configuration": m.configBlock,
	}
}

// CreatePeriodicEventAndReset builds a periodic diagnostic event carrying
// the counters accumulated since the previous one.
func (m *DiagnosticsManager) CreatePeriodicEventAndReset(droppedEvents, deduplicatedUsers, eventsInLastBatch int) map[string]any {
	now := time.Now().UnixMilli()
	ev := map[string]any{
		"kind":              "diagnostic",
		"id":                m.id,
		"creationDate":      now,
		"dataSinceDate":     m.dataSinceTime,
		"droppedEvents":     droppedEvents,
		"deduplicatedUsers": deduplicatedUsers,
		"eventsInLastBatch": eventsInLastBatch,
	}
	m.dataSinceTime = now
	return ev
}

// Version is the platform release identifier reported in diagnostics.
const Version = "1.3.0"
