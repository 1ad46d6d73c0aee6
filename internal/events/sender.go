package events

import (
	"time"
)

// SenderResult reports the outcome of delivering a payload.
type SenderResult struct {
	// MustShutdown is set when the server rejected the credentials and the
	// pipeline should stop sending permanently.
	MustShutdown bool

	// TimeFromServer is the server's clock as reported in the response, or
	// the zero time when unavailable.
	TimeFromServer time.Time
}

// EventSender delivers serialized event payloads to the ingestion endpoint.
type EventSender interface {
	SendEventData(body []byte, description string, isDiagnostic bool) SenderResult
}

// senderCloser is implemented by senders that hold resources worth
// releasing at shutdown.
type senderCloser interface {
	Stop()
}
