// Package sender provides the default HTTP delivery of event payloads to
// the ingestion endpoint.
package sender

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flagstream-io/feature-flag-platform/internal/events"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
)

const (
	bulkPath       = "/bulk"
	diagnosticPath = "/diagnostic"

	schemaHeader  = "X-Flagstream-Event-Schema"
	payloadHeader = "X-Flagstream-Payload-ID"
	schemaVersion = "3"

	requestTimeout = 10 * time.Second
	retryInterval  = time.Second
)

// HTTPEventSender posts serialized payloads to the events service. A failed
// post is retried once after a short backoff; 401/403 responses disable the
// pipeline permanently.
type HTTPEventSender struct {
	client    *http.Client
	sdkKey    string
	eventsURI string
	log       *logger.Logger
}

// New creates a sender for the given base URI and credentials.
func New(eventsURI, sdkKey string, log *logger.Logger) *HTTPEventSender {
	return &HTTPEventSender{
		client:    &http.Client{Timeout: requestTimeout},
		sdkKey:    sdkKey,
		eventsURI: eventsURI,
		log:       log.Component("event-sender"),
	}
}

// SendEventData implements events.EventSender.
func (s *HTTPEventSender) SendEventData(body []byte, description string, isDiagnostic bool) events.SenderResult {
	uri := s.eventsURI + bulkPath
	payloadID := ""
	if isDiagnostic {
		uri = s.eventsURI + diagnosticPath
	} else {
		// A stable payload id lets the server de-duplicate retried posts.
		payloadID = uuid.NewString()
	}

	var result events.SenderResult

	attempt := func() error {
		req, err := http.NewRequest(http.MethodPost, uri, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build event request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", s.sdkKey)
		req.Header.Set(schemaHeader, schemaVersion)
		if payloadID != "" {
			req.Header.Set(payloadHeader, payloadID)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("event post failed: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if t, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
				result.TimeFromServer = t
			}
			return nil
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			result.MustShutdown = true
			return backoff.Permanent(fmt.Errorf("event post rejected with status %d; no further events will be sent", resp.StatusCode))
		}
		if isRecoverable(resp.StatusCode) {
			return fmt.Errorf("event post returned status %d", resp.StatusCode)
		}
		return backoff.Permanent(fmt.Errorf("event post returned status %d", resp.StatusCode))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInterval
	if err := backoff.Retry(attempt, backoff.WithMaxRetries(b, 1)); err != nil {
		s.log.Error("failed to send events; batch dropped",
			zap.String("payload", description),
			zap.Error(err),
		)
	}
	return result
}

// Stop releases pooled connections. Called once during pipeline shutdown.
func (s *HTTPEventSender) Stop() {
	s.client.CloseIdleConnections()
}

func isRecoverable(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}
