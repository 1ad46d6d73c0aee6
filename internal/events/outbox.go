package events

import (
	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/metrics"
)

// eventsOutbox holds the full events queued for the next flush together with
// the summarizer. It is bounded: overflow drops the event, counts it, and
// warns once per saturation episode.
type eventsOutbox struct {
	events           []model.Event
	summarizer       *eventSummarizer
	capacity         int
	capacityExceeded bool
	droppedEvents    int
	log              *logger.Logger
}

// flushPayload is the snapshot handed to a flush worker. Ownership moves to
// the worker at submission time.
type flushPayload struct {
	events  []model.Event
	summary SummarySnapshot
}

func newEventsOutbox(capacity int, log *logger.Logger) *eventsOutbox {
	return &eventsOutbox{
		events:     make([]model.Event, 0, capacity),
		summarizer: newEventSummarizer(),
		capacity:   capacity,
		log:        log,
	}
}

func (b *eventsOutbox) addEvent(event model.Event) {
	if len(b.events) >= b.capacity {
		if !b.capacityExceeded {
			b.capacityExceeded = true
			b.log.Warn("exceeded event queue capacity; increase capacity to avoid dropping events")
		}
		b.droppedEvents++
		metrics.EventsDropped.WithLabelValues("buffer").Inc()
		return
	}
	b.capacityExceeded = false
	b.events = append(b.events, event)
}

func (b *eventsOutbox) addToSummary(event model.Event) {
	b.summarizer.summarizeEvent(event)
}

func (b *eventsOutbox) getPayload() flushPayload {
	return flushPayload{
		events:  b.events,
		summary: b.summarizer.snapshot(),
	}
}

// clear resets the outbox to fresh containers. The previously returned
// payload keeps the old slices, so a worker holding it is unaffected.
func (b *eventsOutbox) clear() {
	b.events = make([]model.Event, 0, b.capacity)
	b.summarizer.reset()
}

// getAndClearDroppedCount returns the drop counter and resets it, for
// inclusion in a periodic diagnostic event.
func (b *eventsOutbox) getAndClearDroppedCount() int {
	n := b.droppedEvents
	b.droppedEvents = 0
	return n
}
