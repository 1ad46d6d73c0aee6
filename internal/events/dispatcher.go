package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/metrics"
)

const (
	maxFlushWorkers      = 5
	maxDiagnosticWorkers = 1
)

// Control messages carried on the inbox alongside events.
type (
	flushMessage      struct{}
	flushUsersMessage struct{}
	diagnosticMessage struct{}
	syncMessage       struct{ reply chan struct{} }
	stopMessage       struct{ reply chan struct{} }
)

// pipelineState holds the scalars shared between producer threads, the
// dispatcher and the flush workers. Everything else is dispatcher-owned.
type pipelineState struct {
	// disabled is set after the sender reports a must-shutdown response;
	// all further event processing becomes a no-op.
	disabled atomic.Bool

	// lastKnownPastTime is the most recent server clock (ms) seen on a send
	// response. Only advancing writes are accepted.
	lastKnownPastTime atomic.Int64

	// inboxDropped counts events dropped at the inbox, for diagnostics.
	inboxDropped atomic.Int64
}

func (s *pipelineState) noteServerTime(t time.Time) {
	if t.IsZero() {
		return
	}
	ts := t.UnixMilli()
	for {
		cur := s.lastKnownPastTime.Load()
		if ts <= cur || s.lastKnownPastTime.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// dispatcher is the sole consumer of the inbox. It owns the outbox, the
// summarizer and the user-key cache, so none of them need locking.
type dispatcher struct {
	inbox          <-chan any
	outbox         *eventsOutbox
	userKeys       *userKeysCache
	formatter      *eventOutputFormatter
	sender         EventSender
	diagnostics    *DiagnosticsManager
	state          *pipelineState
	inlineUsers    bool
	flushPool      *workerPool
	diagnosticPool *workerPool

	deduplicatedUsers int
	eventsInLastBatch int

	clock func() time.Time
	log   *logger.Logger
}

func (d *dispatcher) run() {
	if d.diagnostics != nil {
		d.postDiagnosticEvent(d.diagnostics.CreateInitEvent())
	}

	for msg := range d.inbox {
		switch m := msg.(type) {
		case model.Event:
			d.safely("event processing", func() { d.processEvent(m) })
		case flushMessage:
			d.safely("flush", d.triggerFlush)
		case flushUsersMessage:
			d.userKeys.clear()
		case diagnosticMessage:
			d.safely("diagnostic event", d.sendPeriodicDiagnostic)
		case syncMessage:
			d.flushPool.Wait()
			close(m.reply)
		case stopMessage:
			d.shutdown()
			close(m.reply)
			return
		}
	}
}

// safely runs fn, logging any panic instead of letting it kill the loop.
func (d *dispatcher) safely(action string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("unexpected error in event dispatcher",
				zap.String("action", action),
				zap.Any("error", r),
			)
		}
	}()
	fn()
}

func (d *dispatcher) processEvent(e model.Event) {
	if d.state.disabled.Load() {
		return
	}

	// Always feed the summarizer; it ignores non-eval events.
	d.outbox.addToSummary(e)

	willAddFullEvent := true
	var debugEvent model.Event
	if ev, ok := e.(model.EvalEvent); ok {
		willAddFullEvent = ev.TrackEvents
		if d.shouldDebugEvent(ev) {
			debugEvent = model.DebugEvent{Eval: ev}
		}
	}

	// For each user not seen within the LRU window, prepend an index event
	// carrying the full attribute set - unless the event itself is an
	// identify, or the full event will already inline the user.
	if !(willAddFullEvent && d.inlineUsers) {
		if user := e.GetUser(); user != nil && user.Key != "" {
			if d.userKeys.notice(user.Key) {
				d.deduplicatedUsers++
				metrics.DeduplicatedUsers.Inc()
			} else if _, isIdentify := e.(model.IdentifyEvent); !isIdentify {
				d.outbox.addEvent(model.IndexEvent{BaseEvent: model.BaseEvent{
					CreationDate: e.GetCreationDate(),
					User:         user,
				}})
			}
		}
	}

	if willAddFullEvent {
		d.outbox.addEvent(e)
	}
	if debugEvent != nil {
		d.outbox.addEvent(debugEvent)
	}
}

// shouldDebugEvent reports whether the eval's debug window is still open
// relative to both the server clock and the local clock.
func (d *dispatcher) shouldDebugEvent(ev model.EvalEvent) bool {
	if ev.DebugUntil == nil {
		return false
	}
	return *ev.DebugUntil > d.state.lastKnownPastTime.Load() &&
		*ev.DebugUntil > d.clock().UnixMilli()
}

func (d *dispatcher) triggerFlush() {
	if d.state.disabled.Load() {
		return
	}

	payload := d.outbox.getPayload()
	if len(payload.events) == 0 && payload.summary.IsEmpty() {
		d.eventsInLastBatch = 0
		metrics.FlushesTotal.WithLabelValues("empty").Inc()
		return
	}
	d.eventsInLastBatch = len(payload.events)
	if !payload.summary.IsEmpty() {
		d.eventsInLastBatch++
	}

	if d.flushPool.TryPost(func() { d.deliver(payload) }) {
		// Ownership of the payload has moved to the worker; give the
		// dispatcher fresh containers.
		d.outbox.clear()
	} else {
		// All workers busy: leave the buffer intact so the next flush
		// retries the same payload.
		metrics.FlushesTotal.WithLabelValues("busy").Inc()
	}
}

// deliver runs on a flush worker: format, serialize, send.
func (d *dispatcher) deliver(payload flushPayload) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("unexpected error delivering events", zap.Any("error", r))
			metrics.FlushesTotal.WithLabelValues("failed").Inc()
		}
	}()

	start := time.Now()
	outputEvents := d.formatter.makeOutputEvents(payload.events, payload.summary)
	if len(outputEvents) == 0 {
		return
	}
	body, err := json.Marshal(outputEvents)
	if err != nil {
		d.log.Error("failed to serialize event payload", zap.Error(err))
		metrics.FlushesTotal.WithLabelValues("failed").Inc()
		return
	}

	_, span := otel.Tracer("events").Start(context.Background(), "events.flush")
	span.SetAttributes(
		attribute.Int("events.count", len(outputEvents)),
		attribute.Int("events.body_bytes", len(body)),
	)
	result := d.sender.SendEventData(body, fmt.Sprintf("%d events", len(outputEvents)), false)
	span.End()

	if result.MustShutdown {
		d.state.disabled.Store(true)
	}
	d.state.noteServerTime(result.TimeFromServer)

	metrics.FlushesTotal.WithLabelValues("sent").Inc()
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	metrics.FlushBatchSize.Observe(float64(len(outputEvents)))
}

func (d *dispatcher) sendPeriodicDiagnostic() {
	if d.diagnostics == nil {
		return
	}
	dropped := d.outbox.getAndClearDroppedCount() + int(d.state.inboxDropped.Swap(0))
	dedup := d.deduplicatedUsers
	d.deduplicatedUsers = 0
	d.postDiagnosticEvent(d.diagnostics.CreatePeriodicEventAndReset(dropped, dedup, d.eventsInLastBatch))
}

// postDiagnosticEvent serializes and sends on the single diagnostic worker,
// so diagnostics never steal flush capacity. Dropped if that worker is busy.
func (d *dispatcher) postDiagnosticEvent(event map[string]any) {
	d.diagnosticPool.TryPost(func() {
		body, err := json.Marshal(event)
		if err != nil {
			d.log.Error("failed to serialize diagnostic event", zap.Error(err))
			return
		}
		_ = d.sender.SendEventData(body, "diagnostic event", true)
	})
}

func (d *dispatcher) shutdown() {
	d.flushPool.Wait()
	d.diagnosticPool.Wait()
	if sc, ok := d.sender.(senderCloser); ok {
		sc.Stop()
	}
}
