// Package events implements the analytics event pipeline: a thread-safe
// producer facade feeding a bounded inbox, a single dispatcher goroutine
// that aggregates events into an outbox and summary, and worker pools that
// deliver flush payloads to the ingestion endpoint.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flagstream-io/feature-flag-platform/internal/config"
	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/metrics"
)

// Processor is the producer-side facade of the event pipeline. All record
// operations are non-blocking; only Stop blocks.
type Processor struct {
	inbox chan any
	state *pipelineState
	clock func() time.Time
	log   *logger.Logger

	inboxFull  atomic.Bool
	stopped    atomic.Bool
	stopOnce   sync.Once
	stopDone   chan struct{}
	timersDone chan struct{}
}

// NewProcessor creates the pipeline and starts its dispatcher and timers.
// diagnostics may be nil to disable diagnostic events.
func NewProcessor(cfg *config.Config, sender EventSender, diagnostics *DiagnosticsManager, log *logger.Logger) (*Processor, error) {
	return newProcessor(cfg, sender, diagnostics, log, time.Now)
}

func newProcessor(cfg *config.Config, sender EventSender, diagnostics *DiagnosticsManager, log *logger.Logger, clock func() time.Time) (*Processor, error) {
	capacity := cfg.Capacity
	if capacity < config.MinEventCapacity {
		capacity = config.MinEventCapacity
	}

	userKeys, err := newUserKeysCache(cfg.UserKeysCapacity)
	if err != nil {
		return nil, err
	}

	if cfg.DiagnosticOptOut {
		diagnostics = nil
	}

	state := &pipelineState{}
	p := &Processor{
		inbox:      make(chan any, capacity),
		state:      state,
		clock:      clock,
		log:        log.Component("event-processor"),
		stopDone:   make(chan struct{}),
		timersDone: make(chan struct{}),
	}

	d := &dispatcher{
		inbox:          p.inbox,
		outbox:         newEventsOutbox(capacity, log.Component("event-outbox")),
		userKeys:       userKeys,
		formatter: &eventOutputFormatter{
			inlineUsers:          cfg.InlineUsersInEvents,
			allAttributesPrivate: cfg.AllAttributesPrivate,
			privateAttributes:    cfg.PrivateAttributeNames,
		},
		sender:         sender,
		diagnostics:    diagnostics,
		state:          state,
		inlineUsers:    cfg.InlineUsersInEvents,
		flushPool:      newWorkerPool(maxFlushWorkers),
		diagnosticPool: newWorkerPool(maxDiagnosticWorkers),
		clock:          clock,
		log:            log.Component("event-dispatcher"),
	}
	go d.run()
	go p.runTimers(cfg, diagnostics != nil)

	return p, nil
}

// RecordEvalEvent records a flag evaluation. The creation date is stamped
// here; any value already present is overwritten.
func (p *Processor) RecordEvalEvent(e model.EvalEvent) {
	e.CreationDate = p.now()
	p.postEvent("eval", e)
}

// RecordIdentifyEvent records an identify event for the user.
func (p *Processor) RecordIdentifyEvent(user *model.User) {
	p.postEvent("identify", model.IdentifyEvent{BaseEvent: model.BaseEvent{
		CreationDate: p.now(),
		User:         user,
	}})
}

// RecordCustomEvent records an application-defined event.
func (p *Processor) RecordCustomEvent(user *model.User, key string, data any, metricValue *float64) {
	p.postEvent("custom", model.CustomEvent{
		BaseEvent:   model.BaseEvent{CreationDate: p.now(), User: user},
		Key:         key,
		Data:        data,
		MetricValue: metricValue,
	})
}

// RecordAliasEvent records an alias linking user to previousUser.
func (p *Processor) RecordAliasEvent(user, previousUser *model.User) {
	if user == nil || previousUser == nil {
		return
	}
	p.postEvent("alias", model.AliasEvent{
		CreationDate:        p.now(),
		Key:                 user.Key,
		ContextKind:         user.ContextKind(),
		PreviousKey:         previousUser.Key,
		PreviousContextKind: previousUser.ContextKind(),
	})
}

// Flush asks the dispatcher to deliver the current buffer. It returns
// immediately; delivery happens asynchronously.
func (p *Processor) Flush() {
	p.postNonBlocking(flushMessage{})
}

// Stop shuts the pipeline down: timers are stopped, a final flush and a stop
// sentinel are enqueued (blocking, to guarantee delivery), and the call
// returns once the dispatcher has acknowledged the stop. Safe to call more
// than once; later calls wait for the first to complete.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.timersDone)

		p.inbox <- flushMessage{}
		reply := make(chan struct{})
		p.inbox <- stopMessage{reply: reply}
		<-reply
		close(p.stopDone)
	})
	<-p.stopDone
}

func (p *Processor) now() int64 {
	return p.clock().UnixMilli()
}

func (p *Processor) postEvent(kind string, e model.Event) {
	if p.postNonBlocking(e) {
		metrics.EventsReceived.WithLabelValues(kind).Inc()
	}
}

// postNonBlocking attempts the enqueue and drops the message when the inbox
// is full, warning once per saturation episode.
func (p *Processor) postNonBlocking(m any) bool {
	if p.stopped.Load() {
		return false
	}
	select {
	case p.inbox <- m:
		p.inboxFull.Store(false)
		return true
	default:
		p.state.inboxDropped.Add(1)
		metrics.EventsDropped.WithLabelValues("inbox").Inc()
		if p.inboxFull.CompareAndSwap(false, true) {
			p.log.Warn("events are being produced faster than they can be processed; some events will be dropped")
		}
		return false
	}
}

// waitUntilInactive blocks until the dispatcher has drained everything
// enqueued before it and all flush workers are idle. Test instrumentation.
func (p *Processor) waitUntilInactive() {
	reply := make(chan struct{})
	p.inbox <- syncMessage{reply: reply}
	<-reply
}

func (p *Processor) runTimers(cfg *config.Config, diagnosticsEnabled bool) {
	flushTicker := time.NewTicker(cfg.FlushInterval)
	defer flushTicker.Stop()
	usersTicker := time.NewTicker(cfg.UserKeysFlushInterval)
	defer usersTicker.Stop()

	var diagnosticC <-chan time.Time
	if diagnosticsEnabled {
		diagnosticTicker := time.NewTicker(cfg.DiagnosticRecordingInterval)
		defer diagnosticTicker.Stop()
		diagnosticC = diagnosticTicker.C
	}

	for {
		select {
		case <-p.timersDone:
			return
		case <-flushTicker.C:
			p.postNonBlocking(flushMessage{})
		case <-usersTicker.C:
			p.postNonBlocking(flushUsersMessage{})
		case <-diagnosticC:
			p.postNonBlocking(diagnosticMessage{})
		}
	}
}
