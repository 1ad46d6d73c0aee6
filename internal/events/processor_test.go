package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagstream-io/feature-flag-platform/internal/config"
	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
)

type senderCall struct {
	body         []byte
	isDiagnostic bool
}

// fakeEventSender records every payload it is given. An optional gate makes
// the send block, to simulate a slow endpoint.
type fakeEventSender struct {
	mu       sync.Mutex
	calls    []senderCall
	result   SenderResult
	gate     chan struct{}
	received chan struct{}
}

func newFakeSender() *fakeEventSender {
	return &fakeEventSender{received: make(chan struct{}, 100)}
}

func (s *fakeEventSender) SendEventData(body []byte, description string, isDiagnostic bool) SenderResult {
	s.mu.Lock()
	s.calls = append(s.calls, senderCall{body: body, isDiagnostic: isDiagnostic})
	gate := s.gate
	result := s.result
	s.mu.Unlock()
	s.received <- struct{}{}
	if gate != nil {
		<-gate
	}
	return result
}

func (s *fakeEventSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeEventSender) eventsOfCall(t *testing.T, i int) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Greater(t, len(s.calls), i)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(s.calls[i].body, &out))
	return out
}

func (s *fakeEventSender) setGate(gate chan struct{}) {
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
}

func (s *fakeEventSender) setResult(r SenderResult) {
	s.mu.Lock()
	s.result = r
	s.mu.Unlock()
}

func eventsOfKind(events []map[string]any, kind string) []map[string]any {
	var out []map[string]any
	for _, e := range events {
		if e["kind"] == kind {
			out = append(out, e)
		}
	}
	return out
}

func eventKinds(events []map[string]any) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e["kind"].(string))
	}
	return out
}

func basePipelineConfig() *config.Config {
	return &config.Config{
		Capacity:                    1000,
		FlushInterval:               time.Hour,
		UserKeysCapacity:            100,
		UserKeysFlushInterval:       time.Hour,
		DiagnosticRecordingInterval: time.Hour,
	}
}

func newTestProcessor(t *testing.T, cfg *config.Config, sender EventSender, clock func() time.Time) *Processor {
	t.Helper()
	if cfg == nil {
		cfg = basePipelineConfig()
	}
	if clock == nil {
		clock = time.Now
	}
	p, err := newProcessor(cfg, sender, nil, logger.NewNop(), clock)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func flushAndWait(p *Processor) {
	p.Flush()
	p.waitUntilInactive()
}

func testUser(key string) *model.User {
	name := any("Test User")
	return &model.User{Key: key, Name: name}
}

func untrackedEval(user *model.User, key string, version, variation int, value any) model.EvalEvent {
	return model.EvalEvent{
		BaseEvent: model.BaseEvent{User: user},
		Key:       key,
		Version:   &version,
		Variation: &variation,
		Value:     value,
		Default:   "fallback",
	}
}

func TestEvalEventsAreSummarized(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	user := testUser("u1")
	p.RecordEvalEvent(untrackedEval(user, "flag1", 7, 0, "a"))
	p.RecordEvalEvent(untrackedEval(user, "flag1", 7, 0, "a"))
	p.RecordEvalEvent(untrackedEval(user, "flag1", 7, 1, "b"))
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)

	// Untracked evals produce no feature events, just an index and a summary.
	assert.Empty(t, eventsOfKind(events, "feature"))
	require.Len(t, eventsOfKind(events, "index"), 1)
	summaries := eventsOfKind(events, "summary")
	require.Len(t, summaries, 1)
	assert.Equal(t, "summary", events[len(events)-1]["kind"])

	features := summaries[0]["features"].(map[string]any)
	require.Contains(t, features, "flag1")
	flag := features["flag1"].(map[string]any)
	assert.Equal(t, "fallback", flag["default"])
	counters := flag["counters"].([]any)
	require.Len(t, counters, 2)
	first := counters[0].(map[string]any)
	assert.Equal(t, "a", first["value"])
	assert.EqualValues(t, 2, first["count"])
	assert.EqualValues(t, 7, first["version"])
	assert.EqualValues(t, 0, first["variation"])
	second := counters[1].(map[string]any)
	assert.Equal(t, "b", second["value"])
	assert.EqualValues(t, 1, second["count"])
}

func TestTrackedEvalProducesFullEvent(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	ev := untrackedEval(testUser("u1"), "flag1", 3, 1, "b")
	ev.TrackEvents = true
	p.RecordEvalEvent(ev)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"index", "feature", "summary"}, eventKinds(events))

	feature := eventsOfKind(events, "feature")[0]
	assert.Equal(t, "flag1", feature["key"])
	assert.Equal(t, "b", feature["value"])
	assert.EqualValues(t, 3, feature["version"])
	assert.EqualValues(t, 1, feature["variation"])
	// Users are referenced by key unless inlining is on.
	assert.Equal(t, "u1", feature["userKey"])
	assert.NotContains(t, feature, "user")
}

func TestInlineUsersSkipsIndexEvent(t *testing.T) {
	cfg := basePipelineConfig()
	cfg.InlineUsersInEvents = true
	sender := newFakeSender()
	p := newTestProcessor(t, cfg, sender, nil)

	ev := untrackedEval(testUser("u1"), "flag1", 3, 1, "b")
	ev.TrackEvents = true
	p.RecordEvalEvent(ev)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"feature", "summary"}, eventKinds(events))

	feature := eventsOfKind(events, "feature")[0]
	user := feature["user"].(map[string]any)
	assert.Equal(t, "u1", user["key"])
	assert.NotContains(t, feature, "userKey")
}

func TestIndexEventEmittedOncePerUser(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	user := testUser("u1")
	p.RecordEvalEvent(untrackedEval(user, "flag1", 1, 0, "a"))
	p.RecordEvalEvent(untrackedEval(user, "flag2", 1, 0, "a"))
	p.RecordCustomEvent(user, "clicked", nil, nil)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Len(t, eventsOfKind(events, "index"), 1)
	assert.Len(t, eventsOfKind(events, "custom"), 1)
}

func TestIdentifyEventReplacesIndexEvent(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	p.RecordIdentifyEvent(testUser("u1"))
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"identify"}, eventKinds(events))
	identify := events[0]
	assert.Equal(t, "u1", identify["key"])
	user := identify["user"].(map[string]any)
	assert.Equal(t, "u1", user["key"])
}

func TestAliasEvent(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	anon := &model.User{Key: "session-1", Anonymous: true}
	p.RecordAliasEvent(testUser("u1"), anon)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"alias"}, eventKinds(events))
	alias := events[0]
	assert.Equal(t, "u1", alias["key"])
	assert.Equal(t, "user", alias["contextKind"])
	assert.Equal(t, "session-1", alias["previousKey"])
	assert.Equal(t, "anonymousUser", alias["previousContextKind"])
}

func TestDebugEventEmittedWhileWindowOpen(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, clock)

	future := now.Add(time.Hour).UnixMilli()
	ev := untrackedEval(testUser("u1"), "flag1", 2, 0, "a")
	ev.DebugUntil = &future
	p.RecordEvalEvent(ev)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"index", "debug", "summary"}, eventKinds(events))

	// Debug events always inline the full user.
	debug := eventsOfKind(events, "debug")[0]
	user := debug["user"].(map[string]any)
	assert.Equal(t, "u1", user["key"])
}

func TestDebugEventNotEmittedAfterWindowCloses(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, clock)

	past := now.Add(-time.Minute).UnixMilli()
	ev := untrackedEval(testUser("u1"), "flag1", 2, 0, "a")
	ev.DebugUntil = &past
	p.RecordEvalEvent(ev)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 0)
	assert.Empty(t, eventsOfKind(events, "debug"))
}

func TestDebugWindowUsesServerTime(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	sender := newFakeSender()
	// The server's clock is far ahead of ours.
	sender.setResult(SenderResult{TimeFromServer: now.Add(2 * time.Hour)})
	p := newTestProcessor(t, nil, sender, clock)

	p.RecordIdentifyEvent(testUser("warmup"))
	flushAndWait(p)

	// Locally the window looks open, but the server clock is already past it.
	until := now.Add(time.Hour).UnixMilli()
	ev := untrackedEval(testUser("u1"), "flag1", 2, 0, "a")
	ev.DebugUntil = &until
	p.RecordEvalEvent(ev)
	flushAndWait(p)

	events := sender.eventsOfCall(t, 1)
	assert.Empty(t, eventsOfKind(events, "debug"))
}

func TestSenderShutdownDisablesPipeline(t *testing.T) {
	sender := newFakeSender()
	sender.setResult(SenderResult{MustShutdown: true})
	p := newTestProcessor(t, nil, sender, nil)

	p.RecordIdentifyEvent(testUser("u1"))
	flushAndWait(p)
	require.Equal(t, 1, sender.callCount())

	sender.setResult(SenderResult{})
	p.RecordIdentifyEvent(testUser("u2"))
	flushAndWait(p)

	assert.Equal(t, 1, sender.callCount())
}

func TestFlushWithEmptyBufferSendsNothing(t *testing.T) {
	sender := newFakeSender()
	p := newTestProcessor(t, nil, sender, nil)

	flushAndWait(p)

	assert.Zero(t, sender.callCount())
}

func TestFlushKeepsBufferWhenAllWorkersBusy(t *testing.T) {
	sender := newFakeSender()
	gate := make(chan struct{})
	sender.setGate(gate)
	p := newTestProcessor(t, nil, sender, nil)

	// Tie up every flush worker with a blocked delivery.
	for i := 0; i < maxFlushWorkers; i++ {
		p.RecordIdentifyEvent(testUser("u1"))
		p.Flush()
		<-sender.received
	}

	p.RecordIdentifyEvent(testUser("retained"))
	p.Flush()
	require.Eventually(t, func() bool { return len(p.inbox) == 0 }, time.Second, time.Millisecond)
	require.Equal(t, maxFlushWorkers, sender.callCount())

	sender.setGate(nil)
	close(gate)
	p.waitUntilInactive()
	flushAndWait(p)

	require.Equal(t, maxFlushWorkers+1, sender.callCount())
	events := sender.eventsOfCall(t, maxFlushWorkers)
	identifies := eventsOfKind(events, "identify")
	require.Len(t, identifies, 1)
	assert.Equal(t, "retained", identifies[0]["key"])
}

func TestInboxOverflowDropsEvents(t *testing.T) {
	cfg := basePipelineConfig()
	cfg.Capacity = config.MinEventCapacity
	sender := newFakeSender()
	gate := make(chan struct{})
	sender.setGate(gate)
	p := newTestProcessor(t, cfg, sender, nil)

	// Block one delivery, then park the dispatcher waiting on it.
	p.RecordIdentifyEvent(testUser("u1"))
	p.Flush()
	<-sender.received
	syncDone := make(chan struct{})
	go func() {
		p.waitUntilInactive()
		close(syncDone)
	}()
	require.Eventually(t, func() bool { return len(p.inbox) == 0 }, time.Second, time.Millisecond)

	user := testUser("u2")
	for i := 0; i < config.MinEventCapacity+50; i++ {
		p.RecordCustomEvent(user, "clicked", nil, nil)
	}

	assert.Equal(t, config.MinEventCapacity, len(p.inbox))
	assert.EqualValues(t, 50, p.state.inboxDropped.Load())
	assert.True(t, p.inboxFull.Load())

	sender.setGate(nil)
	close(gate)
	<-syncDone
}

func TestStopFlushesRemainingEvents(t *testing.T) {
	sender := newFakeSender()
	cfg := basePipelineConfig()
	p, err := newProcessor(cfg, sender, nil, logger.NewNop(), time.Now)
	require.NoError(t, err)

	p.RecordIdentifyEvent(testUser("u1"))
	p.Stop()

	require.Equal(t, 1, sender.callCount())
	events := sender.eventsOfCall(t, 0)
	assert.Equal(t, []string{"identify"}, eventKinds(events))

	// Stop is idempotent, and nothing is accepted afterwards.
	p.Stop()
	p.RecordIdentifyEvent(testUser("u2"))
	assert.Equal(t, 1, sender.callCount())
}

func TestServerTimeOnlyAdvances(t *testing.T) {
	var s pipelineState
	now := time.Now()

	s.noteServerTime(now)
	assert.Equal(t, now.UnixMilli(), s.lastKnownPastTime.Load())

	s.noteServerTime(now.Add(-time.Hour))
	assert.Equal(t, now.UnixMilli(), s.lastKnownPastTime.Load())

	s.noteServerTime(now.Add(time.Hour))
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), s.lastKnownPastTime.Load())

	s.noteServerTime(time.Time{})
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), s.lastKnownPastTime.Load())
}
