package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

func summarizerEval(key string, version, variation *int, value, defaultValue any, creationDate int64) model.EvalEvent {
	return model.EvalEvent{
		BaseEvent: model.BaseEvent{CreationDate: creationDate},
		Key:       key,
		Version:   version,
		Variation: variation,
		Value:     value,
		Default:   defaultValue,
	}
}

func intPtr(v int) *int { return &v }

func TestSummarizerCountsByFlagVersionAndVariation(t *testing.T) {
	s := newEventSummarizer()

	s.summarizeEvent(summarizerEval("f1", intPtr(2), intPtr(0), "a", "x", 1000))
	s.summarizeEvent(summarizerEval("f1", intPtr(2), intPtr(0), "a", "x", 1001))
	s.summarizeEvent(summarizerEval("f1", intPtr(2), intPtr(1), "b", "x", 1002))
	s.summarizeEvent(summarizerEval("f1", intPtr(3), intPtr(0), "a", "x", 1003))
	s.summarizeEvent(summarizerEval("f2", intPtr(1), intPtr(0), true, false, 1004))

	snap := s.snapshot()
	require.Len(t, snap.Flags, 2)
	assert.Equal(t, int64(1000), snap.StartDate)
	assert.Equal(t, int64(1004), snap.EndDate)

	f1 := snap.Flags["f1"]
	assert.Equal(t, "x", f1.Default)
	require.Len(t, f1.Counters, 3)
	// Counters keep first-seen order.
	assert.Equal(t, SummaryCounter{Value: "a", Count: 2, Version: intPtr(2), Variation: intPtr(0)}, f1.Counters[0])
	assert.Equal(t, SummaryCounter{Value: "b", Count: 1, Version: intPtr(2), Variation: intPtr(1)}, f1.Counters[1])
	assert.Equal(t, SummaryCounter{Value: "a", Count: 1, Version: intPtr(3), Variation: intPtr(0)}, f1.Counters[2])

	f2 := snap.Flags["f2"]
	assert.Equal(t, false, f2.Default)
	require.Len(t, f2.Counters, 1)
	assert.Equal(t, 1, f2.Counters[0].Count)
}

func TestSummarizerUnknownFlag(t *testing.T) {
	s := newEventSummarizer()

	// An eval against a missing flag has no version or variation.
	s.summarizeEvent(summarizerEval("missing", nil, nil, "x", "x", 1000))
	s.summarizeEvent(summarizerEval("missing", nil, nil, "x", "x", 1001))

	snap := s.snapshot()
	f := snap.Flags["missing"]
	require.Len(t, f.Counters, 1)
	assert.Nil(t, f.Counters[0].Version)
	assert.Nil(t, f.Counters[0].Variation)
	assert.Equal(t, 2, f.Counters[0].Count)
}

func TestSummarizerIgnoresNonEvalEvents(t *testing.T) {
	s := newEventSummarizer()

	s.summarizeEvent(model.IdentifyEvent{BaseEvent: model.BaseEvent{CreationDate: 1000}})
	s.summarizeEvent(model.CustomEvent{BaseEvent: model.BaseEvent{CreationDate: 1001}, Key: "c"})

	assert.True(t, s.snapshot().IsEmpty())
}

func TestSummarizerReset(t *testing.T) {
	s := newEventSummarizer()
	s.summarizeEvent(summarizerEval("f1", intPtr(1), intPtr(0), "a", "x", 1000))
	require.False(t, s.snapshot().IsEmpty())

	s.reset()

	snap := s.snapshot()
	assert.True(t, snap.IsEmpty())
	assert.Zero(t, snap.StartDate)
	assert.Zero(t, snap.EndDate)
}

func TestSnapshotIsUnaffectedByLaterEvents(t *testing.T) {
	s := newEventSummarizer()
	s.summarizeEvent(summarizerEval("f1", intPtr(1), intPtr(0), "a", "x", 1000))
	snap := s.snapshot()

	s.summarizeEvent(summarizerEval("f1", intPtr(1), intPtr(0), "a", "x", 1001))

	assert.Equal(t, 1, snap.Flags["f1"].Counters[0].Count)
}
