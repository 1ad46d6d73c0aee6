package events

import (
	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// variantKey identifies one (version, variation) pair within a flag's
// summary. Unknown version or variation is represented explicitly rather
// than with a sentinel value.
type variantKey struct {
	version      int
	variation    int
	hasVersion   bool
	hasVariation bool
}

func makeVariantKey(version, variation *int) variantKey {
	var k variantKey
	if version != nil {
		k.version = *version
		k.hasVersion = true
	}
	if variation != nil {
		k.variation = *variation
		k.hasVariation = true
	}
	return k
}

type summaryCounter struct {
	value any
	count int
}

type flagCounters struct {
	defaultValue any
	counters     map[variantKey]*summaryCounter
	order        []variantKey
}

// eventSummarizer aggregates eval events into a compact counter table keyed
// by (flag, version, variation). It is owned exclusively by the dispatcher.
type eventSummarizer struct {
	flags     map[string]*flagCounters
	startDate int64
	endDate   int64
}

func newEventSummarizer() *eventSummarizer {
	return &eventSummarizer{flags: make(map[string]*flagCounters)}
}

// summarizeEvent folds an event into the counter table. Events other than
// eval events are ignored.
func (s *eventSummarizer) summarizeEvent(e model.Event) {
	ev, ok := e.(model.EvalEvent)
	if !ok {
		return
	}

	fc := s.flags[ev.Key]
	if fc == nil {
		fc = &flagCounters{
			defaultValue: ev.Default,
			counters:     make(map[variantKey]*summaryCounter),
		}
		s.flags[ev.Key] = fc
	}

	key := makeVariantKey(ev.Version, ev.Variation)
	c := fc.counters[key]
	if c == nil {
		c = &summaryCounter{value: ev.Value}
		fc.counters[key] = c
		fc.order = append(fc.order, key)
	}
	c.count++

	if s.startDate == 0 || ev.CreationDate < s.startDate {
		s.startDate = ev.CreationDate
	}
	if ev.CreationDate > s.endDate {
		s.endDate = ev.CreationDate
	}
}

// SummaryCounter is one counter in a summary snapshot.
type SummaryCounter struct {
	Value     any
	Count     int
	Version   *int
	Variation *int
}

// FlagSummary is the per-flag slice of a summary snapshot. Counters keep
// insertion order.
type FlagSummary struct {
	Default  any
	Counters []SummaryCounter
}

// SummarySnapshot is an immutable copy of the summarizer state.
type SummarySnapshot struct {
	StartDate int64
	EndDate   int64
	Flags     map[string]FlagSummary
}

// IsEmpty reports whether the snapshot holds no counters.
func (s SummarySnapshot) IsEmpty() bool {
	return len(s.Flags) == 0
}

// snapshot copies the current state without resetting it.
func (s *eventSummarizer) snapshot() SummarySnapshot {
	out := SummarySnapshot{
		StartDate: s.startDate,
		EndDate:   s.endDate,
		Flags:     make(map[string]FlagSummary, len(s.flags)),
	}
	for flagKey, fc := range s.flags {
		fs := FlagSummary{
			Default:  fc.defaultValue,
			Counters: make([]SummaryCounter, 0, len(fc.order)),
		}
		for _, vk := range fc.order {
			c := fc.counters[vk]
			sc := SummaryCounter{Value: c.value, Count: c.count}
			if vk.hasVersion {
				v := vk.version
				sc.Version = &v
			}
			if vk.hasVariation {
				v := vk.variation
				sc.Variation = &v
			}
			fs.Counters = append(fs.Counters, sc)
		}
		out.Flags[flagKey] = fs
	}
	return out
}

// reset clears all counters and dates.
func (s *eventSummarizer) reset() {
	s.flags = make(map[string]*flagCounters)
	s.startDate = 0
	s.endDate = 0
}
