package events

import (
	"encoding/json"
	"fmt"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// eventOutputFormatter converts internal events and a summary snapshot into
// the on-wire JSON shapes.
type eventOutputFormatter struct {
	inlineUsers          bool
	allAttributesPrivate bool
	privateAttributes    []string
}

type featureOutput struct {
	Kind         string                  `json:"kind"`
	CreationDate int64                   `json:"creationDate"`
	Key          string                  `json:"key"`
	Value        any                     `json:"value"`
	Default      any                     `json:"default,omitempty"`
	Variation    *int                    `json:"variation,omitempty"`
	Version      *int                    `json:"version,omitempty"`
	PrereqOf     *string                 `json:"prereqOf,omitempty"`
	ContextKind  string                  `json:"contextKind,omitempty"`
	User         *filteredUser           `json:"user,omitempty"`
	UserKey      *string                 `json:"userKey,omitempty"`
	Reason       *model.EvaluationReason `json:"reason,omitempty"`
}

type identifyOutput struct {
	Kind         string        `json:"kind"`
	CreationDate int64         `json:"creationDate"`
	Key          string        `json:"key"`
	User         *filteredUser `json:"user"`
}

type customOutput struct {
	Kind         string        `json:"kind"`
	CreationDate int64         `json:"creationDate"`
	Key          string        `json:"key"`
	Data         any           `json:"data,omitempty"`
	User         *filteredUser `json:"user,omitempty"`
	UserKey      *string       `json:"userKey,omitempty"`
	MetricValue  *float64      `json:"metricValue,omitempty"`
	ContextKind  string        `json:"contextKind,omitempty"`
}

type aliasOutput struct {
	Kind                string `json:"kind"`
	CreationDate        int64  `json:"creationDate"`
	Key                 string `json:"key"`
	ContextKind         string `json:"contextKind"`
	PreviousKey         string `json:"previousKey"`
	PreviousContextKind string `json:"previousContextKind"`
}

type indexOutput struct {
	Kind         string        `json:"kind"`
	CreationDate int64         `json:"creationDate"`
	User         *filteredUser `json:"user"`
}

type summaryOutput struct {
	Kind      string                       `json:"kind"`
	StartDate int64                        `json:"startDate"`
	EndDate   int64                        `json:"endDate"`
	Features  map[string]summaryFlagOutput `json:"features"`
}

type summaryFlagOutput struct {
	Default  any                    `json:"default"`
	Counters []summaryCounterOutput `json:"counters"`
}

type summaryCounterOutput struct {
	Value     any  `json:"value"`
	Count     int  `json:"count"`
	Variation *int `json:"variation,omitempty"`
	Version   *int `json:"version,omitempty"`
	Unknown   bool `json:"unknown,omitempty"`
}

// makeOutputEvents produces the ordered wire representation of a flush
// payload. The summary, when non-empty, is always the final element.
func (f *eventOutputFormatter) makeOutputEvents(evs []model.Event, summary SummarySnapshot) []any {
	out := make([]any, 0, len(evs)+1)
	for _, e := range evs {
		if oe := f.makeOutputEvent(e); oe != nil {
			out = append(out, oe)
		}
	}
	if !summary.IsEmpty() {
		out = append(out, f.makeSummaryOutput(summary))
	}
	return out
}

func (f *eventOutputFormatter) makeOutputEvent(e model.Event) any {
	switch ev := e.(type) {
	case model.EvalEvent:
		out := featureOutput{
			Kind:         "feature",
			CreationDate: ev.CreationDate,
			Key:          ev.Key,
			Value:        ev.Value,
			Default:      ev.Default,
			Variation:    ev.Variation,
			Version:      ev.Version,
			PrereqOf:     ev.PrereqOf,
			Reason:       ev.Reason,
		}
		f.setEventUser(ev.User, &out.User, &out.UserKey, &out.ContextKind)
		return out
	case model.IdentifyEvent:
		key := ""
		if ev.User != nil {
			key = ev.User.Key
		}
		return identifyOutput{
			Kind:         "identify",
			CreationDate: ev.CreationDate,
			Key:          key,
			User:         f.filterUser(ev.User),
		}
	case model.CustomEvent:
		out := customOutput{
			Kind:         "custom",
			CreationDate: ev.CreationDate,
			Key:          ev.Key,
			Data:         ev.Data,
			MetricValue:  ev.MetricValue,
		}
		f.setEventUser(ev.User, &out.User, &out.UserKey, &out.ContextKind)
		return out
	case model.AliasEvent:
		return aliasOutput{
			Kind:                "alias",
			CreationDate:        ev.CreationDate,
			Key:                 ev.Key,
			ContextKind:         ev.ContextKind,
			PreviousKey:         ev.PreviousKey,
			PreviousContextKind: ev.PreviousContextKind,
		}
	case model.IndexEvent:
		return indexOutput{
			Kind:         "index",
			CreationDate: ev.CreationDate,
			User:         f.filterUser(ev.User),
		}
	case model.DebugEvent:
		src := ev.Eval
		out := featureOutput{
			Kind:         "debug",
			CreationDate: src.CreationDate,
			Key:          src.Key,
			Value:        src.Value,
			Default:      src.Default,
			Variation:    src.Variation,
			Version:      src.Version,
			PrereqOf:     src.PrereqOf,
			Reason:       src.Reason,
		}
		// Debug events always carry the full user.
		out.User = f.filterUser(src.User)
		if src.User != nil && src.User.Anonymous {
			out.ContextKind = src.User.ContextKind()
		}
		return out
	}
	return nil
}

// setEventUser applies the inline-vs-keyed user policy plus the contextKind
// rule shared by feature and custom events.
func (f *eventOutputFormatter) setEventUser(u *model.User, inline **filteredUser, userKey **string, contextKind *string) {
	if u == nil {
		return
	}
	if f.inlineUsers {
		*inline = f.filterUser(u)
	} else {
		key := u.Key
		*userKey = &key
	}
	if u.Anonymous {
		*contextKind = u.ContextKind()
	}
}

func (f *eventOutputFormatter) makeSummaryOutput(s SummarySnapshot) summaryOutput {
	out := summaryOutput{
		Kind:      "summary",
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		Features:  make(map[string]summaryFlagOutput, len(s.Flags)),
	}
	for flagKey, fs := range s.Flags {
		fo := summaryFlagOutput{
			Default:  fs.Default,
			Counters: make([]summaryCounterOutput, 0, len(fs.Counters)),
		}
		for _, c := range fs.Counters {
			co := summaryCounterOutput{
				Value:     c.Value,
				Count:     c.Count,
				Variation: c.Variation,
				Version:   c.Version,
			}
			if c.Version == nil {
				co.Unknown = true
			}
			fo.Counters = append(fo.Counters, co)
		}
		out.Features[flagKey] = fo
	}
	return out
}

// filteredUser is the serialized user shape: redaction applied, base
// attributes coerced to strings.
type filteredUser struct {
	Key          string         `json:"key"`
	Secondary    *string        `json:"secondary,omitempty"`
	IP           *string        `json:"ip,omitempty"`
	Country      *string        `json:"country,omitempty"`
	Email        *string        `json:"email,omitempty"`
	FirstName    *string        `json:"firstName,omitempty"`
	LastName     *string        `json:"lastName,omitempty"`
	Avatar       *string        `json:"avatar,omitempty"`
	Name         *string        `json:"name,omitempty"`
	Anonymous    bool           `json:"anonymous,omitempty"`
	Custom       map[string]any `json:"custom,omitempty"`
	PrivateAttrs []string       `json:"privateAttrs,omitempty"`
}

func (f *eventOutputFormatter) filterUser(u *model.User) *filteredUser {
	if u == nil {
		return nil
	}

	private := make(map[string]bool, len(f.privateAttributes)+len(u.PrivateAttributeNames))
	for _, name := range f.privateAttributes {
		private[name] = true
	}
	for _, name := range u.PrivateAttributeNames {
		private[name] = true
	}

	out := &filteredUser{Key: u.Key, Anonymous: u.Anonymous}

	// The key is never redacted.
	setBase := func(name string, v any, dst **string) {
		if v == nil {
			return
		}
		if f.allAttributesPrivate || private[name] {
			out.PrivateAttrs = append(out.PrivateAttrs, name)
			return
		}
		*dst = coerceString(v)
	}
	setBase("secondary", u.Secondary, &out.Secondary)
	setBase("ip", u.IP, &out.IP)
	setBase("country", u.Country, &out.Country)
	setBase("email", u.Email, &out.Email)
	setBase("firstName", u.FirstName, &out.FirstName)
	setBase("lastName", u.LastName, &out.LastName)
	setBase("avatar", u.Avatar, &out.Avatar)
	setBase("name", u.Name, &out.Name)

	for name, v := range u.Custom {
		if f.allAttributesPrivate || private[name] {
			out.PrivateAttrs = append(out.PrivateAttrs, name)
			continue
		}
		if out.Custom == nil {
			out.Custom = make(map[string]any)
		}
		out.Custom[name] = v
	}

	return out
}

// coerceString renders a base attribute value as a string.
func coerceString(v any) *string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		s = string(b)
	default:
		s = fmt.Sprint(val)
	}
	return &s
}
