package model

// Event is the sum type carried through the pipeline inbox. Creation dates
// are wall-clock milliseconds since epoch.
type Event interface {
	GetCreationDate() int64

	// GetUser returns the user the event refers to, or nil for events that
	// carry no user (alias events).
	GetUser() *User
}

// BaseEvent holds the fields common to all user-bearing events.
type BaseEvent struct {
	CreationDate int64
	User         *User
}

// GetCreationDate implements Event.
func (b BaseEvent) GetCreationDate() int64 { return b.CreationDate }

// GetUser implements Event.
func (b BaseEvent) GetUser() *User { return b.User }

// EvalEvent records a single flag evaluation. Most of these are collapsed
// into the summary rather than delivered individually.
type EvalEvent struct {
	BaseEvent
	Key         string
	Version     *int
	Variation   *int
	Value       any
	Default     any
	Reason      *EvaluationReason
	TrackEvents bool
	DebugUntil  *int64
	PrereqOf    *string
}

// IdentifyEvent records an explicit identification of a user.
type IdentifyEvent struct {
	BaseEvent
}

// CustomEvent records an application-defined event.
type CustomEvent struct {
	BaseEvent
	Key         string
	Data        any
	MetricValue *float64
}

// AliasEvent links two user keys. It carries no user of its own.
type AliasEvent struct {
	CreationDate        int64
	Key                 string
	ContextKind         string
	PreviousKey         string
	PreviousContextKind string
}

// GetCreationDate implements Event.
func (a AliasEvent) GetCreationDate() int64 { return a.CreationDate }

// GetUser implements Event.
func (a AliasEvent) GetUser() *User { return nil }

// IndexEvent is synthesized by the dispatcher the first time a user key is
// seen within the LRU window; it carries the user's full attribute set.
type IndexEvent struct {
	BaseEvent
}

// DebugEvent is a full copy of an eval event emitted while its debug window
// is open.
type DebugEvent struct {
	Eval EvalEvent
}

// GetCreationDate implements Event.
func (d DebugEvent) GetCreationDate() int64 { return d.Eval.CreationDate }

// GetUser implements Event.
func (d DebugEvent) GetUser() *User { return d.Eval.User }
