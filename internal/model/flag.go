package model

// DataKind identifies a collection in the feature store.
type DataKind string

const (
	DataKindFlag    DataKind = "flag"
	DataKindSegment DataKind = "segment"
)

// VersionedData is implemented by every item the feature store holds.
type VersionedData interface {
	GetKey() string
	GetVersion() int
	IsDeleted() bool
}

// FeatureFlag is the evaluator's view of a flag.
type FeatureFlag struct {
	Key                    string            `json:"key"`
	Version                int               `json:"version"`
	On                     bool              `json:"on"`
	Prerequisites          []Prerequisite    `json:"prerequisites,omitempty"`
	Salt                   string            `json:"salt"`
	Targets                []Target          `json:"targets,omitempty"`
	Rules                  []FlagRule        `json:"rules,omitempty"`
	Fallthrough            VariationOrRollout `json:"fallthrough"`
	OffVariation           *int              `json:"offVariation,omitempty"`
	Variations             []any             `json:"variations"`
	TrackEvents            bool              `json:"trackEvents,omitempty"`
	TrackEventsFallthrough bool              `json:"trackEventsFallthrough,omitempty"`
	DebugEventsUntilDate   *int64            `json:"debugEventsUntilDate,omitempty"`
	Deleted                bool              `json:"deleted,omitempty"`
}

// GetKey implements VersionedData.
func (f *FeatureFlag) GetKey() string { return f.Key }

// GetVersion implements VersionedData.
func (f *FeatureFlag) GetVersion() int { return f.Version }

// IsDeleted implements VersionedData.
func (f *FeatureFlag) IsDeleted() bool { return f.Deleted }

// Prerequisite names another flag that must evaluate to a specific variation
// before this flag is evaluated.
type Prerequisite struct {
	Key       string `json:"key"`
	Variation int    `json:"variation"`
}

// Target matches an explicit list of user keys to a variation.
type Target struct {
	Values    []string `json:"values"`
	Variation int      `json:"variation"`
}

// FlagRule matches a set of clauses to a variation or rollout.
type FlagRule struct {
	ID       string   `json:"id,omitempty"`
	Clauses  []Clause `json:"clauses"`
	VariationOrRollout
	TrackEvents bool `json:"trackEvents,omitempty"`
}

// VariationOrRollout selects either a fixed variation or a percentage
// rollout.
type VariationOrRollout struct {
	Variation *int     `json:"variation,omitempty"`
	Rollout   *Rollout `json:"rollout,omitempty"`
}

// RolloutKindExperiment marks a rollout whose buckets are experiment arms.
const RolloutKindExperiment = "experiment"

// Rollout distributes users across variations by deterministic bucketing.
type Rollout struct {
	Kind       string              `json:"kind,omitempty"`
	Variations []WeightedVariation `json:"variations"`
	BucketBy   string              `json:"bucketBy,omitempty"`
	Seed       *int64              `json:"seed,omitempty"`
}

// IsExperiment reports whether the rollout is an experiment.
func (r *Rollout) IsExperiment() bool {
	return r != nil && r.Kind == RolloutKindExperiment
}

// WeightedVariation is one bucket of a rollout. Weights are in units of
// 1/100000.
type WeightedVariation struct {
	Variation int  `json:"variation"`
	Weight    int  `json:"weight"`
	Untracked bool `json:"untracked,omitempty"`
}

// Clause is a single condition within a rule.
type Clause struct {
	Attribute string   `json:"attribute"`
	Op        Operator `json:"op"`
	Values    []any    `json:"values"`
	Negate    bool     `json:"negate,omitempty"`
}

// Operator is a clause matching operator.
type Operator string

const (
	OperatorIn                 Operator = "in"
	OperatorStartsWith         Operator = "startsWith"
	OperatorEndsWith           Operator = "endsWith"
	OperatorContains           Operator = "contains"
	OperatorMatches            Operator = "matches"
	OperatorLessThan           Operator = "lessThan"
	OperatorLessThanOrEqual    Operator = "lessThanOrEqual"
	OperatorGreaterThan        Operator = "greaterThan"
	OperatorGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OperatorBefore             Operator = "before"
	OperatorAfter              Operator = "after"
	OperatorSegmentMatch       Operator = "segmentMatch"
)
