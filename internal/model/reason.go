package model

// ReasonKind identifies why an evaluation produced its result.
type ReasonKind string

const (
	ReasonOff                ReasonKind = "OFF"
	ReasonFallthrough        ReasonKind = "FALLTHROUGH"
	ReasonTargetMatch        ReasonKind = "TARGET_MATCH"
	ReasonRuleMatch          ReasonKind = "RULE_MATCH"
	ReasonPrerequisiteFailed ReasonKind = "PREREQUISITE_FAILED"
	ReasonError              ReasonKind = "ERROR"
)

// ErrorKind identifies the class of an evaluation error.
type ErrorKind string

const (
	ErrorClientNotReady   ErrorKind = "CLIENT_NOT_READY"
	ErrorFlagNotFound     ErrorKind = "FLAG_NOT_FOUND"
	ErrorMalformedFlag    ErrorKind = "MALFORMED_FLAG"
	ErrorUserNotSpecified ErrorKind = "USER_NOT_SPECIFIED"
	ErrorException        ErrorKind = "EXCEPTION"
)

// BigSegmentsStatus describes the health of a big-segment membership lookup.
type BigSegmentsStatus string

const (
	BigSegmentsHealthy       BigSegmentsStatus = "HEALTHY"
	BigSegmentsStale         BigSegmentsStatus = "STALE"
	BigSegmentsNotConfigured BigSegmentsStatus = "NOT_CONFIGURED"
	BigSegmentsStoreError    BigSegmentsStatus = "STORE_ERROR"
)

// EvaluationReason explains an evaluation result.
type EvaluationReason struct {
	Kind              ReasonKind        `json:"kind"`
	RuleIndex         *int              `json:"ruleIndex,omitempty"`
	RuleID            string            `json:"ruleId,omitempty"`
	PrerequisiteKey   string            `json:"prerequisiteKey,omitempty"`
	ErrorKind         ErrorKind         `json:"errorKind,omitempty"`
	InExperiment      bool              `json:"inExperiment,omitempty"`
	BigSegmentsStatus BigSegmentsStatus `json:"bigSegmentsStatus,omitempty"`
}

// NewErrorReason builds an ERROR reason for the given kind.
func NewErrorReason(kind ErrorKind) EvaluationReason {
	return EvaluationReason{Kind: ReasonError, ErrorKind: kind}
}

// EvaluationDetail is the result of evaluating a flag for a user.
type EvaluationDetail struct {
	Value          any               `json:"value"`
	VariationIndex *int              `json:"variationIndex,omitempty"`
	Reason         EvaluationReason  `json:"reason"`
}

// PrerequisiteEvalRecord reports one prerequisite evaluation performed during
// an evaluation, so the caller can record it as an eval event.
type PrerequisiteEvalRecord struct {
	Flag     *FeatureFlag
	PrereqOf string
	Detail   EvaluationDetail
}

// BigSegmentMembership maps segment references ("{key}.g{generation}") to
// explicit inclusion or exclusion.
type BigSegmentMembership map[string]bool

// EvalResult bundles the evaluation detail with its side records.
type EvalResult struct {
	Detail      EvaluationDetail
	PrereqEvals []PrerequisiteEvalRecord
}
