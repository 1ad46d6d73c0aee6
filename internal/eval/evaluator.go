// Package eval implements flag evaluation: prerequisites, targets, rules,
// clause matching, segment membership and deterministic bucketing. The
// evaluator is pure; all I/O happens behind the getter functions supplied by
// the caller. Errors are reported through result reasons, never returned.
package eval

import (
	"fmt"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// FlagGetter resolves a flag by key, returning nil when absent.
type FlagGetter func(key string) *model.FeatureFlag

// SegmentGetter resolves a segment by key, returning nil when absent.
type SegmentGetter func(key string) *model.Segment

// BigSegmentsGetter queries external big-segment membership for a user key.
type BigSegmentsGetter func(userKey string) (model.BigSegmentMembership, model.BigSegmentsStatus)

// Evaluator evaluates flags against the data store views it was built with.
type Evaluator struct {
	getFlag        FlagGetter
	getSegment     SegmentGetter
	getBigSegments BigSegmentsGetter
}

// NewEvaluator creates an evaluator. getBigSegments may be nil when no big
// segment store is configured.
func NewEvaluator(getFlag FlagGetter, getSegment SegmentGetter, getBigSegments BigSegmentsGetter) *Evaluator {
	return &Evaluator{
		getFlag:        getFlag,
		getSegment:     getSegment,
		getBigSegments: getBigSegments,
	}
}

// evalState accumulates per-evaluation side data: prerequisite records, the
// set of flag keys on the current prerequisite chain, and the big-segment
// membership cache (queried at most once per evaluation).
type evalState struct {
	prereqEvals []model.PrerequisiteEvalRecord
	visited     map[string]bool

	bigQueried    bool
	bigMembership model.BigSegmentMembership
	bigStatus     model.BigSegmentsStatus
	bigStatusSet  bool
}

func (s *evalState) recordBigStatus(status model.BigSegmentsStatus) {
	s.bigStatus = status
	s.bigStatusSet = true
}

// Evaluate evaluates flag for user. The returned detail's reason carries the
// big-segments status if any big-segment lookup occurred, and the result
// includes one record per prerequisite evaluation performed.
func (e *Evaluator) Evaluate(flag *model.FeatureFlag, user *model.User) model.EvalResult {
	state := &evalState{visited: make(map[string]bool)}
	detail := e.evaluateFlag(flag, user, state)
	if state.bigStatusSet {
		detail.Reason.BigSegmentsStatus = state.bigStatus
	}
	return model.EvalResult{Detail: detail, PrereqEvals: state.prereqEvals}
}

func (e *Evaluator) evaluateFlag(flag *model.FeatureFlag, user *model.User, state *evalState) model.EvaluationDetail {
	if user == nil || user.Key == "" {
		return model.EvaluationDetail{Reason: model.NewErrorReason(model.ErrorUserNotSpecified)}
	}

	// Prerequisite cycles are a data error; the guard tracks the current
	// evaluation chain, not all flags ever visited, so diamonds stay legal.
	if state.visited[flag.Key] {
		return model.EvaluationDetail{Reason: model.NewErrorReason(model.ErrorMalformedFlag)}
	}
	state.visited[flag.Key] = true
	defer delete(state.visited, flag.Key)

	if !flag.On {
		return offResult(flag, model.EvaluationReason{Kind: model.ReasonOff})
	}

	for _, prereq := range flag.Prerequisites {
		if !e.prerequisiteMatches(flag, prereq, user, state) {
			return offResult(flag, model.EvaluationReason{
				Kind:            model.ReasonPrerequisiteFailed,
				PrerequisiteKey: prereq.Key,
			})
		}
	}

	for _, target := range flag.Targets {
		for _, value := range target.Values {
			if value == user.Key {
				return variationResult(flag, target.Variation,
					model.EvaluationReason{Kind: model.ReasonTargetMatch})
			}
		}
	}

	for i := range flag.Rules {
		rule := &flag.Rules[i]
		if e.ruleMatchesUser(rule, user, state) {
			index := i
			variation, inExperiment, ok := resolveVariationOrRollout(&rule.VariationOrRollout, flag, user)
			if !ok {
				return model.EvaluationDetail{Reason: model.NewErrorReason(model.ErrorMalformedFlag)}
			}
			return variationResult(flag, variation, model.EvaluationReason{
				Kind:         model.ReasonRuleMatch,
				RuleIndex:    &index,
				RuleID:       rule.ID,
				InExperiment: inExperiment,
			})
		}
	}

	variation, inExperiment, ok := resolveVariationOrRollout(&flag.Fallthrough, flag, user)
	if !ok {
		return model.EvaluationDetail{Reason: model.NewErrorReason(model.ErrorMalformedFlag)}
	}
	return variationResult(flag, variation, model.EvaluationReason{
		Kind:         model.ReasonFallthrough,
		InExperiment: inExperiment,
	})
}

// prerequisiteMatches evaluates one prerequisite, appending its record to
// the state. Any panic while evaluating is treated as a non-match.
func (e *Evaluator) prerequisiteMatches(flag *model.FeatureFlag, prereq model.Prerequisite, user *model.User, state *evalState) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()

	prereqFlag := e.getFlag(prereq.Key)
	if prereqFlag == nil {
		return false
	}

	detail := e.evaluateFlag(prereqFlag, user, state)
	state.prereqEvals = append(state.prereqEvals, model.PrerequisiteEvalRecord{
		Flag:     prereqFlag,
		PrereqOf: flag.Key,
		Detail:   detail,
	})

	return prereqFlag.On &&
		detail.Reason.Kind != model.ReasonError &&
		detail.VariationIndex != nil &&
		*detail.VariationIndex == prereq.Variation
}

func (e *Evaluator) ruleMatchesUser(rule *model.FlagRule, user *model.User, state *evalState) bool {
	for i := range rule.Clauses {
		if !e.clauseMatchesUser(&rule.Clauses[i], user, state) {
			return false
		}
	}
	return true
}

func (e *Evaluator) clauseMatchesUser(clause *model.Clause, user *model.User, state *evalState) bool {
	if clause.Op == model.OperatorSegmentMatch {
		for _, value := range clause.Values {
			key, ok := value.(string)
			if !ok {
				continue
			}
			if segment := e.getSegment(key); segment != nil {
				if e.segmentContainsUser(segment, user, state) {
					return maybeNegate(clause, true)
				}
			}
		}
		return maybeNegate(clause, false)
	}
	return clauseMatchesUserNoSegments(clause, user)
}

// clauseMatchesUserNoSegments applies plain attribute matching. A missing
// attribute fails the clause before negation is considered.
func clauseMatchesUserNoSegments(clause *model.Clause, user *model.User) bool {
	userValue := user.Attribute(clause.Attribute)
	if userValue == nil {
		return false
	}
	if seq, ok := userValue.([]any); ok {
		for _, element := range seq {
			if matchAny(clause.Op, element, clause.Values) {
				return maybeNegate(clause, true)
			}
		}
		return maybeNegate(clause, false)
	}
	return maybeNegate(clause, matchAny(clause.Op, userValue, clause.Values))
}

func maybeNegate(clause *model.Clause, matched bool) bool {
	if clause.Negate {
		return !matched
	}
	return matched
}

func (e *Evaluator) segmentContainsUser(segment *model.Segment, user *model.User, state *evalState) bool {
	if segment.Unbounded {
		return e.bigSegmentContainsUser(segment, user, state)
	}
	return simpleSegmentMatch(segment, user, true)
}

func (e *Evaluator) bigSegmentContainsUser(segment *model.Segment, user *model.User, state *evalState) bool {
	if segment.Generation == nil {
		// A big segment without a generation has no queryable membership
		// data; this is a data inconsistency rather than a store failure.
		state.recordBigStatus(model.BigSegmentsNotConfigured)
		return false
	}

	if !state.bigQueried {
		state.bigQueried = true
		if e.getBigSegments == nil {
			state.recordBigStatus(model.BigSegmentsNotConfigured)
		} else {
			membership, status := e.getBigSegments(user.Key)
			state.bigMembership = membership
			state.recordBigStatus(status)
		}
	}

	ref := fmt.Sprintf("%s.g%d", segment.Key, *segment.Generation)
	if included, ok := state.bigMembership[ref]; ok {
		return included
	}
	// Membership said nothing either way: fall back to the segment's rules,
	// skipping the include/exclude lists which are superseded by the store.
	return simpleSegmentMatch(segment, user, false)
}

func simpleSegmentMatch(segment *model.Segment, user *model.User, useIncludesAndExcludes bool) bool {
	if useIncludesAndExcludes {
		for _, key := range segment.Included {
			if key == user.Key {
				return true
			}
		}
		for _, key := range segment.Excluded {
			if key == user.Key {
				return false
			}
		}
	}
	for i := range segment.Rules {
		if segmentRuleMatchesUser(segment, &segment.Rules[i], user) {
			return true
		}
	}
	return false
}

func segmentRuleMatchesUser(segment *model.Segment, rule *model.SegmentRule, user *model.User) bool {
	for i := range rule.Clauses {
		if !clauseMatchesUserNoSegments(&rule.Clauses[i], user) {
			return false
		}
	}
	if rule.Weight == nil {
		return true
	}

	bucketBy := rule.BucketBy
	if bucketBy == "" {
		bucketBy = "key"
	}
	bucket := bucketUser(nil, user, segment.Key, bucketBy, segment.Salt)
	weight := float64(*rule.Weight) / 100000.0
	return bucket < weight
}

// resolveVariationOrRollout returns the selected variation index and whether
// the user is in an experiment. ok is false when the flag data is malformed.
func resolveVariationOrRollout(vr *model.VariationOrRollout, flag *model.FeatureFlag, user *model.User) (variation int, inExperiment bool, ok bool) {
	if vr.Variation != nil {
		return *vr.Variation, false, true
	}
	rollout := vr.Rollout
	if rollout == nil || len(rollout.Variations) == 0 {
		return 0, false, false
	}

	bucketBy := rollout.BucketBy
	if bucketBy == "" {
		bucketBy = "key"
	}
	bucket := bucketUser(rollout.Seed, user, flag.Key, bucketBy, flag.Salt)

	var sum float64
	for _, wv := range rollout.Variations {
		sum += float64(wv.Weight) / 100000.0
		if bucket < sum {
			return wv.Variation, rollout.IsExperiment() && !wv.Untracked, true
		}
	}
	// Rounding left the bucket past the final boundary; use the last bucket.
	last := rollout.Variations[len(rollout.Variations)-1]
	return last.Variation, rollout.IsExperiment() && !last.Untracked, true
}

func variationResult(flag *model.FeatureFlag, index int, reason model.EvaluationReason) model.EvaluationDetail {
	if index < 0 || index >= len(flag.Variations) {
		return model.EvaluationDetail{Reason: model.NewErrorReason(model.ErrorMalformedFlag)}
	}
	return model.EvaluationDetail{
		Value:          flag.Variations[index],
		VariationIndex: &index,
		Reason:         reason,
	}
}

func offResult(flag *model.FeatureFlag, reason model.EvaluationReason) model.EvaluationDetail {
	if flag.OffVariation == nil {
		return model.EvaluationDetail{Reason: reason}
	}
	return variationResult(flag, *flag.OffVariation, reason)
}
