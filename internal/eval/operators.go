package eval

import (
	"regexp"
	"strings"
	"time"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// matchAny reports whether the operator holds for the user value against any
// of the clause values.
func matchAny(op model.Operator, userValue any, clauseValues []any) bool {
	for _, cv := range clauseValues {
		if matchSingle(op, userValue, cv) {
			return true
		}
	}
	return false
}

func matchSingle(op model.Operator, userValue, clauseValue any) bool {
	switch op {
	case model.OperatorIn:
		return equalValues(userValue, clauseValue)
	case model.OperatorStartsWith:
		return stringOp(userValue, clauseValue, strings.HasPrefix)
	case model.OperatorEndsWith:
		return stringOp(userValue, clauseValue, strings.HasSuffix)
	case model.OperatorContains:
		return stringOp(userValue, clauseValue, strings.Contains)
	case model.OperatorMatches:
		return stringOp(userValue, clauseValue, func(u, pattern string) bool {
			matched, err := regexp.MatchString(pattern, u)
			return err == nil && matched
		})
	case model.OperatorLessThan:
		return numericOp(userValue, clauseValue, func(a, b float64) bool { return a < b })
	case model.OperatorLessThanOrEqual:
		return numericOp(userValue, clauseValue, func(a, b float64) bool { return a <= b })
	case model.OperatorGreaterThan:
		return numericOp(userValue, clauseValue, func(a, b float64) bool { return a > b })
	case model.OperatorGreaterThanOrEqual:
		return numericOp(userValue, clauseValue, func(a, b float64) bool { return a >= b })
	case model.OperatorBefore:
		return timeOp(userValue, clauseValue, func(a, b time.Time) bool { return a.Before(b) })
	case model.OperatorAfter:
		return timeOp(userValue, clauseValue, func(a, b time.Time) bool { return a.After(b) })
	}
	return false
}

func equalValues(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return a == b
}

func stringOp(userValue, clauseValue any, fn func(u, c string) bool) bool {
	u, uok := userValue.(string)
	c, cok := clauseValue.(string)
	return uok && cok && fn(u, c)
}

func numericOp(userValue, clauseValue any, fn func(a, b float64) bool) bool {
	u, uok := asFloat(userValue)
	c, cok := asFloat(clauseValue)
	return uok && cok && fn(u, c)
}

func timeOp(userValue, clauseValue any, fn func(a, b time.Time) bool) bool {
	u, uok := asTime(userValue)
	c, cok := asTime(clauseValue)
	return uok && cok && fn(u, c)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asTime accepts RFC3339 strings or numeric milliseconds since epoch.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		if ms, ok := asFloat(v); ok {
			return time.UnixMilli(int64(ms)), true
		}
	}
	return time.Time{}, false
}
