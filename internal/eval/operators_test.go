package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

func TestOperators(t *testing.T) {
	tests := []struct {
		name        string
		op          model.Operator
		userValue   any
		clauseValue any
		expected    bool
	}{
		{"in string", model.OperatorIn, "a", "a", true},
		{"in string mismatch", model.OperatorIn, "a", "b", false},
		{"in number cross type", model.OperatorIn, 99, 99.0, true},
		{"in number mismatch", model.OperatorIn, 99, 100.0, false},
		{"in bool", model.OperatorIn, true, true, true},

		{"startsWith", model.OperatorStartsWith, "hello", "he", true},
		{"startsWith mismatch", model.OperatorStartsWith, "hello", "lo", false},
		{"startsWith non-string", model.OperatorStartsWith, 5, "5", false},
		{"endsWith", model.OperatorEndsWith, "hello", "lo", true},
		{"endsWith mismatch", model.OperatorEndsWith, "hello", "he", false},
		{"contains", model.OperatorContains, "hello", "ell", true},
		{"contains mismatch", model.OperatorContains, "hello", "xyz", false},

		{"matches", model.OperatorMatches, "hello-42", `^hello-\d+$`, true},
		{"matches mismatch", model.OperatorMatches, "hello", `^\d+$`, false},
		{"matches bad pattern", model.OperatorMatches, "hello", `[`, false},

		{"lessThan", model.OperatorLessThan, 1, 2.0, true},
		{"lessThan equal", model.OperatorLessThan, 2.0, 2.0, false},
		{"lessThanOrEqual equal", model.OperatorLessThanOrEqual, 2.0, 2.0, true},
		{"greaterThan", model.OperatorGreaterThan, 3, 2, true},
		{"greaterThan mismatch", model.OperatorGreaterThan, 2, 3, false},
		{"greaterThanOrEqual", model.OperatorGreaterThanOrEqual, 2, 2, true},
		{"numeric op on string", model.OperatorLessThan, "1", 2, false},

		{"before rfc3339", model.OperatorBefore, "2024-01-01T00:00:00Z", "2024-06-01T00:00:00Z", true},
		{"before mismatch", model.OperatorBefore, "2024-06-01T00:00:00Z", "2024-01-01T00:00:00Z", false},
		{"after rfc3339", model.OperatorAfter, "2024-06-01T00:00:00Z", "2024-01-01T00:00:00Z", true},
		{"after millis", model.OperatorAfter, 1700000000000.0, 1600000000000.0, true},
		{"before mixed types", model.OperatorBefore, 1600000000000.0, "2024-01-01T00:00:00Z", true},
		{"before invalid date", model.OperatorBefore, "not a date", "2024-01-01T00:00:00Z", false},

		{"unknown operator", model.Operator("bogus"), "a", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchSingle(tt.op, tt.userValue, tt.clauseValue))
		})
	}
}

func TestMatchAnyMatchesAnyClauseValue(t *testing.T) {
	values := []any{"a", "b", "c"}
	assert.True(t, matchAny(model.OperatorIn, "b", values))
	assert.False(t, matchAny(model.OperatorIn, "d", values))
	assert.False(t, matchAny(model.OperatorIn, "a", nil))
}
