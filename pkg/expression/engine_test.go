package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBool(t *testing.T) {
	engine := NewEngine()
	data := map[string]interface{}{"offer_amount": 120000}
	env := map[string]interface{}{
		"result":         "Pass",
		"score":          82.5,
		"status":         "completed",
		"execution_data": data,
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"empty condition", "", true},
		{"score threshold met", "score >= 70", true},
		{"score threshold missed", "score >= 90", false},
		{"case folded result", "lower(result) == 'pass'", true},
		{"score band", "between(score, 80, 90)", true},
		{"score band missed", "between(score, 0, 60)", false},
		{"data key present", "has(execution_data, 'offer_amount')", true},
		{"data key absent", "has(execution_data, 'signing_bonus')", false},
		{"undefined variable", "missing == nil", true},
		{"combined", "status == 'completed' && score > 80", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.EvaluateBool(tt.condition, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_RejectsBrokenSyntax(t *testing.T) {
	engine := NewEngine()
	assert.NoError(t, engine.Validate("score > 50"))
	assert.Error(t, engine.Validate("score >"))
	assert.Error(t, engine.Validate("'not a bool'"))
}
