// Package expression evaluates connection conditions written in expr-lang.
// A condition sees the finished execution as result, score, status and
// execution_data, and must produce a bool.
package expression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine caches compiled conditions by source text. Safe for concurrent use.
type Engine struct {
	programs sync.Map // string -> *vm.Program
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{}
}

// builtins are the helpers available to every condition:
//
//	lower(result) == "pass"
//	between(score, 60, 80)
//	has(execution_data, "offer_amount")
var builtins = []expr.Option{
	expr.Function("lower", func(params ...interface{}) (interface{}, error) {
		s, ok := params[0].(string)
		if !ok {
			return "", nil
		}
		return strings.ToLower(s), nil
	}, new(func(interface{}) string)),
	expr.Function("between", func(params ...interface{}) (interface{}, error) {
		v, ok := toFloat(params[0])
		if !ok {
			return false, nil
		}
		lo, okLo := toFloat(params[1])
		hi, okHi := toFloat(params[2])
		if !okLo || !okHi {
			return nil, fmt.Errorf("between bounds must be numbers")
		}
		return v >= lo && v <= hi, nil
	}, new(func(interface{}, interface{}, interface{}) bool)),
	expr.Function("has", func(params ...interface{}) (interface{}, error) {
		m, ok := params[0].(map[string]interface{})
		if !ok {
			return false, nil
		}
		key, _ := params[1].(string)
		_, found := m[key]
		return found, nil
	}, new(func(interface{}, string) bool)),
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	}
	return 0, false
}

// EvaluateBool runs a condition against env. An empty condition is always true.
func (e *Engine) EvaluateBool(condition string, env map[string]interface{}) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}
	program, err := e.compile(condition)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", condition, err)
	}
	v, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, expected bool", condition, out)
	}
	return v, nil
}

// Validate checks that a condition compiles to a bool.
func (e *Engine) Validate(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return nil
	}
	_, err := e.compile(condition)
	return err
}

func (e *Engine) compile(condition string) (*vm.Program, error) {
	if p, ok := e.programs.Load(condition); ok {
		return p.(*vm.Program), nil
	}
	opts := append([]expr.Option{expr.AllowUndefinedVariables(), expr.AsBool()}, builtins...)
	program, err := expr.Compile(condition, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", condition, err)
	}
	// A concurrent compile of the same text may win; both programs are equivalent.
	actual, _ := e.programs.LoadOrStore(condition, program)
	return actual.(*vm.Program), nil
}
