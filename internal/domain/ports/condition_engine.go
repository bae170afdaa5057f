package ports

import "github.com/recruitflow/backend/internal/domain"

// ConditionEngine evaluates and validates connection conditions.
type ConditionEngine interface {
	domain.ConditionEvaluator
	Validate(condition string) error
}
