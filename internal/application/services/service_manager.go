package services

import (
	"fmt"
	"log/slog"

	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/pkg/expression"
)

// Options tunes the wiring of a ServiceManager
type Options struct {
	Logger *slog.Logger
	// Clock overrides wall time, mostly for tests.
	Clock Clock
	// Dispatcher receives executions of delegated node types. Nil disables dispatch.
	Dispatcher      ports.TaskDispatcher
	OverdueSchedule string
}

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	Store      ports.Store
	EventBus   *EventBus
	Conditions *expression.Engine

	Access        *AccessService
	Workflows     *WorkflowService
	Viewers       *ViewerService
	Orchestration *WorkflowOrchestrationService
	Candidates    *CandidateService
	Executions    *ExecutionService
	Sweeper       *OverdueSweeper
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(store ports.Store, opts Options) (*ServiceManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sm := &ServiceManager{Store: store}
	sm.EventBus = NewEventBus(logger)
	sm.Conditions = expression.NewEngine()

	sm.Access = NewAccessService(store.Viewers)
	sm.Workflows = NewWorkflowService(store, sm.Access, sm.Conditions, sm.EventBus, logger)
	sm.Viewers = NewViewerService(store, sm.Access, sm.EventBus, logger)
	sm.Orchestration = NewWorkflowOrchestrationService(store, sm.Access, sm.Conditions, opts.Dispatcher, sm.EventBus, logger)
	sm.Candidates = NewCandidateService(store, sm.Access, sm.Orchestration, sm.EventBus, logger)
	sm.Executions = NewExecutionService(store, sm.Access, sm.Orchestration, sm.EventBus, logger)

	sweeper, err := NewOverdueSweeper(store.Executions, sm.EventBus, opts.OverdueSchedule, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create overdue sweeper: %w", err)
	}
	sm.Sweeper = sweeper

	if opts.Clock != nil {
		sm.Workflows.now = opts.Clock
		sm.Viewers.now = opts.Clock
		sm.Orchestration.now = opts.Clock
		sm.Candidates.now = opts.Clock
		sm.Executions.now = opts.Clock
		sm.Sweeper.now = opts.Clock
	}
	return sm, nil
}
