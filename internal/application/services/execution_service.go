package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// advanceMode says whether a transition may move the run past the node.
type advanceMode int

const (
	advanceNever advanceMode = iota
	// advanceIfAuto advances only nodes flagged auto-advance.
	advanceIfAuto
	advanceAlways
)

// ExecutionService applies user-driven transitions to node executions
type ExecutionService struct {
	base
	access *AccessService
	orch   *WorkflowOrchestrationService
}

// NewExecutionService creates a new ExecutionService
func NewExecutionService(store ports.Store, access *AccessService, orch *WorkflowOrchestrationService, publisher ports.EventPublisher, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{base: newBase(store, publisher, logger), access: access, orch: orch}
}

// ExecutionView is an execution with its derived fields
type ExecutionView struct {
	*domain.NodeExecution
	Overdue          bool                         `json:"overdue"`
	DurationMinutes  *float64                     `json:"duration_minutes,omitempty"`
	ValidTransitions []domain.ExecutionTransition `json:"valid_transitions"`
}

// CompleteExecutionInput records a finished node
type CompleteExecutionInput struct {
	Result        string         `json:"result"`
	Score         *float64       `json:"score"`
	Feedback      *string        `json:"feedback"`
	ExecutionData domain.Payload `json:"execution_data"`
}

// OverrideResultInput replaces the result of a completed execution
type OverrideResultInput struct {
	Result string   `json:"result"`
	Score  *float64 `json:"score"`
}

type applyFunc func(ctx context.Context, exec *domain.NodeExecution, fx *effects) error

// Get returns one execution with overdue and duration filled in
func (s *ExecutionService) Get(ctx context.Context, actor *domain.Actor, id string) (*ExecutionView, error) {
	exec, _, err := s.load(ctx, actor, id, domain.PermViewResults)
	if err != nil {
		return nil, err
	}
	return s.view(exec), nil
}

// ListByCandidate returns the executions of one run
func (s *ExecutionService) ListByCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) ([]*ExecutionView, error) {
	if _, _, err := loadRun(ctx, s.store, s.access, actor, candidateWorkflowID, domain.PermViewResults); err != nil {
		return nil, err
	}
	execs, err := s.store.Executions.ListByCandidateWorkflow(ctx, candidateWorkflowID)
	if err != nil {
		return nil, err
	}
	out := make([]*ExecutionView, 0, len(execs))
	for _, e := range execs {
		out = append(out, s.view(e))
	}
	return out, nil
}

// Schedule moves a pending execution to scheduled
func (s *ExecutionService) Schedule(ctx context.Context, actor *domain.Actor, id string, dueDate *time.Time) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermScheduleInterviews, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		return exec.Schedule(dueDate, s.now())
	})
}

// Start begins work on an execution
func (s *ExecutionService) Start(ctx context.Context, actor *domain.Actor, id, assignedTo string) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermExecuteNodes, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		return exec.Start(assignedTo, s.now())
	})
}

// AwaitInput parks an in-progress execution until input arrives
func (s *ExecutionService) AwaitInput(ctx context.Context, actor *domain.Actor, id string) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermExecuteNodes, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		return exec.AwaitInput(s.now())
	})
}

// Complete records the outcome of an execution. The run advances on its
// own only when the node is flagged auto-advance.
func (s *ExecutionService) Complete(ctx context.Context, actor *domain.Actor, id string, in CompleteExecutionInput) (*ExecutionView, error) {
	if in.Result == "" {
		return nil, appErrors.NewValidationError("result", "result is required")
	}
	return s.transition(ctx, actor, id, domain.PermRecordResults, advanceIfAuto, func(_ context.Context, exec *domain.NodeExecution, fx *effects) error {
		if err := exec.Complete(in.Result, actor.UserID, in.Score, in.Feedback, in.ExecutionData, s.now()); err != nil {
			return err
		}
		fx.publish(events.ExecutionCompleted, executionPayload(exec))
		return nil
	})
}

// Fail records a failed execution. A failed required node fails the run.
func (s *ExecutionService) Fail(ctx context.Context, actor *domain.Actor, id, reason string) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermRecordResults, advanceAlways, func(_ context.Context, exec *domain.NodeExecution, fx *effects) error {
		if err := exec.Fail(actor.UserID, reason, s.now()); err != nil {
			return err
		}
		fx.publish(events.ExecutionFailed, executionPayload(exec))
		return nil
	})
}

// Skip passes over an execution whose node allows it
func (s *ExecutionService) Skip(ctx context.Context, actor *domain.Actor, id, reason string) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermExecuteNodes, advanceAlways, func(ctx context.Context, exec *domain.NodeExecution, fx *effects) error {
		node, err := s.store.Nodes.Get(ctx, exec.NodeID)
		if err != nil {
			return err
		}
		if err := checkSkippable(node); err != nil {
			return err
		}
		if err := exec.Skip(actor.UserID, reason, s.now()); err != nil {
			return err
		}
		fx.publish(events.ExecutionSkipped, executionPayload(exec))
		return nil
	})
}

func checkSkippable(node *domain.NodeDefinition) error {
	if !node.IsSkipEligible() {
		return appErrors.NewValidationError("node_id", "node '"+node.Title+"' is required and cannot be skipped")
	}
	return nil
}

// LinkInterview stores the interview subsystem's id on the execution
func (s *ExecutionService) LinkInterview(ctx context.Context, actor *domain.Actor, id, interviewID string) (*ExecutionView, error) {
	return s.link(ctx, actor, id, func(exec *domain.NodeExecution) { exec.LinkInterview(interviewID, s.now()) })
}

// LinkTask stores the task subsystem's id on the execution
func (s *ExecutionService) LinkTask(ctx context.Context, actor *domain.Actor, id, taskID string) (*ExecutionView, error) {
	return s.link(ctx, actor, id, func(exec *domain.NodeExecution) { exec.LinkTask(taskID, s.now()) })
}

// AddReview records a reviewer without changing status
func (s *ExecutionService) AddReview(ctx context.Context, actor *domain.Actor, id string, notes *string) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermRecordResults, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		exec.AddReview(actor.UserID, notes, s.now())
		return nil
	})
}

// OverrideResult replaces the result of a completed execution
func (s *ExecutionService) OverrideResult(ctx context.Context, actor *domain.Actor, id string, in OverrideResultInput) (*ExecutionView, error) {
	return s.transition(ctx, actor, id, domain.PermOverrideResults, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		return exec.OverrideResult(in.Result, in.Score, actor.UserID, s.now())
	})
}

// link is open to service actors as well as schedule_interviews holders.
func (s *ExecutionService) link(ctx context.Context, actor *domain.Actor, id string, set func(exec *domain.NodeExecution)) (*ExecutionView, error) {
	perm := domain.PermScheduleInterviews
	if actor.IsService() {
		perm = ""
	}
	return s.transition(ctx, actor, id, perm, advanceNever, func(_ context.Context, exec *domain.NodeExecution, _ *effects) error {
		set(exec)
		return nil
	})
}

// transition loads and authorizes the execution, applies the change, saves
// it and then lets the run move on per mode. An empty perm is reserved for
// service actors.
func (s *ExecutionService) transition(ctx context.Context, actor *domain.Actor, id string, perm domain.Permission, mode advanceMode, apply applyFunc) (*ExecutionView, error) {
	var out *domain.NodeExecution
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		exec, cw, err := s.load(ctx, actor, id, perm)
		if err != nil {
			return err
		}
		from := exec.Status
		if err := apply(ctx, exec, fx); err != nil {
			return err
		}
		if err := s.store.Executions.Update(ctx, exec); err != nil {
			return err
		}
		if from != exec.Status {
			s.logger.Info("node execution transitioned", "execution_id", exec.ID, "node_id", exec.NodeID, "from", from, "to", exec.Status, "actor", actor.UserID)
		}
		out = exec
		return s.maybeAdvance(ctx, fx, exec, cw, mode)
	})
	if err != nil {
		return nil, err
	}
	return s.view(out), nil
}

// maybeAdvance moves the run on when exec is its current node.
func (s *ExecutionService) maybeAdvance(ctx context.Context, fx *effects, exec *domain.NodeExecution, cw *domain.CandidateWorkflow, mode advanceMode) error {
	if mode == advanceNever || !exec.IsTerminal() {
		return nil
	}
	if cw.Status != domain.CandidateInProgress || cw.CurrentNodeID == nil || *cw.CurrentNodeID != exec.NodeID {
		return nil
	}
	graph, err := s.loadGraph(ctx, cw.WorkflowID)
	if err != nil {
		return err
	}
	node, ok := graph.Node(exec.NodeID)
	if !ok {
		return appErrors.NewNotFoundError("node", exec.NodeID)
	}
	if mode == advanceIfAuto && !node.AutoAdvance {
		return nil
	}
	return s.orch.advanceFrom(ctx, fx, cw, graph, exec)
}

func (s *ExecutionService) load(ctx context.Context, actor *domain.Actor, id string, perm domain.Permission) (*domain.NodeExecution, *domain.CandidateWorkflow, error) {
	if actor == nil {
		return nil, nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	exec, err := s.store.Executions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if perm == "" {
		if !actor.IsService() {
			return nil, nil, appErrors.NewUserPermissionError(actor.UserID, "service", "node execution '"+id+"'")
		}
		cw, err := s.store.Candidates.Get(ctx, exec.CandidateWorkflowID)
		if err != nil {
			return nil, nil, err
		}
		return exec, cw, nil
	}
	cw, _, err := loadRun(ctx, s.store, s.access, actor, exec.CandidateWorkflowID, perm)
	if err != nil {
		return nil, nil, err
	}
	return exec, cw, nil
}

func (s *ExecutionService) view(exec *domain.NodeExecution) *ExecutionView {
	return &ExecutionView{
		NodeExecution:    exec,
		Overdue:          exec.IsOverdue(s.now()),
		DurationMinutes:  exec.DurationMinutes(),
		ValidTransitions: domain.ValidExecutionTransitions(exec.Status),
	}
}
