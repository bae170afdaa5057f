package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
	"github.com/recruitflow/backend/pkg/utils"
)

// systemActorID is recorded as completed_by for engine-driven transitions.
const systemActorID = "system"

// WorkflowOrchestrationService moves candidate runs through their workflow
// graph: it creates executions as a run advances, hands delegated nodes to
// external subsystems and absorbs their completion callbacks.
type WorkflowOrchestrationService struct {
	base
	access     *AccessService
	conditions domain.ConditionEvaluator
	dispatcher ports.TaskDispatcher
}

// NewWorkflowOrchestrationService creates a new WorkflowOrchestrationService
func NewWorkflowOrchestrationService(store ports.Store, access *AccessService, conditions domain.ConditionEvaluator, dispatcher ports.TaskDispatcher, publisher ports.EventPublisher, logger *slog.Logger) *WorkflowOrchestrationService {
	return &WorkflowOrchestrationService{
		base:       newBase(store, publisher, logger),
		access:     access,
		conditions: conditions,
		dispatcher: dispatcher,
	}
}

// ExternalOutcome is what an interview, exam or to-do subsystem reports
// when the work it was handed is finished.
type ExternalOutcome struct {
	// Status is completed (default), failed or skipped.
	Status        domain.ExecutionStatus `json:"status"`
	Result        string                 `json:"result"`
	Score         *float64               `json:"score"`
	Feedback      *string                `json:"feedback"`
	ExecutionData domain.Payload         `json:"execution_data"`
	CompletedBy   string                 `json:"completed_by"`
	Reason        string                 `json:"reason"`
}

// CompletionReceipt describes the state after a completion callback.
// Noop is set when the execution had already reached a terminal status.
type CompletionReceipt struct {
	ExecutionID         string                 `json:"execution_id"`
	Status              domain.ExecutionStatus `json:"status"`
	Noop                bool                   `json:"noop"`
	CandidateWorkflowID string                 `json:"candidate_workflow_id"`
	CandidateStatus     domain.CandidateStatus `json:"candidate_status"`
	CurrentNodeID       *string                `json:"current_node_id"`
}

// StartCandidate puts a not-started run on the workflow's start node
func (s *WorkflowOrchestrationService) StartCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		cw, w, err := s.loadRun(ctx, actor, candidateWorkflowID, domain.PermExecuteNodes)
		if err != nil {
			return err
		}
		if !w.IsActive() {
			return appErrors.NewInvalidStateError("workflow", w.ID, string(w.Status), string(domain.CandidateStart))
		}
		graph, err := s.loadGraph(ctx, w.ID)
		if err != nil {
			return err
		}
		if err := s.startRun(ctx, fx, cw, graph); err != nil {
			return err
		}
		out = cw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceCandidate moves a run past its current node once that node's
// execution has finished.
func (s *WorkflowOrchestrationService) AdvanceCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		cw, _, err := s.loadRun(ctx, actor, candidateWorkflowID, domain.PermExecuteNodes)
		if err != nil {
			return err
		}
		if cw.CurrentNodeID == nil {
			return appErrors.NewInvalidStateError("candidate workflow", cw.ID, string(cw.Status), string(domain.CandidateAdvance))
		}
		exec, err := s.store.Executions.FindByNode(ctx, cw.ID, *cw.CurrentNodeID)
		if err != nil {
			return err
		}
		if exec == nil {
			return appErrors.NewNotFoundError("node execution", cw.ID+"/"+*cw.CurrentNodeID)
		}
		if !exec.IsTerminal() {
			return appErrors.NewInvalidStateError("node execution", exec.ID, string(exec.Status), string(domain.CandidateAdvance))
		}
		graph, err := s.loadGraph(ctx, cw.WorkflowID)
		if err != nil {
			return err
		}
		if err := s.advanceFrom(ctx, fx, cw, graph, exec); err != nil {
			return err
		}
		out = cw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OnExternalCompletion is the re-entry point for external subsystems.
// Redelivery for an execution that already finished is absorbed and
// reported with Noop set.
func (s *WorkflowOrchestrationService) OnExternalCompletion(ctx context.Context, executionID string, outcome ExternalOutcome) (*CompletionReceipt, error) {
	receipt, err := s.applyExternalCompletion(ctx, executionID, outcome)
	if appErrors.IsStale(err) {
		s.logger.Info("retrying external completion after concurrent update", "execution_id", executionID)
		receipt, err = s.applyExternalCompletion(ctx, executionID, outcome)
	}
	return receipt, err
}

func (s *WorkflowOrchestrationService) applyExternalCompletion(ctx context.Context, executionID string, outcome ExternalOutcome) (*CompletionReceipt, error) {
	status := outcome.Status
	if status == "" {
		status = domain.ExecutionCompleted
	}
	if status != domain.ExecutionCompleted && status != domain.ExecutionFailed && status != domain.ExecutionSkipped {
		return nil, appErrors.NewValidationError("status", fmt.Sprintf("unsupported completion status '%s'", status))
	}
	completedBy := outcome.CompletedBy
	if completedBy == "" {
		completedBy = systemActorID
	}

	var receipt *CompletionReceipt
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		exec, err := s.store.Executions.Get(ctx, executionID)
		if err != nil {
			return err
		}
		cw, err := s.store.Candidates.Get(ctx, exec.CandidateWorkflowID)
		if err != nil {
			return err
		}
		if exec.IsTerminal() {
			s.logger.Info("external completion already applied", "execution_id", exec.ID, "status", exec.Status, "noop", true)
			receipt = newReceipt(exec, cw, true)
			return nil
		}
		if cw.IsTerminal() {
			s.logger.Info("external completion for a closed run ignored", "execution_id", exec.ID, "candidate_workflow_id", cw.ID, "candidate_status", cw.Status, "noop", true)
			receipt = newReceipt(exec, cw, true)
			return nil
		}
		if status == domain.ExecutionSkipped {
			node, err := s.store.Nodes.Get(ctx, exec.NodeID)
			if err != nil {
				return err
			}
			if err := checkSkippable(node); err != nil {
				return err
			}
		}

		now := s.now()
		from := exec.Status
		switch status {
		case domain.ExecutionCompleted:
			if exec.Status == domain.ExecutionPending || exec.Status == domain.ExecutionScheduled {
				if err := exec.Start("", now); err != nil {
					return err
				}
			}
			result := outcome.Result
			if result == "" {
				result = domain.ResultPass
			}
			err = exec.Complete(result, completedBy, outcome.Score, outcome.Feedback, outcome.ExecutionData, now)
		case domain.ExecutionFailed:
			err = exec.Fail(completedBy, outcome.Reason, now)
		case domain.ExecutionSkipped:
			err = exec.Skip(completedBy, outcome.Reason, now)
		}
		if err != nil {
			return err
		}
		if err := s.store.Executions.Update(ctx, exec); err != nil {
			return err
		}
		s.logExecution(exec, from)
		fx.publish(executionEvent(exec.Status), executionPayload(exec))

		if cw.Status == domain.CandidateInProgress && cw.CurrentNodeID != nil && *cw.CurrentNodeID == exec.NodeID {
			graph, err := s.loadGraph(ctx, cw.WorkflowID)
			if err != nil {
				return err
			}
			if err := s.advanceFrom(ctx, fx, cw, graph, exec); err != nil {
				return err
			}
		}
		receipt = newReceipt(exec, cw, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func newReceipt(exec *domain.NodeExecution, cw *domain.CandidateWorkflow, noop bool) *CompletionReceipt {
	return &CompletionReceipt{
		ExecutionID:         exec.ID,
		Status:              exec.Status,
		Noop:                noop,
		CandidateWorkflowID: cw.ID,
		CandidateStatus:     cw.Status,
		CurrentNodeID:       cw.CurrentNodeID,
	}
}

// startRun begins cw on the graph's start node.
func (s *WorkflowOrchestrationService) startRun(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, graph *domain.NodeGraph) error {
	first := graph.StartNode()
	if first == nil {
		return appErrors.NewValidationError("nodes", fmt.Sprintf("workflow '%s' has no nodes", cw.WorkflowID))
	}
	from := cw.Status
	if err := cw.Start(first.ID, s.now()); err != nil {
		return err
	}
	if err := s.store.Candidates.Update(ctx, cw); err != nil {
		return err
	}
	s.logRun(cw, from)
	fx.publish(events.CandidateStarted, candidatePayload(cw))

	exec, err := s.enterNode(ctx, fx, cw, first)
	if err != nil {
		return err
	}
	return s.autoAdvance(ctx, fx, cw, graph, first, exec)
}

// advanceFrom takes the run past a finished execution of its current node:
// a failed required node fails the run, otherwise the live outgoing edge is
// followed, and with no edge left the run completes.
func (s *WorkflowOrchestrationService) advanceFrom(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, graph *domain.NodeGraph, exec *domain.NodeExecution) error {
	node, ok := graph.Node(exec.NodeID)
	if !ok {
		return appErrors.NewNotFoundError("node", exec.NodeID)
	}
	if exec.Status == domain.ExecutionFailed && node.IsRequired {
		return s.failRun(ctx, fx, cw, fmt.Sprintf("required node '%s' failed", node.Title), node.ID)
	}

	next, err := graph.Successor(node.ID, exec.OutcomeEnv(), s.conditions)
	if err != nil {
		return err
	}
	if next == nil {
		return s.completeRun(ctx, fx, cw)
	}

	from := cw.Status
	if err := cw.AdvanceTo(next.ID, s.now()); err != nil {
		return err
	}
	if err := s.store.Candidates.Update(ctx, cw); err != nil {
		return err
	}
	s.logger.Info("candidate workflow advanced", "candidate_workflow_id", cw.ID, "from_node", node.ID, "to_node", next.ID, "status", from)

	nextExec, err := s.enterNode(ctx, fx, cw, next)
	if err != nil {
		return err
	}
	return s.autoAdvance(ctx, fx, cw, graph, next, nextExec)
}

// autoAdvance skips straight through a node that is flagged both
// auto-advance and skippable. The graph is acyclic so recursion depth is
// bounded by the node count.
func (s *WorkflowOrchestrationService) autoAdvance(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, graph *domain.NodeGraph, node *domain.NodeDefinition, exec *domain.NodeExecution) error {
	if !node.AutoAdvance || !node.CanSkip || exec.IsTerminal() {
		return nil
	}
	from := exec.Status
	if err := exec.Skip(systemActorID, "auto-advanced", s.now()); err != nil {
		return err
	}
	if err := s.store.Executions.Update(ctx, exec); err != nil {
		return err
	}
	s.logExecution(exec, from)
	fx.publish(events.ExecutionSkipped, executionPayload(exec))
	return s.advanceFrom(ctx, fx, cw, graph, exec)
}

// enterNode returns the run's execution for node, creating it if absent.
// New executions of delegated node types are dispatched after commit.
func (s *WorkflowOrchestrationService) enterNode(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, node *domain.NodeDefinition) (*domain.NodeExecution, error) {
	existing, err := s.store.Executions.FindByNode(ctx, cw.ID, node.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	exec := domain.NewNodeExecution(utils.GenerateID(), cw.ID, node.ID, s.now())
	exec.DueDate = dueDate(node, exec.CreatedAt)
	if err := s.store.Executions.Create(ctx, exec); err != nil {
		return nil, err
	}
	fx.publish(events.ExecutionCreated, executionPayload(exec))

	if s.dispatcher != nil && node.Type.DelegatesExternally() {
		req := ports.TaskRequest{
			ExecutionID:         exec.ID,
			CandidateWorkflowID: cw.ID,
			CandidateID:         cw.CandidateID,
			WorkflowID:          cw.WorkflowID,
			NodeID:              node.ID,
			NodeType:            node.Type,
			Title:               node.Title,
			Config:              node.Config.Clone(),
			DueDate:             exec.DueDate,
		}
		fx.then(func(ctx context.Context) { s.dispatch(ctx, req) })
	}
	return exec, nil
}

// dueDate derives a due date from the node's estimated duration.
func dueDate(node *domain.NodeDefinition, from time.Time) *time.Time {
	if node.EstimatedDurationMinutes == nil || *node.EstimatedDurationMinutes <= 0 {
		return nil
	}
	due := from.Add(time.Duration(*node.EstimatedDurationMinutes) * time.Minute)
	return &due
}

// dispatch hands an execution to the external subsystem and stores the
// returned linkage. Failures are logged; the execution stays as created.
func (s *WorkflowOrchestrationService) dispatch(ctx context.Context, req ports.TaskRequest) {
	linkage, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		s.logger.Warn("task dispatch failed", "execution_id", req.ExecutionID, "node_type", req.NodeType, "error", err)
		return
	}
	if linkage == nil || linkage.ID == "" {
		return
	}
	err = s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		exec, err := s.store.Executions.Get(ctx, req.ExecutionID)
		if err != nil {
			return err
		}
		switch linkage.Kind {
		case ports.LinkageInterview:
			exec.LinkInterview(linkage.ID, s.now())
		default:
			exec.LinkTask(linkage.ID, s.now())
		}
		return s.store.Executions.Update(ctx, exec)
	})
	if err != nil {
		s.logger.Warn("failed to store task linkage", "execution_id", req.ExecutionID, "linkage_id", linkage.ID, "error", err)
		return
	}
	s.logger.Info("task dispatched", "execution_id", req.ExecutionID, "kind", linkage.Kind, "linkage_id", linkage.ID)
}

// completeRun finishes cw. The overall score is the mean of scored
// executions; the final result is the latest completed execution's result.
func (s *WorkflowOrchestrationService) completeRun(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow) error {
	execs, err := s.store.Executions.ListByCandidateWorkflow(ctx, cw.ID)
	if err != nil {
		return err
	}
	finalResult := domain.FinalResultPass
	var latest *domain.NodeExecution
	var sum float64
	var scored int
	for _, e := range execs {
		if e.Score != nil {
			sum += *e.Score
			scored++
		}
		if e.Status != domain.ExecutionCompleted || e.Result == nil || e.CompletedAt == nil {
			continue
		}
		if latest == nil || !e.CompletedAt.Before(*latest.CompletedAt) {
			latest = e
		}
	}
	if latest != nil {
		finalResult = *latest.Result
	}
	var score *float64
	if scored > 0 {
		mean := sum / float64(scored)
		score = &mean
	}

	from := cw.Status
	if err := cw.Complete(finalResult, score, nil, s.now()); err != nil {
		return err
	}
	if err := s.store.Candidates.Update(ctx, cw); err != nil {
		return err
	}
	s.logRun(cw, from)
	fx.publish(events.CandidateCompleted, candidatePayload(cw))
	return nil
}

func (s *WorkflowOrchestrationService) failRun(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, reason, nodeID string) error {
	from := cw.Status
	if err := cw.Fail(reason, nodeID, s.now()); err != nil {
		return err
	}
	if err := s.store.Candidates.Update(ctx, cw); err != nil {
		return err
	}
	s.logRun(cw, from)
	fx.publish(events.CandidateFailed, candidatePayload(cw))
	return s.closeOpenExecutions(ctx, fx, cw, systemActorID, reason, "")
}

// closeOpenExecutions ends every unfinished execution of a run that has
// left in_progress/on_hold for good. The execution on failNodeID is failed,
// the others are skipped.
func (s *WorkflowOrchestrationService) closeOpenExecutions(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow, closedBy, reason, failNodeID string) error {
	execs, err := s.store.Executions.ListByCandidateWorkflow(ctx, cw.ID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "candidate workflow " + string(cw.Status)
	}
	now := s.now()
	for _, exec := range execs {
		if exec.IsTerminal() {
			continue
		}
		from := exec.Status
		if exec.NodeID == failNodeID {
			err = exec.Fail(closedBy, reason, now)
		} else {
			err = exec.Skip(closedBy, reason, now)
		}
		if err != nil {
			return err
		}
		if err := s.store.Executions.Update(ctx, exec); err != nil {
			return err
		}
		s.logExecution(exec, from)
		fx.publish(executionEvent(exec.Status), executionPayload(exec))
	}
	return nil
}

// catchUp moves an in-progress run past its current node when that node's
// execution already finished, as happens when a callback lands while the
// run is on hold.
func (s *WorkflowOrchestrationService) catchUp(ctx context.Context, fx *effects, cw *domain.CandidateWorkflow) error {
	if cw.Status != domain.CandidateInProgress || cw.CurrentNodeID == nil {
		return nil
	}
	exec, err := s.store.Executions.FindByNode(ctx, cw.ID, *cw.CurrentNodeID)
	if err != nil {
		return err
	}
	if exec == nil || !exec.IsTerminal() {
		return nil
	}
	graph, err := s.loadGraph(ctx, cw.WorkflowID)
	if err != nil {
		return err
	}
	return s.advanceFrom(ctx, fx, cw, graph, exec)
}

// loadRun fetches a run and its workflow and authorizes perm.
func (s *WorkflowOrchestrationService) loadRun(ctx context.Context, actor *domain.Actor, candidateWorkflowID string, perm domain.Permission) (*domain.CandidateWorkflow, *domain.Workflow, error) {
	return loadRun(ctx, s.store, s.access, actor, candidateWorkflowID, perm)
}

func loadRun(ctx context.Context, store ports.Store, access *AccessService, actor *domain.Actor, candidateWorkflowID string, perm domain.Permission) (*domain.CandidateWorkflow, *domain.Workflow, error) {
	cw, err := store.Candidates.Get(ctx, candidateWorkflowID)
	if err != nil {
		return nil, nil, err
	}
	w, err := store.Workflows.Get(ctx, cw.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	if err := access.Authorize(ctx, actor, w, perm); err != nil {
		return nil, nil, err
	}
	return cw, w, nil
}

func (s *WorkflowOrchestrationService) logRun(cw *domain.CandidateWorkflow, from domain.CandidateStatus) {
	s.logger.Info("candidate workflow transitioned", "candidate_workflow_id", cw.ID, "from", from, "to", cw.Status)
}

func (s *WorkflowOrchestrationService) logExecution(exec *domain.NodeExecution, from domain.ExecutionStatus) {
	s.logger.Info("node execution transitioned", "execution_id", exec.ID, "node_id", exec.NodeID, "from", from, "to", exec.Status)
}

func executionEvent(status domain.ExecutionStatus) events.EventType {
	switch status {
	case domain.ExecutionFailed:
		return events.ExecutionFailed
	case domain.ExecutionSkipped:
		return events.ExecutionSkipped
	default:
		return events.ExecutionCompleted
	}
}
