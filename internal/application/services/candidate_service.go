package services

import (
	"context"
	"log/slog"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
	"github.com/recruitflow/backend/pkg/utils"
)

// ProgressStatusNotReached marks nodes the run has no execution for yet.
const ProgressStatusNotReached = "not_reached"

// CandidateService manages candidate runs outside of graph traversal
type CandidateService struct {
	base
	access *AccessService
	orch   *WorkflowOrchestrationService
}

// NewCandidateService creates a new CandidateService
func NewCandidateService(store ports.Store, access *AccessService, orch *WorkflowOrchestrationService, publisher ports.EventPublisher, logger *slog.Logger) *CandidateService {
	return &CandidateService{base: newBase(store, publisher, logger), access: access, orch: orch}
}

// CreateCandidateInput represents the input for putting a candidate on a workflow
type CreateCandidateInput struct {
	CandidateID         string `json:"candidate_id"`
	WorkflowID          string `json:"workflow_id"`
	AssignedRecruiterID string `json:"assigned_recruiter_id"`
	// Start begins the run on the start node right away.
	Start bool `json:"start"`
}

// CompleteCandidateInput closes a run by hand
type CompleteCandidateInput struct {
	FinalResult string   `json:"final_result"`
	Score       *float64 `json:"score"`
	Notes       *string  `json:"notes"`
}

// CandidateProgress is a run with per-node progress
type CandidateProgress struct {
	CandidateWorkflowID string                 `json:"candidate_workflow_id"`
	WorkflowID          string                 `json:"workflow_id"`
	Status              domain.CandidateStatus `json:"status"`
	CurrentNodeID       *string                `json:"current_node_id,omitempty"`
	ProgressPercentage  float64                `json:"progress_percentage"`
	TotalNodes          int                    `json:"total_nodes"`
	CompletedNodes      int                    `json:"completed_nodes"`
	Nodes               []NodeProgress         `json:"nodes"`
}

// NodeProgress is one node's standing within a run
type NodeProgress struct {
	NodeID          string          `json:"node_id"`
	Title           string          `json:"title"`
	Type            domain.NodeType `json:"type"`
	SequenceOrder   int             `json:"sequence_order"`
	Status          string          `json:"status"` // execution status or not_reached
	Current         bool            `json:"current"`
	ExecutionID     string          `json:"execution_id,omitempty"`
	Result          *string         `json:"result,omitempty"`
	Score           *float64        `json:"score,omitempty"`
	Overdue         bool            `json:"overdue"`
	DurationMinutes *float64        `json:"duration_minutes,omitempty"`
}

// Create puts a candidate on an active workflow
func (s *CandidateService) Create(ctx context.Context, actor *domain.Actor, in CreateCandidateInput) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		w, err := s.store.Workflows.Get(ctx, in.WorkflowID)
		if err != nil {
			return err
		}
		if err := s.access.Authorize(ctx, actor, w, domain.PermManageAssignments); err != nil {
			return err
		}
		if !w.IsActive() {
			status := string(w.Status)
			if w.IsDeleted {
				status = "deleted"
			}
			return appErrors.NewInvalidStateError("workflow", w.ID, status, "create candidate run")
		}
		cw, err := domain.NewCandidateWorkflow(utils.GenerateID(), in.CandidateID, w.ID, s.now())
		if err != nil {
			return err
		}
		if in.AssignedRecruiterID != "" {
			if err := cw.AssignRecruiter(in.AssignedRecruiterID, s.now()); err != nil {
				return err
			}
		}
		if err := s.store.Candidates.Create(ctx, cw); err != nil {
			return err
		}
		s.logger.Info("candidate workflow created", "candidate_workflow_id", cw.ID, "candidate_id", cw.CandidateID, "workflow_id", w.ID)

		if in.Start {
			graph, err := s.loadGraph(ctx, w.ID)
			if err != nil {
				return err
			}
			if err := s.orch.startRun(ctx, fx, cw, graph); err != nil {
				return err
			}
		}
		out = cw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one run
func (s *CandidateService) Get(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error) {
	cw, _, err := loadRun(ctx, s.store, s.access, actor, id, domain.PermViewCandidates)
	return cw, err
}

// ListByWorkflow returns every run of a workflow
func (s *CandidateService) ListByWorkflow(ctx context.Context, actor *domain.Actor, workflowID string) ([]*domain.CandidateWorkflow, error) {
	w, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, actor, w, domain.PermViewCandidates); err != nil {
		return nil, err
	}
	return s.store.Candidates.ListByWorkflow(ctx, workflowID)
}

// Delete removes a run together with its executions. Runs that are in
// progress or on hold must be withdrawn or failed first.
func (s *CandidateService) Delete(ctx context.Context, actor *domain.Actor, id string) error {
	return s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		cw, _, err := loadRun(ctx, s.store, s.access, actor, id, domain.PermManageAssignments)
		if err != nil {
			return err
		}
		if cw.Status == domain.CandidateInProgress || cw.Status == domain.CandidateOnHold {
			return appErrors.NewInvalidStateError("candidate workflow", cw.ID, string(cw.Status), "delete")
		}
		removed, err := s.store.Executions.DeleteByCandidateWorkflow(ctx, cw.ID)
		if err != nil {
			return err
		}
		if err := s.store.Candidates.Delete(ctx, cw.ID); err != nil {
			return err
		}
		s.logger.Info("candidate workflow deleted", "candidate_workflow_id", cw.ID, "executions", removed, "actor", actor.UserID)
		return nil
	})
}

// PutOnHold pauses an in-progress run
func (s *CandidateService) PutOnHold(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error) {
	return s.transition(ctx, actor, id, domain.PermExecuteNodes, func(_ context.Context, cw *domain.CandidateWorkflow, _ *effects) error {
		return cw.PutOnHold(s.now())
	})
}

// Resume continues a run that is on hold. When the current node's execution
// finished during the hold the run moves past it right away.
func (s *CandidateService) Resume(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		cw, _, err := loadRun(ctx, s.store, s.access, actor, id, domain.PermExecuteNodes)
		if err != nil {
			return err
		}
		from := cw.Status
		if err := cw.Resume(s.now()); err != nil {
			return err
		}
		if err := s.store.Candidates.Update(ctx, cw); err != nil {
			return err
		}
		s.logger.Info("candidate workflow transitioned", "candidate_workflow_id", cw.ID, "from", from, "to", cw.Status, "actor", actor.UserID)
		out = cw
		return s.orch.catchUp(ctx, fx, cw)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw records that the candidate left the pipeline. Unfinished
// executions are skipped.
func (s *CandidateService) Withdraw(ctx context.Context, actor *domain.Actor, id, reason string) (*domain.CandidateWorkflow, error) {
	return s.transition(ctx, actor, id, domain.PermExecuteNodes, func(ctx context.Context, cw *domain.CandidateWorkflow, fx *effects) error {
		if err := cw.Withdraw(reason, s.now()); err != nil {
			return err
		}
		fx.publish(events.CandidateWithdrawn, candidatePayload(cw))
		return s.orch.closeOpenExecutions(ctx, fx, cw, actor.UserID, reason, "")
	})
}

// Fail ends the run unsuccessfully, pinned to the current node when there
// is one. The current node's execution fails with it.
func (s *CandidateService) Fail(ctx context.Context, actor *domain.Actor, id, reason string) (*domain.CandidateWorkflow, error) {
	return s.transition(ctx, actor, id, domain.PermRecordResults, func(ctx context.Context, cw *domain.CandidateWorkflow, fx *effects) error {
		nodeID := ""
		if cw.CurrentNodeID != nil {
			nodeID = *cw.CurrentNodeID
		}
		if err := cw.Fail(reason, nodeID, s.now()); err != nil {
			return err
		}
		fx.publish(events.CandidateFailed, candidatePayload(cw))
		return s.orch.closeOpenExecutions(ctx, fx, cw, actor.UserID, reason, nodeID)
	})
}

// Complete closes an in-progress run with an explicit result
func (s *CandidateService) Complete(ctx context.Context, actor *domain.Actor, id string, in CompleteCandidateInput) (*domain.CandidateWorkflow, error) {
	if in.FinalResult == "" {
		return nil, appErrors.NewValidationError("final_result", "final result is required")
	}
	return s.transition(ctx, actor, id, domain.PermRecordResults, func(ctx context.Context, cw *domain.CandidateWorkflow, fx *effects) error {
		if err := cw.Complete(in.FinalResult, in.Score, in.Notes, s.now()); err != nil {
			return err
		}
		fx.publish(events.CandidateCompleted, candidatePayload(cw))
		return s.orch.closeOpenExecutions(ctx, fx, cw, actor.UserID, "", "")
	})
}

// AssignRecruiter sets the responsible recruiter
func (s *CandidateService) AssignRecruiter(ctx context.Context, actor *domain.Actor, id, recruiterID string) (*domain.CandidateWorkflow, error) {
	return s.transition(ctx, actor, id, domain.PermManageAssignments, func(_ context.Context, cw *domain.CandidateWorkflow, _ *effects) error {
		return cw.AssignRecruiter(recruiterID, s.now())
	})
}

// UpdateNotes replaces the run's notes
func (s *CandidateService) UpdateNotes(ctx context.Context, actor *domain.Actor, id, notes string) (*domain.CandidateWorkflow, error) {
	return s.transition(ctx, actor, id, domain.PermAddNotes, func(_ context.Context, cw *domain.CandidateWorkflow, _ *effects) error {
		cw.SetNotes(notes, s.now())
		return nil
	})
}

// Progress reports per-node progress of a run
func (s *CandidateService) Progress(ctx context.Context, actor *domain.Actor, id string) (*CandidateProgress, error) {
	cw, _, err := loadRun(ctx, s.store, s.access, actor, id, domain.PermViewCandidates)
	if err != nil {
		return nil, err
	}
	graph, err := s.loadGraph(ctx, cw.WorkflowID)
	if err != nil {
		return nil, err
	}
	execs, err := s.store.Executions.ListByCandidateWorkflow(ctx, cw.ID)
	if err != nil {
		return nil, err
	}
	byNode := make(map[string]*domain.NodeExecution, len(execs))
	for _, e := range execs {
		byNode[e.NodeID] = e
	}

	now := s.now()
	progress := &CandidateProgress{
		CandidateWorkflowID: cw.ID,
		WorkflowID:          cw.WorkflowID,
		Status:              cw.Status,
		CurrentNodeID:       cw.CurrentNodeID,
		ProgressPercentage:  domain.ProgressPercentage(execs, graph.Len()),
		TotalNodes:          graph.Len(),
		Nodes:               make([]NodeProgress, 0, graph.Len()),
	}
	for _, n := range graph.Nodes() {
		np := NodeProgress{
			NodeID:        n.ID,
			Title:         n.Title,
			Type:          n.Type,
			SequenceOrder: n.SequenceOrder,
			Status:        ProgressStatusNotReached,
		}
		if e, ok := byNode[n.ID]; ok {
			np.Status = string(e.Status)
			np.ExecutionID = e.ID
			np.Result = e.Result
			np.Score = e.Score
			np.Overdue = e.IsOverdue(now)
			np.DurationMinutes = e.DurationMinutes()
			if e.Status == domain.ExecutionCompleted {
				progress.CompletedNodes++
			}
		}
		np.Current = cw.CurrentNodeID != nil && *cw.CurrentNodeID == n.ID
		progress.Nodes = append(progress.Nodes, np)
	}
	return progress, nil
}

func (s *CandidateService) transition(ctx context.Context, actor *domain.Actor, id string, perm domain.Permission, apply func(ctx context.Context, cw *domain.CandidateWorkflow, fx *effects) error) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		cw, _, err := loadRun(ctx, s.store, s.access, actor, id, perm)
		if err != nil {
			return err
		}
		from := cw.Status
		if err := apply(ctx, cw, fx); err != nil {
			return err
		}
		if err := s.store.Candidates.Update(ctx, cw); err != nil {
			return err
		}
		if from != cw.Status {
			s.logger.Info("candidate workflow transitioned", "candidate_workflow_id", cw.ID, "from", from, "to", cw.Status, "actor", actor.UserID)
		}
		out = cw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
