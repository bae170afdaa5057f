package domain

import (
	"strings"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// ExecutionStatus is the status of one node execution
type ExecutionStatus string

const (
	ExecutionPending       ExecutionStatus = "pending"
	ExecutionScheduled     ExecutionStatus = "scheduled"
	ExecutionInProgress    ExecutionStatus = "in_progress"
	ExecutionAwaitingInput ExecutionStatus = "awaiting_input"
	ExecutionCompleted     ExecutionStatus = "completed"
	ExecutionFailed        ExecutionStatus = "failed"
	ExecutionSkipped       ExecutionStatus = "skipped"
)

// ExecutionTransition names an action on a node execution
type ExecutionTransition string

const (
	ExecutionSchedule ExecutionTransition = "schedule"
	ExecutionStart    ExecutionTransition = "start"
	ExecutionAwait    ExecutionTransition = "await input"
	ExecutionComplete ExecutionTransition = "complete"
	ExecutionFail     ExecutionTransition = "fail"
	ExecutionSkip     ExecutionTransition = "skip"
)

// Execution result tags
const (
	ResultPass          = "pass"
	ResultFail          = "fail"
	ResultSkipped       = "skipped"
	ResultPendingReview = "pending_review"
	ResultApproved      = "approved"
	ResultRejected      = "rejected"
)

var nonTerminalExecution = []ExecutionStatus{
	ExecutionPending, ExecutionScheduled, ExecutionInProgress, ExecutionAwaitingInput,
}

// executionStates encodes:
//
//	[pending] --schedule--> [scheduled] --start--> [in_progress] --await input--> [awaiting_input]
//	    └-------------------start------------------------^                              |
//	                      [in_progress] / [awaiting_input] --complete--> [completed] <--┘
//
//	fail and skip are allowed from every non-terminal status.
var executionStates = NewStateMachine[ExecutionStatus, ExecutionTransition]("node execution",
	ExecutionCompleted, ExecutionFailed, ExecutionSkipped).
	Allow(ExecutionSchedule, ExecutionScheduled, ExecutionPending).
	Allow(ExecutionStart, ExecutionInProgress, ExecutionPending, ExecutionScheduled).
	Allow(ExecutionAwait, ExecutionAwaitingInput, ExecutionInProgress).
	Allow(ExecutionComplete, ExecutionCompleted, ExecutionInProgress, ExecutionAwaitingInput).
	Allow(ExecutionFail, ExecutionFailed, nonTerminalExecution...).
	Allow(ExecutionSkip, ExecutionSkipped, nonTerminalExecution...)

// NodeExecution records one candidate's progress through one node.
type NodeExecution struct {
	ID                  string          `json:"id"`
	CandidateWorkflowID string          `json:"candidate_workflow_id"`
	NodeID              string          `json:"node_id"`
	Status              ExecutionStatus `json:"status"`
	Result              *string         `json:"result,omitempty"`
	Score               *float64        `json:"score,omitempty"`
	Feedback            string          `json:"feedback,omitempty"`
	AssessorNotes       string          `json:"assessor_notes,omitempty"`
	ExecutionData       Payload         `json:"execution_data,omitempty"`
	LinkedInterviewID   *string         `json:"linked_interview_id,omitempty"`
	LinkedTaskID        *string         `json:"linked_task_id,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	AssignedTo          *string         `json:"assigned_to,omitempty"`
	CompletedBy         *string         `json:"completed_by,omitempty"`
	ReviewedBy          *string         `json:"reviewed_by,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	LockVersion         int64           `json:"lock_version"`
}

// NewNodeExecution creates a pending execution.
func NewNodeExecution(id, candidateWorkflowID, nodeID string, at time.Time) *NodeExecution {
	return &NodeExecution{
		ID:                  id,
		CandidateWorkflowID: candidateWorkflowID,
		NodeID:              nodeID,
		Status:              ExecutionPending,
		CreatedAt:           at,
		UpdatedAt:           at,
	}
}

func (e *NodeExecution) transition(action ExecutionTransition, at time.Time) error {
	next, err := executionStates.Transition(e.ID, e.Status, action)
	if err != nil {
		return err
	}
	e.Status = next
	e.UpdatedAt = at
	return nil
}

// IsTerminal reports whether the execution is completed, failed or skipped.
func (e *NodeExecution) IsTerminal() bool {
	return executionStates.IsTerminal(e.Status)
}

// CanTransition reports whether action is allowed from the current status.
func (e *NodeExecution) CanTransition(action ExecutionTransition) bool {
	return executionStates.CanTransition(e.Status, action)
}

// Schedule moves a pending execution to scheduled.
func (e *NodeExecution) Schedule(dueDate *time.Time, at time.Time) error {
	if err := e.transition(ExecutionSchedule, at); err != nil {
		return err
	}
	if dueDate != nil {
		d := *dueDate
		e.DueDate = &d
	}
	return nil
}

// Start begins work on the execution.
func (e *NodeExecution) Start(assignedTo string, at time.Time) error {
	if err := e.transition(ExecutionStart, at); err != nil {
		return err
	}
	e.StartedAt = &at
	if assignedTo != "" {
		e.AssignedTo = &assignedTo
	}
	return nil
}

// AwaitInput parks an in-progress execution until more input arrives.
func (e *NodeExecution) AwaitInput(at time.Time) error {
	return e.transition(ExecutionAwait, at)
}

// Complete records the outcome of the execution.
func (e *NodeExecution) Complete(result, completedBy string, score *float64, feedback *string, data Payload, at time.Time) error {
	if score != nil {
		if err := validateScore(*score); err != nil {
			return err
		}
	}
	if err := e.transition(ExecutionComplete, at); err != nil {
		return err
	}
	e.finish(result, completedBy, at)
	if score != nil {
		s := *score
		e.Score = &s
	}
	if feedback != nil {
		e.Feedback = *feedback
	}
	if data != nil {
		e.ExecutionData = data.Clone()
	}
	return nil
}

// Fail ends the execution with result "fail".
func (e *NodeExecution) Fail(completedBy, reason string, at time.Time) error {
	if err := e.transition(ExecutionFail, at); err != nil {
		return err
	}
	e.finish(ResultFail, completedBy, at)
	e.Feedback = reason
	return nil
}

// Skip ends the execution with result "skipped".
func (e *NodeExecution) Skip(completedBy, reason string, at time.Time) error {
	if err := e.transition(ExecutionSkip, at); err != nil {
		return err
	}
	e.finish(ResultSkipped, completedBy, at)
	e.Feedback = reason
	return nil
}

func (e *NodeExecution) finish(result, completedBy string, at time.Time) {
	e.Result = &result
	e.CompletedAt = &at
	if completedBy != "" {
		e.CompletedBy = &completedBy
	}
}

// LinkInterview stores the external interview id. Overwrites.
func (e *NodeExecution) LinkInterview(interviewID string, at time.Time) {
	e.LinkedInterviewID = &interviewID
	e.UpdatedAt = at
}

// LinkTask stores the external task id. Overwrites.
func (e *NodeExecution) LinkTask(taskID string, at time.Time) {
	e.LinkedTaskID = &taskID
	e.UpdatedAt = at
}

// AddReview records a reviewer without changing status.
func (e *NodeExecution) AddReview(reviewerID string, notes *string, at time.Time) {
	e.ReviewedBy = &reviewerID
	if notes != nil {
		e.AssessorNotes = *notes
	}
	e.UpdatedAt = at
}

// OverrideResult replaces the recorded outcome of a completed execution.
func (e *NodeExecution) OverrideResult(result string, score *float64, reviewerID string, at time.Time) error {
	if e.Status != ExecutionCompleted {
		return appErrors.NewInvalidStateError("node execution", e.ID, string(e.Status), "override result")
	}
	if strings.TrimSpace(result) == "" {
		return appErrors.NewValidationError("result", "result is required")
	}
	if score != nil {
		if err := validateScore(*score); err != nil {
			return err
		}
		s := *score
		e.Score = &s
	}
	e.Result = &result
	e.ReviewedBy = &reviewerID
	e.UpdatedAt = at
	return nil
}

// IsOverdue reports whether the due date has passed without completion.
func (e *NodeExecution) IsOverdue(now time.Time) bool {
	return e.DueDate != nil && e.Status != ExecutionCompleted && now.After(*e.DueDate)
}

// DurationMinutes returns completed_at - started_at in minutes, or nil.
func (e *NodeExecution) DurationMinutes() *float64 {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return nil
	}
	d := e.CompletedAt.Sub(*e.StartedAt).Minutes()
	return &d
}

// OutcomeEnv is the variable set connection conditions are evaluated against.
func (e *NodeExecution) OutcomeEnv() map[string]interface{} {
	env := map[string]interface{}{
		"status":         string(e.Status),
		"result":         "",
		"execution_data": map[string]interface{}(e.ExecutionData),
	}
	if e.Result != nil {
		env["result"] = *e.Result
	}
	if e.Score != nil {
		env["score"] = *e.Score
	}
	return env
}

// ValidExecutionTransitions lists the actions allowed from a status.
func ValidExecutionTransitions(status ExecutionStatus) []ExecutionTransition {
	return executionStates.ValidTransitions(status)
}
