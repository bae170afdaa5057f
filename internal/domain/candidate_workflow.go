package domain

import (
	"strings"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// CandidateStatus is the run-level status of a candidate's pipeline
type CandidateStatus string

const (
	CandidateNotStarted CandidateStatus = "not_started"
	CandidateInProgress CandidateStatus = "in_progress"
	CandidateOnHold     CandidateStatus = "on_hold"
	CandidateCompleted  CandidateStatus = "completed"
	CandidateFailed     CandidateStatus = "failed"
	CandidateWithdrawn  CandidateStatus = "withdrawn"
)

// CandidateTransition represents an action that can change run state
type CandidateTransition string

const (
	CandidateStart    CandidateTransition = "start"
	CandidateAdvance  CandidateTransition = "advance"
	CandidateHold     CandidateTransition = "put on hold"
	CandidateResume   CandidateTransition = "resume"
	CandidateComplete CandidateTransition = "complete"
	CandidateFail     CandidateTransition = "fail"
	CandidateWithdraw CandidateTransition = "withdraw"
	CandidateAssign   CandidateTransition = "assign recruiter"
)

// Final result tags
const (
	FinalResultPass          = "pass"
	FinalResultFail          = "fail"
	FinalResultFailed        = "failed"
	FinalResultWithdrawn     = "withdrawn"
	FinalResultPendingReview = "pending_review"
)

// candidateStates encodes the run lifecycle:
//
//	[not_started] --start--> [in_progress] <--resume-- [on_hold]
//	                              │    └------hold-------^
//	                 complete / fail / withdraw
//	                              ▼
//	             [completed] [failed] [withdrawn]
//
//	A run can also be withdrawn before it starts or while on hold, and
//	failed while on hold.
var candidateStates = NewStateMachine[CandidateStatus, CandidateTransition]("candidate workflow",
	CandidateCompleted, CandidateFailed, CandidateWithdrawn).
	Allow(CandidateStart, CandidateInProgress, CandidateNotStarted).
	Allow(CandidateAdvance, CandidateInProgress, CandidateInProgress).
	Allow(CandidateAdvance, CandidateOnHold, CandidateOnHold).
	Allow(CandidateHold, CandidateOnHold, CandidateInProgress).
	Allow(CandidateResume, CandidateInProgress, CandidateOnHold).
	Allow(CandidateComplete, CandidateCompleted, CandidateInProgress).
	Allow(CandidateFail, CandidateFailed, CandidateInProgress, CandidateOnHold).
	Allow(CandidateWithdraw, CandidateWithdrawn, CandidateNotStarted, CandidateInProgress, CandidateOnHold)

// CandidateWorkflow is one candidate's run of a workflow.
type CandidateWorkflow struct {
	ID                  string          `json:"id"`
	CandidateID         string          `json:"candidate_id"`
	WorkflowID          string          `json:"workflow_id"`
	CurrentNodeID       *string         `json:"current_node_id"`
	Status              CandidateStatus `json:"status"`
	AssignedRecruiterID *string         `json:"assigned_recruiter_id,omitempty"`
	AssignedAt          *time.Time      `json:"assigned_at,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	FailedAt            *time.Time      `json:"failed_at,omitempty"`
	WithdrawnAt         *time.Time      `json:"withdrawn_at,omitempty"`
	OverallScore        *float64        `json:"overall_score,omitempty"`
	FinalResult         *string         `json:"final_result,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	LockVersion         int64           `json:"lock_version"`
}

// NewCandidateWorkflow creates a not-started run.
func NewCandidateWorkflow(id, candidateID, workflowID string, at time.Time) (*CandidateWorkflow, error) {
	if strings.TrimSpace(candidateID) == "" {
		return nil, appErrors.NewValidationError("candidate_id", "candidate id is required")
	}
	if strings.TrimSpace(workflowID) == "" {
		return nil, appErrors.NewValidationError("workflow_id", "workflow id is required")
	}
	return &CandidateWorkflow{
		ID:          id,
		CandidateID: candidateID,
		WorkflowID:  workflowID,
		Status:      CandidateNotStarted,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}

func (c *CandidateWorkflow) transition(action CandidateTransition, at time.Time) error {
	next, err := candidateStates.Transition(c.ID, c.Status, action)
	if err != nil {
		return err
	}
	c.Status = next
	c.UpdatedAt = at
	return nil
}

// IsTerminal reports whether the run has finished one way or another.
func (c *CandidateWorkflow) IsTerminal() bool {
	return candidateStates.IsTerminal(c.Status)
}

// Start begins the run on its first node.
func (c *CandidateWorkflow) Start(firstNodeID string, at time.Time) error {
	if err := c.transition(CandidateStart, at); err != nil {
		return err
	}
	c.CurrentNodeID = &firstNodeID
	c.StartedAt = &at
	return nil
}

// AdvanceTo moves the current-node pointer. Empty clears it.
func (c *CandidateWorkflow) AdvanceTo(nextNodeID string, at time.Time) error {
	if err := c.transition(CandidateAdvance, at); err != nil {
		return err
	}
	if nextNodeID == "" {
		c.CurrentNodeID = nil
	} else {
		c.CurrentNodeID = &nextNodeID
	}
	return nil
}

// Complete finishes the run successfully.
func (c *CandidateWorkflow) Complete(finalResult string, score *float64, notes *string, at time.Time) error {
	if score != nil {
		if err := validateScore(*score); err != nil {
			return err
		}
	}
	if err := c.transition(CandidateComplete, at); err != nil {
		return err
	}
	c.CompletedAt = &at
	c.FinalResult = &finalResult
	c.CurrentNodeID = nil
	if score != nil {
		c.OverallScore = score
	}
	if notes != nil {
		c.Notes = *notes
	}
	return nil
}

// Fail ends the run unsuccessfully, optionally pinning the failing node.
func (c *CandidateWorkflow) Fail(reason, failedAtNodeID string, at time.Time) error {
	if err := c.transition(CandidateFail, at); err != nil {
		return err
	}
	result := FinalResultFailed
	c.FailedAt = &at
	c.FinalResult = &result
	if failedAtNodeID != "" {
		c.CurrentNodeID = &failedAtNodeID
	}
	if reason != "" {
		c.appendNote(reason)
	}
	return nil
}

// Withdraw records the candidate leaving the pipeline.
func (c *CandidateWorkflow) Withdraw(reason string, at time.Time) error {
	if err := c.transition(CandidateWithdraw, at); err != nil {
		return err
	}
	result := FinalResultWithdrawn
	c.WithdrawnAt = &at
	c.FinalResult = &result
	c.CurrentNodeID = nil
	if reason != "" {
		c.appendNote(reason)
	}
	return nil
}

// PutOnHold pauses an in-progress run.
func (c *CandidateWorkflow) PutOnHold(at time.Time) error {
	return c.transition(CandidateHold, at)
}

// Resume continues a run that was on hold.
func (c *CandidateWorkflow) Resume(at time.Time) error {
	return c.transition(CandidateResume, at)
}

// AssignRecruiter sets the responsible recruiter on a non-terminal run.
func (c *CandidateWorkflow) AssignRecruiter(recruiterID string, at time.Time) error {
	if c.IsTerminal() {
		return appErrors.NewInvalidStateError("candidate workflow", c.ID, string(c.Status), string(CandidateAssign))
	}
	if strings.TrimSpace(recruiterID) == "" {
		return appErrors.NewValidationError("recruiter_id", "recruiter id is required")
	}
	c.AssignedRecruiterID = &recruiterID
	c.AssignedAt = &at
	c.UpdatedAt = at
	return nil
}

// SetNotes replaces the free-form notes.
func (c *CandidateWorkflow) SetNotes(notes string, at time.Time) {
	c.Notes = notes
	c.UpdatedAt = at
}

func (c *CandidateWorkflow) appendNote(line string) {
	if c.Notes == "" {
		c.Notes = line
		return
	}
	c.Notes += "\n" + line
}

// ProgressPercentage is completed executions over total workflow nodes.
func ProgressPercentage(executions []*NodeExecution, totalNodes int) float64 {
	if totalNodes == 0 || len(executions) == 0 {
		return 0
	}
	completed := 0
	for _, e := range executions {
		if e.Status == ExecutionCompleted {
			completed++
		}
	}
	return float64(completed) / float64(totalNodes) * 100
}

func validateScore(score float64) error {
	if score < 0 || score > 100 {
		return appErrors.NewValidationError("score", "score must be between 0 and 100")
	}
	return nil
}
