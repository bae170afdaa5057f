package events

// EventType defines the type of event in the system
type EventType string

const (
	// Workflow Events
	WorkflowActivated EventType = "workflow.activated"
	WorkflowArchived  EventType = "workflow.archived"

	// Candidate Run Events
	CandidateStarted   EventType = "candidate.started"
	CandidateCompleted EventType = "candidate.completed"
	CandidateFailed    EventType = "candidate.failed"
	CandidateWithdrawn EventType = "candidate.withdrawn"

	// Execution Events
	ExecutionCreated   EventType = "execution.created"
	ExecutionCompleted EventType = "execution.completed"
	ExecutionFailed    EventType = "execution.failed"
	ExecutionSkipped   EventType = "execution.skipped"
	ExecutionOverdue   EventType = "execution.overdue"

	// System Events
	SystemStartup EventType = "system.startup"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// WorkflowPayload accompanies workflow lifecycle events.
type WorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
	ActorID    string `json:"actor_id"`
	Version    int    `json:"version"`
}

// CandidatePayload accompanies candidate run events.
type CandidatePayload struct {
	CandidateWorkflowID string `json:"candidate_workflow_id"`
	CandidateID         string `json:"candidate_id"`
	WorkflowID          string `json:"workflow_id"`
	Status              string `json:"status"`
	FinalResult         string `json:"final_result,omitempty"`
}

// ExecutionPayload accompanies node execution events.
type ExecutionPayload struct {
	ExecutionID         string `json:"execution_id"`
	CandidateWorkflowID string `json:"candidate_workflow_id"`
	NodeID              string `json:"node_id"`
	Status              string `json:"status"`
	Result              string `json:"result,omitempty"`
}
