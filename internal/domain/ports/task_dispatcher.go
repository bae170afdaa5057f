package ports

import (
	"context"
	"time"

	"github.com/recruitflow/backend/internal/domain"
)

// LinkageKind says which foreign id a dispatched task should be stored under.
type LinkageKind string

const (
	LinkageInterview LinkageKind = "interview"
	LinkageTask      LinkageKind = "task"
)

// TaskRequest asks an external subsystem to create work for one execution.
type TaskRequest struct {
	ExecutionID         string          `json:"execution_id"`
	CandidateWorkflowID string          `json:"candidate_workflow_id"`
	CandidateID         string          `json:"candidate_id"`
	WorkflowID          string          `json:"workflow_id"`
	NodeID              string          `json:"node_id"`
	NodeType            domain.NodeType `json:"node_type"`
	Title               string          `json:"title"`
	Config              domain.Payload  `json:"config,omitempty"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
}

// TaskLinkage is the opaque reference returned by the external subsystem.
type TaskLinkage struct {
	Kind LinkageKind `json:"kind"`
	ID   string      `json:"id"`
}

// TaskDispatcher hands node executions to interview, exam and to-do
// subsystems. A nil linkage with a nil error means nothing was created.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, req TaskRequest) (*TaskLinkage, error)
}
