package ports

import (
	"context"
	"time"

	"github.com/recruitflow/backend/internal/domain"
)

// Repositories read the active transaction from ctx when one is present.
// Update methods are compare-and-set on LockVersion: on success the entity's
// LockVersion is incremented in place, on a lost race a StaleStateError is
// returned and nothing is written.

// WorkflowFilter narrows workflow listings.
type WorkflowFilter struct {
	CompanyID      string
	Status         domain.WorkflowStatus
	TemplatesOnly  bool
	IncludeDeleted bool
}

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	Create(ctx context.Context, w *domain.Workflow) error
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Update(ctx context.Context, w *domain.Workflow) error
	List(ctx context.Context, filter WorkflowFilter) ([]*domain.Workflow, error)
}

// NodeRepository persists node definitions.
type NodeRepository interface {
	Create(ctx context.Context, n *domain.NodeDefinition) error
	Get(ctx context.Context, id string) (*domain.NodeDefinition, error)
	Update(ctx context.Context, n *domain.NodeDefinition) error
	Delete(ctx context.Context, id string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.NodeDefinition, error)
	// Resequence rewrites sequence_order for the given node ids without
	// ever holding two nodes on the same order.
	Resequence(ctx context.Context, workflowID string, order map[string]int) error
}

// ConnectionRepository persists graph edges.
type ConnectionRepository interface {
	Create(ctx context.Context, c *domain.Connection) error
	Delete(ctx context.Context, id string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.Connection, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

// ViewerRepository persists viewer grants, one per (workflow, user).
type ViewerRepository interface {
	Create(ctx context.Context, v *domain.Viewer) error
	Get(ctx context.Context, workflowID, userID string) (*domain.Viewer, error)
	Update(ctx context.Context, v *domain.Viewer) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, workflowID, userID string) (bool, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.Viewer, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

// CandidateWorkflowRepository persists candidate runs, one per (candidate, workflow).
type CandidateWorkflowRepository interface {
	Create(ctx context.Context, cw *domain.CandidateWorkflow) error
	Get(ctx context.Context, id string) (*domain.CandidateWorkflow, error)
	Update(ctx context.Context, cw *domain.CandidateWorkflow) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.CandidateWorkflow, error)
	Delete(ctx context.Context, id string) error
}

// NodeExecutionRepository persists executions, one per (candidate run, node).
type NodeExecutionRepository interface {
	Create(ctx context.Context, e *domain.NodeExecution) error
	Get(ctx context.Context, id string) (*domain.NodeExecution, error)
	Update(ctx context.Context, e *domain.NodeExecution) error
	// FindByNode returns nil, nil when no execution exists yet.
	FindByNode(ctx context.Context, candidateWorkflowID, nodeID string) (*domain.NodeExecution, error)
	ListByCandidateWorkflow(ctx context.Context, candidateWorkflowID string) ([]*domain.NodeExecution, error)
	CountByNode(ctx context.Context, nodeID string) (int, error)
	// ListOverdue returns non-terminal executions whose due date is before now.
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.NodeExecution, error)
	// DeleteByCandidateWorkflow removes a run's executions and reports how many went.
	DeleteByCandidateWorkflow(ctx context.Context, candidateWorkflowID string) (int, error)
}

// Transactor runs fn inside one storage transaction carried by the ctx
// passed to fn. Nested calls join the outer transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every repository plus the transactor.
type Store struct {
	Workflows   WorkflowRepository
	Nodes       NodeRepository
	Connections ConnectionRepository
	Viewers     ViewerRepository
	Candidates  CandidateWorkflowRepository
	Executions  NodeExecutionRepository
	Tx          Transactor
}
