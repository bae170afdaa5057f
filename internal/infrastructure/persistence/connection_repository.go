package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// condition is reserved in MySQL, hence condition_expr.
var connectionColumns = []string{
	"id", "workflow_id", "source_node_id", "target_node_id", "condition_expr", "created_at",
}

// ConnectionRepository stores graph edges in MySQL
type ConnectionRepository struct {
	db *sql.DB
}

var _ ports.ConnectionRepository = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new ConnectionRepository
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Create(ctx context.Context, c *domain.Connection) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, insertQuery(TableNodeConnections, connectionColumns),
		c.ID, c.WorkflowID, c.SourceNodeID, c.TargetNodeID, c.Condition, c.CreatedAt.UTC())
	return mapError(err, "connection", "source_node_id,target_node_id", c.SourceNodeID+"->"+c.TargetNodeID)
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	n, err := execAffected(ctx, conn(ctx, r.db), fmt.Sprintf("DELETE FROM %s WHERE id = ?", TableNodeConnections), id)
	if err != nil {
		return mapError(err, "connection", FieldID, id)
	}
	if n == 0 {
		return appErrors.NewNotFoundError("connection", id)
	}
	return nil
}

func (r *ConnectionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.Connection, error) {
	query := selectQuery(TableNodeConnections, connectionColumns, "workflow_id = ?") + " ORDER BY created_at, id"
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, mapError(err, "connection", "", "")
	}
	defer rows.Close()

	out := make([]*domain.Connection, 0)
	for rows.Next() {
		var (
			c         domain.Connection
			condition sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.WorkflowID, &c.SourceNodeID, &c.TargetNodeID, &condition, &c.CreatedAt); err != nil {
			return nil, mapError(err, "connection", "", "")
		}
		c.Condition = condition.String
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, mapError(rows.Err(), "connection", "", "")
}

func (r *ConnectionRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE workflow_id = ?", TableNodeConnections), workflowID)
	return mapError(err, "connection", FieldWorkflowID, workflowID)
}
