package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

var nodeColumns = []string{
	"id", "workflow_id", "type", "title", "description", "sequence_order",
	"is_required", "can_skip", "auto_advance", "config", "requirements",
	"estimated_duration_minutes", "status", "created_at", "updated_at",
}

// NodeRepository stores node definitions in MySQL
type NodeRepository struct {
	db *sql.DB
}

var _ ports.NodeRepository = (*NodeRepository)(nil)

// NewNodeRepository creates a new NodeRepository
func NewNodeRepository(db *sql.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) nodeArgs(n *domain.NodeDefinition) ([]interface{}, error) {
	cfg, err := encodeJSON(n.Config)
	if err != nil {
		return nil, err
	}
	reqs, err := encodeJSON(n.Requirements)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		n.WorkflowID, string(n.Type), n.Title, n.Description, n.SequenceOrder,
		n.IsRequired, n.CanSkip, n.AutoAdvance, cfg, reqs,
		nullInt(n.EstimatedDurationMinutes), string(n.Status), n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	}, nil
}

func (r *NodeRepository) Create(ctx context.Context, n *domain.NodeDefinition) error {
	args, err := r.nodeArgs(n)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, insertQuery(TableNodeDefinitions, nodeColumns), append([]interface{}{n.ID}, args...)...)
	return mapError(err, "node", "sequence_order", strconv.Itoa(n.SequenceOrder))
}

func (r *NodeRepository) Get(ctx context.Context, id string) (*domain.NodeDefinition, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, selectQuery(TableNodeDefinitions, nodeColumns, "id = ?"), id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("node", id)
	}
	if err != nil {
		return nil, mapError(err, "node", FieldID, id)
	}
	return n, nil
}

// Update overwrites a node. Nodes carry no lock version; edits are
// serialized through the owning workflow's version.
func (r *NodeRepository) Update(ctx context.Context, n *domain.NodeDefinition) error {
	args, err := r.nodeArgs(n)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET workflow_id = ?, type = ?, title = ?, description = ?, sequence_order = ?,
		is_required = ?, can_skip = ?, auto_advance = ?, config = ?, requirements = ?,
		estimated_duration_minutes = ?, status = ?, created_at = ?, updated_at = ? WHERE id = ?`, TableNodeDefinitions)
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, query, append(args, n.ID)...); err != nil {
		return mapError(err, "node", "sequence_order", strconv.Itoa(n.SequenceOrder))
	}
	// MySQL reports zero affected rows for a no-op write, so existence is checked separately.
	exists, err := rowExists(ctx, q, TableNodeDefinitions, n.ID)
	if err != nil {
		return mapError(err, "node", FieldID, n.ID)
	}
	if !exists {
		return appErrors.NewNotFoundError("node", n.ID)
	}
	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	n, err := execAffected(ctx, conn(ctx, r.db), fmt.Sprintf("DELETE FROM %s WHERE id = ?", TableNodeDefinitions), id)
	if err != nil {
		return mapError(err, "node", FieldID, id)
	}
	if n == 0 {
		return appErrors.NewNotFoundError("node", id)
	}
	return nil
}

func (r *NodeRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.NodeDefinition, error) {
	query := selectQuery(TableNodeDefinitions, nodeColumns, "workflow_id = ?") + " ORDER BY sequence_order"
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, mapError(err, "node", "", "")
	}
	defer rows.Close()

	out := make([]*domain.NodeDefinition, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, mapError(err, "node", "", "")
		}
		out = append(out, n)
	}
	return out, mapError(rows.Err(), "node", "", "")
}

// Resequence moves every listed node onto a negative order first, then onto
// its final order, so the (workflow_id, sequence_order) key never collides
// with a node that has not moved yet.
func (r *NodeRepository) Resequence(ctx context.Context, workflowID string, order map[string]int) error {
	if len(order) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET sequence_order = ? WHERE id = ? AND workflow_id = ?", TableNodeDefinitions)
	q := conn(ctx, r.db)

	ids := sortedKeys(order)
	for _, id := range ids {
		n, err := execAffected(ctx, q, query, resequenceOffset*order[id], id, workflowID)
		if err != nil {
			return mapError(err, "node", "sequence_order", strconv.Itoa(order[id]))
		}
		if n == 0 {
			return appErrors.NewNotFoundError("node", id)
		}
	}
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, query, order[id], id, workflowID); err != nil {
			return mapError(err, "node", "sequence_order", strconv.Itoa(order[id]))
		}
	}
	return nil
}

func scanNode(rs rowScanner) (*domain.NodeDefinition, error) {
	var (
		n           domain.NodeDefinition
		nodeType    string
		status      string
		description sql.NullString
		cfg         []byte
		reqs        []byte
		duration    sql.NullInt64
	)
	err := rs.Scan(
		&n.ID, &n.WorkflowID, &nodeType, &n.Title, &description, &n.SequenceOrder,
		&n.IsRequired, &n.CanSkip, &n.AutoAdvance, &cfg, &reqs,
		&duration, &status, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = domain.NodeType(nodeType)
	n.Status = domain.NodeStatus(status)
	n.Description = description.String
	if n.Config, err = decodePayload(cfg); err != nil {
		return nil, err
	}
	if n.Requirements, err = decodePayload(reqs); err != nil {
		return nil, err
	}
	n.EstimatedDurationMinutes = intPtr(duration)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}
