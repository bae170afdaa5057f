package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

var executionColumns = []string{
	"id", "candidate_workflow_id", "node_id", "status", "result", "score",
	"feedback", "assessor_notes", "execution_data", "linked_interview_id", "linked_task_id",
	"started_at", "completed_at", "due_date", "assigned_to", "completed_by", "reviewed_by",
	"created_at", "updated_at", "lock_version",
}

// NodeExecutionRepository stores node executions in MySQL
type NodeExecutionRepository struct {
	db *sql.DB
}

var _ ports.NodeExecutionRepository = (*NodeExecutionRepository)(nil)

// NewNodeExecutionRepository creates a new NodeExecutionRepository
func NewNodeExecutionRepository(db *sql.DB) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db}
}

func executionArgs(e *domain.NodeExecution) ([]interface{}, error) {
	data, err := encodeJSON(e.ExecutionData)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		e.CandidateWorkflowID, e.NodeID, string(e.Status), nullString(e.Result), nullFloat(e.Score),
		e.Feedback, e.AssessorNotes, data, nullString(e.LinkedInterviewID), nullString(e.LinkedTaskID),
		nullTime(e.StartedAt), nullTime(e.CompletedAt), nullTime(e.DueDate),
		nullString(e.AssignedTo), nullString(e.CompletedBy), nullString(e.ReviewedBy),
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	}, nil
}

func (r *NodeExecutionRepository) Create(ctx context.Context, e *domain.NodeExecution) error {
	args, err := executionArgs(e)
	if err != nil {
		return err
	}
	args = append([]interface{}{e.ID}, args...)
	args = append(args, e.LockVersion)
	_, err = conn(ctx, r.db).ExecContext(ctx, insertQuery(TableNodeExecutions, executionColumns), args...)
	return mapError(err, "node execution", "candidate_workflow_id,node_id", e.CandidateWorkflowID+","+e.NodeID)
}

func (r *NodeExecutionRepository) Get(ctx context.Context, id string) (*domain.NodeExecution, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, selectQuery(TableNodeExecutions, executionColumns, "id = ?"), id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("node execution", id)
	}
	if err != nil {
		return nil, mapError(err, "node execution", FieldID, id)
	}
	return e, nil
}

func (r *NodeExecutionRepository) Update(ctx context.Context, e *domain.NodeExecution) error {
	args, err := executionArgs(e)
	if err != nil {
		return err
	}
	cols := executionColumns[1 : len(executionColumns)-1]
	if err := casUpdate(ctx, conn(ctx, r.db), TableNodeExecutions, "node execution", e.ID, e.LockVersion, cols, args); err != nil {
		return err
	}
	e.LockVersion++
	return nil
}

func (r *NodeExecutionRepository) FindByNode(ctx context.Context, candidateWorkflowID, nodeID string) (*domain.NodeExecution, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		selectQuery(TableNodeExecutions, executionColumns, "candidate_workflow_id = ? AND node_id = ?"),
		candidateWorkflowID, nodeID)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "node execution", "candidate_workflow_id,node_id", candidateWorkflowID+","+nodeID)
	}
	return e, nil
}

func (r *NodeExecutionRepository) ListByCandidateWorkflow(ctx context.Context, candidateWorkflowID string) ([]*domain.NodeExecution, error) {
	return r.list(ctx, selectQuery(TableNodeExecutions, executionColumns, "candidate_workflow_id = ?")+" ORDER BY created_at, id", candidateWorkflowID)
}

func (r *NodeExecutionRepository) CountByNode(ctx context.Context, nodeID string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE node_id = ?", TableNodeExecutions)
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, nodeID).Scan(&count); err != nil {
		return 0, mapError(err, "node execution", "node_id", nodeID)
	}
	return count, nil
}

func (r *NodeExecutionRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.NodeExecution, error) {
	where := "status NOT IN (?, ?, ?) AND due_date IS NOT NULL AND due_date < ?"
	return r.list(ctx, selectQuery(TableNodeExecutions, executionColumns, where)+" ORDER BY due_date, id",
		string(domain.ExecutionCompleted), string(domain.ExecutionFailed), string(domain.ExecutionSkipped), now.UTC())
}

func (r *NodeExecutionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.NodeExecution, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "node execution", "", "")
	}
	defer rows.Close()

	out := make([]*domain.NodeExecution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, mapError(err, "node execution", "", "")
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "node execution", "", "")
}

func scanExecution(rs rowScanner) (*domain.NodeExecution, error) {
	var (
		e                                   domain.NodeExecution
		status                              string
		result, interviewID, taskID         sql.NullString
		assignedTo, completedBy, reviewedBy sql.NullString
		feedback, notes                     sql.NullString
		score                               sql.NullFloat64
		data                                []byte
		startedAt, completedAt, dueDate     sql.NullTime
	)
	err := rs.Scan(
		&e.ID, &e.CandidateWorkflowID, &e.NodeID, &status, &result, &score,
		&feedback, &notes, &data, &interviewID, &taskID,
		&startedAt, &completedAt, &dueDate, &assignedTo, &completedBy, &reviewedBy,
		&e.CreatedAt, &e.UpdatedAt, &e.LockVersion,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.ExecutionStatus(status)
	e.Result = stringPtr(result)
	e.Score = floatPtr(score)
	e.Feedback = feedback.String
	e.AssessorNotes = notes.String
	if e.ExecutionData, err = decodePayload(data); err != nil {
		return nil, err
	}
	e.LinkedInterviewID = stringPtr(interviewID)
	e.LinkedTaskID = stringPtr(taskID)
	e.StartedAt = timePtr(startedAt)
	e.CompletedAt = timePtr(completedAt)
	e.DueDate = timePtr(dueDate)
	e.AssignedTo = stringPtr(assignedTo)
	e.CompletedBy = stringPtr(completedBy)
	e.ReviewedBy = stringPtr(reviewedBy)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (r *NodeExecutionRepository) DeleteByCandidateWorkflow(ctx context.Context, candidateWorkflowID string) (int, error) {
	n, err := execAffected(ctx, conn(ctx, r.db),
		fmt.Sprintf("DELETE FROM %s WHERE candidate_workflow_id = ?", TableNodeExecutions), candidateWorkflowID)
	if err != nil {
		return 0, mapError(err, "node execution", "candidate_workflow_id", candidateWorkflowID)
	}
	return int(n), nil
}
