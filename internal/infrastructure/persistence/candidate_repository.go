package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

var candidateColumns = []string{
	"id", "candidate_id", "workflow_id", "current_node_id", "status",
	"assigned_recruiter_id", "assigned_at", "started_at", "completed_at", "failed_at", "withdrawn_at",
	"overall_score", "final_result", "notes", "created_at", "updated_at", "lock_version",
}

// CandidateWorkflowRepository stores candidate runs in MySQL
type CandidateWorkflowRepository struct {
	db *sql.DB
}

var _ ports.CandidateWorkflowRepository = (*CandidateWorkflowRepository)(nil)

// NewCandidateWorkflowRepository creates a new CandidateWorkflowRepository
func NewCandidateWorkflowRepository(db *sql.DB) *CandidateWorkflowRepository {
	return &CandidateWorkflowRepository{db: db}
}

func candidateArgs(cw *domain.CandidateWorkflow) []interface{} {
	return []interface{}{
		cw.CandidateID, cw.WorkflowID, nullString(cw.CurrentNodeID), string(cw.Status),
		nullString(cw.AssignedRecruiterID), nullTime(cw.AssignedAt), nullTime(cw.StartedAt),
		nullTime(cw.CompletedAt), nullTime(cw.FailedAt), nullTime(cw.WithdrawnAt),
		nullFloat(cw.OverallScore), nullString(cw.FinalResult), cw.Notes,
		cw.CreatedAt.UTC(), cw.UpdatedAt.UTC(),
	}
}

func (r *CandidateWorkflowRepository) Create(ctx context.Context, cw *domain.CandidateWorkflow) error {
	args := append([]interface{}{cw.ID}, candidateArgs(cw)...)
	args = append(args, cw.LockVersion)
	_, err := conn(ctx, r.db).ExecContext(ctx, insertQuery(TableCandidateWorkflows, candidateColumns), args...)
	return mapError(err, "candidate workflow", "candidate_id,workflow_id", cw.CandidateID+","+cw.WorkflowID)
}

func (r *CandidateWorkflowRepository) Get(ctx context.Context, id string) (*domain.CandidateWorkflow, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, selectQuery(TableCandidateWorkflows, candidateColumns, "id = ?"), id)
	cw, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("candidate workflow", id)
	}
	if err != nil {
		return nil, mapError(err, "candidate workflow", FieldID, id)
	}
	return cw, nil
}

func (r *CandidateWorkflowRepository) Update(ctx context.Context, cw *domain.CandidateWorkflow) error {
	cols := candidateColumns[1 : len(candidateColumns)-1]
	if err := casUpdate(ctx, conn(ctx, r.db), TableCandidateWorkflows, "candidate workflow", cw.ID, cw.LockVersion, cols, candidateArgs(cw)); err != nil {
		return err
	}
	cw.LockVersion++
	return nil
}

func (r *CandidateWorkflowRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.CandidateWorkflow, error) {
	query := selectQuery(TableCandidateWorkflows, candidateColumns, "workflow_id = ?") + " ORDER BY created_at, id"
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, mapError(err, "candidate workflow", "", "")
	}
	defer rows.Close()

	out := make([]*domain.CandidateWorkflow, 0)
	for rows.Next() {
		cw, err := scanCandidate(rows)
		if err != nil {
			return nil, mapError(err, "candidate workflow", "", "")
		}
		out = append(out, cw)
	}
	return out, mapError(rows.Err(), "candidate workflow", "", "")
}

func scanCandidate(rs rowScanner) (*domain.CandidateWorkflow, error) {
	var (
		cw                                                        domain.CandidateWorkflow
		status                                                    string
		currentNode, recruiter, finalResult, notes                sql.NullString
		assignedAt, startedAt, completedAt, failedAt, withdrawnAt sql.NullTime
		score                                                     sql.NullFloat64
	)
	err := rs.Scan(
		&cw.ID, &cw.CandidateID, &cw.WorkflowID, &currentNode, &status,
		&recruiter, &assignedAt, &startedAt, &completedAt, &failedAt, &withdrawnAt,
		&score, &finalResult, &notes, &cw.CreatedAt, &cw.UpdatedAt, &cw.LockVersion,
	)
	if err != nil {
		return nil, err
	}
	cw.Status = domain.CandidateStatus(status)
	cw.CurrentNodeID = stringPtr(currentNode)
	cw.AssignedRecruiterID = stringPtr(recruiter)
	cw.AssignedAt = timePtr(assignedAt)
	cw.StartedAt = timePtr(startedAt)
	cw.CompletedAt = timePtr(completedAt)
	cw.FailedAt = timePtr(failedAt)
	cw.WithdrawnAt = timePtr(withdrawnAt)
	cw.OverallScore = floatPtr(score)
	cw.FinalResult = stringPtr(finalResult)
	cw.Notes = notes.String
	cw.CreatedAt = cw.CreatedAt.UTC()
	cw.UpdatedAt = cw.UpdatedAt.UTC()
	return &cw, nil
}

func (r *CandidateWorkflowRepository) Delete(ctx context.Context, id string) error {
	n, err := execAffected(ctx, conn(ctx, r.db), fmt.Sprintf("DELETE FROM %s WHERE id = ?", TableCandidateWorkflows), id)
	if err != nil {
		return mapError(err, "candidate workflow", FieldID, id)
	}
	if n == 0 {
		return appErrors.NewNotFoundError("candidate workflow", id)
	}
	return nil
}
