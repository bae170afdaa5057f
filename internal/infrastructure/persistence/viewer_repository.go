package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

var viewerColumns = []string{
	"id", "workflow_id", "user_id", "role", "permissions", "added_by", "added_at", "lock_version",
}

// ViewerRepository stores viewer grants in MySQL
type ViewerRepository struct {
	db *sql.DB
}

var _ ports.ViewerRepository = (*ViewerRepository)(nil)

// NewViewerRepository creates a new ViewerRepository
func NewViewerRepository(db *sql.DB) *ViewerRepository {
	return &ViewerRepository{db: db}
}

func encodePermissions(perms map[domain.Permission]bool) ([]byte, error) {
	if len(perms) == 0 {
		return nil, nil
	}
	return encodeJSON(perms)
}

func (r *ViewerRepository) Create(ctx context.Context, v *domain.Viewer) error {
	perms, err := encodePermissions(v.Permissions)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, insertQuery(TableWorkflowViewers, viewerColumns),
		v.ID, v.WorkflowID, v.UserID, string(v.Role), perms, v.AddedBy, v.AddedAt.UTC(), v.LockVersion)
	return mapError(err, "viewer", "workflow_id,user_id", v.WorkflowID+"/"+v.UserID)
}

func (r *ViewerRepository) Get(ctx context.Context, workflowID, userID string) (*domain.Viewer, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		selectQuery(TableWorkflowViewers, viewerColumns, "workflow_id = ? AND user_id = ?"), workflowID, userID)
	v, err := scanViewer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("viewer", workflowID+"/"+userID)
	}
	if err != nil {
		return nil, mapError(err, "viewer", "workflow_id,user_id", workflowID+"/"+userID)
	}
	return v, nil
}

func (r *ViewerRepository) Update(ctx context.Context, v *domain.Viewer) error {
	perms, err := encodePermissions(v.Permissions)
	if err != nil {
		return err
	}
	err = casUpdate(ctx, conn(ctx, r.db), TableWorkflowViewers, "viewer", v.ID, v.LockVersion,
		[]string{"role", "permissions"}, []interface{}{string(v.Role), perms})
	if err != nil {
		return err
	}
	v.LockVersion++
	return nil
}

func (r *ViewerRepository) Delete(ctx context.Context, workflowID, userID string) (bool, error) {
	n, err := execAffected(ctx, conn(ctx, r.db),
		fmt.Sprintf("DELETE FROM %s WHERE workflow_id = ? AND user_id = ?", TableWorkflowViewers), workflowID, userID)
	if err != nil {
		return false, mapError(err, "viewer", "workflow_id,user_id", workflowID+"/"+userID)
	}
	return n > 0, nil
}

func (r *ViewerRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.Viewer, error) {
	query := selectQuery(TableWorkflowViewers, viewerColumns, "workflow_id = ?") + " ORDER BY added_at, user_id"
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, mapError(err, "viewer", "", "")
	}
	defer rows.Close()

	out := make([]*domain.Viewer, 0)
	for rows.Next() {
		v, err := scanViewer(rows)
		if err != nil {
			return nil, mapError(err, "viewer", "", "")
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err(), "viewer", "", "")
}

func (r *ViewerRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE workflow_id = ?", TableWorkflowViewers), workflowID)
	return mapError(err, "viewer", FieldWorkflowID, workflowID)
}

func scanViewer(rs rowScanner) (*domain.Viewer, error) {
	var (
		v     domain.Viewer
		role  string
		perms []byte
	)
	if err := rs.Scan(&v.ID, &v.WorkflowID, &v.UserID, &role, &perms, &v.AddedBy, &v.AddedAt, &v.LockVersion); err != nil {
		return nil, err
	}
	v.Role = domain.ViewerRole(role)
	v.AddedAt = v.AddedAt.UTC()
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &v.Permissions); err != nil {
			return nil, appErrors.NewInternalError("failed to decode viewer permissions", err)
		}
	}
	return &v, nil
}
