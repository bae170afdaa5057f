package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

var workflowColumns = []string{
	"id", "name", "description", "company_id", "created_by", "updated_by",
	"status", "version", "is_template", "template_name", "settings",
	"activated_at", "archived_at", "is_deleted", "deleted_at",
	"created_at", "updated_at", "lock_version",
}

// WorkflowRepository stores workflow definitions in MySQL
type WorkflowRepository struct {
	db *sql.DB
}

var _ ports.WorkflowRepository = (*WorkflowRepository)(nil)

// NewWorkflowRepository creates a new WorkflowRepository
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) Create(ctx context.Context, w *domain.Workflow) error {
	settings, err := encodeJSON(w.Settings)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, insertQuery(TableWorkflows, workflowColumns),
		w.ID, w.Name, w.Description, w.CompanyID, w.CreatedBy, w.UpdatedBy,
		string(w.Status), w.Version, w.IsTemplate, w.TemplateName, settings,
		nullTime(w.ActivatedAt), nullTime(w.ArchivedAt), w.IsDeleted, nullTime(w.DeletedAt),
		w.CreatedAt.UTC(), w.UpdatedAt.UTC(), w.LockVersion,
	)
	return mapError(err, "workflow", FieldID, w.ID)
}

func (r *WorkflowRepository) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, selectQuery(TableWorkflows, workflowColumns, "id = ?"), id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("workflow", id)
	}
	if err != nil {
		return nil, mapError(err, "workflow", FieldID, id)
	}
	return w, nil
}

func (r *WorkflowRepository) Update(ctx context.Context, w *domain.Workflow) error {
	settings, err := encodeJSON(w.Settings)
	if err != nil {
		return err
	}
	// every column but id and lock_version
	cols := workflowColumns[1 : len(workflowColumns)-1]
	err = casUpdate(ctx, conn(ctx, r.db), TableWorkflows, "workflow", w.ID, w.LockVersion, cols, []interface{}{
		w.Name, w.Description, w.CompanyID, w.CreatedBy, w.UpdatedBy,
		string(w.Status), w.Version, w.IsTemplate, w.TemplateName, settings,
		nullTime(w.ActivatedAt), nullTime(w.ArchivedAt), w.IsDeleted, nullTime(w.DeletedAt),
		w.CreatedAt.UTC(), w.UpdatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	w.LockVersion++
	return nil
}

func (r *WorkflowRepository) List(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.Workflow, error) {
	where := []string{"1 = 1"}
	var args []interface{}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if filter.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.TemplatesOnly {
		where = append(where, "is_template = TRUE")
	}
	query := selectQuery(TableWorkflows, workflowColumns, strings.Join(where, " AND ")) + " ORDER BY created_at, id"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "workflow", "", "")
	}
	defer rows.Close()

	out := make([]*domain.Workflow, 0)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, mapError(err, "workflow", "", "")
		}
		out = append(out, w)
	}
	return out, mapError(rows.Err(), "workflow", "", "")
}

func scanWorkflow(rs rowScanner) (*domain.Workflow, error) {
	var (
		w            domain.Workflow
		status       string
		description  sql.NullString
		updatedBy    sql.NullString
		templateName sql.NullString
		settings     []byte
		activatedAt  sql.NullTime
		archivedAt   sql.NullTime
		deletedAt    sql.NullTime
	)
	err := rs.Scan(
		&w.ID, &w.Name, &description, &w.CompanyID, &w.CreatedBy, &updatedBy,
		&status, &w.Version, &w.IsTemplate, &templateName, &settings,
		&activatedAt, &archivedAt, &w.IsDeleted, &deletedAt,
		&w.CreatedAt, &w.UpdatedAt, &w.LockVersion,
	)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WorkflowStatus(status)
	w.Description = description.String
	w.UpdatedBy = updatedBy.String
	w.TemplateName = templateName.String
	if w.Settings, err = decodePayload(settings); err != nil {
		return nil, err
	}
	w.ActivatedAt = timePtr(activatedAt)
	w.ArchivedAt = timePtr(archivedAt)
	w.DeletedAt = timePtr(deletedAt)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}
