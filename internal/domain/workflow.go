package domain

import (
	"strings"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// Payload is a free-form JSON object (config, settings, execution data).
type Payload map[string]interface{}

// Clone returns a shallow copy so callers cannot mutate shared maps.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// WorkflowStatus is the authoring lifecycle of a pipeline definition
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// WorkflowTransition names an action on a workflow definition
type WorkflowTransition string

const (
	WorkflowActivate   WorkflowTransition = "activate"
	WorkflowDeactivate WorkflowTransition = "deactivate"
	WorkflowReactivate WorkflowTransition = "reactivate"
	WorkflowArchive    WorkflowTransition = "archive"
	WorkflowEdit       WorkflowTransition = "edit"
	WorkflowDelete     WorkflowTransition = "delete"
)

// workflowStates encodes the lifecycle:
//
//	[draft] --activate--> [active] --deactivate--> [inactive]
//	                          ^                         |
//	                          └-------reactivate--------┘
//
//	Any non-archived state can transition to [archived] via archive.
var workflowStates = NewStateMachine[WorkflowStatus, WorkflowTransition]("workflow", WorkflowStatusArchived).
	Allow(WorkflowActivate, WorkflowStatusActive, WorkflowStatusDraft).
	Allow(WorkflowDeactivate, WorkflowStatusInactive, WorkflowStatusActive).
	Allow(WorkflowReactivate, WorkflowStatusActive, WorkflowStatusInactive).
	Allow(WorkflowArchive, WorkflowStatusArchived, WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusInactive)

// Workflow is a named, versioned pipeline definition.
type Workflow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	CompanyID    string         `json:"company_id"`
	CreatedBy    string         `json:"created_by"`
	UpdatedBy    string         `json:"updated_by,omitempty"`
	Status       WorkflowStatus `json:"status"`
	Version      int            `json:"version"`
	IsTemplate   bool           `json:"is_template"`
	TemplateName string         `json:"template_name,omitempty"`
	Settings     Payload        `json:"settings,omitempty"`
	ActivatedAt  *time.Time     `json:"activated_at,omitempty"`
	ArchivedAt   *time.Time     `json:"archived_at,omitempty"`
	IsDeleted    bool           `json:"is_deleted"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LockVersion  int64          `json:"lock_version"`
}

// NewWorkflow creates a draft workflow at version 1.
func NewWorkflow(id, name, companyID, createdBy string, at time.Time) (*Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.NewValidationError("name", "workflow name is required")
	}
	return &Workflow{
		ID:        id,
		Name:      strings.TrimSpace(name),
		CompanyID: companyID,
		CreatedBy: createdBy,
		UpdatedBy: createdBy,
		Status:    WorkflowStatusDraft,
		Version:   1,
		Settings:  Payload{},
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

func (w *Workflow) transition(action WorkflowTransition, actorID string, at time.Time) error {
	if w.IsDeleted {
		return appErrors.NewInvalidStateError("workflow", w.ID, "deleted", string(action))
	}
	next, err := workflowStates.Transition(w.ID, w.Status, action)
	if err != nil {
		return err
	}
	w.Status = next
	w.UpdatedBy = actorID
	w.UpdatedAt = at
	return nil
}

// Activate moves a draft workflow to active. One-way.
func (w *Workflow) Activate(actorID string, at time.Time) error {
	if err := w.transition(WorkflowActivate, actorID, at); err != nil {
		return err
	}
	w.ActivatedAt = &at
	return nil
}

// Deactivate pauses an active workflow so it can be edited.
func (w *Workflow) Deactivate(actorID string, at time.Time) error {
	return w.transition(WorkflowDeactivate, actorID, at)
}

// Reactivate returns an inactive workflow to active without re-validation.
func (w *Workflow) Reactivate(actorID string, at time.Time) error {
	if err := w.transition(WorkflowReactivate, actorID, at); err != nil {
		return err
	}
	w.ActivatedAt = &at
	return nil
}

// Archive retires the workflow. Terminal.
func (w *Workflow) Archive(actorID string, at time.Time) error {
	if err := w.transition(WorkflowArchive, actorID, at); err != nil {
		return err
	}
	w.ArchivedAt = &at
	return nil
}

// CanBeEdited reports whether structural edits are allowed.
func (w *Workflow) CanBeEdited() bool {
	return !w.IsDeleted && (w.Status == WorkflowStatusDraft || w.Status == WorkflowStatusInactive)
}

// IsActive reports whether candidates may be started on this workflow.
func (w *Workflow) IsActive() bool {
	return !w.IsDeleted && w.Status == WorkflowStatusActive
}

// IsArchived reports whether the workflow has been retired.
func (w *Workflow) IsArchived() bool {
	return w.Status == WorkflowStatusArchived
}

// BeginStructuralEdit guards an add/remove/reorder of nodes or connections.
// Workflows that were activated before get their version bumped per edit.
func (w *Workflow) BeginStructuralEdit(actorID string, at time.Time) error {
	if !w.CanBeEdited() {
		status := string(w.Status)
		if w.IsDeleted {
			status = "deleted"
		}
		return appErrors.NewInvalidStateError("workflow", w.ID, status, string(WorkflowEdit))
	}
	if w.ActivatedAt != nil {
		w.Version++
	}
	w.UpdatedBy = actorID
	w.UpdatedAt = at
	return nil
}

// SoftDelete flags the workflow as deleted. Active workflows must be
// deactivated or archived first.
func (w *Workflow) SoftDelete(actorID string, at time.Time) error {
	if w.IsDeleted {
		return nil
	}
	if w.Status == WorkflowStatusActive {
		return appErrors.NewInvalidStateError("workflow", w.ID, string(w.Status), string(WorkflowDelete))
	}
	w.IsDeleted = true
	w.DeletedAt = &at
	w.UpdatedBy = actorID
	w.UpdatedAt = at
	return nil
}

// ValidWorkflowTransitions lists the actions allowed from a status.
func ValidWorkflowTransitions(status WorkflowStatus) []WorkflowTransition {
	return workflowStates.ValidTransitions(status)
}
