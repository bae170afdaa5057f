package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
	"github.com/recruitflow/backend/pkg/utils"
)

// ViewerService manages who may see and act on a workflow.
//
// Only the owner, system admins and admin-role viewers may change the
// registry, and nobody can hand out a permission they do not hold themselves.
type ViewerService struct {
	base
	access *AccessService
}

// NewViewerService creates a new ViewerService
func NewViewerService(store ports.Store, access *AccessService, publisher ports.EventPublisher, logger *slog.Logger) *ViewerService {
	return &ViewerService{base: newBase(store, publisher, logger), access: access}
}

// AddViewerInput represents the input for granting a user access
type AddViewerInput struct {
	UserID      string          `json:"user_id"`
	Role        string          `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

// ViewerView is a viewer with its resolved permission set
type ViewerView struct {
	*domain.Viewer
	Effective []domain.Permission `json:"effective_permissions"`
}

func newViewerView(v *domain.Viewer) *ViewerView {
	return &ViewerView{Viewer: v, Effective: v.EffectivePermissions().Sorted()}
}

// Add grants a user a role on the workflow, with optional overrides
func (s *ViewerService) Add(ctx context.Context, actor *domain.Actor, workflowID string, in AddViewerInput) (*ViewerView, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, appErrors.NewValidationError("user_id", "user id is required")
	}
	role := domain.ViewerRole(in.Role)
	if !role.IsValid() {
		return nil, appErrors.NewValidationError("role", fmt.Sprintf("unknown role '%s'", in.Role))
	}

	var out *domain.Viewer
	err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		w, granter, err := s.granter(ctx, actor, workflowID)
		if err != nil {
			return err
		}
		v := &domain.Viewer{
			ID:         utils.GenerateID(),
			WorkflowID: w.ID,
			UserID:     in.UserID,
			Role:       role,
			AddedBy:    actor.UserID,
			AddedAt:    s.now(),
		}
		for name, allowed := range in.Permissions {
			p, err := domain.ParsePermission(name)
			if err != nil {
				return err
			}
			if allowed {
				v.GrantPermission(p)
			} else {
				v.RevokePermission(p)
			}
		}
		for p := range v.EffectivePermissions() {
			if !granter[p] {
				return appErrors.NewUserPermissionError(actor.UserID, "grant "+string(p), fmt.Sprintf("on workflow '%s'", w.ID))
			}
		}
		if err := s.store.Viewers.Create(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("viewer added", "workflow_id", workflowID, "user_id", in.UserID, "role", role, "actor", actor.UserID)
	return newViewerView(out), nil
}

// Remove revokes a user's access. Removing an absent viewer is a no-op.
func (s *ViewerService) Remove(ctx context.Context, actor *domain.Actor, workflowID, userID string) error {
	var removed bool
	err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		if _, _, err := s.granter(ctx, actor, workflowID); err != nil {
			return err
		}
		var err error
		removed, err = s.store.Viewers.Delete(ctx, workflowID, userID)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("viewer removed", "workflow_id", workflowID, "user_id", userID, "removed", removed)
	return nil
}

// ChangeRole switches a viewer's role, keeping overrides that still deviate
func (s *ViewerService) ChangeRole(ctx context.Context, actor *domain.Actor, workflowID, userID, role string) (*ViewerView, error) {
	return s.mutate(ctx, actor, workflowID, userID, func(v *domain.Viewer, granter domain.PermissionSet) error {
		if err := v.ChangeRole(domain.ViewerRole(role)); err != nil {
			return err
		}
		for p := range v.EffectivePermissions() {
			if !granter[p] {
				return appErrors.NewUserPermissionError(actor.UserID, "grant "+string(p), fmt.Sprintf("on workflow '%s'", workflowID))
			}
		}
		return nil
	})
}

// GrantPermission records an allow override
func (s *ViewerService) GrantPermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*ViewerView, error) {
	p, err := domain.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, workflowID, userID, func(v *domain.Viewer, granter domain.PermissionSet) error {
		if !granter[p] {
			return appErrors.NewUserPermissionError(actor.UserID, "grant "+string(p), fmt.Sprintf("on workflow '%s'", workflowID))
		}
		v.GrantPermission(p)
		return nil
	})
}

// RevokePermission records a deny override
func (s *ViewerService) RevokePermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*ViewerView, error) {
	p, err := domain.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, workflowID, userID, func(v *domain.Viewer, _ domain.PermissionSet) error {
		v.RevokePermission(p)
		return nil
	})
}

// ResetPermission drops any override so the role default applies again
func (s *ViewerService) ResetPermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*ViewerView, error) {
	p, err := domain.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, workflowID, userID, func(v *domain.Viewer, granter domain.PermissionSet) error {
		if domain.DefaultPermissions(v.Role)[p] && !granter[p] {
			return appErrors.NewUserPermissionError(actor.UserID, "grant "+string(p), fmt.Sprintf("on workflow '%s'", workflowID))
		}
		v.ResetPermission(p)
		return nil
	})
}

// Get returns one viewer entry
func (s *ViewerService) Get(ctx context.Context, actor *domain.Actor, workflowID, userID string) (*ViewerView, error) {
	w, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if actor == nil || actor.UserID != userID {
		if err := s.access.Authorize(ctx, actor, w, domain.PermViewProcess); err != nil {
			return nil, err
		}
	}
	v, err := s.store.Viewers.Get(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}
	return newViewerView(v), nil
}

// List returns every viewer of the workflow
func (s *ViewerService) List(ctx context.Context, actor *domain.Actor, workflowID string) ([]*ViewerView, error) {
	w, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, actor, w, domain.PermViewProcess); err != nil {
		return nil, err
	}
	viewers, err := s.store.Viewers.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]*ViewerView, 0, len(viewers))
	for _, v := range viewers {
		out = append(out, newViewerView(v))
	}
	return out, nil
}

// Check reports whether the actor holds permission on the workflow
func (s *ViewerService) Check(ctx context.Context, actor *domain.Actor, workflowID, permission string) (bool, error) {
	p, err := domain.ParsePermission(permission)
	if err != nil {
		return false, err
	}
	w, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return false, err
	}
	perms, err := s.access.EffectivePermissions(ctx, actor, w)
	if err != nil {
		return false, err
	}
	return perms[p], nil
}

func (s *ViewerService) mutate(ctx context.Context, actor *domain.Actor, workflowID, userID string, fn func(v *domain.Viewer, granter domain.PermissionSet) error) (*ViewerView, error) {
	var out *domain.Viewer
	err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		_, granter, err := s.granter(ctx, actor, workflowID)
		if err != nil {
			return err
		}
		v, err := s.store.Viewers.Get(ctx, workflowID, userID)
		if err != nil {
			return err
		}
		if err := fn(v, granter); err != nil {
			return err
		}
		if err := s.store.Viewers.Update(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("viewer updated", "workflow_id", workflowID, "user_id", userID, "role", out.Role, "actor", actor.UserID)
	return newViewerView(out), nil
}

// granter loads the workflow, checks the actor may manage its registry and
// returns what the actor holds.
func (s *ViewerService) granter(ctx context.Context, actor *domain.Actor, workflowID string) (*domain.Workflow, domain.PermissionSet, error) {
	w, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	if w.IsDeleted {
		return nil, nil, appErrors.NewNotFoundError("workflow", workflowID)
	}
	if err := s.access.AuthorizeManage(ctx, actor, w); err != nil {
		return nil, nil, err
	}
	perms, err := s.access.EffectivePermissions(ctx, actor, w)
	if err != nil {
		return nil, nil, err
	}
	return w, perms, nil
}
