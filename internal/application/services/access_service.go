package services

import (
	"context"
	"fmt"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// AccessService answers "may this actor do X on this workflow".
// Reads are lock-free: they go straight to the viewer repository.
type AccessService struct {
	viewers ports.ViewerRepository
}

// NewAccessService creates a new AccessService
func NewAccessService(viewers ports.ViewerRepository) *AccessService {
	return &AccessService{viewers: viewers}
}

// EffectivePermissions resolves what the actor holds on the workflow.
// System admins and the workflow owner hold everything.
func (s *AccessService) EffectivePermissions(ctx context.Context, actor *domain.Actor, w *domain.Workflow) (domain.PermissionSet, error) {
	if actor == nil {
		return nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	if actor.IsSystemAdmin() || w.CreatedBy == actor.UserID {
		return domain.DefaultPermissions(domain.RoleAdmin), nil
	}
	v, err := s.viewers.Get(ctx, w.ID, actor.UserID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return domain.PermissionSet{}, nil
		}
		return nil, err
	}
	return v.EffectivePermissions(), nil
}

// Authorize fails with a PermissionError unless the actor holds perm.
func (s *AccessService) Authorize(ctx context.Context, actor *domain.Actor, w *domain.Workflow, perm domain.Permission) error {
	perms, err := s.EffectivePermissions(ctx, actor, w)
	if err != nil {
		return err
	}
	if !perms[perm] {
		return appErrors.NewUserPermissionError(actor.UserID, string(perm), fmt.Sprintf("on workflow '%s'", w.ID))
	}
	return nil
}

// AuthorizeManage allows the owner, system admins and admin-role viewers.
func (s *AccessService) AuthorizeManage(ctx context.Context, actor *domain.Actor, w *domain.Workflow) error {
	if actor == nil {
		return appErrors.NewUnauthorizedError("no actor on request")
	}
	if actor.IsSystemAdmin() || w.CreatedBy == actor.UserID {
		return nil
	}
	v, err := s.viewers.Get(ctx, w.ID, actor.UserID)
	if err != nil && !appErrors.IsNotFound(err) {
		return err
	}
	if v != nil && v.Role == domain.RoleAdmin {
		return nil
	}
	return appErrors.NewUserPermissionError(actor.UserID, "manage", fmt.Sprintf("workflow '%s'", w.ID))
}
