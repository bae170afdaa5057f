package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/domain"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

func TestViewerService_OverrideRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, observer, domain.RoleObserver)

	check := func() bool {
		ok, err := f.sm.Viewers.Check(f.ctx, observer, w.ID, string(domain.PermExecuteNodes))
		require.NoError(t, err)
		return ok
	}
	assert.False(t, check())

	v, err := f.sm.Viewers.GrantPermission(f.ctx, owner, w.ID, observer.UserID, string(domain.PermExecuteNodes))
	require.NoError(t, err)
	assert.Contains(t, v.Effective, domain.PermExecuteNodes)
	assert.True(t, check())

	_, err = f.sm.Viewers.RevokePermission(f.ctx, owner, w.ID, observer.UserID, string(domain.PermExecuteNodes))
	require.NoError(t, err)
	assert.False(t, check())

	v, err = f.sm.Viewers.ResetPermission(f.ctx, owner, w.ID, observer.UserID, string(domain.PermExecuteNodes))
	require.NoError(t, err)
	assert.Empty(t, v.Permissions, "only deviations from the role default are stored")
	assert.False(t, check())
}

func TestViewerService_RevokeRoleDefault(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, recruiter, domain.RoleRecruiter)

	v, err := f.sm.Viewers.RevokePermission(f.ctx, owner, w.ID, recruiter.UserID, string(domain.PermRecordResults))
	require.NoError(t, err)
	assert.NotContains(t, v.Effective, domain.PermRecordResults)
	assert.Contains(t, v.Effective, domain.PermExecuteNodes)

	got, err := f.sm.Viewers.Get(f.ctx, recruiter, w.ID, recruiter.UserID)
	require.NoError(t, err)
	assert.Equal(t, v.Effective, got.Effective)
}

func TestViewerService_NoEscalation(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, recruiter, domain.RoleAdmin)
	_, err := f.sm.Viewers.RevokePermission(f.ctx, owner, w.ID, recruiter.UserID, string(domain.PermOverrideResults))
	require.NoError(t, err)

	_, err = f.sm.Viewers.Add(f.ctx, recruiter, w.ID, AddViewerInput{UserID: observer.UserID, Role: string(domain.RoleAdmin)})
	assert.True(t, appErrors.IsPermission(err), "cannot hand out a role wider than one's own")

	_, err = f.sm.Viewers.Add(f.ctx, recruiter, w.ID, AddViewerInput{
		UserID:      observer.UserID,
		Role:        string(domain.RoleObserver),
		Permissions: map[string]bool{string(domain.PermOverrideResults): true},
	})
	assert.True(t, appErrors.IsPermission(err))

	v, err := f.sm.Viewers.Add(f.ctx, recruiter, w.ID, AddViewerInput{UserID: observer.UserID, Role: string(domain.RoleRecruiter)})
	require.NoError(t, err)
	assert.Equal(t, recruiter.UserID, v.AddedBy)

	_, err = f.sm.Viewers.GrantPermission(f.ctx, recruiter, w.ID, observer.UserID, string(domain.PermOverrideResults))
	assert.True(t, appErrors.IsPermission(err))
	_, err = f.sm.Viewers.ChangeRole(f.ctx, recruiter, w.ID, observer.UserID, string(domain.RoleAdmin))
	assert.True(t, appErrors.IsPermission(err))
}

func TestViewerService_RegistryNeedsManage(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, recruiter, domain.RoleRecruiter)

	_, err := f.sm.Viewers.Add(f.ctx, recruiter, w.ID, AddViewerInput{UserID: observer.UserID, Role: string(domain.RoleObserver)})
	assert.True(t, appErrors.IsPermission(err))

	err = f.sm.Viewers.Remove(f.ctx, recruiter, w.ID, recruiter.UserID)
	assert.True(t, appErrors.IsPermission(err))

	list, err := f.sm.Viewers.List(f.ctx, recruiter, w.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.sm.Viewers.List(f.ctx, outsider, w.ID)
	assert.True(t, appErrors.IsPermission(err))
}

func TestViewerService_AddValidation(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, observer, domain.RoleObserver)

	_, err := f.sm.Viewers.Add(f.ctx, owner, w.ID, AddViewerInput{UserID: observer.UserID, Role: string(domain.RoleRecruiter)})
	assert.True(t, appErrors.IsConflict(err), "one entry per user")

	_, err = f.sm.Viewers.Add(f.ctx, owner, w.ID, AddViewerInput{UserID: "u2", Role: "overlord"})
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.sm.Viewers.Add(f.ctx, owner, w.ID, AddViewerInput{UserID: "", Role: string(domain.RoleObserver)})
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.sm.Viewers.GrantPermission(f.ctx, owner, w.ID, observer.UserID, "fly")
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.sm.Viewers.Check(f.ctx, owner, w.ID, "fly")
	assert.True(t, appErrors.IsValidation(err))
}

func TestViewerService_RemoveIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, observer, domain.RoleObserver)

	require.NoError(t, f.sm.Viewers.Remove(f.ctx, owner, w.ID, observer.UserID))
	require.NoError(t, f.sm.Viewers.Remove(f.ctx, owner, w.ID, observer.UserID))

	ok, err := f.sm.Viewers.Check(f.ctx, observer, w.ID, string(domain.PermViewProcess))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.sm.Viewers.Get(f.ctx, owner, w.ID, observer.UserID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestViewerService_ChangeRoleKeepsDeviations(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")
	f.grant(w.ID, observer, domain.RoleObserver)
	_, err := f.sm.Viewers.GrantPermission(f.ctx, owner, w.ID, observer.UserID, string(domain.PermOverrideResults))
	require.NoError(t, err)

	v, err := f.sm.Viewers.ChangeRole(f.ctx, owner, w.ID, observer.UserID, string(domain.RoleRecruiter))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRecruiter, v.Role)
	assert.Contains(t, v.Effective, domain.PermExecuteNodes)
	assert.Contains(t, v.Effective, domain.PermOverrideResults)

	_, err = f.sm.Viewers.ChangeRole(f.ctx, owner, w.ID, observer.UserID, "overlord")
	assert.True(t, appErrors.IsValidation(err))
}

func TestViewerService_OwnerAndAdminsImplicit(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Draft")

	for _, actor := range []*domain.Actor{owner, sysAdmin} {
		ok, err := f.sm.Viewers.Check(f.ctx, actor, w.ID, string(domain.PermOverrideResults))
		require.NoError(t, err)
		assert.True(t, ok, actor.UserID)
	}
	ok, err := f.sm.Viewers.Check(f.ctx, outsider, w.ID, string(domain.PermViewProcess))
	require.NoError(t, err)
	assert.False(t, ok)
}
