package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

func TestCandidateService_UniqueRunPerCandidate(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	f.candidate(w.ID, "7", false)

	_, err := f.sm.Candidates.Create(f.ctx, owner, CreateCandidateInput{CandidateID: "7", WorkflowID: w.ID})
	assert.True(t, appErrors.IsConflict(err))

	runs, err := f.sm.Candidates.ListByWorkflow(f.ctx, owner, w.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestCandidateService_CreateRequiresActiveWorkflow(t *testing.T) {
	f := newFixture(t, nil)
	w := f.draft("Not live yet")
	f.addNode(w.ID, NodeInput{Title: "Screen"})

	_, err := f.sm.Candidates.Create(f.ctx, owner, CreateCandidateInput{CandidateID: "7", WorkflowID: w.ID})
	var ise *appErrors.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "draft", ise.Current)
	assert.Equal(t, w.ID, ise.ID)
}

func TestCandidateService_CreateRequiresManageAssignments(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	f.grant(w.ID, recruiter, domain.RoleRecruiter)

	_, err := f.sm.Candidates.Create(f.ctx, recruiter, CreateCandidateInput{CandidateID: "7", WorkflowID: w.ID})
	assert.True(t, appErrors.IsPermission(err))

	_, err = f.sm.Viewers.GrantPermission(f.ctx, owner, w.ID, recruiter.UserID, string(domain.PermManageAssignments))
	require.NoError(t, err)
	cw, err := f.sm.Candidates.Create(f.ctx, recruiter, CreateCandidateInput{CandidateID: "7", WorkflowID: w.ID, AssignedRecruiterID: recruiter.UserID})
	require.NoError(t, err)
	assert.Equal(t, recruiter.UserID, *cw.AssignedRecruiterID)
	assert.Equal(t, t0, *cw.AssignedAt)
}

func TestCandidateService_HoldOnCompletedRunFails(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(NodeInput{Title: "Only"})
	cw := f.candidate(w.ID, "7", true)
	f.pass(f.execution(cw.ID, nodes[0].ID).ID)
	require.Equal(t, domain.CandidateCompleted, f.run(cw.ID).Status)

	_, err := f.sm.Candidates.PutOnHold(f.ctx, owner, cw.ID)
	var ise *appErrors.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "completed", ise.Current)
	assert.Equal(t, cw.ID, ise.ID)
}

func TestCandidateService_HoldAndResume(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", true)

	held, err := f.sm.Candidates.PutOnHold(f.ctx, owner, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateOnHold, held.Status)

	_, err = f.sm.Candidates.PutOnHold(f.ctx, owner, cw.ID)
	assert.True(t, appErrors.IsInvalidState(err))

	resumed, err := f.sm.Candidates.Resume(f.ctx, owner, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateInProgress, resumed.Status)
}

func TestCandidateService_Withdraw(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", true)

	out, err := f.sm.Candidates.Withdraw(f.ctx, owner, cw.ID, "accepted another offer")
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateWithdrawn, out.Status)
	assert.Equal(t, domain.FinalResultWithdrawn, *out.FinalResult)
	assert.Nil(t, out.CurrentNodeID)
	assert.Equal(t, "accepted another offer", out.Notes)
	assert.Equal(t, 1, f.events.count(events.CandidateWithdrawn))

	_, err = f.sm.Candidates.Withdraw(f.ctx, owner, cw.ID, "")
	assert.True(t, appErrors.IsInvalidState(err))
}

func TestCandidateService_FailPinsCurrentNode(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(NodeInput{Title: "Screen"}, NodeInput{Title: "Tech"})
	cw := f.candidate(w.ID, "7", true)

	out, err := f.sm.Candidates.Fail(f.ctx, owner, cw.ID, "culture mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateFailed, out.Status)
	assert.Equal(t, nodes[0].ID, *out.CurrentNodeID)
	assert.Equal(t, domain.FinalResultFailed, *out.FinalResult)
	assert.NotNil(t, out.FailedAt)
}

func TestCandidateService_ManualComplete(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", true)

	_, err := f.sm.Candidates.Complete(f.ctx, owner, cw.ID, CompleteCandidateInput{})
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.sm.Candidates.Complete(f.ctx, owner, cw.ID, CompleteCandidateInput{FinalResult: "pass", Score: floatPtr(101)})
	assert.True(t, appErrors.IsValidation(err))

	out, err := f.sm.Candidates.Complete(f.ctx, owner, cw.ID, CompleteCandidateInput{FinalResult: domain.FinalResultPendingReview, Score: floatPtr(64), Notes: strPtr("borderline")})
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateCompleted, out.Status)
	assert.Equal(t, 64.0, *out.OverallScore)
	assert.Equal(t, "borderline", out.Notes)
}

func TestCandidateService_NotesNeedAddNotes(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", false)
	f.grant(w.ID, observer, domain.RoleObserver)

	_, err := f.sm.Candidates.UpdateNotes(f.ctx, observer, cw.ID, "hi")
	assert.True(t, appErrors.IsPermission(err))

	f.grant(w.ID, recruiter, domain.RoleAssistant)
	out, err := f.sm.Candidates.UpdateNotes(f.ctx, recruiter, cw.ID, "called references")
	require.NoError(t, err)
	assert.Equal(t, "called references", out.Notes)

	got, err := f.sm.Candidates.Get(f.ctx, observer, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, "called references", got.Notes)
}

func TestCandidateService_AssignRecruiter(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", false)

	f.clock.Advance(time.Hour)
	out, err := f.sm.Candidates.AssignRecruiter(f.ctx, owner, cw.ID, "rec-9")
	require.NoError(t, err)
	assert.Equal(t, "rec-9", *out.AssignedRecruiterID)
	assert.Equal(t, t0.Add(time.Hour), *out.AssignedAt)

	_, err = f.sm.Candidates.AssignRecruiter(f.ctx, owner, cw.ID, " ")
	assert.True(t, appErrors.IsValidation(err))
}

func TestCandidateService_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(NodeInput{Title: "A"}, NodeInput{Title: "B"}, NodeInput{Title: "C"})
	cw := f.candidate(w.ID, "7", true)

	percentage := func() float64 {
		p, err := f.sm.Candidates.Progress(f.ctx, owner, cw.ID)
		require.NoError(t, err)
		return p.ProgressPercentage
	}

	seen := []float64{percentage()}
	for _, n := range nodes {
		f.pass(f.execution(cw.ID, n.ID).ID)
		seen = append(seen, percentage())
	}

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 0.0, seen[0])
	assert.InDelta(t, 100.0/3, seen[1], 1e-9)
	assert.Equal(t, 100.0, seen[len(seen)-1])
}

func TestCandidateService_ProgressReport(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(
		NodeInput{Title: "Screen", EstimatedDurationMinutes: intPtr(30)},
		NodeInput{Title: "Tech"},
	)
	cw := f.candidate(w.ID, "7", true)
	f.clock.Advance(2 * time.Hour)

	p, err := f.sm.Candidates.Progress(f.ctx, owner, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalNodes)
	require.Len(t, p.Nodes, 2)

	assert.Equal(t, nodes[0].ID, p.Nodes[0].NodeID)
	assert.Equal(t, string(domain.ExecutionPending), p.Nodes[0].Status)
	assert.True(t, p.Nodes[0].Current)
	assert.True(t, p.Nodes[0].Overdue)

	assert.Equal(t, ProgressStatusNotReached, p.Nodes[1].Status)
	assert.False(t, p.Nodes[1].Current)
	assert.Empty(t, p.Nodes[1].ExecutionID)
}

func TestCandidateService_ReadsNeedViewCandidates(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", false)

	_, err := f.sm.Candidates.Get(f.ctx, outsider, cw.ID)
	assert.True(t, appErrors.IsPermission(err))
	_, err = f.sm.Candidates.Progress(f.ctx, outsider, cw.ID)
	assert.True(t, appErrors.IsPermission(err))
	_, err = f.sm.Candidates.ListByWorkflow(f.ctx, outsider, w.ID)
	assert.True(t, appErrors.IsPermission(err))

	got, err := f.sm.Candidates.Get(f.ctx, sysAdmin, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, "7", got.CandidateID)
}

func TestCandidateService_DeleteCascadesToExecutions(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(NodeInput{Title: "Screen"}, NodeInput{Title: "Tech"})
	cw := f.candidate(w.ID, "7", true)
	f.execution(cw.ID, nodes[0].ID)

	err := f.sm.Candidates.Delete(f.ctx, owner, cw.ID)
	var ise *appErrors.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "in_progress", ise.Current)

	_, err = f.sm.Candidates.Withdraw(f.ctx, owner, cw.ID, "accepted another offer")
	require.NoError(t, err)
	require.NoError(t, f.sm.Candidates.Delete(f.ctx, owner, cw.ID))

	_, err = f.sm.Store.Candidates.Get(f.ctx, cw.ID)
	assert.True(t, appErrors.IsNotFound(err))
	left, err := f.sm.Store.Executions.ListByCandidateWorkflow(f.ctx, cw.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	again := f.candidate(w.ID, "7", false)
	assert.NotEqual(t, cw.ID, again.ID)
}

func TestCandidateService_DeleteRequiresManageAssignments(t *testing.T) {
	f := newFixture(t, nil)
	w, _ := f.chain(NodeInput{Title: "Screen"})
	cw := f.candidate(w.ID, "7", false)
	f.grant(w.ID, observer, domain.RoleObserver)

	assert.True(t, appErrors.IsPermission(f.sm.Candidates.Delete(f.ctx, observer, cw.ID)))
	assert.True(t, appErrors.IsNotFound(f.sm.Candidates.Delete(f.ctx, owner, "missing")))
}

func TestCandidateService_ClosingRunClosesOpenExecutions(t *testing.T) {
	tests := []struct {
		name   string
		close  func(f *fixture, id string) error
		status domain.CandidateStatus
		exec   domain.ExecutionStatus
	}{
		{
			name: "withdraw",
			close: func(f *fixture, id string) error {
				_, err := f.sm.Candidates.Withdraw(f.ctx, owner, id, "took another offer")
				return err
			},
			status: domain.CandidateWithdrawn,
			exec:   domain.ExecutionSkipped,
		},
		{
			name: "fail",
			close: func(f *fixture, id string) error {
				_, err := f.sm.Candidates.Fail(f.ctx, owner, id, "references did not check out")
				return err
			},
			status: domain.CandidateFailed,
			exec:   domain.ExecutionFailed,
		},
		{
			name: "manual complete",
			close: func(f *fixture, id string) error {
				_, err := f.sm.Candidates.Complete(f.ctx, owner, id, CompleteCandidateInput{FinalResult: domain.FinalResultPass})
				return err
			},
			status: domain.CandidateCompleted,
			exec:   domain.ExecutionSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			w, nodes := f.chain(
				NodeInput{Title: "Screen", EstimatedDurationMinutes: intPtr(30)},
				NodeInput{Title: "Tech"},
			)
			cw := f.candidate(w.ID, "7", true)

			require.NoError(t, tt.close(f, cw.ID))
			assert.Equal(t, tt.status, f.run(cw.ID).Status)

			exec := f.execution(cw.ID, nodes[0].ID)
			assert.Equal(t, tt.exec, exec.Status)
			require.NotNil(t, exec.CompletedBy)
			assert.Equal(t, owner.UserID, *exec.CompletedBy)

			f.clock.Advance(24 * time.Hour)
			n, err := f.sm.Sweeper.Sweep(f.ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "closed runs have nothing overdue")
			assert.Zero(t, f.events.count(events.ExecutionOverdue))
		})
	}
}

func TestCandidateService_ResumeWithOpenExecutionStaysPut(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(NodeInput{Title: "Screen"}, NodeInput{Title: "Tech"})
	cw := f.candidate(w.ID, "7", true)
	_, err := f.sm.Candidates.PutOnHold(f.ctx, owner, cw.ID)
	require.NoError(t, err)

	run, err := f.sm.Candidates.Resume(f.ctx, owner, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, nodes[0].ID, *run.CurrentNodeID)
	assert.Equal(t, domain.ExecutionPending, f.execution(cw.ID, nodes[0].ID).Status)
}
