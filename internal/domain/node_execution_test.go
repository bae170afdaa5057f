package domain

import (
	"testing"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name        string
		from        ExecutionStatus
		action      ExecutionTransition
		expectedTo  ExecutionStatus
		shouldError bool
	}{
		{"Pending -> Scheduled", ExecutionPending, ExecutionSchedule, ExecutionScheduled, false},
		{"Pending -> InProgress", ExecutionPending, ExecutionStart, ExecutionInProgress, false},
		{"Scheduled -> InProgress", ExecutionScheduled, ExecutionStart, ExecutionInProgress, false},
		{"InProgress -> AwaitingInput", ExecutionInProgress, ExecutionAwait, ExecutionAwaitingInput, false},
		{"AwaitingInput -> Completed", ExecutionAwaitingInput, ExecutionComplete, ExecutionCompleted, false},
		{"Pending -> Skipped", ExecutionPending, ExecutionSkip, ExecutionSkipped, false},
		{"Scheduled -> Failed", ExecutionScheduled, ExecutionFail, ExecutionFailed, false},

		{"Pending -> Completed (invalid)", ExecutionPending, ExecutionComplete, ExecutionPending, true},
		{"Scheduled -> Scheduled (invalid)", ExecutionScheduled, ExecutionSchedule, ExecutionScheduled, true},
		{"AwaitingInput -> InProgress via start (invalid)", ExecutionAwaitingInput, ExecutionStart, ExecutionAwaitingInput, true},
		{"Completed -> Failed (terminal)", ExecutionCompleted, ExecutionFail, ExecutionCompleted, true},
		{"Skipped -> Skipped (terminal)", ExecutionSkipped, ExecutionSkip, ExecutionSkipped, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := executionStates.Transition("ex", tc.from, tc.action)
			if tc.shouldError {
				assert.True(t, appErrors.IsInvalidState(err))
				assert.Equal(t, tc.from, next)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedTo, next)
			}
		})
	}
}

func TestExecutionStateMachine_ValidTransitionsFromState(t *testing.T) {
	assert.Equal(t,
		[]ExecutionTransition{ExecutionFail, ExecutionSchedule, ExecutionSkip, ExecutionStart},
		ValidExecutionTransitions(ExecutionPending))
	assert.Empty(t, ValidExecutionTransitions(ExecutionCompleted))
}

func TestNodeExecution_HappyPath(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	due := t0.Add(48 * time.Hour)
	require.NoError(t, e.Schedule(&due, t0))
	require.NoError(t, e.Start("interviewer", t0.Add(time.Hour)))
	assert.Equal(t, "interviewer", *e.AssignedTo)
	require.NoError(t, e.AwaitInput(t0.Add(2*time.Hour)))

	score := 74.0
	feedback := "solid"
	require.NoError(t, e.Complete(ResultPass, "interviewer", &score, &feedback, Payload{"panel": 3}, t0.Add(3*time.Hour)))
	assert.Equal(t, ExecutionCompleted, e.Status)
	assert.Equal(t, ResultPass, *e.Result)
	assert.Equal(t, 74.0, *e.Score)
	assert.Equal(t, "solid", e.Feedback)
	assert.Equal(t, 3, e.ExecutionData["panel"])
	assert.Equal(t, "interviewer", *e.CompletedBy)

	d := e.DurationMinutes()
	require.NotNil(t, d)
	assert.Equal(t, 120.0, *d)
}

func TestNodeExecution_CompleteFromPendingFails(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	err := e.Complete(ResultPass, "u", nil, nil, nil, t0)
	var ise *appErrors.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "pending", ise.Current)
	assert.Equal(t, "complete", ise.Requested)
	assert.Equal(t, "ex-1", ise.ID)
}

func TestNodeExecution_ScoreRange(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	require.NoError(t, e.Start("", t0))
	neg := -1.0
	assert.True(t, appErrors.IsValidation(e.Complete(ResultPass, "u", &neg, nil, nil, t0)))
	assert.Equal(t, ExecutionInProgress, e.Status)
}

func TestNodeExecution_FailAndSkip(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	require.NoError(t, e.Fail("u", "candidate no-show", t0))
	assert.Equal(t, ResultFail, *e.Result)
	assert.Equal(t, "candidate no-show", e.Feedback)
	assert.NotNil(t, e.CompletedAt)
	assert.True(t, e.IsTerminal())
	assert.True(t, appErrors.IsInvalidState(e.Skip("u", "", t0)))

	s := NewNodeExecution("ex-2", "cw-1", "node-b", t0)
	require.NoError(t, s.Schedule(nil, t0))
	require.NoError(t, s.Skip("u", "not needed", t0))
	assert.Equal(t, ExecutionSkipped, s.Status)
	assert.Equal(t, ResultSkipped, *s.Result)
}

func TestNodeExecution_LinksAndReview(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	e.LinkInterview("int-1", t0)
	e.LinkInterview("int-2", t0)
	e.LinkTask("task-9", t0)
	assert.Equal(t, "int-2", *e.LinkedInterviewID)
	assert.Equal(t, "task-9", *e.LinkedTaskID)

	notes := "calibrated"
	e.AddReview("lead", &notes, t0)
	assert.Equal(t, "lead", *e.ReviewedBy)
	assert.Equal(t, "calibrated", e.AssessorNotes)
	assert.Equal(t, ExecutionPending, e.Status)
}

func TestNodeExecution_IsOverdue(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	assert.False(t, e.IsOverdue(t0.Add(time.Hour)), "no due date")

	due := t0.Add(time.Hour)
	require.NoError(t, e.Schedule(&due, t0))
	assert.False(t, e.IsOverdue(due))
	assert.True(t, e.IsOverdue(due.Add(time.Second)))

	require.NoError(t, e.Start("", t0))
	require.NoError(t, e.Complete(ResultPass, "u", nil, nil, nil, due.Add(time.Minute)))
	assert.False(t, e.IsOverdue(due.Add(time.Hour)))
}

func TestNodeExecution_DurationAbsentWithoutStart(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	require.NoError(t, e.Skip("u", "", t0))
	assert.Nil(t, e.DurationMinutes())
}

func TestNodeExecution_OutcomeEnv(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	require.NoError(t, e.Start("", t0))
	score := 90.0
	require.NoError(t, e.Complete(ResultPass, "u", &score, nil, Payload{"level": "senior"}, t0))

	env := e.OutcomeEnv()
	assert.Equal(t, "pass", env["result"])
	assert.Equal(t, 90.0, env["score"])
	assert.Equal(t, "completed", env["status"])
	assert.Equal(t, "senior", env["execution_data"].(map[string]interface{})["level"])
}

func TestNodeExecution_OverrideResult(t *testing.T) {
	e := NewNodeExecution("ex-1", "cw-1", "node-a", t0)
	assert.True(t, appErrors.IsInvalidState(e.OverrideResult(ResultApproved, nil, "lead", t0)))

	require.NoError(t, e.Start("", t0))
	require.NoError(t, e.Complete(ResultPendingReview, "u", nil, nil, nil, t0))
	score := 88.0
	require.NoError(t, e.OverrideResult(ResultApproved, &score, "lead", t0))
	assert.Equal(t, ResultApproved, *e.Result)
	assert.Equal(t, 88.0, *e.Score)
	assert.Equal(t, "lead", *e.ReviewedBy)
	assert.True(t, appErrors.IsValidation(e.OverrideResult("", nil, "lead", t0)))
}
