package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/domain/events"
)

func TestOverdueSweeper_RejectsBadSchedule(t *testing.T) {
	_, err := NewOverdueSweeper(nil, nil, "every tuesday", nil)
	assert.Error(t, err)

	s, err := NewOverdueSweeper(nil, nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOverdueSchedule, s.schedule)
}

func TestOverdueSweeper_Sweep(t *testing.T) {
	f := newFixture(t, nil)
	w, nodes := f.chain(
		NodeInput{Title: "Screen", EstimatedDurationMinutes: intPtr(30)},
		NodeInput{Title: "Tech", EstimatedDurationMinutes: intPtr(30)},
	)
	a := f.candidate(w.ID, "7", true)
	b := f.candidate(w.ID, "8", true)
	f.candidate(w.ID, "9", false)

	n, err := f.sm.Sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	f.pass(f.execution(b.ID, nodes[0].ID).ID)

	n, err = f.sm.Sweeper.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "b moved on to a fresh node; c never started")
	assert.Equal(t, 1, f.events.count(events.ExecutionOverdue))

	payload, ok := f.events.last[events.ExecutionOverdue].(events.ExecutionPayload)
	require.True(t, ok)
	assert.Equal(t, a.ID, payload.CandidateWorkflowID)
	assert.Equal(t, "pending", payload.Status)

	assert.Equal(t, "pending", string(f.execution(a.ID, nodes[0].ID).Status), "sweeping never changes state")
}

func TestOverdueSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.sm.Sweeper.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.sm.Sweeper.mu.Lock()
		defer f.sm.Sweeper.mu.Unlock()
		return f.sm.Sweeper.running
	}, time.Second, 5*time.Millisecond)
	assert.Error(t, f.sm.Sweeper.Run(ctx), "a second Run is refused")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
