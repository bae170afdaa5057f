package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/internal/infrastructure/memory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	owner     = &domain.Actor{UserID: "owner-1", Name: "Olivia Owner", Role: domain.ActorRoleUser}
	recruiter = &domain.Actor{UserID: "rec-1", Name: "Rico Recruiter", Role: domain.ActorRoleUser}
	observer  = &domain.Actor{UserID: "obs-1", Name: "Omar Observer", Role: domain.ActorRoleUser}
	outsider  = &domain.Actor{UserID: "nobody", Name: "Nora Nobody", Role: domain.ActorRoleUser}
	sysAdmin  = &domain.Actor{UserID: "root", Name: "Root", Role: domain.ActorRoleSystemAdmin}
	service   = &domain.Actor{UserID: "exam-service", Name: "Exam service", Role: domain.ActorRoleService}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventRecorder captures every published event type in order.
type eventRecorder struct {
	mu    sync.Mutex
	types []events.EventType
	last  map[events.EventType]interface{}
}

func newEventRecorder(bus *EventBus) *eventRecorder {
	r := &eventRecorder{last: make(map[events.EventType]interface{})}
	for _, et := range []events.EventType{
		events.WorkflowActivated, events.WorkflowArchived,
		events.CandidateStarted, events.CandidateCompleted, events.CandidateFailed, events.CandidateWithdrawn,
		events.ExecutionCreated, events.ExecutionCompleted, events.ExecutionFailed, events.ExecutionSkipped,
		events.ExecutionOverdue,
	} {
		et := et
		bus.Subscribe(et, func(_ context.Context, payload interface{}) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.types = append(r.types, et)
			r.last[et] = payload
			return nil
		})
	}
	return r
}

func (r *eventRecorder) count(et events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == et {
			n++
		}
	}
	return n
}

func (r *eventRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.types)
}

// mockDispatcher is a testify mock of ports.TaskDispatcher.
type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, req ports.TaskRequest) (*ports.TaskLinkage, error) {
	args := m.Called(ctx, req)
	linkage, _ := args.Get(0).(*ports.TaskLinkage)
	return linkage, args.Error(1)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	sm     *ServiceManager
	clock  *testClock
	events *eventRecorder
}

func newFixture(t *testing.T, dispatcher ports.TaskDispatcher) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.NewStore().Ports(), dispatcher)
}

// newFixtureOn builds the fixture over store, for tests that wrap a repository.
func newFixtureOn(t *testing.T, store ports.Store, dispatcher ports.TaskDispatcher) *fixture {
	t.Helper()
	clock := &testClock{now: t0}
	sm, err := NewServiceManager(store, Options{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:      clock.Now,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)
	return &fixture{t: t, ctx: context.Background(), sm: sm, clock: clock, events: newEventRecorder(sm.EventBus)}
}

func (f *fixture) draft(name string) *domain.Workflow {
	f.t.Helper()
	w, err := f.sm.Workflows.Create(f.ctx, owner, CreateWorkflowInput{Name: name, CompanyID: "acme"})
	require.NoError(f.t, err)
	return w
}

func (f *fixture) addNode(workflowID string, in NodeInput) *domain.NodeDefinition {
	f.t.Helper()
	if in.Type == "" {
		in.Type = domain.NodeTypeScreening
	}
	n, err := f.sm.Workflows.AddNode(f.ctx, owner, workflowID, in)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) connect(workflowID, from, to, condition string) *domain.Connection {
	f.t.Helper()
	c, err := f.sm.Workflows.AddConnection(f.ctx, owner, workflowID, ConnectionInput{SourceNodeID: from, TargetNodeID: to, Condition: condition})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) activate(workflowID string) {
	f.t.Helper()
	_, err := f.sm.Workflows.Activate(f.ctx, owner, workflowID)
	require.NoError(f.t, err)
}

// chain builds and activates a workflow whose nodes run in the given order.
func (f *fixture) chain(inputs ...NodeInput) (*domain.Workflow, []*domain.NodeDefinition) {
	f.t.Helper()
	w := f.draft("Backend engineer")
	nodes := make([]*domain.NodeDefinition, 0, len(inputs))
	for _, in := range inputs {
		nodes = append(nodes, f.addNode(w.ID, in))
	}
	f.activate(w.ID)
	return w, nodes
}

func (f *fixture) candidate(workflowID, candidateID string, start bool) *domain.CandidateWorkflow {
	f.t.Helper()
	cw, err := f.sm.Candidates.Create(f.ctx, owner, CreateCandidateInput{CandidateID: candidateID, WorkflowID: workflowID, Start: start})
	require.NoError(f.t, err)
	return cw
}

func (f *fixture) grant(workflowID string, actor *domain.Actor, role domain.ViewerRole) {
	f.t.Helper()
	_, err := f.sm.Viewers.Add(f.ctx, owner, workflowID, AddViewerInput{UserID: actor.UserID, Role: string(role)})
	require.NoError(f.t, err)
}

func (f *fixture) execution(cwID, nodeID string) *domain.NodeExecution {
	f.t.Helper()
	e, err := f.sm.Store.Executions.FindByNode(f.ctx, cwID, nodeID)
	require.NoError(f.t, err)
	require.NotNil(f.t, e, "no execution for node %s", nodeID)
	return e
}

func (f *fixture) run(id string) *domain.CandidateWorkflow {
	f.t.Helper()
	cw, err := f.sm.Store.Candidates.Get(f.ctx, id)
	require.NoError(f.t, err)
	return cw
}

func (f *fixture) pass(execID string) *CompletionReceipt {
	f.t.Helper()
	r, err := f.sm.Orchestration.OnExternalCompletion(f.ctx, execID, ExternalOutcome{Result: domain.ResultPass})
	require.NoError(f.t, err)
	return r
}

func intPtr(i int) *int           { return &i }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(b bool) *bool        { return &b }
