// Package memory provides an in-process implementation of every storage port.
// It is used by `serve --storage memory`, by the service tests, and anywhere a
// MySQL instance is not available.
package memory

import (
	"context"
	"sync"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
)

type txContextKey struct{}

// Store keeps every entity in maps guarded by one mutex. Transactions are
// serialized and roll back by restoring a snapshot taken at begin.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *dataset
}

type dataset struct {
	workflows   *table[domain.Workflow]
	nodes       *table[domain.NodeDefinition]
	connections *table[domain.Connection]
	viewers     *table[domain.Viewer]
	candidates  *table[domain.CandidateWorkflow]
	executions  *table[domain.NodeExecution]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: &dataset{
		workflows:   newTable[domain.Workflow](),
		nodes:       newTable[domain.NodeDefinition](),
		connections: newTable[domain.Connection](),
		viewers:     newTable[domain.Viewer](),
		candidates:  newTable[domain.CandidateWorkflow](),
		executions:  newTable[domain.NodeExecution](),
	}}
}

// Ports exposes the store through the repository interfaces.
func (s *Store) Ports() ports.Store {
	return ports.Store{
		Workflows:   &workflowRepo{s},
		Nodes:       &nodeRepo{s},
		Connections: &connectionRepo{s},
		Viewers:     &viewerRepo{s},
		Candidates:  &candidateRepo{s},
		Executions:  &executionRepo{s},
		Tx:          s,
	}
}

// WithinTransaction runs fn with all-or-nothing semantics. Nested calls
// (ctx already inside a transaction) join the outer one.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txContextKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txContextKey{}, true)); err != nil {
		rollback()
	}
	return err
}

func (s *Store) read(fn func(d *dataset)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) write(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (d *dataset) clone() *dataset {
	return &dataset{
		workflows:   d.workflows.clone(copyWorkflow),
		nodes:       d.nodes.clone(copyNode),
		connections: d.connections.clone(copyConnection),
		viewers:     d.viewers.clone(copyViewer),
		candidates:  d.candidates.clone(copyCandidate),
		executions:  d.executions.clone(copyExecution),
	}
}

// table is an insertion-ordered map of rows.
type table[T any] struct {
	rows  map[string]*T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

func (t *table[T]) get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) put(id string, v *T) {
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table[T]) each(fn func(v *T)) {
	for _, id := range t.order {
		fn(t.rows[id])
	}
}

func (t *table[T]) clone(cp func(*T) *T) *table[T] {
	out := &table[T]{
		rows:  make(map[string]*T, len(t.rows)),
		order: append([]string(nil), t.order...),
	}
	for id, v := range t.rows {
		out.rows[id] = cp(v)
	}
	return out
}

func copyWorkflow(w *domain.Workflow) *domain.Workflow {
	c := *w
	c.Settings = w.Settings.Clone()
	return &c
}

func copyNode(n *domain.NodeDefinition) *domain.NodeDefinition {
	c := *n
	c.Config = n.Config.Clone()
	c.Requirements = n.Requirements.Clone()
	return &c
}

func copyConnection(cn *domain.Connection) *domain.Connection {
	c := *cn
	return &c
}

func copyViewer(v *domain.Viewer) *domain.Viewer {
	c := *v
	if v.Permissions != nil {
		c.Permissions = make(map[domain.Permission]bool, len(v.Permissions))
		for p, ok := range v.Permissions {
			c.Permissions[p] = ok
		}
	}
	return &c
}

func copyCandidate(cw *domain.CandidateWorkflow) *domain.CandidateWorkflow {
	c := *cw
	return &c
}

func copyExecution(e *domain.NodeExecution) *domain.NodeExecution {
	c := *e
	c.ExecutionData = e.ExecutionData.Clone()
	return &c
}
