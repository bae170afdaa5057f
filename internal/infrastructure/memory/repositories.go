package memory

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// ---- workflows ----

type workflowRepo struct{ s *Store }

func (r *workflowRepo) Create(_ context.Context, w *domain.Workflow) error {
	return r.s.write(func(d *dataset) error {
		if _, exists := d.workflows.get(w.ID); exists {
			return appErrors.NewConflictError("workflow", "id", w.ID)
		}
		d.workflows.put(w.ID, copyWorkflow(w))
		return nil
	})
}

func (r *workflowRepo) Get(_ context.Context, id string) (*domain.Workflow, error) {
	var out *domain.Workflow
	r.s.read(func(d *dataset) {
		if w, ok := d.workflows.get(id); ok {
			out = copyWorkflow(w)
		}
	})
	if out == nil {
		return nil, appErrors.NewNotFoundError("workflow", id)
	}
	return out, nil
}

func (r *workflowRepo) Update(_ context.Context, w *domain.Workflow) error {
	return r.s.write(func(d *dataset) error {
		cur, ok := d.workflows.get(w.ID)
		if !ok {
			return appErrors.NewNotFoundError("workflow", w.ID)
		}
		if cur.LockVersion != w.LockVersion {
			return appErrors.NewStaleStateError("workflow", w.ID, w.LockVersion)
		}
		w.LockVersion++
		d.workflows.put(w.ID, copyWorkflow(w))
		return nil
	})
}

func (r *workflowRepo) List(_ context.Context, filter ports.WorkflowFilter) ([]*domain.Workflow, error) {
	out := make([]*domain.Workflow, 0)
	r.s.read(func(d *dataset) {
		d.workflows.each(func(w *domain.Workflow) {
			if w.IsDeleted && !filter.IncludeDeleted {
				return
			}
			if filter.CompanyID != "" && w.CompanyID != filter.CompanyID {
				return
			}
			if filter.Status != "" && w.Status != filter.Status {
				return
			}
			if filter.TemplatesOnly && !w.IsTemplate {
				return
			}
			out = append(out, copyWorkflow(w))
		})
	})
	return out, nil
}

// ---- nodes ----

type nodeRepo struct{ s *Store }

func sequenceTaken(d *dataset, workflowID string, seq int, exceptID string) bool {
	taken := false
	d.nodes.each(func(n *domain.NodeDefinition) {
		if n.WorkflowID == workflowID && n.SequenceOrder == seq && n.ID != exceptID {
			taken = true
		}
	})
	return taken
}

func (r *nodeRepo) Create(_ context.Context, n *domain.NodeDefinition) error {
	return r.s.write(func(d *dataset) error {
		if _, exists := d.nodes.get(n.ID); exists {
			return appErrors.NewConflictError("node", "id", n.ID)
		}
		if sequenceTaken(d, n.WorkflowID, n.SequenceOrder, "") {
			return appErrors.NewConflictError("node", "sequence_order", strconv.Itoa(n.SequenceOrder))
		}
		d.nodes.put(n.ID, copyNode(n))
		return nil
	})
}

func (r *nodeRepo) Get(_ context.Context, id string) (*domain.NodeDefinition, error) {
	var out *domain.NodeDefinition
	r.s.read(func(d *dataset) {
		if n, ok := d.nodes.get(id); ok {
			out = copyNode(n)
		}
	})
	if out == nil {
		return nil, appErrors.NewNotFoundError("node", id)
	}
	return out, nil
}

func (r *nodeRepo) Update(_ context.Context, n *domain.NodeDefinition) error {
	return r.s.write(func(d *dataset) error {
		if _, ok := d.nodes.get(n.ID); !ok {
			return appErrors.NewNotFoundError("node", n.ID)
		}
		if sequenceTaken(d, n.WorkflowID, n.SequenceOrder, n.ID) {
			return appErrors.NewConflictError("node", "sequence_order", strconv.Itoa(n.SequenceOrder))
		}
		d.nodes.put(n.ID, copyNode(n))
		return nil
	})
}

func (r *nodeRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *dataset) error {
		if !d.nodes.remove(id) {
			return appErrors.NewNotFoundError("node", id)
		}
		return nil
	})
}

func (r *nodeRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*domain.NodeDefinition, error) {
	out := make([]*domain.NodeDefinition, 0)
	r.s.read(func(d *dataset) {
		d.nodes.each(func(n *domain.NodeDefinition) {
			if n.WorkflowID == workflowID {
				out = append(out, copyNode(n))
			}
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out, nil
}

func (r *nodeRepo) Resequence(_ context.Context, workflowID string, order map[string]int) error {
	return r.s.write(func(d *dataset) error {
		for id := range order {
			if n, ok := d.nodes.get(id); !ok || n.WorkflowID != workflowID {
				return appErrors.NewNotFoundError("node", id)
			}
		}
		final := make(map[int]string)
		var clash string
		d.nodes.each(func(n *domain.NodeDefinition) {
			if n.WorkflowID != workflowID {
				return
			}
			seq := n.SequenceOrder
			if s, ok := order[n.ID]; ok {
				seq = s
			}
			if other, dup := final[seq]; dup && clash == "" {
				clash = other
			}
			final[seq] = n.ID
		})
		if clash != "" {
			return appErrors.NewConflictError("node", "sequence_order", clash)
		}
		for id, seq := range order {
			n, _ := d.nodes.get(id)
			n.SequenceOrder = seq
		}
		return nil
	})
}

// ---- connections ----

type connectionRepo struct{ s *Store }

func (r *connectionRepo) Create(_ context.Context, c *domain.Connection) error {
	return r.s.write(func(d *dataset) error {
		var dup bool
		d.connections.each(func(o *domain.Connection) {
			if o.SourceNodeID == c.SourceNodeID && o.TargetNodeID == c.TargetNodeID {
				dup = true
			}
		})
		if dup {
			return appErrors.NewConflictError("connection", "source_node_id,target_node_id", c.SourceNodeID+"->"+c.TargetNodeID)
		}
		d.connections.put(c.ID, copyConnection(c))
		return nil
	})
}

func (r *connectionRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *dataset) error {
		if !d.connections.remove(id) {
			return appErrors.NewNotFoundError("connection", id)
		}
		return nil
	})
}

func (r *connectionRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*domain.Connection, error) {
	out := make([]*domain.Connection, 0)
	r.s.read(func(d *dataset) {
		d.connections.each(func(c *domain.Connection) {
			if c.WorkflowID == workflowID {
				out = append(out, copyConnection(c))
			}
		})
	})
	return out, nil
}

func (r *connectionRepo) DeleteByWorkflow(_ context.Context, workflowID string) error {
	return r.s.write(func(d *dataset) error {
		var ids []string
		d.connections.each(func(c *domain.Connection) {
			if c.WorkflowID == workflowID {
				ids = append(ids, c.ID)
			}
		})
		for _, id := range ids {
			d.connections.remove(id)
		}
		return nil
	})
}

// ---- viewers ----

type viewerRepo struct{ s *Store }

func viewerKey(workflowID, userID string) string {
	return workflowID + "/" + userID
}

func (r *viewerRepo) Create(_ context.Context, v *domain.Viewer) error {
	return r.s.write(func(d *dataset) error {
		key := viewerKey(v.WorkflowID, v.UserID)
		if _, exists := d.viewers.get(key); exists {
			return appErrors.NewConflictError("viewer", "workflow_id,user_id", key)
		}
		d.viewers.put(key, copyViewer(v))
		return nil
	})
}

func (r *viewerRepo) Get(_ context.Context, workflowID, userID string) (*domain.Viewer, error) {
	var out *domain.Viewer
	r.s.read(func(d *dataset) {
		if v, ok := d.viewers.get(viewerKey(workflowID, userID)); ok {
			out = copyViewer(v)
		}
	})
	if out == nil {
		return nil, appErrors.NewNotFoundError("viewer", viewerKey(workflowID, userID))
	}
	return out, nil
}

func (r *viewerRepo) Update(_ context.Context, v *domain.Viewer) error {
	return r.s.write(func(d *dataset) error {
		key := viewerKey(v.WorkflowID, v.UserID)
		cur, ok := d.viewers.get(key)
		if !ok {
			return appErrors.NewNotFoundError("viewer", key)
		}
		if cur.LockVersion != v.LockVersion {
			return appErrors.NewStaleStateError("viewer", v.ID, v.LockVersion)
		}
		v.LockVersion++
		d.viewers.put(key, copyViewer(v))
		return nil
	})
}

func (r *viewerRepo) Delete(_ context.Context, workflowID, userID string) (bool, error) {
	var removed bool
	err := r.s.write(func(d *dataset) error {
		removed = d.viewers.remove(viewerKey(workflowID, userID))
		return nil
	})
	return removed, err
}

func (r *viewerRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*domain.Viewer, error) {
	out := make([]*domain.Viewer, 0)
	r.s.read(func(d *dataset) {
		d.viewers.each(func(v *domain.Viewer) {
			if v.WorkflowID == workflowID {
				out = append(out, copyViewer(v))
			}
		})
	})
	return out, nil
}

func (r *viewerRepo) DeleteByWorkflow(_ context.Context, workflowID string) error {
	return r.s.write(func(d *dataset) error {
		var keys []string
		d.viewers.each(func(v *domain.Viewer) {
			if v.WorkflowID == workflowID {
				keys = append(keys, viewerKey(v.WorkflowID, v.UserID))
			}
		})
		for _, k := range keys {
			d.viewers.remove(k)
		}
		return nil
	})
}

// ---- candidate runs ----

type candidateRepo struct{ s *Store }

func (r *candidateRepo) Create(_ context.Context, cw *domain.CandidateWorkflow) error {
	return r.s.write(func(d *dataset) error {
		var dup bool
		d.candidates.each(func(o *domain.CandidateWorkflow) {
			if o.CandidateID == cw.CandidateID && o.WorkflowID == cw.WorkflowID {
				dup = true
			}
		})
		if dup {
			return appErrors.NewConflictError("candidate workflow", "candidate_id,workflow_id", cw.CandidateID+","+cw.WorkflowID)
		}
		d.candidates.put(cw.ID, copyCandidate(cw))
		return nil
	})
}

func (r *candidateRepo) Get(_ context.Context, id string) (*domain.CandidateWorkflow, error) {
	var out *domain.CandidateWorkflow
	r.s.read(func(d *dataset) {
		if cw, ok := d.candidates.get(id); ok {
			out = copyCandidate(cw)
		}
	})
	if out == nil {
		return nil, appErrors.NewNotFoundError("candidate workflow", id)
	}
	return out, nil
}

func (r *candidateRepo) Update(_ context.Context, cw *domain.CandidateWorkflow) error {
	return r.s.write(func(d *dataset) error {
		cur, ok := d.candidates.get(cw.ID)
		if !ok {
			return appErrors.NewNotFoundError("candidate workflow", cw.ID)
		}
		if cur.LockVersion != cw.LockVersion {
			return appErrors.NewStaleStateError("candidate workflow", cw.ID, cw.LockVersion)
		}
		cw.LockVersion++
		d.candidates.put(cw.ID, copyCandidate(cw))
		return nil
	})
}

func (r *candidateRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*domain.CandidateWorkflow, error) {
	out := make([]*domain.CandidateWorkflow, 0)
	r.s.read(func(d *dataset) {
		d.candidates.each(func(cw *domain.CandidateWorkflow) {
			if cw.WorkflowID == workflowID {
				out = append(out, copyCandidate(cw))
			}
		})
	})
	return out, nil
}

func (r *candidateRepo) Delete(_ context.Context, id string) error {
	return r.s.write(func(d *dataset) error {
		if !d.candidates.remove(id) {
			return appErrors.NewNotFoundError("candidate workflow", id)
		}
		return nil
	})
}

// ---- executions ----

type executionRepo struct{ s *Store }

func (r *executionRepo) Create(_ context.Context, e *domain.NodeExecution) error {
	return r.s.write(func(d *dataset) error {
		var dup bool
		d.executions.each(func(o *domain.NodeExecution) {
			if o.CandidateWorkflowID == e.CandidateWorkflowID && o.NodeID == e.NodeID {
				dup = true
			}
		})
		if dup {
			return appErrors.NewConflictError("node execution", "candidate_workflow_id,node_id", e.CandidateWorkflowID+","+e.NodeID)
		}
		d.executions.put(e.ID, copyExecution(e))
		return nil
	})
}

func (r *executionRepo) Get(_ context.Context, id string) (*domain.NodeExecution, error) {
	var out *domain.NodeExecution
	r.s.read(func(d *dataset) {
		if e, ok := d.executions.get(id); ok {
			out = copyExecution(e)
		}
	})
	if out == nil {
		return nil, appErrors.NewNotFoundError("node execution", id)
	}
	return out, nil
}

func (r *executionRepo) Update(_ context.Context, e *domain.NodeExecution) error {
	return r.s.write(func(d *dataset) error {
		cur, ok := d.executions.get(e.ID)
		if !ok {
			return appErrors.NewNotFoundError("node execution", e.ID)
		}
		if cur.LockVersion != e.LockVersion {
			return appErrors.NewStaleStateError("node execution", e.ID, e.LockVersion)
		}
		e.LockVersion++
		d.executions.put(e.ID, copyExecution(e))
		return nil
	})
}

func (r *executionRepo) FindByNode(_ context.Context, candidateWorkflowID, nodeID string) (*domain.NodeExecution, error) {
	var out *domain.NodeExecution
	r.s.read(func(d *dataset) {
		d.executions.each(func(e *domain.NodeExecution) {
			if e.CandidateWorkflowID == candidateWorkflowID && e.NodeID == nodeID {
				out = copyExecution(e)
			}
		})
	})
	return out, nil
}

func (r *executionRepo) ListByCandidateWorkflow(_ context.Context, candidateWorkflowID string) ([]*domain.NodeExecution, error) {
	out := make([]*domain.NodeExecution, 0)
	r.s.read(func(d *dataset) {
		d.executions.each(func(e *domain.NodeExecution) {
			if e.CandidateWorkflowID == candidateWorkflowID {
				out = append(out, copyExecution(e))
			}
		})
	})
	return out, nil
}

func (r *executionRepo) CountByNode(_ context.Context, nodeID string) (int, error) {
	count := 0
	r.s.read(func(d *dataset) {
		d.executions.each(func(e *domain.NodeExecution) {
			if e.NodeID == nodeID {
				count++
			}
		})
	})
	return count, nil
}

func (r *executionRepo) ListOverdue(_ context.Context, now time.Time) ([]*domain.NodeExecution, error) {
	out := make([]*domain.NodeExecution, 0)
	r.s.read(func(d *dataset) {
		d.executions.each(func(e *domain.NodeExecution) {
			if !e.IsTerminal() && e.IsOverdue(now) {
				out = append(out, copyExecution(e))
			}
		})
	})
	return out, nil
}

func (r *executionRepo) DeleteByCandidateWorkflow(_ context.Context, candidateWorkflowID string) (int, error) {
	removed := 0
	err := r.s.write(func(d *dataset) error {
		var ids []string
		d.executions.each(func(e *domain.NodeExecution) {
			if e.CandidateWorkflowID == candidateWorkflowID {
				ids = append(ids, e.ID)
			}
		})
		for _, id := range ids {
			if d.executions.remove(id) {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
