package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
	appErrors "github.com/recruitflow/backend/pkg/errors"
	"github.com/recruitflow/backend/pkg/utils"
)

// WorkflowService handles authoring and lifecycle of workflow definitions
type WorkflowService struct {
	base
	access     *AccessService
	conditions ports.ConditionEngine
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(store ports.Store, access *AccessService, conditions ports.ConditionEngine, publisher ports.EventPublisher, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		base:       newBase(store, publisher, logger),
		access:     access,
		conditions: conditions,
	}
}

// WorkflowDefinition is a workflow together with its graph
type WorkflowDefinition struct {
	Workflow         *domain.Workflow            `json:"workflow"`
	Nodes            []*domain.NodeDefinition    `json:"nodes"`
	Connections      []*domain.Connection        `json:"connections"`
	ValidTransitions []domain.WorkflowTransition `json:"valid_transitions"`
}

// CreateWorkflowInput represents the input for creating a workflow
type CreateWorkflowInput struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	CompanyID    string         `json:"company_id"`
	Settings     domain.Payload `json:"settings"`
	IsTemplate   bool           `json:"is_template"`
	TemplateName string         `json:"template_name"`
}

// UpdateWorkflowInput carries descriptive edits; nil fields are left alone
type UpdateWorkflowInput struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Settings    domain.Payload `json:"settings"`
}

// NodeInput represents the input for adding a node
type NodeInput struct {
	Type                     domain.NodeType `json:"type"`
	Title                    string          `json:"title"`
	Description              string          `json:"description"`
	SequenceOrder            int             `json:"sequence_order"`
	IsRequired               bool            `json:"is_required"`
	CanSkip                  bool            `json:"can_skip"`
	AutoAdvance              bool            `json:"auto_advance"`
	Config                   domain.Payload  `json:"config"`
	Requirements             domain.Payload  `json:"requirements"`
	EstimatedDurationMinutes *int            `json:"estimated_duration_minutes"`
}

// NodePatch carries node edits; nil fields are left alone
type NodePatch struct {
	Type                     *domain.NodeType `json:"type"`
	Title                    *string          `json:"title"`
	Description              *string          `json:"description"`
	IsRequired               *bool            `json:"is_required"`
	CanSkip                  *bool            `json:"can_skip"`
	AutoAdvance              *bool            `json:"auto_advance"`
	Config                   domain.Payload   `json:"config"`
	Requirements             domain.Payload   `json:"requirements"`
	EstimatedDurationMinutes *int             `json:"estimated_duration_minutes"`
}

// ConnectionInput represents the input for connecting two nodes
type ConnectionInput struct {
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	Condition    string `json:"condition"`
}

// Create creates a draft workflow owned by the actor
func (s *WorkflowService) Create(ctx context.Context, actor *domain.Actor, in CreateWorkflowInput) (*domain.Workflow, error) {
	if actor == nil {
		return nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	w, err := domain.NewWorkflow(utils.GenerateID(), in.Name, in.CompanyID, actor.UserID, s.now())
	if err != nil {
		return nil, err
	}
	w.Description = in.Description
	w.IsTemplate = in.IsTemplate
	w.TemplateName = in.TemplateName
	if in.Settings != nil {
		w.Settings = in.Settings.Clone()
	}

	if err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		return s.store.Workflows.Create(ctx, w)
	}); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	s.logger.Info("workflow created", "workflow_id", w.ID, "name", w.Name, "actor", actor.UserID)
	return w, nil
}

// Get returns the workflow with its nodes and connections
func (s *WorkflowService) Get(ctx context.Context, actor *domain.Actor, id string) (*WorkflowDefinition, error) {
	w, err := s.visibleWorkflow(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, actor, w, domain.PermViewProcess); err != nil {
		return nil, err
	}
	return s.definition(ctx, w)
}

// List returns workflows matching filter that the actor may view
func (s *WorkflowService) List(ctx context.Context, actor *domain.Actor, filter ports.WorkflowFilter) ([]*domain.Workflow, error) {
	if actor == nil {
		return nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	if !actor.IsSystemAdmin() {
		filter.IncludeDeleted = false
	}
	all, err := s.store.Workflows.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	visible := make([]*domain.Workflow, 0, len(all))
	for _, w := range all {
		perms, err := s.access.EffectivePermissions(ctx, actor, w)
		if err != nil {
			return nil, err
		}
		if perms[domain.PermViewProcess] {
			visible = append(visible, w)
		}
	}
	return visible, nil
}

// Update edits name, description and settings
func (s *WorkflowService) Update(ctx context.Context, actor *domain.Actor, id string, in UpdateWorkflowInput) (*domain.Workflow, error) {
	var out *domain.Workflow
	err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		w, err := s.manageable(ctx, actor, id)
		if err != nil {
			return err
		}
		if w.IsArchived() || w.IsDeleted {
			return appErrors.NewInvalidStateError("workflow", w.ID, string(w.Status), string(domain.WorkflowEdit))
		}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return appErrors.NewValidationError("name", "workflow name is required")
			}
			w.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			w.Description = *in.Description
		}
		if in.Settings != nil {
			w.Settings = in.Settings.Clone()
		}
		w.UpdatedBy = actor.UserID
		w.UpdatedAt = s.now()
		out = w
		return s.store.Workflows.Update(ctx, w)
	})
	return out, err
}

// Activate validates the graph and makes a draft workflow live
func (s *WorkflowService) Activate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	return s.lifecycle(ctx, actor, id, events.WorkflowActivated, domain.NodeStatusActive,
		func(ctx context.Context, w *domain.Workflow) error {
			graph, err := s.loadGraph(ctx, w.ID)
			if err != nil {
				return err
			}
			if graph.Len() == 0 {
				return appErrors.NewValidationError("nodes", fmt.Sprintf("workflow '%s' has no nodes", w.ID))
			}
			for _, n := range graph.Nodes() {
				if err := n.Validate(); err != nil {
					return err
				}
			}
			return w.Activate(actor.UserID, s.now())
		})
}

// Deactivate pauses an active workflow so it can be edited
func (s *WorkflowService) Deactivate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	return s.lifecycle(ctx, actor, id, "", domain.NodeStatusInactive,
		func(_ context.Context, w *domain.Workflow) error {
			return w.Deactivate(actor.UserID, s.now())
		})
}

// Reactivate returns an inactive workflow to active
func (s *WorkflowService) Reactivate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	return s.lifecycle(ctx, actor, id, events.WorkflowActivated, domain.NodeStatusActive,
		func(_ context.Context, w *domain.Workflow) error {
			return w.Reactivate(actor.UserID, s.now())
		})
}

// Archive retires a workflow for good
func (s *WorkflowService) Archive(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	return s.lifecycle(ctx, actor, id, events.WorkflowArchived, domain.NodeStatusInactive,
		func(_ context.Context, w *domain.Workflow) error {
			return w.Archive(actor.UserID, s.now())
		})
}

// Delete soft-deletes a workflow. Nodes are marked inactive, connections
// and viewer grants are removed. Candidate runs stay as history.
func (s *WorkflowService) Delete(ctx context.Context, actor *domain.Actor, id string) error {
	return s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		w, err := s.manageable(ctx, actor, id)
		if err != nil {
			return err
		}
		if w.IsDeleted {
			return nil
		}
		if err := w.SoftDelete(actor.UserID, s.now()); err != nil {
			return err
		}
		if err := s.setNodeStatus(ctx, w.ID, domain.NodeStatusInactive); err != nil {
			return err
		}
		if err := s.store.Connections.DeleteByWorkflow(ctx, w.ID); err != nil {
			return err
		}
		if err := s.store.Viewers.DeleteByWorkflow(ctx, w.ID); err != nil {
			return err
		}
		if err := s.store.Workflows.Update(ctx, w); err != nil {
			return err
		}
		s.logger.Info("workflow deleted", "workflow_id", w.ID, "actor", actor.UserID)
		return nil
	})
}

// AddNode appends a node; a zero sequence order means "after the last node"
func (s *WorkflowService) AddNode(ctx context.Context, actor *domain.Actor, workflowID string, in NodeInput) (*domain.NodeDefinition, error) {
	var node *domain.NodeDefinition
	err := s.editStructure(ctx, actor, workflowID, func(ctx context.Context, w *domain.Workflow) error {
		seq := in.SequenceOrder
		if seq == 0 {
			nodes, err := s.store.Nodes.ListByWorkflow(ctx, w.ID)
			if err != nil {
				return err
			}
			seq = 1
			if len(nodes) > 0 {
				seq = nodes[len(nodes)-1].SequenceOrder + 1
			}
		}
		now := s.now()
		node = &domain.NodeDefinition{
			ID:                       utils.GenerateID(),
			WorkflowID:               w.ID,
			Type:                     in.Type,
			Title:                    strings.TrimSpace(in.Title),
			Description:              in.Description,
			SequenceOrder:            seq,
			IsRequired:               in.IsRequired,
			CanSkip:                  in.CanSkip,
			AutoAdvance:              in.AutoAdvance,
			Config:                   in.Config.Clone(),
			Requirements:             in.Requirements.Clone(),
			EstimatedDurationMinutes: in.EstimatedDurationMinutes,
			Status:                   domain.NodeStatusDraft,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := node.Validate(); err != nil {
			return err
		}
		return s.store.Nodes.Create(ctx, node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateNode edits a node's configuration
func (s *WorkflowService) UpdateNode(ctx context.Context, actor *domain.Actor, nodeID string, patch NodePatch) (*domain.NodeDefinition, error) {
	existing, err := s.store.Nodes.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	var node *domain.NodeDefinition
	err = s.editStructure(ctx, actor, existing.WorkflowID, func(ctx context.Context, _ *domain.Workflow) error {
		n, err := s.store.Nodes.Get(ctx, nodeID)
		if err != nil {
			return err
		}
		if patch.Type != nil {
			n.Type = *patch.Type
		}
		if patch.Title != nil {
			n.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			n.Description = *patch.Description
		}
		if patch.IsRequired != nil {
			n.IsRequired = *patch.IsRequired
		}
		if patch.CanSkip != nil {
			n.CanSkip = *patch.CanSkip
		}
		if patch.AutoAdvance != nil {
			n.AutoAdvance = *patch.AutoAdvance
		}
		if patch.Config != nil {
			n.Config = patch.Config.Clone()
		}
		if patch.Requirements != nil {
			n.Requirements = patch.Requirements.Clone()
		}
		if patch.EstimatedDurationMinutes != nil {
			n.EstimatedDurationMinutes = patch.EstimatedDurationMinutes
		}
		if err := n.Validate(); err != nil {
			return err
		}
		n.UpdatedAt = s.now()
		node = n
		return s.store.Nodes.Update(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// RemoveNode deletes a node and its connections. Nodes referenced by any
// execution cannot be removed.
func (s *WorkflowService) RemoveNode(ctx context.Context, actor *domain.Actor, nodeID string) error {
	existing, err := s.store.Nodes.Get(ctx, nodeID)
	if err != nil {
		return err
	}
	return s.editStructure(ctx, actor, existing.WorkflowID, func(ctx context.Context, w *domain.Workflow) error {
		refs, err := s.store.Executions.CountByNode(ctx, nodeID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return appErrors.NewConflictErrorWithMessage("node",
				fmt.Sprintf("node '%s' is referenced by %d executions", nodeID, refs))
		}
		conns, err := s.store.Connections.ListByWorkflow(ctx, w.ID)
		if err != nil {
			return err
		}
		for _, c := range conns {
			if c.SourceNodeID == nodeID || c.TargetNodeID == nodeID {
				if err := s.store.Connections.Delete(ctx, c.ID); err != nil {
					return err
				}
			}
		}
		return s.store.Nodes.Delete(ctx, nodeID)
	})
}

// ReorderNodes assigns sequence orders 1..n following orderedIDs, which
// must list every node of the workflow exactly once.
func (s *WorkflowService) ReorderNodes(ctx context.Context, actor *domain.Actor, workflowID string, orderedIDs []string) ([]*domain.NodeDefinition, error) {
	var out []*domain.NodeDefinition
	err := s.editStructure(ctx, actor, workflowID, func(ctx context.Context, w *domain.Workflow) error {
		nodes, err := s.store.Nodes.ListByWorkflow(ctx, w.ID)
		if err != nil {
			return err
		}
		if len(orderedIDs) != len(nodes) {
			return appErrors.NewValidationError("node_ids", fmt.Sprintf("expected %d node ids, got %d", len(nodes), len(orderedIDs)))
		}
		known := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			known[n.ID] = true
		}
		order := make(map[string]int, len(orderedIDs))
		for i, id := range orderedIDs {
			if !known[id] {
				return appErrors.NewValidationError("node_ids", fmt.Sprintf("node '%s' does not belong to workflow '%s'", id, w.ID))
			}
			if _, dup := order[id]; dup {
				return appErrors.NewValidationError("node_ids", fmt.Sprintf("node '%s' listed twice", id))
			}
			order[id] = i + 1
		}
		if err := s.store.Nodes.Resequence(ctx, w.ID, order); err != nil {
			return err
		}
		out, err = s.store.Nodes.ListByWorkflow(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddConnection adds a directed edge, optionally guarded by a condition
func (s *WorkflowService) AddConnection(ctx context.Context, actor *domain.Actor, workflowID string, in ConnectionInput) (*domain.Connection, error) {
	cond := strings.TrimSpace(in.Condition)
	if cond != "" && s.conditions != nil {
		if err := s.conditions.Validate(cond); err != nil {
			return nil, appErrors.NewValidationError("condition", err.Error())
		}
	}
	var conn *domain.Connection
	err := s.editStructure(ctx, actor, workflowID, func(ctx context.Context, w *domain.Workflow) error {
		nodes, err := s.store.Nodes.ListByWorkflow(ctx, w.ID)
		if err != nil {
			return err
		}
		conns, err := s.store.Connections.ListByWorkflow(ctx, w.ID)
		if err != nil {
			return err
		}
		conn = &domain.Connection{
			ID:           utils.GenerateID(),
			WorkflowID:   w.ID,
			SourceNodeID: in.SourceNodeID,
			TargetNodeID: in.TargetNodeID,
			Condition:    cond,
			CreatedAt:    s.now(),
		}
		if _, err := domain.NewNodeGraph(nodes, append(conns, conn)); err != nil {
			return err
		}
		return s.store.Connections.Create(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RemoveConnection deletes an edge of the workflow
func (s *WorkflowService) RemoveConnection(ctx context.Context, actor *domain.Actor, workflowID, connectionID string) error {
	return s.editStructure(ctx, actor, workflowID, func(ctx context.Context, w *domain.Workflow) error {
		conns, err := s.store.Connections.ListByWorkflow(ctx, w.ID)
		if err != nil {
			return err
		}
		for _, c := range conns {
			if c.ID == connectionID {
				return s.store.Connections.Delete(ctx, c.ID)
			}
		}
		return appErrors.NewNotFoundError("connection", connectionID)
	})
}

// CreateFromTemplate clones a template's nodes and connections into a new draft
func (s *WorkflowService) CreateFromTemplate(ctx context.Context, actor *domain.Actor, templateID, name, companyID string) (*WorkflowDefinition, error) {
	if actor == nil {
		return nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	var def *WorkflowDefinition
	err := s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		tpl, err := s.visibleWorkflow(ctx, actor, templateID)
		if err != nil {
			return err
		}
		if !tpl.IsTemplate {
			return appErrors.NewValidationError("template_id", fmt.Sprintf("workflow '%s' is not a template", templateID))
		}
		if err := s.access.Authorize(ctx, actor, tpl, domain.PermViewProcess); err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = tpl.Name
		}
		if companyID == "" {
			companyID = tpl.CompanyID
		}
		w, err := domain.NewWorkflow(utils.GenerateID(), name, companyID, actor.UserID, s.now())
		if err != nil {
			return err
		}
		w.Description = tpl.Description
		w.Settings = tpl.Settings.Clone()
		w.TemplateName = tpl.TemplateName
		if err := s.store.Workflows.Create(ctx, w); err != nil {
			return err
		}

		src, err := s.definition(ctx, tpl)
		if err != nil {
			return err
		}
		def, err = s.cloneGraph(ctx, w, src.Nodes, src.Connections)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow created from template", "workflow_id", def.Workflow.ID, "template_id", templateID)
	return def, nil
}

// ImportTemplate creates a template workflow from a parsed YAML template
func (s *WorkflowService) ImportTemplate(ctx context.Context, actor *domain.Actor, tpl *WorkflowTemplate, companyID string) (*WorkflowDefinition, error) {
	if actor == nil {
		return nil, appErrors.NewUnauthorizedError("no actor on request")
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	keyed := make(map[string]*domain.NodeDefinition, len(tpl.Nodes))
	nodes := make([]*domain.NodeDefinition, 0, len(tpl.Nodes))
	for i, tn := range tpl.Nodes {
		n := tn.nodeDefinition(i + 1)
		n.ID = utils.GenerateID()
		n.CreatedAt, n.UpdatedAt = now, now
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("template node %q: %w", tn.Key, err)
		}
		keyed[tn.Key] = n
		nodes = append(nodes, n)
	}
	var conns []*domain.Connection
	for _, tn := range tpl.Nodes {
		for _, e := range tn.Next {
			if e.Condition != "" && s.conditions != nil {
				if err := s.conditions.Validate(e.Condition); err != nil {
					return nil, appErrors.NewValidationError("condition", fmt.Sprintf("edge %s -> %s: %v", tn.Key, e.Node, err))
				}
			}
			conns = append(conns, &domain.Connection{
				ID:           utils.GenerateID(),
				SourceNodeID: keyed[tn.Key].ID,
				TargetNodeID: keyed[e.Node].ID,
				Condition:    e.Condition,
				CreatedAt:    now,
			})
		}
	}

	w, err := domain.NewWorkflow(utils.GenerateID(), tpl.Name, companyID, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	w.Description = tpl.Description
	w.IsTemplate = true
	w.TemplateName = tpl.TemplateName
	if w.TemplateName == "" {
		w.TemplateName = tpl.Name
	}
	if tpl.Settings != nil {
		w.Settings = domain.Payload(tpl.Settings)
	}

	var def *WorkflowDefinition
	err = s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		if err := s.store.Workflows.Create(ctx, w); err != nil {
			return err
		}
		var err error
		def, err = s.cloneGraph(ctx, w, nodes, conns)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow template imported", "workflow_id", w.ID, "template_name", w.TemplateName, "nodes", len(nodes))
	return def, nil
}

// cloneGraph copies nodes and connections into w under fresh ids.
func (s *WorkflowService) cloneGraph(ctx context.Context, w *domain.Workflow, nodes []*domain.NodeDefinition, conns []*domain.Connection) (*WorkflowDefinition, error) {
	now := s.now()
	idMap := make(map[string]string, len(nodes))
	def := &WorkflowDefinition{Workflow: w, ValidTransitions: domain.ValidWorkflowTransitions(w.Status)}
	for _, src := range nodes {
		n := *src
		n.ID = utils.GenerateID()
		n.WorkflowID = w.ID
		n.Status = domain.NodeStatusDraft
		n.Config = src.Config.Clone()
		n.Requirements = src.Requirements.Clone()
		n.CreatedAt, n.UpdatedAt = now, now
		idMap[src.ID] = n.ID
		if err := s.store.Nodes.Create(ctx, &n); err != nil {
			return nil, err
		}
		def.Nodes = append(def.Nodes, &n)
	}
	for _, src := range conns {
		c := &domain.Connection{
			ID:           utils.GenerateID(),
			WorkflowID:   w.ID,
			SourceNodeID: idMap[src.SourceNodeID],
			TargetNodeID: idMap[src.TargetNodeID],
			Condition:    src.Condition,
			CreatedAt:    now,
		}
		if err := s.store.Connections.Create(ctx, c); err != nil {
			return nil, err
		}
		def.Connections = append(def.Connections, c)
	}
	if _, err := domain.NewNodeGraph(def.Nodes, def.Connections); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *WorkflowService) definition(ctx context.Context, w *domain.Workflow) (*WorkflowDefinition, error) {
	nodes, err := s.store.Nodes.ListByWorkflow(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	conns, err := s.store.Connections.ListByWorkflow(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	return &WorkflowDefinition{
		Workflow:         w,
		Nodes:            nodes,
		Connections:      conns,
		ValidTransitions: domain.ValidWorkflowTransitions(w.Status),
	}, nil
}

// visibleWorkflow hides soft-deleted workflows from everyone but system admins.
func (s *WorkflowService) visibleWorkflow(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	w, err := s.store.Workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.IsDeleted && !actor.IsSystemAdmin() {
		return nil, appErrors.NewNotFoundError("workflow", id)
	}
	return w, nil
}

func (s *WorkflowService) manageable(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error) {
	w, err := s.visibleWorkflow(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.AuthorizeManage(ctx, actor, w); err != nil {
		return nil, err
	}
	return w, nil
}

// editStructure guards node/connection edits and bumps the version.
func (s *WorkflowService) editStructure(ctx context.Context, actor *domain.Actor, workflowID string, fn func(ctx context.Context, w *domain.Workflow) error) error {
	return s.inTx(ctx, func(ctx context.Context, _ *effects) error {
		w, err := s.manageable(ctx, actor, workflowID)
		if err != nil {
			return err
		}
		if err := w.BeginStructuralEdit(actor.UserID, s.now()); err != nil {
			return err
		}
		if err := fn(ctx, w); err != nil {
			return err
		}
		return s.store.Workflows.Update(ctx, w)
	})
}

func (s *WorkflowService) lifecycle(ctx context.Context, actor *domain.Actor, id string, event events.EventType, nodeStatus domain.NodeStatus, apply func(ctx context.Context, w *domain.Workflow) error) (*domain.Workflow, error) {
	var out *domain.Workflow
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		w, err := s.manageable(ctx, actor, id)
		if err != nil {
			return err
		}
		from := w.Status
		if err := apply(ctx, w); err != nil {
			return err
		}
		if err := s.setNodeStatus(ctx, w.ID, nodeStatus); err != nil {
			return err
		}
		if err := s.store.Workflows.Update(ctx, w); err != nil {
			return err
		}
		s.logger.Info("workflow transitioned", "workflow_id", w.ID, "from", from, "to", w.Status, "actor", actor.UserID)
		if event != "" {
			fx.publish(event, events.WorkflowPayload{WorkflowID: w.ID, ActorID: actor.UserID, Version: w.Version})
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WorkflowService) setNodeStatus(ctx context.Context, workflowID string, status domain.NodeStatus) error {
	nodes, err := s.store.Nodes.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, n := range nodes {
		if n.Status == status {
			continue
		}
		n.Status = status
		n.UpdatedAt = now
		if err := s.store.Nodes.Update(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
