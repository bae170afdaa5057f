package domain

import (
	"strings"
	"time"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// NodeType tags what kind of hiring step a node is
type NodeType string

const (
	NodeTypeInterview  NodeType = "interview"
	NodeTypeTodo       NodeType = "todo"
	NodeTypeAssessment NodeType = "assessment"
	NodeTypeDecision   NodeType = "decision"
	NodeTypeScreening  NodeType = "screening"
	NodeTypeOffer      NodeType = "offer"
)

var knownNodeTypes = map[NodeType]bool{
	NodeTypeInterview:  true,
	NodeTypeTodo:       true,
	NodeTypeAssessment: true,
	NodeTypeDecision:   true,
	NodeTypeScreening:  true,
	NodeTypeOffer:      true,
}

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	return knownNodeTypes[t]
}

// DelegatesExternally reports whether executions of this type are handed
// to an external subsystem (interview scheduling, exam delivery, to-do tracking).
func (t NodeType) DelegatesExternally() bool {
	return t == NodeTypeInterview || t == NodeTypeAssessment || t == NodeTypeTodo
}

// NodeStatus is the authoring status of a single node
type NodeStatus string

const (
	NodeStatusDraft    NodeStatus = "draft"
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

// NodeDefinition is the configuration of a single pipeline step.
type NodeDefinition struct {
	ID                       string     `json:"id"`
	WorkflowID               string     `json:"workflow_id"`
	Type                     NodeType   `json:"type"`
	Title                    string     `json:"title"`
	Description              string     `json:"description,omitempty"`
	SequenceOrder            int        `json:"sequence_order"`
	IsRequired               bool       `json:"is_required"`
	CanSkip                  bool       `json:"can_skip"`
	AutoAdvance              bool       `json:"auto_advance"`
	Config                   Payload    `json:"config,omitempty"`
	Requirements             Payload    `json:"requirements,omitempty"`
	EstimatedDurationMinutes *int       `json:"estimated_duration_minutes,omitempty"`
	Status                   NodeStatus `json:"status"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// Validate checks the fields an author must supply.
func (n *NodeDefinition) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return appErrors.NewValidationError("title", "node title is required")
	}
	if !n.Type.IsValid() {
		return appErrors.NewValidationError("type", "unknown node type '"+string(n.Type)+"'")
	}
	if n.SequenceOrder < 1 {
		return appErrors.NewValidationError("sequence_order", "sequence order must be >= 1")
	}
	if n.EstimatedDurationMinutes != nil && *n.EstimatedDurationMinutes < 0 {
		return appErrors.NewValidationError("estimated_duration_minutes", "duration cannot be negative")
	}
	return nil
}

// IsSkipEligible reports whether an execution of this node may be skipped.
func (n *NodeDefinition) IsSkipEligible() bool {
	return n.CanSkip || !n.IsRequired
}

// Connection is a directed edge between two nodes of the same workflow.
// Condition is an optional boolean expression over the outcome of the
// source node's execution.
type Connection struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	SourceNodeID string    `json:"source_node_id"`
	TargetNodeID string    `json:"target_node_id"`
	Condition    string    `json:"condition,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
