package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/recruitflow/backend/internal/domain"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// TemplateEdge points at the next node of a template by key.
type TemplateEdge struct {
	Node      string `yaml:"node"`
	Condition string `yaml:"condition,omitempty"`
}

// TemplateNode is one step of a YAML workflow template.
type TemplateNode struct {
	Key              string                 `yaml:"key"`
	Type             string                 `yaml:"type"`
	Title            string                 `yaml:"title"`
	Description      string                 `yaml:"description,omitempty"`
	Required         bool                   `yaml:"required,omitempty"`
	CanSkip          bool                   `yaml:"can_skip,omitempty"`
	AutoAdvance      bool                   `yaml:"auto_advance,omitempty"`
	EstimatedMinutes *int                   `yaml:"estimated_minutes,omitempty"`
	Config           map[string]interface{} `yaml:"config,omitempty"`
	Requirements     map[string]interface{} `yaml:"requirements,omitempty"`
	Next             []*TemplateEdge        `yaml:"next,omitempty"`
}

// WorkflowTemplate is the YAML shape accepted by ImportTemplate:
//
//	name: Engineering onsite
//	template_name: eng-onsite
//	nodes:
//	  - key: screen
//	    type: screening
//	    title: Recruiter screen
//	    next: [{node: tech, condition: "result == 'pass'"}]
//	  - key: tech
//	    type: interview
//	    title: Technical interview
//
// Nodes are sequenced in file order. With no `next` entries anywhere the
// workflow runs as a plain chain.
type WorkflowTemplate struct {
	Name         string                 `yaml:"name"`
	Description  string                 `yaml:"description,omitempty"`
	TemplateName string                 `yaml:"template_name,omitempty"`
	Settings     map[string]interface{} `yaml:"settings,omitempty"`
	Nodes        []*TemplateNode        `yaml:"nodes"`
}

// LoadTemplateFile loads a workflow template from a YAML file
func LoadTemplateFile(path string) (*WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return LoadTemplateString(string(data))
}

// LoadTemplateString loads a workflow template from a YAML string
func LoadTemplateString(data string) (*WorkflowTemplate, error) {
	var tpl WorkflowTemplate
	if err := yaml.Unmarshal([]byte(data), &tpl); err != nil {
		return nil, appErrors.NewValidationError("template", fmt.Sprintf("failed to unmarshal template: %v", err))
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Validate checks names, keys and edge references.
func (t *WorkflowTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return appErrors.NewValidationError("name", "template name is required")
	}
	if len(t.Nodes) == 0 {
		return appErrors.NewValidationError("nodes", "template must define at least one node")
	}
	keys := make(map[string]bool, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.Key == "" {
			return appErrors.NewValidationError("nodes", fmt.Sprintf("node %d has no key", i+1))
		}
		if keys[n.Key] {
			return appErrors.NewValidationError("nodes", fmt.Sprintf("duplicate node key %q", n.Key))
		}
		keys[n.Key] = true
	}
	for _, n := range t.Nodes {
		for _, e := range n.Next {
			if !keys[e.Node] {
				return appErrors.NewValidationError("next", fmt.Sprintf("node %q points at unknown node %q", n.Key, e.Node))
			}
		}
	}
	return nil
}

// nodeDefinition converts a template node, sequenced at seq.
func (n *TemplateNode) nodeDefinition(seq int) *domain.NodeDefinition {
	return &domain.NodeDefinition{
		Type:                     domain.NodeType(n.Type),
		Title:                    n.Title,
		Description:              n.Description,
		SequenceOrder:            seq,
		IsRequired:               n.Required,
		CanSkip:                  n.CanSkip,
		AutoAdvance:              n.AutoAdvance,
		Config:                   domain.Payload(n.Config),
		Requirements:             domain.Payload(n.Requirements),
		EstimatedDurationMinutes: n.EstimatedMinutes,
		Status:                   domain.NodeStatusDraft,
	}
}
