package rest

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/pkg/errors"
)

const maxTemplateBytes = 1 << 20

// WorkflowAPI is the slice of the workflow service the handler drives
type WorkflowAPI interface {
	Create(ctx context.Context, actor *domain.Actor, in services.CreateWorkflowInput) (*domain.Workflow, error)
	Get(ctx context.Context, actor *domain.Actor, id string) (*services.WorkflowDefinition, error)
	List(ctx context.Context, actor *domain.Actor, filter ports.WorkflowFilter) ([]*domain.Workflow, error)
	Update(ctx context.Context, actor *domain.Actor, id string, in services.UpdateWorkflowInput) (*domain.Workflow, error)
	Activate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error)
	Deactivate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error)
	Reactivate(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error)
	Archive(ctx context.Context, actor *domain.Actor, id string) (*domain.Workflow, error)
	Delete(ctx context.Context, actor *domain.Actor, id string) error
	AddNode(ctx context.Context, actor *domain.Actor, workflowID string, in services.NodeInput) (*domain.NodeDefinition, error)
	UpdateNode(ctx context.Context, actor *domain.Actor, nodeID string, patch services.NodePatch) (*domain.NodeDefinition, error)
	RemoveNode(ctx context.Context, actor *domain.Actor, nodeID string) error
	ReorderNodes(ctx context.Context, actor *domain.Actor, workflowID string, orderedIDs []string) ([]*domain.NodeDefinition, error)
	AddConnection(ctx context.Context, actor *domain.Actor, workflowID string, in services.ConnectionInput) (*domain.Connection, error)
	RemoveConnection(ctx context.Context, actor *domain.Actor, workflowID, connectionID string) error
	CreateFromTemplate(ctx context.Context, actor *domain.Actor, templateID, name, companyID string) (*services.WorkflowDefinition, error)
	ImportTemplate(ctx context.Context, actor *domain.Actor, tpl *services.WorkflowTemplate, companyID string) (*services.WorkflowDefinition, error)
}

// WorkflowHandler serves workflow definitions and their graphs
type WorkflowHandler struct {
	svc WorkflowAPI
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(svc WorkflowAPI) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// Register mounts the handler's routes
func (h *WorkflowHandler) Register(api *gin.RouterGroup) {
	wf := api.Group("/workflows")
	wf.GET("", h.List)
	wf.POST("", h.Create)
	wf.POST("/import", h.ImportTemplate)
	wf.GET("/:id", h.Get)
	wf.PATCH("/:id", h.Update)
	wf.DELETE("/:id", h.Delete)
	wf.POST("/:id/activate", h.transition(h.svc.Activate))
	wf.POST("/:id/deactivate", h.transition(h.svc.Deactivate))
	wf.POST("/:id/reactivate", h.transition(h.svc.Reactivate))
	wf.POST("/:id/archive", h.transition(h.svc.Archive))
	wf.POST("/:id/instantiate", h.Instantiate)
	wf.POST("/:id/nodes", h.AddNode)
	wf.PUT("/:id/nodes/order", h.ReorderNodes)
	wf.POST("/:id/connections", h.AddConnection)
	wf.DELETE("/:id/connections/:connectionId", h.RemoveConnection)

	nodes := api.Group("/nodes")
	nodes.PATCH("/:nodeId", h.UpdateNode)
	nodes.DELETE("/:nodeId", h.RemoveNode)
}

func (h *WorkflowHandler) List(c *gin.Context) {
	filter := ports.WorkflowFilter{
		CompanyID: c.Query("company_id"),
		Status:    domain.WorkflowStatus(c.Query("status")),
	}
	if v := c.Query("templates"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			RespondAppError(c, errors.NewValidationError("templates", "must be a boolean"))
			return
		}
		filter.TemplatesOnly = b
	}
	HandleGetEnvelope(c, "workflows", func() (interface{}, error) {
		return h.svc.List(c.Request.Context(), actor(c), filter)
	})
}

func (h *WorkflowHandler) Create(c *gin.Context) {
	var in services.CreateWorkflowInput
	if !BindJSON(c, &in) {
		return
	}
	w, err := h.svc.Create(c.Request.Context(), actor(c), in)
	respond(c, http.StatusCreated, "workflow", w, err)
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "definition", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *WorkflowHandler) Update(c *gin.Context) {
	var in services.UpdateWorkflowInput
	if !BindJSON(c, &in) {
		return
	}
	w, err := h.svc.Update(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusOK, "workflow", w, err)
}

func (h *WorkflowHandler) Delete(c *gin.Context) {
	HandleDeleteEnvelope(c, "Workflow deleted", func() error {
		return h.svc.Delete(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *WorkflowHandler) transition(fn func(context.Context, *domain.Actor, string) (*domain.Workflow, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := fn(c.Request.Context(), actor(c), c.Param("id"))
		respond(c, http.StatusOK, "workflow", w, err)
	}
}

type instantiateBody struct {
	Name      string `json:"name"`
	CompanyID string `json:"company_id"`
}

// Instantiate copies a template workflow into a new draft
func (h *WorkflowHandler) Instantiate(c *gin.Context) {
	var body instantiateBody
	if !BindJSON(c, &body) {
		return
	}
	def, err := h.svc.CreateFromTemplate(c.Request.Context(), actor(c), c.Param("id"), body.Name, body.CompanyID)
	respond(c, http.StatusCreated, "definition", def, err)
}

// ImportTemplate reads a YAML template from the request body
func (h *WorkflowHandler) ImportTemplate(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTemplateBytes))
	if err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return
	}
	tpl, err := services.LoadTemplateString(string(raw))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	def, err := h.svc.ImportTemplate(c.Request.Context(), actor(c), tpl, c.Query("company_id"))
	respond(c, http.StatusCreated, "definition", def, err)
}

func (h *WorkflowHandler) AddNode(c *gin.Context) {
	var in services.NodeInput
	if !BindJSON(c, &in) {
		return
	}
	n, err := h.svc.AddNode(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusCreated, "node", n, err)
}

func (h *WorkflowHandler) UpdateNode(c *gin.Context) {
	var patch services.NodePatch
	if !BindJSON(c, &patch) {
		return
	}
	n, err := h.svc.UpdateNode(c.Request.Context(), actor(c), c.Param("nodeId"), patch)
	respond(c, http.StatusOK, "node", n, err)
}

func (h *WorkflowHandler) RemoveNode(c *gin.Context) {
	HandleDeleteEnvelope(c, "Node removed", func() error {
		return h.svc.RemoveNode(c.Request.Context(), actor(c), c.Param("nodeId"))
	})
}

type reorderBody struct {
	NodeIDs []string `json:"node_ids"`
}

func (h *WorkflowHandler) ReorderNodes(c *gin.Context) {
	var body reorderBody
	if !BindJSON(c, &body) {
		return
	}
	nodes, err := h.svc.ReorderNodes(c.Request.Context(), actor(c), c.Param("id"), body.NodeIDs)
	respond(c, http.StatusOK, "nodes", nodes, err)
}

func (h *WorkflowHandler) AddConnection(c *gin.Context) {
	var in services.ConnectionInput
	if !BindJSON(c, &in) {
		return
	}
	conn, err := h.svc.AddConnection(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusCreated, "connection", conn, err)
}

func (h *WorkflowHandler) RemoveConnection(c *gin.Context) {
	HandleDeleteEnvelope(c, "Connection removed", func() error {
		return h.svc.RemoveConnection(c.Request.Context(), actor(c), c.Param("id"), c.Param("connectionId"))
	})
}
