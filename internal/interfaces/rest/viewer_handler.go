package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/pkg/errors"
)

// ViewerAPI is the slice of the viewer service the handler drives
type ViewerAPI interface {
	Add(ctx context.Context, actor *domain.Actor, workflowID string, in services.AddViewerInput) (*services.ViewerView, error)
	Remove(ctx context.Context, actor *domain.Actor, workflowID, userID string) error
	ChangeRole(ctx context.Context, actor *domain.Actor, workflowID, userID, role string) (*services.ViewerView, error)
	GrantPermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*services.ViewerView, error)
	RevokePermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*services.ViewerView, error)
	ResetPermission(ctx context.Context, actor *domain.Actor, workflowID, userID, permission string) (*services.ViewerView, error)
	Get(ctx context.Context, actor *domain.Actor, workflowID, userID string) (*services.ViewerView, error)
	List(ctx context.Context, actor *domain.Actor, workflowID string) ([]*services.ViewerView, error)
	Check(ctx context.Context, actor *domain.Actor, workflowID, permission string) (bool, error)
}

// ViewerHandler serves the per-workflow access registry
type ViewerHandler struct {
	svc ViewerAPI
}

// NewViewerHandler creates a new ViewerHandler
func NewViewerHandler(svc ViewerAPI) *ViewerHandler {
	return &ViewerHandler{svc: svc}
}

// Register mounts the handler's routes
func (h *ViewerHandler) Register(api *gin.RouterGroup) {
	v := api.Group("/workflows/:id/viewers")
	v.GET("", h.List)
	v.POST("", h.Add)
	v.GET("/:userId", h.Get)
	v.DELETE("/:userId", h.Remove)
	v.PUT("/:userId/role", h.ChangeRole)
	v.POST("/:userId/permissions/:permission", h.permission(h.svc.GrantPermission))
	v.DELETE("/:userId/permissions/:permission", h.permission(h.svc.RevokePermission))
	v.POST("/:userId/permissions/:permission/reset", h.permission(h.svc.ResetPermission))

	api.GET("/workflows/:id/permissions/check", h.Check)
}

func (h *ViewerHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "viewers", func() (interface{}, error) {
		return h.svc.List(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *ViewerHandler) Add(c *gin.Context) {
	var in services.AddViewerInput
	if !BindJSON(c, &in) {
		return
	}
	v, err := h.svc.Add(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusCreated, "viewer", v, err)
}

func (h *ViewerHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "viewer", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), actor(c), c.Param("id"), c.Param("userId"))
	})
}

func (h *ViewerHandler) Remove(c *gin.Context) {
	HandleDeleteEnvelope(c, "Viewer removed", func() error {
		return h.svc.Remove(c.Request.Context(), actor(c), c.Param("id"), c.Param("userId"))
	})
}

type roleBody struct {
	Role string `json:"role"`
}

func (h *ViewerHandler) ChangeRole(c *gin.Context) {
	var body roleBody
	if !BindJSON(c, &body) {
		return
	}
	v, err := h.svc.ChangeRole(c.Request.Context(), actor(c), c.Param("id"), c.Param("userId"), body.Role)
	respond(c, http.StatusOK, "viewer", v, err)
}

func (h *ViewerHandler) permission(fn func(context.Context, *domain.Actor, string, string, string) (*services.ViewerView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := fn(c.Request.Context(), actor(c), c.Param("id"), c.Param("userId"), c.Param("permission"))
		respond(c, http.StatusOK, "viewer", v, err)
	}
}

// Check answers whether the caller holds a permission on the workflow
func (h *ViewerHandler) Check(c *gin.Context) {
	perm := c.Query("permission")
	if perm == "" {
		RespondAppError(c, errors.NewValidationError("permission", "permission is required"))
		return
	}
	ok, err := h.svc.Check(c.Request.Context(), actor(c), c.Param("id"), perm)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permission": perm, "allowed": ok})
}
