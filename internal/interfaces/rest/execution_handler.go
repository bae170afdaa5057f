package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/pkg/errors"
)

// ExecutionAPI is the slice of the execution service the handler drives
type ExecutionAPI interface {
	Get(ctx context.Context, actor *domain.Actor, id string) (*services.ExecutionView, error)
	Schedule(ctx context.Context, actor *domain.Actor, id string, dueDate *time.Time) (*services.ExecutionView, error)
	Start(ctx context.Context, actor *domain.Actor, id, assignedTo string) (*services.ExecutionView, error)
	AwaitInput(ctx context.Context, actor *domain.Actor, id string) (*services.ExecutionView, error)
	Complete(ctx context.Context, actor *domain.Actor, id string, in services.CompleteExecutionInput) (*services.ExecutionView, error)
	Fail(ctx context.Context, actor *domain.Actor, id, reason string) (*services.ExecutionView, error)
	Skip(ctx context.Context, actor *domain.Actor, id, reason string) (*services.ExecutionView, error)
	LinkInterview(ctx context.Context, actor *domain.Actor, id, interviewID string) (*services.ExecutionView, error)
	LinkTask(ctx context.Context, actor *domain.Actor, id, taskID string) (*services.ExecutionView, error)
	AddReview(ctx context.Context, actor *domain.Actor, id string, notes *string) (*services.ExecutionView, error)
	OverrideResult(ctx context.Context, actor *domain.Actor, id string, in services.OverrideResultInput) (*services.ExecutionView, error)
}

// CompletionAPI accepts completions reported by integrated subsystems
type CompletionAPI interface {
	OnExternalCompletion(ctx context.Context, executionID string, outcome services.ExternalOutcome) (*services.CompletionReceipt, error)
}

// ExecutionHandler serves node executions
type ExecutionHandler struct {
	svc ExecutionAPI
}

// NewExecutionHandler creates a new ExecutionHandler
func NewExecutionHandler(svc ExecutionAPI) *ExecutionHandler {
	return &ExecutionHandler{svc: svc}
}

// Register mounts the handler's routes
func (h *ExecutionHandler) Register(api *gin.RouterGroup) {
	ex := api.Group("/executions")
	ex.GET("/:id", h.Get)
	ex.POST("/:id/schedule", h.Schedule)
	ex.POST("/:id/start", h.Start)
	ex.POST("/:id/await", h.AwaitInput)
	ex.POST("/:id/complete", h.Complete)
	ex.POST("/:id/fail", h.withReason(h.svc.Fail))
	ex.POST("/:id/skip", h.withReason(h.svc.Skip))
	ex.POST("/:id/link", h.Link)
	ex.POST("/:id/review", h.Review)
	ex.POST("/:id/override", h.Override)
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "execution", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), actor(c), c.Param("id"))
	})
}

type scheduleBody struct {
	DueDate *time.Time `json:"due_date"`
}

func (h *ExecutionHandler) Schedule(c *gin.Context) {
	var body scheduleBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	v, err := h.svc.Schedule(c.Request.Context(), actor(c), c.Param("id"), body.DueDate)
	respond(c, http.StatusOK, "execution", v, err)
}

type startBody struct {
	AssignedTo string `json:"assigned_to"`
}

func (h *ExecutionHandler) Start(c *gin.Context) {
	var body startBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	v, err := h.svc.Start(c.Request.Context(), actor(c), c.Param("id"), body.AssignedTo)
	respond(c, http.StatusOK, "execution", v, err)
}

func (h *ExecutionHandler) AwaitInput(c *gin.Context) {
	v, err := h.svc.AwaitInput(c.Request.Context(), actor(c), c.Param("id"))
	respond(c, http.StatusOK, "execution", v, err)
}

func (h *ExecutionHandler) Complete(c *gin.Context) {
	var in services.CompleteExecutionInput
	if !BindJSON(c, &in) {
		return
	}
	v, err := h.svc.Complete(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusOK, "execution", v, err)
}

func (h *ExecutionHandler) withReason(fn func(context.Context, *domain.Actor, string, string) (*services.ExecutionView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body reasonBody
		if !bindOptionalJSON(c, &body) {
			return
		}
		v, err := fn(c.Request.Context(), actor(c), c.Param("id"), body.Reason)
		respond(c, http.StatusOK, "execution", v, err)
	}
}

type linkBody struct {
	Kind ports.LinkageKind `json:"kind"`
	ID   string            `json:"id"`
}

// Link attaches an interview or task id to the execution
func (h *ExecutionHandler) Link(c *gin.Context) {
	var body linkBody
	if !BindJSON(c, &body) {
		return
	}
	var (
		v   *services.ExecutionView
		err error
	)
	switch body.Kind {
	case ports.LinkageInterview:
		v, err = h.svc.LinkInterview(c.Request.Context(), actor(c), c.Param("id"), body.ID)
	case ports.LinkageTask:
		v, err = h.svc.LinkTask(c.Request.Context(), actor(c), c.Param("id"), body.ID)
	default:
		err = errors.NewValidationError("kind", "kind must be interview or task")
	}
	respond(c, http.StatusOK, "execution", v, err)
}

type reviewBody struct {
	Notes *string `json:"notes"`
}

func (h *ExecutionHandler) Review(c *gin.Context) {
	var body reviewBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	v, err := h.svc.AddReview(c.Request.Context(), actor(c), c.Param("id"), body.Notes)
	respond(c, http.StatusOK, "execution", v, err)
}

func (h *ExecutionHandler) Override(c *gin.Context) {
	var in services.OverrideResultInput
	if !BindJSON(c, &in) {
		return
	}
	v, err := h.svc.OverrideResult(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusOK, "execution", v, err)
}

// CallbackHandler receives completion reports from integrated subsystems
type CallbackHandler struct {
	svc CompletionAPI
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(svc CompletionAPI) *CallbackHandler {
	return &CallbackHandler{svc: svc}
}

// Register mounts the handler's routes; the group must already require the service role
func (h *CallbackHandler) Register(callbacks *gin.RouterGroup) {
	callbacks.POST("/executions/:id/completion", h.Completion)
}

// Completion applies an external outcome. Repeated deliveries for an
// execution that already finished answer 200 with noop set.
func (h *CallbackHandler) Completion(c *gin.Context) {
	var outcome services.ExternalOutcome
	if !BindJSON(c, &outcome) {
		return
	}
	if outcome.CompletedBy == "" {
		if a := actor(c); a != nil {
			outcome.CompletedBy = a.UserID
		}
	}
	receipt, err := h.svc.OnExternalCompletion(c.Request.Context(), c.Param("id"), outcome)
	respond(c, http.StatusOK, "receipt", receipt, err)
}
