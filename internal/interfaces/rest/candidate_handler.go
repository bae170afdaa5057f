package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain"
)

// CandidateAPI is the slice of the candidate service the handler drives
type CandidateAPI interface {
	Create(ctx context.Context, actor *domain.Actor, in services.CreateCandidateInput) (*domain.CandidateWorkflow, error)
	Get(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error)
	ListByWorkflow(ctx context.Context, actor *domain.Actor, workflowID string) ([]*domain.CandidateWorkflow, error)
	PutOnHold(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error)
	Resume(ctx context.Context, actor *domain.Actor, id string) (*domain.CandidateWorkflow, error)
	Withdraw(ctx context.Context, actor *domain.Actor, id, reason string) (*domain.CandidateWorkflow, error)
	Fail(ctx context.Context, actor *domain.Actor, id, reason string) (*domain.CandidateWorkflow, error)
	Complete(ctx context.Context, actor *domain.Actor, id string, in services.CompleteCandidateInput) (*domain.CandidateWorkflow, error)
	AssignRecruiter(ctx context.Context, actor *domain.Actor, id, recruiterID string) (*domain.CandidateWorkflow, error)
	UpdateNotes(ctx context.Context, actor *domain.Actor, id, notes string) (*domain.CandidateWorkflow, error)
	Progress(ctx context.Context, actor *domain.Actor, id string) (*services.CandidateProgress, error)
	Delete(ctx context.Context, actor *domain.Actor, id string) error
}

// RunAPI moves candidate runs through the graph
type RunAPI interface {
	StartCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) (*domain.CandidateWorkflow, error)
	AdvanceCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) (*domain.CandidateWorkflow, error)
}

// ExecutionLister lists the executions of one run
type ExecutionLister interface {
	ListByCandidate(ctx context.Context, actor *domain.Actor, candidateWorkflowID string) ([]*services.ExecutionView, error)
}

// CandidateHandler serves candidate runs
type CandidateHandler struct {
	svc        CandidateAPI
	runs       RunAPI
	executions ExecutionLister
}

// NewCandidateHandler creates a new CandidateHandler
func NewCandidateHandler(svc CandidateAPI, runs RunAPI, executions ExecutionLister) *CandidateHandler {
	return &CandidateHandler{svc: svc, runs: runs, executions: executions}
}

// Register mounts the handler's routes
func (h *CandidateHandler) Register(api *gin.RouterGroup) {
	api.GET("/workflows/:id/candidates", h.ListByWorkflow)

	cw := api.Group("/candidate-workflows")
	cw.POST("", h.Create)
	cw.GET("/:id", h.Get)
	cw.DELETE("/:id", h.Delete)
	cw.GET("/:id/progress", h.Progress)
	cw.GET("/:id/executions", h.Executions)
	cw.POST("/:id/start", h.simple(h.runs.StartCandidate))
	cw.POST("/:id/advance", h.simple(h.runs.AdvanceCandidate))
	cw.POST("/:id/hold", h.simple(h.svc.PutOnHold))
	cw.POST("/:id/resume", h.simple(h.svc.Resume))
	cw.POST("/:id/withdraw", h.withReason(h.svc.Withdraw))
	cw.POST("/:id/fail", h.withReason(h.svc.Fail))
	cw.POST("/:id/complete", h.Complete)
	cw.PUT("/:id/recruiter", h.AssignRecruiter)
	cw.PUT("/:id/notes", h.UpdateNotes)
}

func (h *CandidateHandler) Create(c *gin.Context) {
	var in services.CreateCandidateInput
	if !BindJSON(c, &in) {
		return
	}
	cw, err := h.svc.Create(c.Request.Context(), actor(c), in)
	respond(c, http.StatusCreated, "candidate_workflow", cw, err)
}

func (h *CandidateHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "candidate_workflow", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *CandidateHandler) Delete(c *gin.Context) {
	HandleDeleteEnvelope(c, "Candidate workflow deleted", func() error {
		return h.svc.Delete(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *CandidateHandler) ListByWorkflow(c *gin.Context) {
	HandleGetEnvelope(c, "candidate_workflows", func() (interface{}, error) {
		return h.svc.ListByWorkflow(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *CandidateHandler) Progress(c *gin.Context) {
	HandleGetEnvelope(c, "progress", func() (interface{}, error) {
		return h.svc.Progress(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *CandidateHandler) Executions(c *gin.Context) {
	HandleGetEnvelope(c, "executions", func() (interface{}, error) {
		return h.executions.ListByCandidate(c.Request.Context(), actor(c), c.Param("id"))
	})
}

func (h *CandidateHandler) simple(fn func(context.Context, *domain.Actor, string) (*domain.CandidateWorkflow, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		cw, err := fn(c.Request.Context(), actor(c), c.Param("id"))
		respond(c, http.StatusOK, "candidate_workflow", cw, err)
	}
}

func (h *CandidateHandler) withReason(fn func(context.Context, *domain.Actor, string, string) (*domain.CandidateWorkflow, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body reasonBody
		if !bindOptionalJSON(c, &body) {
			return
		}
		cw, err := fn(c.Request.Context(), actor(c), c.Param("id"), body.Reason)
		respond(c, http.StatusOK, "candidate_workflow", cw, err)
	}
}

func (h *CandidateHandler) Complete(c *gin.Context) {
	var in services.CompleteCandidateInput
	if !BindJSON(c, &in) {
		return
	}
	cw, err := h.svc.Complete(c.Request.Context(), actor(c), c.Param("id"), in)
	respond(c, http.StatusOK, "candidate_workflow", cw, err)
}

type recruiterBody struct {
	RecruiterID string `json:"recruiter_id"`
}

func (h *CandidateHandler) AssignRecruiter(c *gin.Context) {
	var body recruiterBody
	if !BindJSON(c, &body) {
		return
	}
	cw, err := h.svc.AssignRecruiter(c.Request.Context(), actor(c), c.Param("id"), body.RecruiterID)
	respond(c, http.StatusOK, "candidate_workflow", cw, err)
}

type notesBody struct {
	Notes string `json:"notes"`
}

func (h *CandidateHandler) UpdateNotes(c *gin.Context) {
	var body notesBody
	if !BindJSON(c, &body) {
		return
	}
	cw, err := h.svc.UpdateNotes(c.Request.Context(), actor(c), c.Param("id"), body.Notes)
	respond(c, http.StatusOK, "candidate_workflow", cw, err)
}
