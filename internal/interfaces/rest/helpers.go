package rest

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/interfaces/middleware"
	"github.com/recruitflow/backend/pkg/errors"
)

// actor returns the authenticated caller; services reject a nil actor.
func actor(c *gin.Context) *domain.Actor {
	return middleware.ActorFrom(c)
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	resp := errors.ToResponse(err)

	if code >= 500 {
		slog.Error("request failed",
			"status", code, "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(code, resp)
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return BindJSON(c, obj)
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// respond writes { [key]: result } with the given status, or the error.
func respond(c *gin.Context, status int, key string, result interface{}, err error) {
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(status, gin.H{key: result})
}

// HandleDeleteEnvelope executes a delete action and returns a success message
func HandleDeleteEnvelope(c *gin.Context, successMsg string, action func() error) {
	if err := action(); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": successMsg})
}

// reasonBody is shared by fail, skip and withdraw.
type reasonBody struct {
	Reason string `json:"reason"`
}
