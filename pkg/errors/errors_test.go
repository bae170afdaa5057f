package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidStateError_Message(t *testing.T) {
	err := NewInvalidStateError("workflow", "wf-1", "active", "activate")
	assert.Equal(t, "invalid state: cannot activate workflow 'wf-1' in status 'active'", err.Error())
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(err))
	assert.Equal(t, "INVALID_STATE", GetErrorCode(err))
}

func TestHelpers_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("failed to complete execution: %w", NewStaleStateError("node execution", "ex-1", 3))
	assert.True(t, IsStale(wrapped))
	assert.False(t, IsInvalidState(wrapped))
	assert.Equal(t, "STALE_STATE", GetErrorCode(wrapped))

	notFound := fmt.Errorf("lookup: %w", NewNotFoundError("Workflow", "wf-9"))
	assert.True(t, IsNotFound(notFound))
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(notFound))
}

func TestGetHTTPStatus_UnknownError(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(err))

	resp := ToResponse(NewPermissionError("execute_nodes", "workflow wf-1"))
	assert.Equal(t, "PERMISSION_DENIED", resp.Code)
	assert.Contains(t, resp.Message, "execute_nodes")
}

func TestConflictError_Messages(t *testing.T) {
	dup := NewConflictError("candidate workflow", "candidate_id,workflow_id", "7,wf-1")
	assert.Equal(t, "candidate workflow already exists with candidate_id,workflow_id='7,wf-1'", dup.Error())

	ref := NewConflictErrorWithMessage("node", "node 'n-1' is referenced by 2 executions")
	assert.Equal(t, "node conflict: node 'n-1' is referenced by 2 executions", ref.Error())
	assert.True(t, IsConflict(ref))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{NewValidationError("score", "out of range"), KindValidation},
		{NewUnauthorizedError(""), KindUnauthorized},
		{fmt.Errorf("wrapped: %w", NewConflictError("viewer", "user_id", "u-1")), KindConflict},
		{NewInternalError("query failed", fmt.Errorf("driver: bad connection")), KindInternal},
		{fmt.Errorf("plain"), Kind{Code: "UNKNOWN_ERROR", Status: http.StatusInternalServerError}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), tt.err.Error())
	}
}
