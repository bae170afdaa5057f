package rest_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/application/services"
	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/infrastructure/memory"
	"github.com/recruitflow/backend/internal/interfaces/rest"
	"github.com/recruitflow/backend/pkg/auth"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *apiClient) do(method, path string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func newTestAPI(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm, err := services.NewServiceManager(memory.NewStore().Ports(), services.Options{Logger: logger})
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer("router-test-secret", time.Hour)
	require.NoError(t, err)
	return rest.NewRouter(sm, issuer, logger), issuer
}

func clientFor(t *testing.T, router http.Handler, issuer *auth.TokenIssuer, sub auth.Subject) *apiClient {
	t.Helper()
	token, err := issuer.GenerateToken(sub)
	require.NoError(t, err)
	return &apiClient{t: t, router: router, token: token}
}

func object(t *testing.T, body map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := body[key].(map[string]interface{})
	require.True(t, ok, "missing %q in %v", key, body)
	return v
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestAPI(t)
	code, body := (&apiClient{t: t, router: router}).do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_CandidateRunOverHTTP(t *testing.T) {
	router, issuer := newTestAPI(t)
	owner := clientFor(t, router, issuer, auth.Subject{UserID: "owner-1", Name: "Olivia", Role: domain.ActorRoleUser})
	outsider := clientFor(t, router, issuer, auth.Subject{UserID: "nobody", Role: domain.ActorRoleUser})
	examService := clientFor(t, router, issuer, auth.Subject{UserID: "exam-service", Role: domain.ActorRoleService})

	code, body := owner.do(http.MethodPost, "/api/workflows", gin.H{"name": "Backend engineer", "company_id": "acme"})
	require.Equal(t, http.StatusCreated, code, body)
	workflowID := object(t, body, "workflow")["id"].(string)

	var nodeIDs []string
	for _, title := range []string{"Phone screen", "Take-home review"} {
		code, body = owner.do(http.MethodPost, "/api/workflows/"+workflowID+"/nodes", gin.H{"type": "screening", "title": title})
		require.Equal(t, http.StatusCreated, code, body)
		nodeIDs = append(nodeIDs, object(t, body, "node")["id"].(string))
	}

	code, body = owner.do(http.MethodPost, "/api/workflows/"+workflowID+"/activate", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "active", object(t, body, "workflow")["status"])

	code, body = owner.do(http.MethodPost, "/api/candidate-workflows", gin.H{"candidate_id": "cand-7", "workflow_id": workflowID, "start": true})
	require.Equal(t, http.StatusCreated, code, body)
	run := object(t, body, "candidate_workflow")
	runID := run["id"].(string)
	assert.Equal(t, "in_progress", run["status"])
	assert.Equal(t, nodeIDs[0], run["current_node_id"])

	code, body = owner.do(http.MethodGet, "/api/candidate-workflows/"+runID+"/executions", nil)
	require.Equal(t, http.StatusOK, code, body)
	executions := body["executions"].([]interface{})
	require.Len(t, executions, 1)
	firstExec := executions[0].(map[string]interface{})["id"].(string)

	t.Run("callbacks require the service role", func(t *testing.T) {
		code, body := owner.do(http.MethodPost, "/api/callbacks/executions/"+firstExec+"/completion", gin.H{"result": "pass"})
		assert.Equal(t, http.StatusForbidden, code, body)
	})

	code, body = examService.do(http.MethodPost, "/api/callbacks/executions/"+firstExec+"/completion", gin.H{"result": "pass", "score": 88})
	require.Equal(t, http.StatusOK, code, body)
	receipt := object(t, body, "receipt")
	assert.Equal(t, false, receipt["noop"])
	assert.Equal(t, "completed", receipt["status"])
	assert.Equal(t, nodeIDs[1], receipt["current_node_id"])

	code, body = examService.do(http.MethodPost, "/api/callbacks/executions/"+firstExec+"/completion", gin.H{"result": "pass"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, object(t, body, "receipt")["noop"])

	code, body = owner.do(http.MethodGet, "/api/candidate-workflows/"+runID+"/executions", nil)
	require.Equal(t, http.StatusOK, code, body)
	executions = body["executions"].([]interface{})
	require.Len(t, executions, 2)
	var secondExec string
	for _, e := range executions {
		m := e.(map[string]interface{})
		if m["node_id"] == nodeIDs[1] {
			secondExec = m["id"].(string)
		}
	}
	require.NotEmpty(t, secondExec)

	code, body = examService.do(http.MethodPost, "/api/callbacks/executions/"+secondExec+"/completion", gin.H{"result": "pass"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", object(t, body, "receipt")["candidate_status"])

	code, body = owner.do(http.MethodGet, "/api/candidate-workflows/"+runID+"/progress", nil)
	require.Equal(t, http.StatusOK, code, body)
	progress := object(t, body, "progress")
	assert.Equal(t, 100.0, progress["progress_percentage"])
	assert.Equal(t, 2.0, progress["completed_nodes"])

	t.Run("outsiders cannot read the workflow", func(t *testing.T) {
		code, body := outsider.do(http.MethodGet, "/api/workflows/"+workflowID, nil)
		assert.Equal(t, http.StatusForbidden, code, body)
		assert.Equal(t, "PERMISSION_DENIED", body["code"])
	})

	t.Run("unknown run", func(t *testing.T) {
		code, body := owner.do(http.MethodGet, "/api/candidate-workflows/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, code, body)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})

	t.Run("completed runs reject new transitions", func(t *testing.T) {
		code, body := owner.do(http.MethodPost, "/api/candidate-workflows/"+runID+"/hold", nil)
		assert.Equal(t, http.StatusConflict, code, body)
		assert.Equal(t, "INVALID_STATE", body["code"])
	})
}

func TestRouter_RequiresToken(t *testing.T) {
	router, _ := newTestAPI(t)
	anonymous := &apiClient{t: t, router: router}

	code, body := anonymous.do(http.MethodGet, "/api/workflows", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	forged := &apiClient{t: t, router: router, token: "not-a-jwt"}
	code, _ = forged.do(http.MethodGet, "/api/workflows", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_ImportTemplate(t *testing.T) {
	router, issuer := newTestAPI(t)
	owner := clientFor(t, router, issuer, auth.Subject{UserID: "owner-1", Role: domain.ActorRoleUser})

	req, err := http.NewRequest(http.MethodPost, "/api/workflows/import?company_id=acme", bytes.NewBufferString("not: [valid"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+owner.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
