// Package dispatch hands delegated node executions to the interview, exam
// and to-do subsystems.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/recruitflow/backend/internal/domain/ports"
)

const maxResponseBytes = 1 << 20

// WebhookDispatcher POSTs each TaskRequest as JSON to a single endpoint.
// A 2xx response with a {"kind","id"} body links the execution; 204 or an
// empty body means nothing was created.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ ports.TaskDispatcher = (*WebhookDispatcher)(nil)

// NewWebhookDispatcher creates a dispatcher posting to url
func NewWebhookDispatcher(url string, timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, req ports.TaskRequest) (*ports.TaskLinkage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ExecutionID)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("task dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("task dispatch rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var linkage ports.TaskLinkage
	if err := json.Unmarshal(raw, &linkage); err != nil {
		return nil, fmt.Errorf("invalid dispatch response: %w", err)
	}
	if linkage.ID == "" {
		return nil, nil
	}
	if linkage.Kind != ports.LinkageInterview && linkage.Kind != ports.LinkageTask {
		return nil, fmt.Errorf("unknown linkage kind %q", linkage.Kind)
	}
	d.logger.Debug("execution dispatched",
		"execution_id", req.ExecutionID, "node_type", req.NodeType, "kind", linkage.Kind, "linked_id", linkage.ID)
	return &linkage, nil
}

// LogDispatcher records delegated executions without calling out. Used
// when no webhook is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ ports.TaskDispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher creates a LogDispatcher
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, req ports.TaskRequest) (*ports.TaskLinkage, error) {
	d.logger.Info("delegated execution awaiting external completion",
		"execution_id", req.ExecutionID, "node_type", req.NodeType, "title", req.Title)
	return nil, nil
}
