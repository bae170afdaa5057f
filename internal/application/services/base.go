package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
)

// Clock returns the current time. Services default to UTC wall time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// effects collects what an operation wants to happen once its transaction
// has committed. A rolled-back transaction discards them.
type effects struct {
	events      []pendingEvent
	afterCommit []func(ctx context.Context)
}

type pendingEvent struct {
	eventType events.EventType
	payload   interface{}
}

func (fx *effects) publish(eventType events.EventType, payload interface{}) {
	fx.events = append(fx.events, pendingEvent{eventType: eventType, payload: payload})
}

func (fx *effects) then(fn func(ctx context.Context)) {
	fx.afterCommit = append(fx.afterCommit, fn)
}

// base carries the dependencies every service shares.
type base struct {
	store     ports.Store
	publisher ports.EventPublisher
	logger    *slog.Logger
	now       Clock
}

func newBase(store ports.Store, publisher ports.EventPublisher, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{store: store, publisher: publisher, logger: logger, now: systemClock}
}

// inTx runs fn in one transaction and flushes its effects after commit.
func (b *base) inTx(ctx context.Context, fn func(ctx context.Context, fx *effects) error) error {
	var fx *effects
	err := b.store.Tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		fx = &effects{}
		return fn(txCtx, fx)
	})
	if err != nil {
		return err
	}
	b.flush(ctx, fx)
	return nil
}

func (b *base) flush(ctx context.Context, fx *effects) {
	if b.publisher != nil {
		for _, ev := range fx.events {
			if err := b.publisher.Publish(ctx, ev.eventType, ev.payload); err != nil {
				b.logger.Warn("event handler failed", "event", ev.eventType, "error", err)
			}
		}
	}
	for _, fn := range fx.afterCommit {
		fn(ctx)
	}
}

func (b *base) loadGraph(ctx context.Context, workflowID string) (*domain.NodeGraph, error) {
	nodes, err := b.store.Nodes.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	conns, err := b.store.Connections.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return domain.NewNodeGraph(nodes, conns)
}

func candidatePayload(cw *domain.CandidateWorkflow) events.CandidatePayload {
	p := events.CandidatePayload{
		CandidateWorkflowID: cw.ID,
		CandidateID:         cw.CandidateID,
		WorkflowID:          cw.WorkflowID,
		Status:              string(cw.Status),
	}
	if cw.FinalResult != nil {
		p.FinalResult = *cw.FinalResult
	}
	return p
}

func executionPayload(e *domain.NodeExecution) events.ExecutionPayload {
	p := events.ExecutionPayload{
		ExecutionID:         e.ID,
		CandidateWorkflowID: e.CandidateWorkflowID,
		NodeID:              e.NodeID,
		Status:              string(e.Status),
	}
	if e.Result != nil {
		p.Result = *e.Result
	}
	return p
}

func strPtr(s string) *string {
	return &s
}
