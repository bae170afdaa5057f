package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
)

// EventHandler receives the payload of one published event
type EventHandler = ports.EventHandler

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus is the in-process publisher behind ports.EventPublisher.
// Handlers run synchronously in subscription order; typed subscribers run
// before wildcard ones and the first error stops delivery.
type EventBus struct {
	mu       sync.RWMutex
	byType   map[events.EventType][]subscription
	wildcard []subscription
	nextID   uint64
	logger   *slog.Logger
}

var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		byType: make(map[events.EventType][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler for one event type and returns its unsubscribe func.
func (eb *EventBus) Subscribe(eventType events.EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.byType[eventType] = append(eb.byType[eventType], subscription{id: id, handler: handler})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.byType[eventType] = without(eb.byType[eventType], id)
	}
}

// SubscribeAll registers handler for every event type.
func (eb *EventBus) SubscribeAll(handler func(ctx context.Context, eventType events.EventType, payload interface{}) error) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.wildcard = append(eb.wildcard, subscription{id: id, handler: func(ctx context.Context, payload interface{}) error {
		et, _ := ctx.Value(eventTypeKey{}).(events.EventType)
		return handler(ctx, et, payload)
	}})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.wildcard = without(eb.wildcard, id)
	}
}

func without(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

type eventTypeKey struct{}

// Publish delivers payload to the subscribers of eventType.
func (eb *EventBus) Publish(ctx context.Context, eventType events.EventType, payload interface{}) error {
	eb.mu.RLock()
	subs := make([]subscription, 0, len(eb.byType[eventType])+len(eb.wildcard))
	subs = append(subs, eb.byType[eventType]...)
	subs = append(subs, eb.wildcard...)
	eb.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}
	ctx = context.WithValue(ctx, eventTypeKey{}, eventType)
	for _, s := range subs {
		if err := s.handler(ctx, payload); err != nil {
			eb.logger.Debug("event delivery stopped", "event_type", eventType, "subscription", s.id, "error", err)
			return fmt.Errorf("event handler for %s failed: %w", eventType, err)
		}
	}
	return nil
}

// Clear drops every subscription.
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.byType = make(map[events.EventType][]subscription)
	eb.wildcard = nil
}

// AuditLogger logs every published event at Debug.
func AuditLogger(logger *slog.Logger) func(context.Context, events.EventType, interface{}) error {
	return func(ctx context.Context, eventType events.EventType, payload interface{}) error {
		logger.DebugContext(ctx, "domain event", "event", eventType.String(), "payload", payload)
		return nil
	}
}
