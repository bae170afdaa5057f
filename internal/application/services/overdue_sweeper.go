package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/recruitflow/backend/internal/domain/events"
	"github.com/recruitflow/backend/internal/domain/ports"
)

// DefaultOverdueSchedule runs the sweep every fifteen minutes.
const DefaultOverdueSchedule = "*/15 * * * *"

// OverdueSweeper periodically publishes execution.overdue for executions
// past their due date. It never changes execution state.
type OverdueSweeper struct {
	executions ports.NodeExecutionRepository
	publisher  ports.EventPublisher
	logger     *slog.Logger
	now        Clock
	schedule   string

	mu      sync.Mutex
	running bool
}

// NewOverdueSweeper creates a sweeper; an empty schedule uses DefaultOverdueSchedule
func NewOverdueSweeper(executions ports.NodeExecutionRepository, publisher ports.EventPublisher, schedule string, logger *slog.Logger) (*OverdueSweeper, error) {
	if schedule == "" {
		schedule = DefaultOverdueSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid overdue schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueSweeper{
		executions: executions,
		publisher:  publisher,
		logger:     logger,
		now:        systemClock,
		schedule:   schedule,
	}, nil
}

// Sweep publishes one event per overdue execution and returns how many it found
func (s *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	overdue, err := s.executions.ListOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue executions: %w", err)
	}
	for _, exec := range overdue {
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, events.ExecutionOverdue, executionPayload(exec)); err != nil {
			s.logger.Warn("overdue handler failed", "execution_id", exec.ID, "error", err)
		}
	}
	if len(overdue) > 0 {
		s.logger.Info("overdue sweep finished", "overdue", len(overdue))
	}
	return len(overdue), nil
}

// Run sweeps on schedule until ctx is cancelled
func (s *OverdueSweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("overdue sweeper already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("overdue sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}

	s.logger.Info("overdue sweeper started", "schedule", s.schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("overdue sweeper stopped")
	return nil
}
