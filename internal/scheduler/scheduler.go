package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"edumod/internal/config"
	"edumod/internal/models"
	"edumod/internal/service"

	"github.com/robfig/cron/v3"
)

// Queue is the part of the moderation queue driven by the scheduler
type Queue interface {
	TimeoutSweep(ctx context.Context, now time.Time) (service.SweepResult, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
}

// Scheduler handles periodic tasks
type Scheduler struct {
	queue  Queue
	config *config.SchedulerConfig
	logger *slog.Logger
	now    func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a new scheduler. Cron expressions are validated here
// so a bad configuration fails at startup.
func NewScheduler(queue Queue, cfg *config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	cronLogger := slogCronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		queue:  queue,
		config: cfg,
		logger: logger,
		now:    time.Now,
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(cfg.SweepCron, s.runTimeoutSweep); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepCron, err)
	}
	if cfg.StatsCron != "" {
		if _, err := c.AddFunc(cfg.StatsCron, s.refreshStats); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid stats schedule %q: %w", cfg.StatsCron, err)
		}
	}
	return s, nil
}

// Start starts all scheduled tasks
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.logger.Info("Starting scheduler",
		"sweep_cron", s.config.SweepCron,
		"stats_cron", s.config.StatsCron,
	)
	s.cron.Start()
}

// Stop stops the scheduler and waits for running tasks until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	s.cancel()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// RunOnce runs the timeout sweep immediately
func (s *Scheduler) RunOnce() {
	s.runTimeoutSweep()
}

func (s *Scheduler) runTimeoutSweep() {
	if s.ctx.Err() != nil {
		return
	}
	result, err := s.queue.TimeoutSweep(s.ctx, s.now())
	if err != nil {
		s.logger.Error("Timeout sweep failed", "error", err)
		return
	}
	if result.Failed > 0 {
		s.logger.Warn("Timeout sweep left items for the next run", "failed", result.Failed)
	}
}

func (s *Scheduler) refreshStats() {
	if s.ctx.Err() != nil {
		return
	}
	stats, err := s.queue.Stats(s.ctx)
	if err != nil {
		s.logger.Error("Failed to refresh queue statistics", "error", err)
		return
	}
	s.logger.Debug("Queue statistics refreshed",
		"total", stats.Total, "overdue", stats.Overdue, "open_escalations", stats.OpenEscalation)
}

// slogCronLogger routes cron's own logging through slog
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
