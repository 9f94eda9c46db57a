package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/volt/pkg/logger"
)

// TaskFunc is a scheduled task. The context is cancelled when the scheduler
// stops.
type TaskFunc func(ctx context.Context) error

// cronParser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs tasks on cron schedules, for example periodic broadcasts
// to event stream and WebSocket clients.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNope()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{logger: log, ctx: ctx, cancel: cancel}
	cl := cronLogger{log}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Add schedules fn under spec. name only labels log entries.
func (s *Scheduler) Add(name, spec string, fn TaskFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := fn(s.ctx); err != nil {
			s.logger.WarnContext(s.ctx, "scheduled task failed",
				slog.String("task", name),
				slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("volt: schedule %q (%s): %w", name, spec, err)
	}
	return nil
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins running tasks.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops scheduling, cancels running tasks and waits for them until ctx
// is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
