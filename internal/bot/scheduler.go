package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/piyasasohbet/piyasabot/internal/bot/tasks"
	"github.com/piyasasohbet/piyasabot/internal/config"
)

// Scheduler runs the maintenance tasks on cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler in loc. Tasks missing from cfg fall back to
// config.DefaultTasks.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, loc *time.Location, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if cfg == nil {
		cfg = &config.SchedulerConfig{}
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

func (s *Scheduler) taskConfig(name string) config.TaskConfig {
	if tc, ok := s.cfg.Tasks[name]; ok {
		return tc
	}
	return config.DefaultTasks[name]
}

// Start registers every enabled task and starts ticking. Tasks receive a context that
// Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return fmt.Errorf("scheduler is already running or stopped")
	}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	scheduled := 0
	for name, taskFunc := range s.taskMap {
		tc := s.taskConfig(name)
		if !tc.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", name)
			continue
		}
		if tc.Schedule == "" {
			s.logger.Warn("Scheduled task enabled but has empty schedule, skipping", "task_name", name)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(tc.Schedule, true),
			gocron.NewTask(s.wrap(name, taskFunc), taskCtx),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", name, "schedule", tc.Schedule, "error", err)
			continue
		}
		s.logger.Info("Scheduled task", "task_name", name, "schedule", tc.Schedule)
		scheduled++
	}

	s.scheduler.Start()
	s.running = true
	s.cancel = cancel
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)
	return nil
}

func (s *Scheduler) wrap(name string, task tasks.ScheduledTaskFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		s.logger.DebugContext(ctx, "Running scheduled task", "task_name", name)
		if err := task(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled task failed", "task_name", name, "error", err, "duration", time.Since(start))
			return
		}
		s.logger.DebugContext(ctx, "Finished scheduled task", "task_name", name, "duration", time.Since(start))
	}
}

// RunNow executes a registered task once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	task, ok := s.taskMap[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return task(ctx)
}

// Stop cancels running tasks and waits for them to return. It must be called even if
// Start never was, to release the scheduler's goroutines.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped")
	}
	s.running = false
	s.stopped = true
	return err
}
