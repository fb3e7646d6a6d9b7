package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

// Job starts one cycle of the given mode. The worker runs it in-process; the
// server enqueues it.
type Job func(ctx context.Context, mode model.Mode, trigger model.RunTrigger) error

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

type entry struct {
	id       cron.EntryID
	schedule string
}

// Scheduler fires daily, weekly and monthly cycles on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	job     Job
	jobs    map[model.Mode]entry
	timeout time.Duration
}

// New registers one cron entry per mode with a non-empty schedule. Runs get
// a context bounded by timeout.
func New(cfg config.ScheduleConfig, job Job, timeout time.Duration) (*Scheduler, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", tz, err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Hour
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		job:     job,
		jobs:    make(map[model.Mode]entry),
		timeout: timeout,
	}

	for _, m := range []struct {
		mode     model.Mode
		schedule string
	}{
		{model.ModeDaily, cfg.Daily},
		{model.ModeWeekly, cfg.Weekly},
		{model.ModeMonthly, cfg.Monthly},
	} {
		if m.schedule == "" {
			continue
		}
		if err := s.add(m.mode, m.schedule); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(mode model.Mode, schedule string) error {
	id, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.run(ctx, mode, model.RunTriggerSchedule)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", mode, err)
	}

	s.jobs[mode] = entry{id: id, schedule: schedule}
	slog.Info("scheduled job added", "mode", mode, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(ctx context.Context, mode model.Mode, trigger model.RunTrigger) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Mode:      logger.Ptr(string(mode)),
		Component: "radar.scheduler",
	})

	slog.InfoContext(ctx, "starting job", "trigger", trigger)
	start := time.Now()

	if err := s.job(ctx, mode, trigger); err != nil {
		slog.ErrorContext(ctx, "job failed", "error", err)
		return err
	}
	slog.InfoContext(ctx, "job completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	slog.Info("starting scheduler", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	slog.Info("stopping scheduler")
	return s.cron.Stop()
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

// RunNow immediately executes the job for mode.
func (s *Scheduler) RunNow(ctx context.Context, mode model.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	return s.run(ctx, mode, model.RunTriggerCLI)
}

// ListJobs returns the scheduled jobs in daily, weekly, monthly order.
func (s *Scheduler) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))
	for mode, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     string(mode),
			Schedule: e.schedule,
			NextRun:  ce.Next,
			LastRun:  ce.Prev,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return modeOrder(infos[i].Name) < modeOrder(infos[j].Name)
	})
	return infos
}

func modeOrder(name string) int {
	switch model.Mode(name) {
	case model.ModeDaily:
		return 0
	case model.ModeWeekly:
		return 1
	default:
		return 2
	}
}
