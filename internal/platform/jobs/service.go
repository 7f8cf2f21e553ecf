package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"permitflow/internal/domain/balance"
	"permitflow/internal/platform/clock"
)

const (
	JobBalanceReset      = "balance_reset"
	JobApprovalReminders = "approval_reminders"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Resetter interface {
	ResetPeriod(ctx context.Context, year int, month time.Month, typeIDs, userIDs []string, actor string) (balance.ResetSummary, error)
}

type UserLister interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

type Reminder interface {
	SendReminders(ctx context.Context, olderThan time.Duration) (int, error)
}

// RunStore keeps the job_runs bookkeeping.
type RunStore interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type Config struct {
	ResetSchedule    string
	ReminderSchedule string
	ReminderAfter    time.Duration
	Location         *time.Location
	QueueSize        int
}

type Deps struct {
	Runs       RunStore
	Ledger     Resetter
	Users      UserLister
	Reminders  Reminder
	ResetTypes func() []string
	Clock      clock.Clock
}

type Service struct {
	deps  Deps
	cfg   Config
	queue chan job
	cron  *cron.Cron
	wg    sync.WaitGroup
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(deps Deps, cfg Config) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		deps:  deps,
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
		cron:  cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start registers the schedules and runs the worker until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.ResetSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ResetSchedule, func() {
			s.Enqueue(JobBalanceReset, s.ResetBalances)
		}); err != nil {
			return fmt.Errorf("balance reset schedule %q: %w", s.cfg.ResetSchedule, err)
		}
	}
	if s.cfg.ReminderSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReminderSchedule, func() {
			s.Enqueue(JobApprovalReminders, s.RemindApprovers)
		}); err != nil {
			return fmt.Errorf("reminder schedule %q: %w", s.cfg.ReminderSchedule, err)
		}
	}

	s.wg.Add(1)
	go s.worker(ctx)
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// Wait blocks until the worker has exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// ResetBalances resets every reset-eligible type for all active users in the
// current month.
func (s *Service) ResetBalances(ctx context.Context) (any, error) {
	userIDs, err := s.deps.Users.ActiveUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now().In(s.cfg.Location)
	return s.deps.Ledger.ResetPeriod(ctx, now.Year(), now.Month(), s.deps.ResetTypes(), userIDs, "")
}

func (s *Service) RemindApprovers(ctx context.Context) (any, error) {
	sent, err := s.deps.Reminders.SendReminders(ctx, s.cfg.ReminderAfter)
	return map[string]any{"sent": sent, "olderThan": s.cfg.ReminderAfter.String()}, err
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.deps.Runs != nil {
		id, err := s.deps.Runs.StartRun(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.deps.Runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	slog.Info("job finished", "jobType", j.Type, "status", status)
	return details, err
}
