package tariff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/tariffio/tariff-import/internal/domain/tariff"
)

type jobExecutor interface {
	Run(ctx context.Context, job domain.ImportJob) error
}

type schedulerJobStore interface {
	DueJobs(ctx context.Context, pendingLimit, retryLimit, pausedLimit int) ([]domain.ImportJob, error)
	HasActiveJob(ctx context.Context, providerID string) (bool, error)
	Create(ctx context.Context, providerID string, mode domain.ImportMode, maxRetries int) (string, error)
	ForceCompleteNearDone(ctx context.Context, minProgress float64, grace time.Duration) ([]string, error)
	DemoteStale(ctx context.Context, olderThan, backoff time.Duration, reason string) ([]string, error)
	ForceFailDead(ctx context.Context, olderThan time.Duration, reason string) ([]string, error)
}

type schedulerProviderStore interface {
	ListAutoProcess(ctx context.Context) ([]domain.Provider, error)
}

type SchedulerConfig struct {
	TickSpec     string
	PendingBatch int
	RetryBatch   int
	PausedBatch  int

	// MaxRetries is the budget given to auto-enqueued jobs.
	MaxRetries int

	StaleAfter      time.Duration
	StaleBackoff    time.Duration
	NearDonePercent float64
	NearDoneGrace   time.Duration
	DeadAfter       time.Duration
}

// Scheduler is the single periodic tick of the job engine: recovery
// sweeps, auto-process enqueueing, then the due jobs in small bounded
// batches, executed sequentially.
type Scheduler struct {
	jobs      schedulerJobStore
	providers schedulerProviderStore
	runner    jobExecutor
	cfg       SchedulerConfig

	cron *cron.Cron
	once sync.Once
}

func NewScheduler(jobs schedulerJobStore, providers schedulerProviderStore, runner jobExecutor, cfg SchedulerConfig) *Scheduler {
	if cfg.TickSpec == "" {
		cfg.TickSpec = "@every 1m"
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = 2
	}
	if cfg.RetryBatch <= 0 {
		cfg.RetryBatch = 2
	}
	if cfg.PausedBatch <= 0 {
		cfg.PausedBatch = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.StaleAfter < time.Minute {
		cfg.StaleAfter = time.Minute
	}
	if cfg.StaleAfter > time.Hour {
		cfg.StaleAfter = time.Hour
	}
	if cfg.StaleBackoff <= 0 {
		cfg.StaleBackoff = 2 * time.Minute
	}
	if cfg.NearDonePercent <= 0 {
		cfg.NearDonePercent = 99
	}
	if cfg.NearDoneGrace <= 0 {
		cfg.NearDoneGrace = 3 * time.Minute
	}
	if cfg.DeadAfter <= 0 {
		cfg.DeadAfter = 30 * time.Minute
	}

	return &Scheduler{
		jobs:      jobs,
		providers: providers,
		runner:    runner,
		cfg:       cfg,
	}
}

// Start arms the cron tick. A tick that outlives the interval is skipped
// rather than stacked, so runs never overlap inside one process.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
		if _, err = s.cron.AddFunc(s.cfg.TickSpec, func() { s.Tick(ctx) }); err != nil {
			err = fmt.Errorf("schedule tick %q: %w", s.cfg.TickSpec, err)
			return
		}
		s.cron.Start()
		log.Printf("scheduler started, tick %s", s.cfg.TickSpec)
	})
	return err
}

// Stop halts the tick and returns a context that closes once a running
// tick has finished.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		done, cancel := context.WithCancel(context.Background())
		cancel()
		return done
	}
	return s.cron.Stop()
}

func (s *Scheduler) Tick(ctx context.Context) {
	s.recoverStuck(ctx)
	s.enqueueAutoProcess(ctx)
	s.runDue(ctx)
}

// recoverStuck applies the three crash-recovery sweeps. Near-done jobs
// complete before the staleness checks can demote them, and the hard
// ceiling fails a job before the demotion sweep can grant it a retry.
func (s *Scheduler) recoverStuck(ctx context.Context) {
	ids, err := s.jobs.ForceCompleteNearDone(ctx, s.cfg.NearDonePercent, s.cfg.NearDoneGrace)
	if err != nil {
		log.Printf("force-complete sweep: %v", err)
	} else if len(ids) > 0 {
		log.Printf("force-completed %d near-done jobs: %s", len(ids), strings.Join(ids, ", "))
	}

	ids, err = s.jobs.ForceFailDead(ctx, s.cfg.DeadAfter, fmt.Sprintf("no progress for %s", s.cfg.DeadAfter))
	if err != nil {
		log.Printf("force-fail sweep: %v", err)
	} else if len(ids) > 0 {
		log.Printf("force-failed %d dead jobs: %s", len(ids), strings.Join(ids, ", "))
	}

	ids, err = s.jobs.DemoteStale(ctx, s.cfg.StaleAfter, s.cfg.StaleBackoff, fmt.Sprintf("no progress for %s", s.cfg.StaleAfter))
	if err != nil {
		log.Printf("demote sweep: %v", err)
	} else if len(ids) > 0 {
		log.Printf("demoted %d stale jobs: %s", len(ids), strings.Join(ids, ", "))
	}
}

// enqueueAutoProcess creates a standard job for every active
// auto-process provider whose interval elapsed and which has no job in
// flight.
func (s *Scheduler) enqueueAutoProcess(ctx context.Context) {
	providers, err := s.providers.ListAutoProcess(ctx)
	if err != nil {
		log.Printf("list auto-process providers: %v", err)
		return
	}

	now := time.Now()
	for _, p := range providers {
		if p.ScheduleEveryMinutes <= 0 {
			continue
		}
		if p.LastRunAt != nil && now.Sub(*p.LastRunAt) < time.Duration(p.ScheduleEveryMinutes)*time.Minute {
			continue
		}
		active, err := s.jobs.HasActiveJob(ctx, p.ID)
		if err != nil {
			log.Printf("check active job for provider %s: %v", p.ID, err)
			continue
		}
		if active {
			continue
		}
		jobID, err := s.jobs.Create(ctx, p.ID, domain.ModeStandard, s.cfg.MaxRetries)
		if err != nil {
			log.Printf("enqueue job for provider %s: %v", p.ID, err)
			continue
		}
		log.Printf("enqueued job %s for provider %s", jobID, p.Name)
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	jobs, err := s.jobs.DueJobs(ctx, s.cfg.PendingBatch, s.cfg.RetryBatch, s.cfg.PausedBatch)
	if err != nil {
		log.Printf("list due jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := s.runner.Run(ctx, job); err != nil {
			if errors.Is(err, domain.ErrProviderBusy) {
				log.Printf("job %s skipped: %v", job.ID, err)
				continue
			}
			log.Printf("job %s attempt failed: %v", job.ID, err)
		}
	}
}
