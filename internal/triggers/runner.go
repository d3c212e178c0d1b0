package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/distlock"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// DefaultSchedules are the cron specs used for scan kinds the worker
// configuration leaves unset.
var DefaultSchedules = map[domain.TriggerKind]string{
	domain.TriggerNewRegistration:      "*/15 * * * *",
	domain.TriggerClassReminder:        "*/15 * * * *",
	domain.TriggerInactiveUser:         "0 10 * * *",
	domain.TriggerCreditExpiring:       "0 9 * * *",
	domain.TriggerMembershipExpiring:   "0 9 * * *",
	domain.TriggerAbandonedBooking:     "*/15 * * * *",
	domain.TriggerClassPassFirstVisit:  "0 * * * *",
	domain.TriggerClassPassSecondVisit: "0 * * * *",
	domain.TriggerClassPassHotLead:     "0 * * * *",
}

// Job is one cron-driven unit of work.
type Job func(ctx context.Context) error

// Runner drives trigger scans and other periodic jobs from cron specs.
// Each job runs under a distributed lock so only one worker instance
// executes it per tick, and overlapping runs in the same process are
// skipped.
type Runner struct {
	cron    *cron.Cron
	locks   *distlock.Factory
	timeout time.Duration
	jobs    []string
}

// NewRunner creates a Runner. A nil lock factory runs jobs unguarded.
// timeout bounds each job run.
func NewRunner(locks *distlock.Factory, loc *time.Location, timeout time.Duration) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cl := cronLogger{}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		locks:   locks,
		timeout: timeout,
	}
}

// AddJob registers fn under name on the given cron spec.
func (r *Runner) AddJob(name, spec string, fn Job) error {
	lock := r.locks.New("cron:"+name, r.timeout+time.Minute)
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		start := time.Now()
		ran, err := distlock.Run(ctx, lock, fn)
		switch {
		case err != nil:
			logger.Error("scheduled job failed", "job", name, "error", err, "duration", time.Since(start).String())
		case !ran:
			logger.Debug("scheduled job held by another instance", "job", name)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.jobs = append(r.jobs, name)
	return nil
}

// AddScans registers a scan job for every scan kind. specs overrides
// DefaultSchedules per kind; an empty spec disables that kind.
func (r *Runner) AddScans(e *Engine, specs map[domain.TriggerKind]string) error {
	for _, kind := range ScanKinds {
		spec, ok := specs[kind]
		if !ok {
			spec = DefaultSchedules[kind]
		}
		if spec == "" {
			logger.Info("trigger scan disabled", "trigger", string(kind))
			continue
		}
		kind := kind
		if err := r.AddJob("trigger:"+string(kind), spec, func(ctx context.Context) error {
			_, err := e.Scan(ctx, kind)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string { return append([]string(nil), r.jobs...) }

// Start begins running jobs in the background.
func (r *Runner) Start() {
	logger.Info("starting scheduler", "jobs", len(r.jobs))
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("scheduler stop timed out with jobs still running")
	}
	logger.Info("scheduler stopped")
}

// cronLogger routes cron's internal logging through the service logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) { logger.Debug("cron: "+msg, kv...) }

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	logger.Error("cron: "+msg, append(kv, "error", err)...)
}
