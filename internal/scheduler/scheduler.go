// Package scheduler runs the pipeline on a cron schedule for the daemon command
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// Job is one scheduled run. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a single job on a six-field cron spec (seconds first).
// A run that is still going when the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	spec  string
	entry cron.EntryID
}

// New creates a scheduler for job. It returns an error for an invalid spec.
func New(spec string, job Job) (*Scheduler, error) {
	log := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		job:    job,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.Reschedule(spec); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start begins running the job on schedule
func (s *Scheduler) Start() {
	logging.Info("Starting scheduler with schedule %q, next run %s", s.Spec(), s.Next().Format(time.RFC3339))
	s.cron.Start()
}

// Stop cancels the job context and returns a context that is done once the
// running job, if any, has returned
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// Reschedule replaces the schedule. The old schedule stays active when spec is invalid.
func (s *Scheduler) Reschedule(spec string) error {
	spec = strings.TrimSpace(spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == s.spec && s.entry != 0 {
		return nil
	}

	entry, err := s.cron.AddFunc(spec, func() { s.job(s.ctx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		logging.Info("Schedule changed from %q to %q", s.spec, spec)
	}
	s.entry = entry
	s.spec = spec
	return nil
}

// Spec returns the active schedule
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Next returns the next activation time after now
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.cron.Entry(s.entry)
	if entry.Schedule == nil {
		return time.Time{}
	}
	return entry.Schedule.Next(time.Now())
}

// cronLogger sends cron's own messages to the application logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
