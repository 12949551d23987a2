package infra

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs named housekeeping jobs on fixed intervals. A job that is
// still running when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	adapter := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Every registers fn under name to run once per interval.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	if fn == nil {
		return fmt.Errorf("schedule %s: job is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("schedule %s: already registered", name)
	}
	logger := s.logger
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		start := time.Now()
		fn()
		logger.Debug().Str("job", name).Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
	}))
	s.entries[name] = id
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
