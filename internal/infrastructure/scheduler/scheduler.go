// Package scheduler implements cron-based background job scheduling for
// the cup hub worker. Competition triggers, result polling and the daily
// streak accounting all run through it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of scheduled work.
type Job interface {
	// Name returns the unique name of the job. Adding a job whose name
	// is already registered replaces the old registration.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// FuncJob adapts a plain function to the Job interface.
type FuncJob struct {
	name        string
	description string
	fn          func(ctx context.Context) error
}

// NewFuncJob creates a Job from a function.
func NewFuncJob(name, description string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{name: name, description: description, fn: fn}
}

func (j *FuncJob) Name() string                  { return j.name }
func (j *FuncJob) Description() string           { return j.description }
func (j *FuncJob) Run(ctx context.Context) error { return j.fn(ctx) }

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// scheduledJob wraps a Job with its schedule and run bookkeeping.
type scheduledJob struct {
	job        Job
	expression *CronExpression
	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	failCount  int64
}

// Scheduler runs named jobs on cron schedules. All schedule evaluation
// happens in a single location (UTC unless configured otherwise) with a
// minute-aligned tick.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	location *time.Location

	jobs    map[string]*scheduledJob
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	metrics *SchedulerMetrics
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Location for schedule evaluation (default: UTC).
	Location *time.Location

	// EnableMetrics enables per-job execution counters.
	EnableMetrics bool
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Location:      time.UTC,
		EnableMetrics: true,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	s := &Scheduler{
		logger:   config.Logger,
		location: config.Location,
		jobs:     make(map[string]*scheduledJob),
		stopCh:   make(chan struct{}),
	}

	if config.EnableMetrics {
		s.metrics = NewSchedulerMetrics()
	}

	return s
}

// AddJob registers a job under its name with the given cron expression.
// Re-registering a name replaces the previous job and schedule.
func (s *Scheduler) AddJob(job Job, cronExpr string) error {
	if job == nil {
		return ErrNilJob
	}

	expr, err := ParseCronExpression(cronExpr)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().In(s.location)
	replaced := s.jobs[job.Name()] != nil
	s.jobs[job.Name()] = &scheduledJob{
		job:        job,
		expression: expr,
		nextRun:    expr.Next(now),
	}

	s.logger.Info("job registered",
		"job", job.Name(),
		"schedule", cronExpr,
		"replaced", replaced,
		"next_run", s.jobs[job.Name()].nextRun.Format(time.RFC3339),
	)

	return nil
}

// AddFunc registers a plain function as a job.
func (s *Scheduler) AddFunc(name, description, cronExpr string, fn func(ctx context.Context) error) error {
	return s.AddJob(NewFuncJob(name, description, fn), cronExpr)
}

// RemoveJob removes a job by name. Removing an unknown name is a no-op.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; !exists {
		return
	}
	delete(s.jobs, name)
	s.logger.Info("job removed", "job", name)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"location", s.location.String(),
		"jobs", len(s.jobs),
	)

	s.wg.Add(1)
	go s.runLoop(ctx)

	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// runLoop ticks at the start of every minute and dispatches due jobs.
func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.untilNextMinute())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			timer.Reset(s.untilNextMinute())
			s.runDueJobs(ctx)
		}
	}
}

// untilNextMinute returns the duration until the start of the next minute.
func (s *Scheduler) untilNextMinute() time.Duration {
	now := time.Now().In(s.location)
	next := now.Truncate(time.Minute).Add(time.Minute)
	return time.Until(next)
}

// runDueJobs dispatches all jobs whose next run is not in the future.
func (s *Scheduler) runDueJobs(ctx context.Context) {
	now := time.Now().In(s.location)

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if !sj.nextRun.IsZero() && !sj.nextRun.After(now) {
			sj.lastRun = now
			sj.nextRun = sj.expression.Next(now)
			sj.runCount++
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go s.runJob(ctx, sj)
	}
}

// runJob executes a single job with panic recovery.
func (s *Scheduler) runJob(ctx context.Context, sj *scheduledJob) {
	defer s.wg.Done()

	name := sj.job.Name()
	started := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job panicked",
					"job", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		err = sj.job.Run(ctx)
	}()

	duration := time.Since(started)

	if s.metrics != nil {
		s.metrics.RecordExecution(name, duration, err == nil)
	}

	if err != nil {
		s.mu.Lock()
		sj.failCount++
		s.mu.Unlock()

		s.logger.Error("job failed",
			"job", name,
			"duration", duration.String(),
			"error", err,
		)
		return
	}

	s.logger.Info("job completed",
		"job", name,
		"duration", duration.String(),
	)
}

// RunNow immediately executes a job by name, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	sj, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.logger.Info("manual job execution", "job", name)
	err := sj.job.Run(ctx)

	if s.metrics != nil {
		s.metrics.RecordExecution(name, 0, err == nil)
	}

	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.expression.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// JobNames returns the names of all registered jobs, sorted.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics returns scheduler metrics (nil when disabled).
func (s *Scheduler) Metrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks per-job execution counters.
type SchedulerMetrics struct {
	mu sync.RWMutex

	TotalExecutions int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalDuration   time.Duration

	ExecutionsByJob map[string]int64
	FailuresByJob   map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		ExecutionsByJob: make(map[string]int64),
		FailuresByJob:   make(map[string]int64),
	}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalExecutions++
	m.TotalDuration += duration
	m.ExecutionsByJob[jobName]++

	if success {
		m.TotalSuccesses++
	} else {
		m.TotalFailures++
		m.FailuresByJob[jobName]++
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = fmt.Errorf("job cannot be nil")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrSchedulerAlreadyRunning is returned when Start is called twice.
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")
)
