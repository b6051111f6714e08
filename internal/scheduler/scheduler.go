// Package scheduler provides cron-based scheduling for automated exports.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/usernameweb/acctdash/internal/config"
)

var (
	// ErrNotScheduled is returned when triggering an unknown export.
	ErrNotScheduled = errors.New("export is not scheduled")
	// ErrAlreadyRunning is returned when an export is already in progress.
	ErrAlreadyRunning = errors.New("export already running")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler is stopped")
)

// ExportFunc runs one scheduled export and returns where the file went.
type ExportFunc func(ctx context.Context, job config.ExportSchedule) (string, error)

// ExportStatus represents the state of a scheduled export.
type ExportStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
	Location  string    `json:"location,omitempty"`
}

// Scheduler manages cron-based export scheduling.
type Scheduler struct {
	cron       *cron.Cron
	exportFunc ExportFunc
	logger     *slog.Logger

	mu       sync.RWMutex
	jobs     map[string]cron.EntryID // name -> cron entry ID
	specs    map[string]config.ExportSchedule
	running  map[string]bool
	lastRun  map[string]time.Time
	lastErr  map[string]error
	location map[string]string

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running export goroutines
	started bool
	stopped bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New creates a new Scheduler with the given export callback.
func New(exportFunc ExportFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithParser(cronParser)),
		exportFunc: exportFunc,
		logger:     slog.Default(),
		jobs:       make(map[string]cron.EntryID),
		specs:      make(map[string]config.ExportSchedule),
		running:    make(map[string]bool),
		lastRun:    make(map[string]time.Time),
		lastErr:    make(map[string]error),
		location:   make(map[string]string),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddExport schedules job, replacing any export with the same name.
func (s *Scheduler) AddExport(job config.ExportSchedule) error {
	if job.Name == "" {
		return fmt.Errorf("export name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[job.Name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, job.Name)
		delete(s.specs, job.Name)
	}

	name := job.Name
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.mu.Lock()
		if s.stopped || s.running[name] {
			s.mu.Unlock()
			return
		}
		s.running[name] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runExport(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}

	s.jobs[name] = entryID
	s.specs[name] = job
	s.logger.Info("scheduled export",
		"name", name,
		"schedule", job.Schedule,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddExportsFromConfig adds all enabled exports from the config.
// Returns the number of exports scheduled and any errors encountered.
func (s *Scheduler) AddExportsFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, job := range cfg.ScheduledExports() {
		if err := s.AddExport(job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveExport removes the schedule for an export.
func (s *Scheduler) RemoveExport(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.specs, name)
		s.logger.Info("removed schedule", "name", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels running exports and returns a context
// that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// runExport executes one export (called by cron or TriggerExport).
// The caller must have already called wg.Add(1) and set running[name] = true.
func (s *Scheduler) runExport(name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	s.mu.RLock()
	job := s.specs[name]
	s.mu.RUnlock()

	s.logger.Info("starting scheduled export", "name", name)
	start := time.Now()

	location, err := s.exportFunc(s.ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr[name] = err
		s.logger.Error("scheduled export failed",
			"name", name,
			"duration", time.Since(start),
			"error", err)
		return
	}
	s.lastRun[name] = time.Now()
	s.lastErr[name] = nil
	s.location[name] = location
	s.logger.Info("scheduled export completed",
		"name", name,
		"location", location,
		"duration", time.Since(start))
}

// IsScheduled returns true if the export has been added to the scheduler.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// TriggerExport runs an export now, outside of its schedule.
func (s *Scheduler) TriggerExport(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.jobs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotScheduled, name)
	}
	if s.running[name] {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	s.running[name] = true
	s.wg.Add(1)
	go s.runExport(name)
	return nil
}

// Status returns the status of all scheduled exports, ordered by name.
func (s *Scheduler) Status() []ExportStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]ExportStatus, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		status := ExportStatus{
			Name:     name,
			Schedule: s.specs[name].Schedule,
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  s.cron.Entry(entryID).Next,
			Location: s.location[name],
		}
		if err := s.lastErr[name]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
