// Package scheduler queues crawl jobs and runs them under a concurrency
// bound. Jobs are dequeued first-in first-out by a single long-lived worker
// goroutine; a weighted semaphore caps how many run at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/lead-harvester/internal/scraper"
	"github.com/jonathan/lead-harvester/internal/types"
)

// DefaultMaxConcurrentJobs bounds simultaneous crawl executions when the
// config leaves it unset.
const DefaultMaxConcurrentJobs = 3

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// ProgressFunc receives job progress updates during execution.
type ProgressFunc func(jobID string, percent float64, message string)

// Config holds scheduler tuning knobs.
type Config struct {
	MaxConcurrentJobs int
	// JobTimeout bounds one job's execution; zero means no limit.
	JobTimeout time.Duration
	// CleanupInterval enables the janitor that drops terminal jobs older
	// than MaxJobAge; zero disables it.
	CleanupInterval time.Duration
	MaxJobAge       time.Duration
	Verbose         bool
}

// Stats is a point-in-time view of the scheduler's workload.
type Stats struct {
	TotalJobs  int                     `json:"total_jobs"`
	ActiveJobs int                     `json:"active_jobs"`
	QueuedJobs int                     `json:"queued_jobs"`
	ByStatus   map[types.JobStatus]int `json:"by_status"`
}

// Scheduler owns the job table and the FIFO queue of pending job ids.
type Scheduler struct {
	cfg     Config
	factory *scraper.Factory
	sem     *semaphore.Weighted

	mu    sync.Mutex
	jobs  map[string]*types.Job
	queue []string

	onProgress ProgressFunc

	// wake nudges the dequeue worker after an enqueue. Buffered so an
	// enqueue never blocks on a busy worker.
	wake chan struct{}

	startOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
	running   sync.WaitGroup
}

// New creates a scheduler; call Start before submitting jobs.
func New(factory *scraper.Factory, cfg Config) *Scheduler {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	return &Scheduler{
		cfg:     cfg,
		factory: factory,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		jobs:    make(map[string]*types.Job),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetProgressCallback installs the callback invoked with job progress.
// Must be called before Start.
func (s *Scheduler) SetProgressCallback(fn ProgressFunc) {
	s.onProgress = fn
}

// Start launches the dequeue worker. It is safe to call once; subsequent
// calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.stop = context.WithCancel(ctx)
		go s.dequeueLoop(ctx)
		if s.cfg.CleanupInterval > 0 && s.cfg.MaxJobAge > 0 {
			go s.janitorLoop(ctx)
		}
	})
}

// Close stops the dequeue worker and waits for in-flight jobs to finish.
func (s *Scheduler) Close() {
	if s.stop != nil {
		s.stop()
		<-s.done
	}
	s.running.Wait()
}

// CreateJob validates and enqueues one crawl job, returning its id.
func (s *Scheduler) CreateJob(query string, hint types.SourceHint, cfg types.ScrapeConfig, metadata map[string]any) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	if hint == "" {
		hint = types.HintAuto
	}

	job := &types.Job{
		ID:         uuid.New().String(),
		Query:      query,
		SourceHint: hint,
		Config:     cfg,
		Metadata:   metadata,
		Status:     types.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.queue = append(s.queue, job.ID)
	s.mu.Unlock()

	if s.cfg.Verbose {
		log.Printf("[SCHEDULER] created job %s for query %q", job.ID, query)
	}
	s.signal()
	return job.ID, nil
}

// CreateBatchJobs enqueues one job per query under a shared batch id stored
// in each job's metadata. Empty queries fail the whole batch up front.
func (s *Scheduler) CreateBatchJobs(queries []string, hint types.SourceHint, cfg types.ScrapeConfig) ([]string, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("batch must contain at least one query")
	}
	for i, query := range queries {
		if query == "" {
			return nil, fmt.Errorf("query %d must not be empty", i)
		}
	}

	batchID := uuid.New().String()
	ids := make([]string, 0, len(queries))
	for _, query := range queries {
		id, err := s.CreateJob(query, hint, cfg, map[string]any{"batch_id": batchID})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetJob returns a snapshot of the job.
func (s *Scheduler) GetJob(id string) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job.Snapshot(), nil
}

// GetResult returns the job's result, or an error while the job is still
// in flight.
func (s *Scheduler) GetResult(id string) (*types.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s, result not available", id, job.Status)
	}
	return job.Result, nil
}

// CancelJob cancels a pending job. Jobs that have started running are not
// interrupted, and terminal jobs are left untouched.
func (s *Scheduler) CancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != types.StatusPending {
		return fmt.Errorf("job %s is %s and cannot be cancelled", id, job.Status)
	}

	job.Status = types.StatusCancelled
	now := time.Now().UTC()
	job.CompletedAt = &now

	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return nil
}

// ListJobs returns job snapshots newest-first, optionally filtered by
// status. A non-positive limit means no limit.
func (s *Scheduler) ListJobs(status types.JobStatus, limit, offset int) []types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CleanupOldJobs drops terminal jobs whose completion is older than maxAge
// and returns how many were removed.
func (s *Scheduler) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 && s.cfg.Verbose {
		log.Printf("[SCHEDULER] cleaned up %d old jobs", removed)
	}
	return removed
}

// GetStats returns current workload counters.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalJobs:  len(s.jobs),
		QueuedJobs: len(s.queue),
		ByStatus:   make(map[types.JobStatus]int, len(types.AllJobStatuses)),
	}
	for _, status := range types.AllJobStatuses {
		stats.ByStatus[status] = 0
	}
	for _, job := range s.jobs {
		stats.ByStatus[job.Status]++
	}
	stats.ActiveJobs = stats.ByStatus[types.StatusRunning]
	return stats
}

// janitorLoop periodically evicts old terminal jobs.
func (s *Scheduler) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.CleanupOldJobs(s.cfg.MaxJobAge)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dequeueLoop is the single worker that admits pending jobs. It acquires a
// slot before popping the queue, so jobs stay visibly queued until a slot
// frees up.
func (s *Scheduler) dequeueLoop(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}

		id, ok := s.nextPending()
		if !ok {
			s.sem.Release(1)
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		s.running.Add(1)
		go func(id string) {
			defer s.running.Done()
			defer s.sem.Release(1)
			s.runJob(ctx, id)
		}(id)
	}
}

// nextPending pops the oldest queued job that is still pending.
func (s *Scheduler) nextPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		if job, ok := s.jobs[id]; ok && job.Status == types.StatusPending {
			return id, true
		}
	}
	return "", false
}

// runJob executes one job to a terminal status.
func (s *Scheduler) runJob(ctx context.Context, id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != types.StatusPending {
		s.mu.Unlock()
		return
	}
	job.Status = types.StatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	query, hint, cfg := job.Query, job.SourceHint, job.Config
	s.mu.Unlock()

	if s.cfg.Verbose {
		log.Printf("[SCHEDULER] job %s started", id)
	}

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	result, err := s.execute(ctx, id, query, hint, cfg)
	s.finish(id, result, err)
}

func (s *Scheduler) execute(ctx context.Context, id, query string, hint types.SourceHint, cfg types.ScrapeConfig) (*types.Result, error) {
	sc, err := s.factory.Create(hint, query)
	if err != nil {
		return nil, err
	}

	progress := func(percent float64, message string) {
		s.setProgress(id, percent)
		if s.onProgress != nil {
			s.onProgress(id, percent, message)
		}
	}
	return sc.Scrape(ctx, query, cfg, progress)
}

func (s *Scheduler) setProgress(id string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Progress = percent
	}
}

// finish records the terminal status. Typed scraper errors map to their
// dedicated statuses; anything else fails the job.
func (s *Scheduler) finish(id string, result *types.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.Result = result

	switch {
	case err == nil:
		job.Status = types.StatusCompleted
		if result != nil && result.Status.Terminal() {
			job.Status = result.Status
		}
		job.Progress = 100
	default:
		var rle *scraper.RateLimitError
		var be *scraper.BlockedError
		switch {
		case errors.As(err, &rle):
			job.Status = types.StatusRateLimited
		case errors.As(err, &be):
			job.Status = types.StatusBlocked
		default:
			job.Status = types.StatusFailed
		}
		job.ErrorMessage = err.Error()
	}

	if s.cfg.Verbose {
		log.Printf("[SCHEDULER] job %s finished with status %s", id, job.Status)
	}
}
