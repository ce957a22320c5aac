package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lead-harvester/internal/scraper"
	"github.com/jonathan/lead-harvester/internal/types"
)

// stubScraper runs a canned function as the scrape body.
type stubScraper struct {
	run func(ctx context.Context, query string, cfg types.ScrapeConfig, progress scraper.ProgressFunc) (*types.Result, error)
}

func (s *stubScraper) Source() types.Source          { return types.SourceWebsite }
func (s *stubScraper) ValidateQuery(string) error    { return nil }
func (s *stubScraper) Scrape(ctx context.Context, query string, cfg types.ScrapeConfig, progress scraper.ProgressFunc) (*types.Result, error) {
	return s.run(ctx, query, cfg, progress)
}

// newTestScheduler wires a scheduler whose website variant is the stub.
func newTestScheduler(t *testing.T, cfg Config, run func(ctx context.Context, query string, cfg types.ScrapeConfig, progress scraper.ProgressFunc) (*types.Result, error)) *Scheduler {
	t.Helper()
	factory := scraper.NewFactory(scraper.Deps{})
	factory.Register(types.HintWebsite, func(scraper.Deps) scraper.Scraper {
		return &stubScraper{run: run}
	})
	s := New(factory, cfg)
	t.Cleanup(s.Close)
	return s
}

func completedResult() *types.Result {
	r := types.NewResult(types.SourceWebsite)
	r.Status = types.StatusCompleted
	return r
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want types.JobStatus) types.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(id)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.GetJob(id)
	t.Fatalf("job %s never reached %s (last status %s)", id, want, job.Status)
	return types.Job{}
}

func TestCreateJob_RunsToCompletion(t *testing.T) {
	s := newTestScheduler(t, Config{}, func(_ context.Context, _ string, _ types.ScrapeConfig, progress scraper.ProgressFunc) (*types.Result, error) {
		progress(50, "halfway")
		return completedResult(), nil
	})
	s.Start(context.Background())

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)

	job := waitForStatus(t, s, id, types.StatusCompleted)
	assert.Equal(t, float64(100), job.Progress)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	result, err := s.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
}

func TestCreateJob_RejectsEmptyQuery(t *testing.T) {
	s := newTestScheduler(t, Config{}, nil)
	_, err := s.CreateJob("", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.Error(t, err)
}

func TestConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0
	gate := make(chan struct{})

	s := newTestScheduler(t, Config{MaxConcurrentJobs: 2}, func(ctx context.Context, _ string, _ types.ScrapeConfig, _ scraper.ProgressFunc) (*types.Result, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-gate

		mu.Lock()
		running--
		mu.Unlock()
		return completedResult(), nil
	})
	s.Start(context.Background())

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Let the first two jobs claim their slots before opening the gate.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 2
	}, 5*time.Second, 5*time.Millisecond)
	close(gate)

	for _, id := range ids {
		waitForStatus(t, s, id, types.StatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, peak)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.JobStatus
	}{
		{"rate limit", &scraper.RateLimitError{URL: "u", Message: "429"}, types.StatusRateLimited},
		{"blocked", &scraper.BlockedError{URL: "u", Message: "403"}, types.StatusBlocked},
		{"generic", &scraper.ScrapingError{URL: "u", Message: "boom"}, types.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t, Config{}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
				return nil, tt.err
			})
			s.Start(context.Background())

			id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
			require.NoError(t, err)

			job := waitForStatus(t, s, id, tt.want)
			assert.Equal(t, tt.err.Error(), job.ErrorMessage)
		})
	}
}

func TestCancelJob_PendingOnly(t *testing.T) {
	gate := make(chan struct{})
	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		<-gate
		return completedResult(), nil
	})
	s.Start(context.Background())

	first, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	second, err := s.CreateJob("betta.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)

	waitForStatus(t, s, first, types.StatusRunning)

	// The second job is still queued and can be cancelled; the running
	// first job cannot.
	require.NoError(t, s.CancelJob(second))
	err = s.CancelJob(first)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be cancelled")

	close(gate)
	waitForStatus(t, s, first, types.StatusCompleted)

	job, err := s.GetJob(second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, job.Status)
	assert.NotNil(t, job.CompletedAt)

	// Cancelling a terminal job fails too.
	require.Error(t, s.CancelJob(second))
}

func TestCancelJob_NotFound(t *testing.T) {
	s := newTestScheduler(t, Config{}, nil)
	assert.ErrorIs(t, s.CancelJob("nope"), ErrNotFound)
}

func TestGetResult_NotReadyWhilePending(t *testing.T) {
	s := newTestScheduler(t, Config{}, nil)

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)

	_, err = s.GetResult(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestListJobs_NewestFirstWithFilter(t *testing.T) {
	s := newTestScheduler(t, Config{}, nil)

	var ids []string
	for _, q := range []string{"one.example.com", "two.example.com", "three.example.com"} {
		id, err := s.CreateJob(q, types.HintWebsite, types.DefaultScrapeConfig(), nil)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.CancelJob(ids[0]))

	all := s.ListJobs("", 0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	pending := s.ListJobs(types.StatusPending, 0, 0)
	assert.Len(t, pending, 2)

	limited := s.ListJobs("", 1, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[1], limited[0].ID)

	assert.Empty(t, s.ListJobs("", 0, 10))
}

func TestCleanupOldJobs(t *testing.T) {
	s := newTestScheduler(t, Config{}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		return completedResult(), nil
	})
	s.Start(context.Background())

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	waitForStatus(t, s, id, types.StatusCompleted)

	// Young terminal jobs survive.
	assert.Equal(t, 0, s.CleanupOldJobs(time.Hour))
	assert.Equal(t, 1, s.CleanupOldJobs(0))

	_, err = s.GetJob(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJanitorEvictsOldJobs(t *testing.T) {
	s := newTestScheduler(t, Config{CleanupInterval: 10 * time.Millisecond, MaxJobAge: time.Nanosecond}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		return completedResult(), nil
	})
	s.Start(context.Background())

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	waitForStatus(t, s, id, types.StatusCompleted)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.GetJob(id); errors.Is(err, ErrNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s was never evicted", id)
}

func TestGetStats(t *testing.T) {
	gate := make(chan struct{})
	s := newTestScheduler(t, Config{MaxConcurrentJobs: 1}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		<-gate
		return completedResult(), nil
	})
	s.Start(context.Background())

	first, err := s.CreateJob("one.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	_, err = s.CreateJob("two.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)

	waitForStatus(t, s, first, types.StatusRunning)

	stats := s.GetStats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.ActiveJobs)
	assert.Equal(t, 1, stats.QueuedJobs)
	assert.Equal(t, 1, stats.ByStatus[types.StatusRunning])
	assert.Equal(t, 1, stats.ByStatus[types.StatusPending])

	close(gate)
}

func TestCreateBatchJobs(t *testing.T) {
	s := newTestScheduler(t, Config{}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		return completedResult(), nil
	})
	s.Start(context.Background())

	ids, err := s.CreateBatchJobs([]string{"one.example.com", "two.example.com"}, types.HintWebsite, types.DefaultScrapeConfig())
	require.NoError(t, err)
	require.Len(t, ids, 2)

	firstJob := waitForStatus(t, s, ids[0], types.StatusCompleted)
	secondJob := waitForStatus(t, s, ids[1], types.StatusCompleted)
	assert.Equal(t, firstJob.Metadata["batch_id"], secondJob.Metadata["batch_id"])
	assert.NotEmpty(t, firstJob.Metadata["batch_id"])

	_, err = s.CreateBatchJobs(nil, types.HintWebsite, types.DefaultScrapeConfig())
	require.Error(t, err)
	_, err = s.CreateBatchJobs([]string{"ok.example.com", ""}, types.HintWebsite, types.DefaultScrapeConfig())
	require.Error(t, err)
}

func TestProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var messages []string

	s := newTestScheduler(t, Config{}, func(_ context.Context, _ string, _ types.ScrapeConfig, progress scraper.ProgressFunc) (*types.Result, error) {
		progress(25, "quarter")
		progress(75, "three quarters")
		return completedResult(), nil
	})
	s.SetProgressCallback(func(jobID string, percent float64, message string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, message)
	})
	s.Start(context.Background())

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	waitForStatus(t, s, id, types.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"quarter", "three quarters"}, messages)
}

func TestResultTerminalStatusWins(t *testing.T) {
	s := newTestScheduler(t, Config{}, func(context.Context, string, types.ScrapeConfig, scraper.ProgressFunc) (*types.Result, error) {
		r := types.NewResult(types.SourceWebsite)
		r.Status = types.StatusBlocked
		return r, nil
	})
	s.Start(context.Background())

	id, err := s.CreateJob("acme.example.com", types.HintWebsite, types.DefaultScrapeConfig(), nil)
	require.NoError(t, err)
	waitForStatus(t, s, id, types.StatusBlocked)
}
