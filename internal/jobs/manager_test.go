package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/queue"
	"github.com/maltedev/mercado-scraper/internal/scraper"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, q scraper.Query) (*scraper.Run, error) {
	args := m.Called(ctx, q)
	if run := args.Get(0); run != nil {
		return run.(*scraper.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRun(t *testing.T, n int) *scraper.Run {
	t.Helper()

	run := &scraper.Run{ID: uuid.New(), QueryType: cache.QuerySearchTerm, Pages: 1, Rejected: 2}
	for i := 0; i < n; i++ {
		p, err := models.NewProduct(models.ProductInput{
			Name:  "Fritadeira Air Fryer 4 litros",
			Price: models.NullPrice(decimal.NewFromInt(int64(300 + i))),
			URL:   "https://produto.mercadolivre.com.br/MLB100" + string(rune('0'+i)),
		})
		require.NoError(t, err)
		run.Products = append(run.Products, p)
	}
	return run
}

func waitForStatus(t *testing.T, m *Manager, jobID, status string) *Job {
	t.Helper()

	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.GetJob(context.Background(), jobID)
		return err == nil && job.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestManagerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	searcher := new(MockSearcher)
	q := queue.NewInMemoryQueue(10)
	m := NewManager(searcher, q, testLogger())

	okQuery := scraper.Query{Type: cache.QuerySearchTerm, Term: "air fryer", MaxProducts: 3}
	badQuery := scraper.Query{Type: cache.QuerySearchTerm, Term: "broken"}
	run := testRun(t, 3)
	searcher.On("Search", mock.Anything, okQuery).Return(run, nil)
	searcher.On("Search", mock.Anything, badQuery).Return(nil, scraper.ErrFetchFailed)

	good, err := m.CreateJob(ctx, okQuery, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, good.Status)

	bad, err := m.CreateJob(ctx, badQuery, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.StartWorkers(ctx, 2)
		close(done)
	}()

	job := waitForStatus(t, m, good.ID, StatusCompleted)
	assert.Equal(t, 3, job.ProductsFound)
	assert.Equal(t, 2, job.Rejected)
	require.NotNil(t, job.RunID)
	assert.Equal(t, run.ID, *job.RunID)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	products, err := m.GetJobProducts(ctx, good.ID)
	require.NoError(t, err)
	assert.Len(t, products, 3)

	failed := waitForStatus(t, m, bad.ID, StatusFailed)
	assert.Contains(t, failed.Error, "failed to fetch listing page")

	stats := m.GetStats(ctx)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
	searcher.AssertExpectations(t)
}

func TestManagerGetJobNotFound(t *testing.T) {
	m := NewManager(new(MockSearcher), queue.NewInMemoryQueue(0), testLogger())

	_, err := m.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = m.GetJobProducts(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManagerQueueFull(t *testing.T) {
	m := NewManager(new(MockSearcher), queue.NewInMemoryQueue(1), testLogger())
	ctx := context.Background()

	_, err := m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)

	_, err = m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Len(t, m.ListJobs(ctx, 0), 1)
}

func TestManagerListJobsNewestFirst(t *testing.T) {
	m := NewManager(new(MockSearcher), queue.NewInMemoryQueue(0), testLogger())
	ctx := context.Background()

	first, err := m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)

	jobs := m.ListJobs(ctx, 0)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	assert.Len(t, m.ListJobs(ctx, 1), 1)
}

func TestManagerEvictsFinishedJobs(t *testing.T) {
	m := NewManager(new(MockSearcher), queue.NewInMemoryQueue(0), testLogger())
	m.retention = 2
	ctx := context.Background()

	old, err := m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)
	m.updateJobStatus(old.ID, StatusFailed, errors.New("boom"))

	pending, err := m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)
	_, err = m.CreateJob(ctx, scraper.Query{Type: cache.QuerySearchOffers}, 0)
	require.NoError(t, err)

	_, err = m.GetJob(ctx, old.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.GetJob(ctx, pending.ID)
	assert.NoError(t, err)
}
