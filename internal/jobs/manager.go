package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/queue"
	"github.com/maltedev/mercado-scraper/internal/scraper"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultRetention is how many jobs are kept before finished ones are evicted.
const DefaultRetention = 500

var ErrJobNotFound = errors.New("job not found")

// Searcher runs one search query.
type Searcher interface {
	Search(ctx context.Context, q scraper.Query) (*scraper.Run, error)
}

// Job is a search query run in the background.
type Job struct {
	ID            string        `json:"id"`
	Query         scraper.Query `json:"query"`
	Status        string        `json:"status"`
	RunID         *uuid.UUID    `json:"run_id,omitempty"`
	PagesScraped  int           `json:"pages_scraped"`
	ProductsFound int           `json:"products_found"`
	Rejected      int           `json:"rejected"`
	FromCache     bool          `json:"from_cache"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Error         string        `json:"error,omitempty"`

	products []*models.Product
}

func (j *Job) finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Stats summarizes the jobs currently retained.
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalProducts int     `json:"total_products"`
	QueueSize     int     `json:"queue_size"`
	SuccessRate   float64 `json:"success_rate"`
}

type Manager struct {
	searcher  Searcher
	queue     queue.Queue
	logger    *slog.Logger
	retention int

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(searcher Searcher, q queue.Queue, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		searcher:  searcher,
		queue:     q,
		logger:    logger.With("component", "job_manager"),
		retention: DefaultRetention,
		jobs:      make(map[string]*Job),
	}
}

// CreateJob registers q and queues it for the workers.
func (m *Manager) CreateJob(ctx context.Context, q scraper.Query, priority int) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Query:     q,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.evictLocked()
	m.mu.Unlock()

	if err := m.queue.Push(&queue.Task{ID: uuid.New().String(), JobID: job.ID, Priority: priority}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "query_type", q.Type, "term", q.Term, "category", q.Category)
	return m.snapshot(job), nil
}

// GetJob returns a copy of the job.
func (m *Manager) GetJob(_ context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return m.snapshotLocked(job), nil
}

// ListJobs returns up to limit jobs, newest first.
func (m *Manager) ListJobs(_ context.Context, limit int) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshotLocked(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// GetJobProducts returns the products collected by a finished job.
func (m *Manager) GetJobProducts(_ context.Context, jobID string) ([]*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return append([]*models.Product(nil), job.products...), nil
}

func (m *Manager) GetStats(_ context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs), QueueSize: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalProducts += job.ProductsFound
	}

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}
	return stats
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(job)
}

func (m *Manager) snapshotLocked(job *Job) *Job {
	cp := *job
	cp.products = nil
	return &cp
}

// evictLocked drops the oldest finished jobs once retention is exceeded.
func (m *Manager) evictLocked() {
	excess := len(m.jobs) - m.retention
	if excess <= 0 {
		return
	}

	finished := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.finished() {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})

	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].ID)
	}
}

func (m *Manager) updateJobStatus(jobID, status string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}

	now := time.Now()
	job.Status = status
	switch status {
	case StatusRunning:
		job.StartedAt = &now
	case StatusCompleted:
		job.CompletedAt = &now
	case StatusFailed:
		job.CompletedAt = &now
		if err != nil {
			job.Error = err.Error()
		}
	}
}

func (m *Manager) recordRun(jobID string, run *scraper.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}

	id := run.ID
	job.RunID = &id
	job.PagesScraped = run.Pages
	job.ProductsFound = len(run.Products)
	job.Rejected = run.Rejected
	job.FromCache = run.FromCache
	job.products = run.Products
}
