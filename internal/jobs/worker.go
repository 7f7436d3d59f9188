package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/maltedev/mercado-scraper/internal/queue"
	"github.com/maltedev/mercado-scraper/internal/scraper"
)

// StartWorkers runs n workers until ctx ends or the queue closes.
func (m *Manager) StartWorkers(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	m.logger.Info("job workers started", "workers", n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			m.worker(ctx, worker)
		}(i)
	}
	wg.Wait()

	m.logger.Info("job workers stopped")
}

func (m *Manager) worker(ctx context.Context, worker int) {
	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && ctx.Err() == nil {
				m.logger.Error("failed to pop task", "worker", worker, "error", err)
			}
			return
		}
		m.processJob(ctx, worker, task.JobID)
	}
}

func (m *Manager) processJob(ctx context.Context, worker int, jobID string) {
	q, ok := m.jobQuery(jobID)
	if !ok {
		m.logger.Warn("task for unknown job", "id", jobID)
		return
	}

	m.logger.Info("processing job", "id", jobID, "worker", worker, "query_type", q.Type)
	m.updateJobStatus(jobID, StatusRunning, nil)

	run, err := m.searcher.Search(ctx, q)
	if err != nil {
		m.logger.Error("job failed", "id", jobID, "error", err)
		m.updateJobStatus(jobID, StatusFailed, err)
		return
	}

	m.recordRun(jobID, run)
	m.updateJobStatus(jobID, StatusCompleted, nil)
	m.logger.Info("job completed", "id", jobID, "products", len(run.Products), "from_cache", run.FromCache)
}

func (m *Manager) jobQuery(jobID string) (scraper.Query, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return scraper.Query{}, false
	}
	return job.Query, true
}
