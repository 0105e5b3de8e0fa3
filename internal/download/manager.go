package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/api"
	"github.com/dgnsrekt/options-screener/internal/staging"
)

type Manager struct {
	client  api.Client
	staging *staging.Manager
	workers int
	resume  bool
	logger  *zap.Logger
}

type BatchResult struct {
	Total    int
	Success  int
	Skipped  int
	NotFound int
	Failed   int
	Bytes    int64
	Errors   []string
}

func NewManager(client api.Client, staging *staging.Manager, workers int, resume bool, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		client:  client,
		staging: staging,
		workers: workers,
		resume:  resume,
		logger:  logger,
	}
}

// Execute fetches every task into staging, then commits each date that had no
// failures. Dates with failures stay staged and are retried on the next run.
func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.worker(ctx, workerID, jobs, results)
		}(i)
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	failedDates := map[string]bool{}
	seenDates := map[string]bool{}
	for r := range results {
		seenDates[r.Task.Date] = true
		if r.Skipped {
			result.Skipped++
		} else if r.NotFound {
			result.NotFound++
		} else if r.Success {
			result.Success++
			result.Bytes += r.BytesSize
		} else {
			result.Failed++
			failedDates[r.Task.Date] = true
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
	}
	sort.Strings(result.Errors)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	for date := range seenDates {
		if failedDates[date] {
			m.logger.Warn("leaving date staged after failures", zap.String("date", date))
			continue
		}
		if err := m.staging.CommitStaging(date); err != nil {
			return result, fmt.Errorf("committing %s: %w", date, err)
		}
		if err := m.staging.CleanupStaging(date); err != nil {
			m.logger.Warn("cleaning staging", zap.String("date", date), zap.Error(err))
		}
	}

	return result, nil
}

func (m *Manager) worker(ctx context.Context, id int, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := m.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	// Check if file exists (resume)
	if m.resume && task.Exists(m.staging.FinalDir()) {
		m.logger.Debug("skipping existing file", zap.String("task", task.String()))
		result.Skipped = true
		result.Success = true
		return result
	}

	m.logger.Info("fetching", zap.String("task", task.String()))

	size, err := m.staging.FetchToStaging(ctx, m.client, task.Ticker, task.Date)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			m.logger.Debug("not found", zap.String("task", task.String()))
			result.NotFound = true
			return result
		}
		if !api.Retryable(err) {
			m.logger.Error("fetch failed permanently", zap.String("task", task.String()), zap.Error(err))
		}
		result.Error = err
		return result
	}

	result.Success = true
	result.BytesSize = size
	m.logger.Info("fetched", zap.String("task", task.String()), zap.Int64("bytes", size))

	return result
}
