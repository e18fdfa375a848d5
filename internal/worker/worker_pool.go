package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Task func()

// WorkerPool runs queued tasks on a fixed set of goroutines. A panicking
// task is logged and never takes its worker down.
type WorkerPool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	busy       int
	maxWorkers int
	mu         sync.RWMutex
	logger     zerolog.Logger
}

func NewWorkerPool(maxWorkers int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		tasks:      make(chan Task, maxWorkers*10),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Worker pool started")
	return nil
}

// Stop drains the task queue and waits for in-flight tasks to finish.
func (wp *WorkerPool) Stop() error {
	close(wp.tasks)
	wp.wg.Wait()

	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

func (wp *WorkerPool) Submit(task Task) {
	select {
	case wp.tasks <- task:
	default:
		wp.logger.Warn().Msg("Worker pool task queue is full")
		select {
		case wp.tasks <- task:
		case <-time.After(1 * time.Second):
			wp.logger.Error().Msg("Failed to submit task to worker pool (timeout)")
		}
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.mu.Lock()
		wp.busy++
		wp.mu.Unlock()

		wp.runTask(id, task)

		wp.mu.Lock()
		wp.busy--
		wp.mu.Unlock()
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) runTask(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}
	}()

	task()
}

// ActiveWorkers reports how many workers are currently running a task.
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.busy
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.tasks)
}
