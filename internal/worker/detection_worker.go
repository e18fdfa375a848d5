package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/repository"
	"github.com/labguard/detection-service/internal/service"
	"github.com/labguard/detection-service/internal/worker/queue"
)

type DetectionWorker interface {
	Start(ctx context.Context) error
	Stop() error
	GetStats() Stats
}

type Stats struct {
	ActiveWorkers  int `json:"active_workers"`
	TotalProcessed int `json:"total_processed"`
	FailedJobs     int `json:"failed_jobs"`
	QueueLength    int `json:"queue_length"`
}

type detectionWorker struct {
	pool      *WorkerPool
	consumer  queue.Consumer
	runRepo   repository.RunRepository
	detection service.DetectionService
	logger    zerolog.Logger

	mu    sync.RWMutex
	stats Stats
}

func NewDetectionWorker(
	pool *WorkerPool,
	consumer queue.Consumer,
	runRepo repository.RunRepository,
	detection service.DetectionService,
	logger zerolog.Logger,
) DetectionWorker {
	return &detectionWorker{
		pool:      pool,
		consumer:  consumer,
		runRepo:   runRepo,
		detection: detection,
		logger:    logger,
	}
}

func (w *detectionWorker) Start(ctx context.Context) error {
	if err := w.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Detection worker started")
	return nil
}

func (w *detectionWorker) Stop() error {
	if err := w.pool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info().
		Int("total_processed", w.stats.TotalProcessed).
		Int("failed_jobs", w.stats.FailedJobs).
		Msg("Detection worker stopped")

	return nil
}

func (w *detectionWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			w.pool.Submit(func() {
				if err := w.processMessage(ctx, msg); err != nil {
					w.logger.Error().Err(err).Msg("Failed to process detection request")

					w.mu.Lock()
					w.stats.FailedJobs++
					w.mu.Unlock()

					// A malformed or stale request will never succeed on
					// redelivery; drop it instead of poisoning the queue.
					if isPermanentError(err) {
						if ackErr := msg.Ack(false); ackErr != nil {
							w.logger.Error().Err(ackErr).Msg("Failed to ack message")
						}
						return
					}

					if nackErr := msg.Nack(false, true); nackErr != nil {
						w.logger.Error().Err(nackErr).Msg("Failed to nack message")
					}
					return
				}

				if err := msg.Ack(false); err != nil {
					w.logger.Error().Err(err).Msg("Failed to ack message")
				}

				w.mu.Lock()
				w.stats.TotalProcessed++
				w.mu.Unlock()
			})
		}
	}
}

func (w *detectionWorker) processMessage(ctx context.Context, msg queue.Message) error {
	var event models.DetectionRequestedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal detection request: %w", err))
	}

	if strings.TrimSpace(event.RunID) == "" {
		return permanent(errors.New("detection request with empty run_id"))
	}
	if len(event.Request.Submissions) < 2 {
		return permanent(fmt.Errorf("detection request %s has %d submissions, need at least 2",
			event.RunID, len(event.Request.Submissions)))
	}

	run, err := w.runRepo.GetByID(ctx, event.RunID)
	if err != nil {
		return fmt.Errorf("failed to look up run %s: %w", event.RunID, err)
	}
	if run == nil {
		return permanent(fmt.Errorf("run %s does not exist", event.RunID))
	}
	if run.Status == models.RunStatusCompleted.String() {
		w.logger.Warn().Str("run_id", event.RunID).Msg("Run already completed, skipping")
		return nil
	}

	w.logger.Info().
		Str("run_id", event.RunID).
		Int("submissions", len(event.Request.Submissions)).
		Msg("Processing detection request")

	startTime := time.Now()
	if err := w.detection.ExecuteRun(ctx, event.RunID, &event.Request); err != nil {
		return fmt.Errorf("detection run %s failed: %w", event.RunID, err)
	}

	w.logger.Info().
		Str("run_id", event.RunID).
		Dur("duration", time.Since(startTime)).
		Msg("Detection request processed")

	return nil
}

func (w *detectionWorker) GetStats() Stats {
	w.mu.RLock()
	stats := w.stats
	w.mu.RUnlock()

	stats.ActiveWorkers = w.pool.ActiveWorkers()
	if qlen, err := w.consumer.QueueLength(); err == nil {
		stats.QueueLength = qlen
	}

	return stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
