package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/repository"
	"github.com/labguard/detection-service/internal/service"
	"github.com/labguard/detection-service/internal/worker/queue"
)

type fakeRunRepo struct {
	repository.RunRepository
	run *models.DetectionRun
	err error
}

func (f *fakeRunRepo) GetByID(_ context.Context, _ string) (*models.DetectionRun, error) {
	return f.run, f.err
}

type fakeDetection struct {
	service.DetectionService
	err   error
	calls int
}

func (f *fakeDetection) ExecuteRun(_ context.Context, _ string, _ *models.StartDetectionRequest) error {
	f.calls++
	return f.err
}

func newTestWorker(repo *fakeRunRepo, detection *fakeDetection) *detectionWorker {
	return &detectionWorker{
		runRepo:   repo,
		detection: detection,
		logger:    zerolog.Nop(),
	}
}

func validEvent(runID string) []byte {
	body, _ := json.Marshal(models.DetectionRequestedEvent{
		RunID: runID,
		Request: models.StartDetectionRequest{
			Submissions: []models.SubmissionPayload{
				{StudentID: "s1"},
				{StudentID: "s2"},
			},
		},
	})
	return body
}

func TestProcessMessage(t *testing.T) {
	t.Run("MalformedBodyIsPermanent", func(t *testing.T) {
		w := newTestWorker(&fakeRunRepo{}, &fakeDetection{})

		err := w.processMessage(context.Background(), queue.Message{Body: []byte("{not json")})
		require.Error(t, err)
		assert.True(t, isPermanentError(err))
	})

	t.Run("EmptyRunIDIsPermanent", func(t *testing.T) {
		w := newTestWorker(&fakeRunRepo{}, &fakeDetection{})
		body, _ := json.Marshal(models.DetectionRequestedEvent{RunID: "  "})

		err := w.processMessage(context.Background(), queue.Message{Body: body})
		require.Error(t, err)
		assert.True(t, isPermanentError(err))
	})

	t.Run("TooFewSubmissionsIsPermanent", func(t *testing.T) {
		w := newTestWorker(&fakeRunRepo{}, &fakeDetection{})
		body, _ := json.Marshal(models.DetectionRequestedEvent{
			RunID:   "run-1",
			Request: models.StartDetectionRequest{Submissions: []models.SubmissionPayload{{StudentID: "s1"}}},
		})

		err := w.processMessage(context.Background(), queue.Message{Body: body})
		require.Error(t, err)
		assert.True(t, isPermanentError(err))
	})

	t.Run("UnknownRunIsPermanent", func(t *testing.T) {
		w := newTestWorker(&fakeRunRepo{run: nil}, &fakeDetection{})

		err := w.processMessage(context.Background(), queue.Message{Body: validEvent("run-1")})
		require.Error(t, err)
		assert.True(t, isPermanentError(err))
	})

	t.Run("RepoErrorIsTransient", func(t *testing.T) {
		w := newTestWorker(&fakeRunRepo{err: errors.New("connection refused")}, &fakeDetection{})

		err := w.processMessage(context.Background(), queue.Message{Body: validEvent("run-1")})
		require.Error(t, err)
		assert.False(t, isPermanentError(err), "transient failures must be redelivered")
	})

	t.Run("CompletedRunSkipped", func(t *testing.T) {
		detection := &fakeDetection{}
		w := newTestWorker(&fakeRunRepo{
			run: &models.DetectionRun{ID: "run-1", Status: models.RunStatusCompleted.String()},
		}, detection)

		err := w.processMessage(context.Background(), queue.Message{Body: validEvent("run-1")})
		require.NoError(t, err)
		assert.Zero(t, detection.calls)
	})

	t.Run("PendingRunExecuted", func(t *testing.T) {
		detection := &fakeDetection{}
		w := newTestWorker(&fakeRunRepo{
			run: &models.DetectionRun{ID: "run-1", Status: models.RunStatusPending.String()},
		}, detection)

		err := w.processMessage(context.Background(), queue.Message{Body: validEvent("run-1")})
		require.NoError(t, err)
		assert.Equal(t, 1, detection.calls)
	})

	t.Run("ExecutionErrorIsTransient", func(t *testing.T) {
		detection := &fakeDetection{err: errors.New("database write failed")}
		w := newTestWorker(&fakeRunRepo{
			run: &models.DetectionRun{ID: "run-1", Status: models.RunStatusPending.String()},
		}, detection)

		err := w.processMessage(context.Background(), queue.Message{Body: validEvent("run-1")})
		require.Error(t, err)
		assert.False(t, isPermanentError(err))
	})
}

func TestIsPermanentError(t *testing.T) {
	assert.False(t, isPermanentError(errors.New("plain")))
	assert.True(t, isPermanentError(permanent(errors.New("bad payload"))))
	assert.True(t, isPermanentError(errors.Join(errors.New("outer"), permanent(errors.New("inner")))))
}
