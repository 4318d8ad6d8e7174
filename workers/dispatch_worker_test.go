package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwire/models"
	"tripwire/utils"
)

// fakeDispatcher lets tests control how each dispatch behaves.
type fakeDispatcher struct {
	mu       sync.Mutex
	calls    int
	err      error
	block    chan struct{} // when set, Dispatch waits on it
	lastSeen *models.NotificationEvent
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, event *models.NotificationEvent) (*models.DeliveryReport, error) {
	f.mu.Lock()
	f.calls++
	f.lastSeen = event
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return models.NewDeliveryReport(event), nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testEvent() *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:       utils.GenerateUUID(),
		TripID:   "trip-1",
		Category: models.CategoryTripUpdate,
		Priority: models.PriorityNormal,
		Title:    "Itinerary updated",
		Body:     "Dinner moved to 20:00",
	}
}

func waitForStatus(t *testing.T, dw *DispatchWorker, jobID, status string) *JobResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if result := dw.GetJob(jobID); result != nil && result.Status == status {
			return result
		}
		time.Sleep(5 * time.Millisecond)
	}
	result := dw.GetJob(jobID)
	t.Fatalf("job %s never reached status %q, last result: %+v", jobID, status, result)
	return nil
}

func TestSubmitEvent_ProcessesJobToCompletion(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	dw := NewDispatchWorker(dispatcher, DispatchWorkerConfig{WorkerCount: 1})
	require.NoError(t, dw.Start())
	defer dw.Stop()

	event := testEvent()
	jobID, err := dw.SubmitEvent(event)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	result := waitForStatus(t, dw, jobID, JobStatusCompleted)
	assert.Equal(t, event.ID, result.NotificationEventID)
	require.NotNil(t, result.Report)
	assert.Equal(t, event.ID, result.Report.NotificationEventID)
	assert.False(t, result.CompletedAt.IsZero())
	assert.Empty(t, result.Error)
}

func TestSubmitEvent_FailedDispatchRecordsError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("recipient store down")}
	dw := NewDispatchWorker(dispatcher, DispatchWorkerConfig{WorkerCount: 1})
	require.NoError(t, dw.Start())
	defer dw.Stop()

	jobID, err := dw.SubmitEvent(testEvent())
	require.NoError(t, err)

	result := waitForStatus(t, dw, jobID, JobStatusFailed)
	assert.Contains(t, result.Error, "recipient store down")
	assert.Nil(t, result.Report)
}

func TestSubmitEvent_RejectedWhenNotRunning(t *testing.T) {
	dw := NewDispatchWorker(&fakeDispatcher{}, DispatchWorkerConfig{})

	_, err := dw.SubmitEvent(testEvent())
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeInternal, serviceErr.Code)
}

func TestSubmitEvent_FullQueueShedsLoad(t *testing.T) {
	block := make(chan struct{})
	dispatcher := &fakeDispatcher{block: block}
	dw := NewDispatchWorker(dispatcher, DispatchWorkerConfig{WorkerCount: 1, QueueSize: 1})
	require.NoError(t, dw.Start())
	defer func() {
		close(block)
		dw.Stop()
	}()

	// First job occupies the worker, second fills the queue.
	_, err := dw.SubmitEvent(testEvent())
	require.NoError(t, err)

	// Give the worker a moment to pick up the first job.
	time.Sleep(20 * time.Millisecond)

	_, err = dw.SubmitEvent(testEvent())
	require.NoError(t, err)

	_, err = dw.SubmitEvent(testEvent())
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeRateLimit, serviceErr.Code)
}

func TestGetJob_UnknownIDReturnsNil(t *testing.T) {
	dw := NewDispatchWorker(&fakeDispatcher{}, DispatchWorkerConfig{})
	assert.Nil(t, dw.GetJob("no-such-job"))
}

func TestStop_DrainsQueuedJobs(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	dw := NewDispatchWorker(dispatcher, DispatchWorkerConfig{WorkerCount: 2})
	require.NoError(t, dw.Start())

	var jobIDs []string
	for i := 0; i < 5; i++ {
		jobID, err := dw.SubmitEvent(testEvent())
		require.NoError(t, err)
		jobIDs = append(jobIDs, jobID)
	}

	for _, jobID := range jobIDs {
		waitForStatus(t, dw, jobID, JobStatusCompleted)
	}

	require.NoError(t, dw.Stop())
	assert.Equal(t, 5, dispatcher.callCount())

	// Stop is idempotent.
	require.NoError(t, dw.Stop())
}

func TestGetStats_CountsProcessedAndFailed(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	dw := NewDispatchWorker(dispatcher, DispatchWorkerConfig{WorkerCount: 1})
	require.NoError(t, dw.Start())
	defer dw.Stop()

	jobID, err := dw.SubmitEvent(testEvent())
	require.NoError(t, err)
	waitForStatus(t, dw, jobID, JobStatusCompleted)

	dispatcher.mu.Lock()
	dispatcher.err = errors.New("boom")
	dispatcher.mu.Unlock()

	jobID, err = dw.SubmitEvent(testEvent())
	require.NoError(t, err)
	waitForStatus(t, dw, jobID, JobStatusFailed)

	stats := dw.GetStats()
	assert.Equal(t, int64(1), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsFailed)
	assert.False(t, stats.LastProcessedAt.IsZero())
	assert.False(t, stats.StartTime.IsZero())
}

func TestEvictExpiredResults(t *testing.T) {
	dw := NewDispatchWorker(&fakeDispatcher{}, DispatchWorkerConfig{ResultTTL: time.Minute})

	dw.setResult(&JobResult{
		JobID:       "old-completed",
		Status:      JobStatusCompleted,
		CompletedAt: time.Now().Add(-2 * time.Minute),
	})
	dw.setResult(&JobResult{
		JobID:       "fresh-completed",
		Status:      JobStatusCompleted,
		CompletedAt: time.Now(),
	})
	dw.setResult(&JobResult{
		JobID:  "still-queued",
		Status: JobStatusQueued,
	})

	dw.evictExpiredResults()

	assert.Nil(t, dw.GetJob("old-completed"))
	assert.NotNil(t, dw.GetJob("fresh-completed"))
	assert.NotNil(t, dw.GetJob("still-queued"), "in-flight jobs are never evicted")
}
