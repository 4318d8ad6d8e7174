package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/utils"
)

// Dispatcher is the synchronous fan-out the worker drives. Satisfied by
// services.DispatchService.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.NotificationEvent) (*models.DeliveryReport, error)
}

type DispatchWorkerConfig struct {
	WorkerCount       int           `json:"workerCount"`
	QueueSize         int           `json:"queueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	ResultTTL         time.Duration `json:"resultTtl"`
}

type DispatchJob struct {
	ID          string                    `json:"id"`
	Event       *models.NotificationEvent `json:"event"`
	SubmittedAt time.Time                 `json:"submittedAt"`
}

// Job Status Constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobResult is the retained outcome of one asynchronous dispatch, queryable
// until the retention janitor evicts it.
type JobResult struct {
	JobID               string                 `json:"jobId"`
	NotificationEventID string                 `json:"notificationEventId"`
	Status              string                 `json:"status"`
	Report              *models.DeliveryReport `json:"report,omitempty"`
	Error               string                 `json:"error,omitempty"`
	SubmittedAt         time.Time              `json:"submittedAt"`
	CompletedAt         time.Time              `json:"completedAt,omitempty"`
}

type DispatchWorkerStats struct {
	JobsProcessed   int64     `json:"jobsProcessed"`
	JobsFailed      int64     `json:"jobsFailed"`
	AverageDuration float64   `json:"averageDuration"` // ms
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	QueueLength     int       `json:"queueLength"`
	StartTime       time.Time `json:"startTime"`
}

// DispatchWorker runs notification fan-out asynchronously. Submitted events
// land on a bounded queue; a fixed pool of workers drains it, each running
// the full dispatch pipeline under a processing timeout.
type DispatchWorker struct {
	dispatcher Dispatcher
	config     DispatchWorkerConfig

	jobQueue chan DispatchJob

	results   map[string]*JobResult
	resultsMu sync.RWMutex

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      DispatchWorkerStats
	statsMutex sync.RWMutex
}

func NewDispatchWorker(dispatcher Dispatcher, config DispatchWorkerConfig) *DispatchWorker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 500
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 2 * time.Minute
	}
	if config.ResultTTL <= 0 {
		config.ResultTTL = 1 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DispatchWorker{
		dispatcher: dispatcher,
		config:     config,
		jobQueue:   make(chan DispatchJob, config.QueueSize),
		results:    make(map[string]*JobResult),
		ctx:        ctx,
		cancel:     cancel,
		stats: DispatchWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (dw *DispatchWorker) Start() error {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if dw.isRunning {
		return nil
	}
	dw.isRunning = true

	logrus.Infof("Starting Dispatch Worker with %d workers", dw.config.WorkerCount)

	for i := 0; i < dw.config.WorkerCount; i++ {
		dw.wg.Add(1)
		go dw.worker(i)
	}

	dw.wg.Add(1)
	go dw.resultJanitor()

	logrus.Info("Dispatch Worker started successfully")
	return nil
}

func (dw *DispatchWorker) Stop() error {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if !dw.isRunning {
		return nil
	}

	logrus.Info("Stopping Dispatch Worker...")

	dw.cancel()
	dw.isRunning = false

	close(dw.jobQueue)
	dw.wg.Wait()

	logrus.Info("Dispatch Worker stopped successfully")
	return nil
}

// SubmitEvent queues an event for asynchronous dispatch and returns the job
// ID the caller can poll. A full queue is a hard error so callers can shed
// load instead of blocking the request path.
func (dw *DispatchWorker) SubmitEvent(event *models.NotificationEvent) (string, error) {
	dw.mutex.RLock()
	running := dw.isRunning
	dw.mutex.RUnlock()

	if !running {
		return "", utils.NewServiceError(utils.ErrCodeInternal, "dispatch worker is not running")
	}

	job := DispatchJob{
		ID:          utils.GenerateUUID(),
		Event:       event,
		SubmittedAt: time.Now(),
	}

	select {
	case dw.jobQueue <- job:
		dw.setResult(&JobResult{
			JobID:               job.ID,
			NotificationEventID: event.ID,
			Status:              JobStatusQueued,
			SubmittedAt:         job.SubmittedAt,
		})
		return job.ID, nil
	default:
		return "", utils.NewServiceError(utils.ErrCodeRateLimit, "dispatch queue is full")
	}
}

// GetJob returns the retained result for a job ID, or nil when unknown
// or already evicted.
func (dw *DispatchWorker) GetJob(jobID string) *JobResult {
	dw.resultsMu.RLock()
	defer dw.resultsMu.RUnlock()
	return dw.results[jobID]
}

func (dw *DispatchWorker) worker(workerID int) {
	defer dw.wg.Done()

	logrus.Infof("Dispatch worker %d started", workerID)

	for {
		select {
		case job, ok := <-dw.jobQueue:
			if !ok {
				logrus.Infof("Dispatch worker %d stopping", workerID)
				return
			}
			dw.processJob(job, workerID)

		case <-dw.ctx.Done():
			logrus.Infof("Dispatch worker %d stopping due to context cancellation", workerID)
			return
		}
	}
}

func (dw *DispatchWorker) processJob(job DispatchJob, workerID int) {
	startTime := time.Now()

	dw.updateResult(job.ID, func(result *JobResult) {
		result.Status = JobStatusProcessing
	})

	ctx, cancel := context.WithTimeout(dw.ctx, dw.config.ProcessingTimeout)
	defer cancel()

	logrus.Debugf("Worker %d dispatching event %s for trip %s",
		workerID, job.Event.EventID, job.Event.TripID)

	report, err := dw.dispatcher.Dispatch(ctx, job.Event)
	duration := time.Since(startTime)

	if err != nil {
		logrus.Errorf("Dispatch job %s failed: %v", job.ID, err)
		dw.updateResult(job.ID, func(result *JobResult) {
			result.Status = JobStatusFailed
			result.Error = err.Error()
			result.CompletedAt = time.Now()
		})
		dw.recordJob(duration, false)
		return
	}

	dw.updateResult(job.ID, func(result *JobResult) {
		result.Status = JobStatusCompleted
		result.Report = report
		result.CompletedAt = time.Now()
	})
	dw.recordJob(duration, true)
}

// resultJanitor evicts completed job results past their retention window.
func (dw *DispatchWorker) resultJanitor() {
	defer dw.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dw.evictExpiredResults()

		case <-dw.ctx.Done():
			return
		}
	}
}

func (dw *DispatchWorker) evictExpiredResults() {
	cutoff := time.Now().Add(-dw.config.ResultTTL)

	dw.resultsMu.Lock()
	defer dw.resultsMu.Unlock()

	for id, result := range dw.results {
		if result.Status == JobStatusQueued || result.Status == JobStatusProcessing {
			continue
		}
		if result.CompletedAt.Before(cutoff) {
			delete(dw.results, id)
		}
	}
}

func (dw *DispatchWorker) setResult(result *JobResult) {
	dw.resultsMu.Lock()
	dw.results[result.JobID] = result
	dw.resultsMu.Unlock()
}

func (dw *DispatchWorker) updateResult(jobID string, update func(*JobResult)) {
	dw.resultsMu.Lock()
	defer dw.resultsMu.Unlock()

	if result, ok := dw.results[jobID]; ok {
		update(result)
	}
}

func (dw *DispatchWorker) recordJob(duration time.Duration, success bool) {
	dw.statsMutex.Lock()
	defer dw.statsMutex.Unlock()

	if success {
		dw.stats.JobsProcessed++
		if dw.stats.JobsProcessed == 1 {
			dw.stats.AverageDuration = float64(duration.Milliseconds())
		} else {
			dw.stats.AverageDuration = (dw.stats.AverageDuration + float64(duration.Milliseconds())) / 2
		}
	} else {
		dw.stats.JobsFailed++
	}
	dw.stats.LastProcessedAt = time.Now()
}

func (dw *DispatchWorker) GetStats() DispatchWorkerStats {
	dw.statsMutex.RLock()
	defer dw.statsMutex.RUnlock()

	stats := dw.stats
	stats.QueueLength = len(dw.jobQueue)
	return stats
}
