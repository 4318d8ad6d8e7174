package workers

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"tripwire/repositories"
)

// RetentionWorker prunes data past its retention window on a schedule:
// old delivery log rows and orphaned rate limit keys left in Redis
// without a TTL.
type RetentionWorker struct {
	deliveryLogRepo *repositories.DeliveryLogRepository
	redis           *redis.Client

	config RetentionWorkerConfig

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tasks []RetentionTask

	stats      RetentionWorkerStats
	statsMutex sync.RWMutex
}

type RetentionWorkerConfig struct {
	DeliveryLogRetentionDays int           `json:"deliveryLogRetentionDays"`
	DeliveryLogInterval      time.Duration `json:"deliveryLogInterval"`
	RedisKeyInterval         time.Duration `json:"redisKeyInterval"`
}

type RetentionTask struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"lastRun"`
	NextRun  time.Time     `json:"nextRun"`
	Function func(ctx context.Context) error
}

type RetentionWorkerStats struct {
	TasksExecuted    int64     `json:"tasksExecuted"`
	TasksFailed      int64     `json:"tasksFailed"`
	AttemptsDeleted  int64     `json:"attemptsDeleted"`
	RedisKeysDeleted int64     `json:"redisKeysDeleted"`
	LastRunAt        time.Time `json:"lastRunAt"`
	StartTime        time.Time `json:"startTime"`
}

func NewRetentionWorker(db *mongo.Database, redisClient *redis.Client, config RetentionWorkerConfig) *RetentionWorker {
	if config.DeliveryLogRetentionDays <= 0 {
		config.DeliveryLogRetentionDays = 90
	}
	if config.DeliveryLogInterval <= 0 {
		config.DeliveryLogInterval = 24 * time.Hour
	}
	if config.RedisKeyInterval <= 0 {
		config.RedisKeyInterval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	worker := &RetentionWorker{
		deliveryLogRepo: repositories.NewDeliveryLogRepository(db),
		redis:           redisClient,
		config:          config,
		ctx:             ctx,
		cancel:          cancel,
		stats: RetentionWorkerStats{
			StartTime: time.Now(),
		},
	}

	worker.initializeTasks()
	return worker
}

func (rw *RetentionWorker) Start() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if rw.isRunning {
		return nil
	}
	rw.isRunning = true

	rw.wg.Add(1)
	go rw.taskScheduler()

	logrus.Infof("Retention worker started with %d tasks", len(rw.tasks))
	return nil
}

func (rw *RetentionWorker) Stop() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if !rw.isRunning {
		return nil
	}

	rw.cancel()
	rw.isRunning = false
	rw.wg.Wait()

	logrus.Info("Retention worker stopped")
	return nil
}

func (rw *RetentionWorker) initializeTasks() {
	rw.tasks = []RetentionTask{
		{
			Name:     "delivery_log_retention",
			Interval: rw.config.DeliveryLogInterval,
			Function: rw.pruneDeliveryLog,
		},
		{
			Name:     "rate_limit_key_retention",
			Interval: rw.config.RedisKeyInterval,
			Function: rw.pruneRateLimitKeys,
		},
	}

	now := time.Now()
	for i := range rw.tasks {
		rw.tasks[i].NextRun = now.Add(rw.tasks[i].Interval)
	}
}

func (rw *RetentionWorker) taskScheduler() {
	defer rw.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rw.executeScheduledTasks()

		case <-rw.ctx.Done():
			return
		}
	}
}

func (rw *RetentionWorker) executeScheduledTasks() {
	now := time.Now()

	for i := range rw.tasks {
		task := &rw.tasks[i]

		if now.Before(task.NextRun) {
			continue
		}

		startTime := time.Now()
		err := task.Function(rw.ctx)

		rw.statsMutex.Lock()
		if err != nil {
			rw.stats.TasksFailed++
			logrus.Errorf("Retention task %s failed: %v", task.Name, err)
		} else {
			rw.stats.TasksExecuted++
			logrus.Infof("Retention task %s completed in %v", task.Name, time.Since(startTime))
		}
		rw.stats.LastRunAt = now
		rw.statsMutex.Unlock()

		task.LastRun = now
		task.NextRun = now.Add(task.Interval)
	}
}

func (rw *RetentionWorker) pruneDeliveryLog(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -rw.config.DeliveryLogRetentionDays)

	deleted, err := rw.deliveryLogRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	rw.statsMutex.Lock()
	rw.stats.AttemptsDeleted += deleted
	rw.statsMutex.Unlock()

	logrus.Infof("Pruned %d delivery log rows older than %d days", deleted, rw.config.DeliveryLogRetentionDays)
	return nil
}

// pruneRateLimitKeys removes counter keys that ended up without a TTL.
// Normal keys expire on their own; this is a safety net against keys left
// behind by interrupted pipelines.
func (rw *RetentionWorker) pruneRateLimitKeys(ctx context.Context) error {
	if rw.redis == nil {
		return nil
	}

	var deleted int64

	patterns := []string{
		"ratelimit:*",
		"http_rate_limit:*",
		"dispatch_rate_limit:*",
		"webhook_rate_limit:*",
		"admin_rate_limit:*",
	}

	for _, pattern := range patterns {
		var cursor uint64
		for {
			keys, next, err := rw.redis.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return err
			}

			for _, key := range keys {
				ttl, err := rw.redis.TTL(ctx, key).Result()
				if err != nil {
					continue
				}
				if ttl == -1 {
					if rw.redis.Del(ctx, key).Err() == nil {
						deleted++
					}
				}
			}

			cursor = next
			if cursor == 0 {
				break
			}
		}
	}

	rw.statsMutex.Lock()
	rw.stats.RedisKeysDeleted += deleted
	rw.statsMutex.Unlock()

	if deleted > 0 {
		logrus.Infof("Deleted %d rate limit keys without TTL", deleted)
	}
	return nil
}

func (rw *RetentionWorker) GetStats() RetentionWorkerStats {
	rw.statsMutex.RLock()
	defer rw.statsMutex.RUnlock()
	return rw.stats
}
