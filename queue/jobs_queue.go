package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"paytr-payment-api/logger"
)

type JobType string

const (
	// JobTypeCheckStatus polls the gateway for the outcome of one merchant oid.
	JobTypeCheckStatus JobType = "check_status"
)

const (
	DefaultQueueName = "payment_status_jobs"
	MaxRetries       = 5
	baseRetryDelay   = 15 * time.Second
)

type Job struct {
	ID          string    `json:"id"`
	Type        JobType   `json:"type"`
	MerchantOID string    `json:"merchant_oid"`
	Polls       int       `json:"polls"` // status inquiries that came back PENDING
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// raw is the exact payload held in the processing list.
	raw string
}

type Queue struct {
	client     *redis.Client
	queueName  string
	processing string
	delayed    string
	failed     string
	log        *zap.Logger
	now        func() time.Time
}

func NewQueue(redisURL, queueName string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %v", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return NewQueueFromClient(client, queueName), nil
}

// NewQueueFromClient builds a queue on an existing client.
func NewQueueFromClient(client *redis.Client, queueName string) *Queue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + ":processing",
		delayed:    queueName + ":delayed",
		failed:     queueName + ":failed",
		log:        logger.Named("queue"),
		now:        time.Now,
	}
}

// NewStatusJob creates a check_status job for merchantOID.
func NewStatusJob(merchantOID string) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Type:        JobTypeCheckStatus,
		MerchantOID: merchantOID,
		CreatedAt:   time.Now(),
	}
}

// EnqueueStatusCheck schedules an immediate status inquiry.
func (q *Queue) EnqueueStatusCheck(ctx context.Context, merchantOID string) (*Job, error) {
	if merchantOID == "" {
		return nil, errors.New("merchant oid is required")
	}
	job := NewStatusJob(merchantOID)
	if err := q.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %v", err)
	}

	if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %v", err)
	}

	q.log.Info("enqueued job",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("merchant_oid", job.MerchantOID))
	return nil
}

// EnqueueDelayed parks job in the delayed set until delay has passed.
func (q *Queue) EnqueueDelayed(ctx context.Context, job *Job, delay time.Duration) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %v", err)
	}

	executeAt := q.now().Add(delay)
	if err := q.client.ZAdd(ctx, q.delayed, &redis.Z{
		Score:  float64(executeAt.UnixMilli()),
		Member: jobJSON,
	}).Err(); err != nil {
		return fmt.Errorf("failed to push delayed job to queue: %v", err)
	}

	q.log.Info("enqueued delayed job",
		zap.String("job_id", job.ID),
		zap.String("merchant_oid", job.MerchantOID),
		zap.Time("execute_at", executeAt))
	return nil
}

// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from queue: %v", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result format")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		if perr := q.client.RPush(ctx, q.failed, result[1]).Err(); perr != nil {
			q.log.Warn("failed to park malformed job", zap.Error(perr))
		}
		return nil, fmt.Errorf("failed to unmarshal job: %v", err)
	}
	job.raw = result[1]

	if err := q.client.RPush(ctx, q.processing, result[1]).Err(); err != nil {
		q.log.Warn("failed to move job to processing list", zap.String("job_id", job.ID), zap.Error(err))
	}

	return &job, nil
}

func (q *Queue) removeProcessing(ctx context.Context, job *Job) error {
	raw := job.raw
	if raw == "" {
		b, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %v", err)
		}
		raw = string(b)
	}
	return q.client.LRem(ctx, q.processing, 1, raw).Err()
}

func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	if err := q.removeProcessing(ctx, job); err != nil {
		return fmt.Errorf("failed to remove job from processing queue: %v", err)
	}

	q.log.Info("completed job", zap.String("job_id", job.ID), zap.String("merchant_oid", job.MerchantOID))
	return nil
}

// Reschedule completes the current run of job and puts it back after delay.
func (q *Queue) Reschedule(ctx context.Context, job *Job, delay time.Duration) error {
	if err := q.removeProcessing(ctx, job); err != nil {
		q.log.Warn("failed to remove job from processing list", zap.String("job_id", job.ID), zap.Error(err))
	}
	next := *job
	next.raw = ""
	return q.EnqueueDelayed(ctx, &next, delay)
}

// RetryDelay is the back-off before retry n (1-based): 15s, 30s, 60s ...
func RetryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return baseRetryDelay * time.Duration(1<<(n-1))
}

// FailJob schedules a retry with exponential back-off, or moves the job to
// the failed list once MaxRetries is exceeded.
func (q *Queue) FailJob(ctx context.Context, job *Job, err error) error {
	if rerr := q.removeProcessing(ctx, job); rerr != nil {
		q.log.Warn("failed to remove job from processing list", zap.String("job_id", job.ID), zap.Error(rerr))
	}

	last := IsLastAttempt(job)
	next := *job
	next.raw = ""
	next.RetryCount++
	if err != nil {
		next.LastError = err.Error()
	}

	if !last {
		delay := RetryDelay(next.RetryCount)
		if zerr := q.EnqueueDelayed(ctx, &next, delay); zerr != nil {
			q.log.Warn("failed to schedule retry, moving job to failed list", zap.Error(zerr))
			return q.pushFailed(ctx, &next)
		}
		q.log.Warn("job scheduled for retry",
			zap.String("job_id", next.ID),
			zap.String("merchant_oid", next.MerchantOID),
			zap.Int("retry", next.RetryCount),
			zap.Duration("delay", delay),
			zap.Error(err))
		return nil
	}

	q.log.Error("job exhausted retries",
		zap.String("job_id", next.ID),
		zap.String("merchant_oid", next.MerchantOID),
		zap.Int("retries", next.RetryCount),
		zap.Error(err))
	return q.pushFailed(ctx, &next)
}

func (q *Queue) pushFailed(ctx context.Context, job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %v", err)
	}
	if err := q.client.RPush(ctx, q.failed, b).Err(); err != nil {
		return fmt.Errorf("failed to push job to failed queue: %v", err)
	}
	return nil
}

// ProcessDelayedJobs moves due jobs from the delayed set to the main list.
// A job is moved only by the caller that removed it from the set.
func (q *Queue) ProcessDelayedJobs(ctx context.Context) (int, error) {
	now := q.now().UnixMilli()

	jobs, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get delayed jobs: %v", err)
	}

	moved := 0
	for _, jobJSON := range jobs {
		removed, err := q.client.ZRem(ctx, q.delayed, jobJSON).Result()
		if err != nil {
			q.log.Warn("failed to remove job from delayed set", zap.Error(err))
			continue
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
			q.log.Error("failed to move delayed job to main queue", zap.Error(err))
			continue
		}
		moved++
	}

	if moved > 0 {
		q.log.Debug("promoted delayed jobs", zap.Int("count", moved))
	}
	return moved, nil
}

// ErrJobNotFound is returned by RetryJob for ids missing from the failed list.
var ErrJobNotFound = errors.New("job not found in failed queue")

// RetryJob moves a job from the failed list back to the main list with its
// retry counter reset.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	jobs, err := q.client.LRange(ctx, q.failed, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list failed jobs: %v", err)
	}

	for _, jobJSON := range jobs {
		var job Job
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			continue
		}
		if job.ID != jobID {
			continue
		}

		if err := q.client.LRem(ctx, q.failed, 1, jobJSON).Err(); err != nil {
			return fmt.Errorf("failed to remove job from failed queue: %v", err)
		}
		job.RetryCount = 0
		job.LastError = ""
		if err := q.Enqueue(ctx, &job); err != nil {
			return err
		}
		q.log.Info("manually requeued job", zap.String("job_id", job.ID))
		return nil
	}

	return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}

// IsLastAttempt reports whether a failure of job sends it to the failed list.
func IsLastAttempt(job *Job) bool {
	return job.RetryCount >= MaxRetries
}

type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Failed     int64 `json:"failed"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.queueName)
	processing := pipe.LLen(ctx, q.processing)
	delayed := pipe.ZCard(ctx, q.delayed)
	failed := pipe.LLen(ctx, q.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return s, fmt.Errorf("failed to read queue stats: %v", err)
	}
	s.Pending, s.Processing, s.Delayed, s.Failed = pending.Val(), processing.Val(), delayed.Val(), failed.Val()
	return s, nil
}

func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}
