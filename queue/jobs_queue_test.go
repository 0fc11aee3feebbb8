package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueueFromClient(client, "test_jobs"), mr
}

func TestEnqueueDequeueComplete(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueStatusCheck(ctx, "PTR1")
	require.NoError(t, err)
	assert.Equal(t, JobTypeCheckStatus, job.Type)
	assert.NotEmpty(t, job.ID)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "PTR1", got.MerchantOID)

	processing, err := mr.List("test_jobs:processing")
	require.NoError(t, err)
	assert.Len(t, processing, 1)

	require.NoError(t, q.CompleteJob(ctx, got))
	assert.False(t, mr.Exists("test_jobs:processing"))
}

func TestEnqueueStatusCheck_RequiresOID(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.EnqueueStatusCheck(context.Background(), "")
	assert.Error(t, err)
}

func TestDequeue_Empty(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailJob_BacksOffThenPromotes(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	base := time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }

	_, err := q.EnqueueStatusCheck(ctx, "PTR1")
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.FailJob(ctx, job, errors.New("gateway down")))
	assert.False(t, mr.Exists("test_jobs:processing"))

	members, err := mr.ZMembers("test_jobs:delayed")
	require.NoError(t, err)
	require.Len(t, members, 1)

	moved, err := q.ProcessDelayedJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)

	q.now = func() time.Time { return base.Add(RetryDelay(1)) }
	moved, err = q.ProcessDelayedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	retried, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "gateway down", retried.LastError)
}

func TestFailJob_ExhaustedGoesToFailedList(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	job := NewStatusJob("PTR1")
	job.RetryCount = MaxRetries
	require.True(t, IsLastAttempt(job))
	require.NoError(t, q.FailJob(ctx, job, errors.New("still down")))

	failed, err := mr.List("test_jobs:failed")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.False(t, mr.Exists("test_jobs:delayed"))

	require.NoError(t, q.RetryJob(ctx, job.ID))
	assert.False(t, mr.Exists("test_jobs:failed"))

	requeued, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, requeued.RetryCount)
	assert.Empty(t, requeued.LastError)

	assert.ErrorIs(t, q.RetryJob(ctx, "missing"), ErrJobNotFound)
}

func TestReschedule(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := q.EnqueueStatusCheck(ctx, "PTR1")
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	job.Polls++
	require.NoError(t, q.Reschedule(ctx, job, time.Minute))
	assert.False(t, mr.Exists("test_jobs:processing"))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Delayed: 1}, stats)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 15*time.Second, RetryDelay(1))
	assert.Equal(t, 30*time.Second, RetryDelay(2))
	assert.Equal(t, 4*time.Minute, RetryDelay(5))
	assert.Equal(t, 15*time.Second, RetryDelay(0))
}
