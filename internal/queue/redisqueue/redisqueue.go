// Package redisqueue is the Redis-backed implementation of ports.Queue
// (spec component F): a ready list for immediate work, a delayed sorted
// set for backoff retries, an active set for in-flight jobs, and capped
// outcome lists for stats/inspection.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallethub/ledgercore/internal/application/ports"
)

var _ ports.Queue = (*Queue)(nil)

const (
	maxRetainedOutcomes = 1000
	defaultPollInterval = 500 * time.Millisecond
)

// Queue is a Redis-backed job queue. One instance can be shared across
// many job types; keys are namespaced by jobType.
type Queue struct {
	client       *redis.Client
	pollInterval time.Duration
}

// New wraps an already-connected redis.Client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client, pollInterval: defaultPollInterval}
}

// NewWithPollInterval lets callers tune how often the delayed-set poller
// sweeps for due retries.
func NewWithPollInterval(client *redis.Client, interval time.Duration) *Queue {
	return &Queue{client: client, pollInterval: interval}
}

func readyKey(jobType string) string     { return fmt.Sprintf("queue:%s:ready", jobType) }
func delayedKey(jobType string) string   { return fmt.Sprintf("queue:%s:delayed", jobType) }
func dedupKey(jobType, id string) string { return fmt.Sprintf("queue:%s:dedup:%s", jobType, id) }
func jobKey(jobType, id string) string   { return fmt.Sprintf("queue:%s:job:%s", jobType, id) }
func completedKey(jobType string) string { return fmt.Sprintf("queue:%s:completed", jobType) }
func failedKey(jobType string) string    { return fmt.Sprintf("queue:%s:failed", jobType) }
func activeKey(jobType string) string    { return fmt.Sprintf("queue:%s:active", jobType) }

// storedJob is the JSON payload kept at jobKey while a job is in flight or
// waiting out a backoff delay.
type storedJob struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Data        []byte        `json:"data"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	BaseBackoff time.Duration `json:"baseBackoff"`
}

// Enqueue writes the job payload and pushes its ID onto the ready list. If
// the JobID's dedup key already exists (the job is still waiting, delayed
// or in flight) this is a no-op, so resubmitting a JobID is idempotent
// until that job completes or fails for good.
func (q *Queue) Enqueue(ctx context.Context, jobType string, data []byte, opts ports.JobOptions) error {
	if opts.JobID == "" {
		return errors.New("redisqueue: JobID is required")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	set, err := q.client.SetNX(ctx, dedupKey(jobType, opts.JobID), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("redisqueue: dedup check: %w", err)
	}
	if !set {
		return nil
	}

	job := storedJob{
		ID:          opts.JobID,
		Type:        jobType,
		Data:        data,
		Attempt:     0,
		MaxAttempts: attempts,
		BaseBackoff: opts.BaseBackoff,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey(jobType, opts.JobID), payload, 0)
	pipe.LPush(ctx, readyKey(jobType), opts.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	return nil
}

// Consume blocks processing ready jobs with handler until ctx is
// cancelled. A background goroutine promotes due delayed jobs back onto
// the ready list on pollInterval.
func (q *Queue) Consume(ctx context.Context, jobType string, handler ports.JobHandler) error {
	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go q.pollDelayed(pollCtx, jobType)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result, err := q.client.BRPop(ctx, q.pollInterval, readyKey(jobType)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Default().Error("redisqueue: brpop failed", "jobType", jobType, "error", err)
			continue
		}

		jobID := result[1]
		q.process(ctx, jobType, jobID, handler)
	}
}

func (q *Queue) process(ctx context.Context, jobType, jobID string, handler ports.JobHandler) {
	raw, err := q.client.Get(ctx, jobKey(jobType, jobID)).Bytes()
	if err != nil {
		slog.Default().Error("redisqueue: missing job hash", "jobId", jobID, "error", err)
		return
	}

	var stored storedJob
	if err := json.Unmarshal(raw, &stored); err != nil {
		slog.Default().Error("redisqueue: corrupt job payload", "jobId", jobID, "error", err)
		return
	}
	stored.Attempt++

	if err := q.client.SAdd(ctx, activeKey(jobType), jobID).Err(); err != nil {
		slog.Default().Error("redisqueue: mark active", "jobId", jobID, "error", err)
	}
	defer func() {
		if err := q.client.SRem(ctx, activeKey(jobType), jobID).Err(); err != nil {
			slog.Default().Error("redisqueue: clear active", "jobId", jobID, "error", err)
		}
	}()

	handlerErr := handler(ctx, ports.Job{ID: stored.ID, Type: stored.Type, Data: stored.Data, Attempt: stored.Attempt})
	if handlerErr == nil {
		q.finish(ctx, jobType, stored, completedKey(jobType))
		return
	}

	if stored.Attempt >= stored.MaxAttempts {
		slog.Default().Warn("redisqueue: job exhausted retries", "jobId", jobID, "attempts", stored.Attempt, "error", handlerErr)
		q.finish(ctx, jobType, stored, failedKey(jobType))
		return
	}

	q.retry(ctx, jobType, stored)
}

func (q *Queue) finish(ctx context.Context, jobType string, job storedJob, outcomeKey string) {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, jobKey(jobType, job.ID))
	pipe.Del(ctx, dedupKey(jobType, job.ID))
	pipe.LPush(ctx, outcomeKey, job.ID)
	pipe.LTrim(ctx, outcomeKey, 0, maxRetainedOutcomes-1)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Default().Error("redisqueue: finish job", "jobId", job.ID, "error", err)
	}
}

// retry re-stores the incremented job and schedules it on the delayed
// sorted set with exponential backoff: BaseBackoff * 2^(attempt-1).
func (q *Queue) retry(ctx context.Context, jobType string, job storedJob) {
	payload, err := json.Marshal(job)
	if err != nil {
		slog.Default().Error("redisqueue: marshal retry", "jobId", job.ID, "error", err)
		return
	}

	backoff := job.BaseBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	delay := backoff << uint(job.Attempt-1)
	readyAt := time.Now().Add(delay).UnixNano()

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey(jobType, job.ID), payload, 0)
	pipe.ZAdd(ctx, delayedKey(jobType), redis.Z{Score: float64(readyAt), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Default().Error("redisqueue: schedule retry", "jobId", job.ID, "error", err)
	}
}

// pollDelayed periodically promotes delayed jobs whose backoff has
// elapsed back onto the ready list.
func (q *Queue) pollDelayed(ctx context.Context, jobType string) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue(ctx, jobType)
		}
	}
}

func (q *Queue) promoteDue(ctx context.Context, jobType string) {
	now := float64(time.Now().UnixNano())
	ids, err := q.client.ZRangeByScore(ctx, delayedKey(jobType), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, id := range ids {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, delayedKey(jobType), id)
		pipe.LPush(ctx, readyKey(jobType), id)
		if _, err := pipe.Exec(ctx); err != nil {
			slog.Default().Error("redisqueue: promote delayed job", "jobId", id, "error", err)
		}
	}
}

// Stats reports queue depth for jobType.
func (q *Queue) Stats(ctx context.Context, jobType string) (ports.QueueStats, error) {
	waiting, err := q.client.LLen(ctx, readyKey(jobType)).Result()
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("redisqueue: stats waiting: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, delayedKey(jobType)).Result()
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("redisqueue: stats delayed: %w", err)
	}
	completed, err := q.client.LLen(ctx, completedKey(jobType)).Result()
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("redisqueue: stats completed: %w", err)
	}
	failed, err := q.client.LLen(ctx, failedKey(jobType)).Result()
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("redisqueue: stats failed: %w", err)
	}
	active, err := q.client.SCard(ctx, activeKey(jobType)).Result()
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("redisqueue: stats active: %w", err)
	}

	return ports.QueueStats{
		Waiting:   int(waiting),
		Active:    int(active),
		Delayed:   int(delayed),
		Completed: int(completed),
		Failed:    int(failed),
	}, nil
}

// Close releases the underlying Redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}
