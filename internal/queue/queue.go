// Package queue is a Redis-backed delayed job queue with per-stage retry
// budgets and uniqueness keys. Stages do not call each other; every
// cross-stage handoff goes through here.
//
// Layout per named queue:
//
//	cq:{queue}:ready    LIST  jobs ready to run (LPUSH / BRPOP)
//	cq:{queue}:delayed  ZSET  jobs scored by ready-at unix time
//	cq:unique:{key}     STRING one-in-flight guard, released on terminal outcome
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hooplab/courtreel/internal/stage"
)

// ErrDuplicate is returned when a job's uniqueness key is already held by
// an in-flight run.
var ErrDuplicate = errors.New("duplicate job: uniqueness key held")

// Job is the unit of work moved through Redis.
type Job struct {
	ID         string          `json:"id"`
	Stage      string          `json:"stage"`
	Payload    json.RawMessage `json:"payload"`
	Queue      string          `json:"queue"`
	Attempt    int             `json:"attempt"` // completed attempts; 0 before first run
	UniqueKey  string          `json:"unique_key,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// HandlerFunc executes one stage attempt. The context carries the
// per-attempt timeout from the stage policy.
type HandlerFunc func(ctx context.Context, job *Job) error

// FailedFunc runs exactly once after the final attempt is exhausted (or a
// non-retryable error), before the uniqueness key is released.
type FailedFunc func(ctx context.Context, job *Job, err error)

// Handler binds a stage name to its executor, policy and failure hook.
type Handler struct {
	Stage  string
	Policy stage.Policy
	Run    HandlerFunc
	Failed FailedFunc
}

// Queue is the enqueue-side client plus the handler registry.
type Queue struct {
	rdb      *redis.Client
	handlers map[string]Handler
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{
		rdb:      rdb,
		handlers: make(map[string]Handler),
	}
}

// Register adds a stage handler. Must be called before workers start.
func (q *Queue) Register(h Handler) {
	if h.Policy.Tries <= 0 {
		h.Policy.Tries = 1
	}
	if h.Policy.Queue == "" {
		h.Policy.Queue = "default"
	}
	q.handlers[h.Stage] = h
}

// Options control a single enqueue.
type Options struct {
	Delay     time.Duration
	UniqueKey string
}

// Enqueue submits a job for the named stage. With a uniqueness key set,
// a second enqueue while the first run is in flight returns ErrDuplicate.
func (q *Queue) Enqueue(ctx context.Context, stageName string, payload any, opts Options) (string, error) {
	h, ok := q.handlers[stageName]
	if !ok {
		return "", fmt.Errorf("queue: unknown stage %q", stageName)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Stage:      stageName,
		Payload:    raw,
		Queue:      h.Policy.Queue,
		UniqueKey:  opts.UniqueKey,
		EnqueuedAt: time.Now().UTC(),
	}

	if job.UniqueKey != "" {
		ttl := uniqueTTL(h.Policy)
		set, err := q.rdb.SetNX(ctx, uniqueRedisKey(job.UniqueKey), job.ID, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("queue: uniqueness check: %w", err)
		}
		if !set {
			return "", ErrDuplicate
		}
	}

	if err := q.push(ctx, job, opts.Delay); err != nil {
		if job.UniqueKey != "" {
			_ = q.rdb.Del(ctx, uniqueRedisKey(job.UniqueKey)).Err()
		}
		return "", err
	}
	return job.ID, nil
}

// push places a job on the ready list or the delayed zset.
func (q *Queue) push(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if delay <= 0 {
		return q.rdb.LPush(ctx, readyKey(job.Queue), data).Err()
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	return q.rdb.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: readyAt, Member: string(data)}).Err()
}

// releaseUnique drops the one-in-flight guard after a terminal outcome.
func (q *Queue) releaseUnique(ctx context.Context, job *Job) {
	if job.UniqueKey == "" {
		return
	}
	_ = q.rdb.Del(ctx, uniqueRedisKey(job.UniqueKey)).Err()
}

// uniqueTTL bounds how long a crashed worker can hold the guard: the full
// retry budget plus backoff, with slack.
func uniqueTTL(p stage.Policy) time.Duration {
	total := time.Duration(p.Tries) * p.Timeout
	for _, b := range p.Backoff {
		total += b
	}
	return total + 5*time.Minute
}

func readyKey(queue string) string   { return "cq:" + queue + ":ready" }
func delayedKey(queue string) string { return "cq:" + queue + ":delayed" }
func uniqueRedisKey(key string) string {
	return "cq:unique:" + key
}

// backoffFor returns the delay before re-running after the given failed
// attempt (1-based). Attempts past the schedule reuse the last entry.
func backoffFor(p stage.Policy, failedAttempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 30 * time.Second
	}
	idx := failedAttempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return p.Backoff[idx]
}
