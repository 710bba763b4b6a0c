package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/courtreel/internal/stage"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func testPolicy(tries int) stage.Policy {
	return stage.Policy{
		Queue:   "test",
		Tries:   tries,
		Backoff: []time.Duration{time.Millisecond, time.Millisecond},
		Timeout: 5 * time.Second,
	}
}

func runWorker(t *testing.T, q *Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{Queue: q, Conf: WorkerConfig{PromoteEvery: 5 * time.Millisecond}}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestEnqueuePlacesJobOnReadyList(t *testing.T) {
	q, mr := newTestQueue(t)
	q.Register(Handler{Stage: "s", Policy: testPolicy(1), Run: func(context.Context, *Job) error { return nil }})

	id, err := q.Enqueue(context.Background(), "s", map[string]string{"asset_id": "a1"}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	raw, err := mr.List("cq:test:ready")
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &job))
	assert.Equal(t, "s", job.Stage)
	assert.Equal(t, 0, job.Attempt)
	assert.JSONEq(t, `{"asset_id":"a1"}`, string(job.Payload))
}

func TestEnqueueUnknownStage(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Enqueue(context.Background(), "nope", nil, Options{})
	assert.Error(t, err)
}

func TestEnqueueDelayGoesToDelayedSet(t *testing.T) {
	q, mr := newTestQueue(t)
	q.Register(Handler{Stage: "s", Policy: testPolicy(1), Run: func(context.Context, *Job) error { return nil }})

	_, err := q.Enqueue(context.Background(), "s", nil, Options{Delay: time.Hour})
	require.NoError(t, err)

	assert.True(t, mr.Exists("cq:test:delayed"))
	assert.False(t, mr.Exists("cq:test:ready"))
}

func TestUniquenessKeyBlocksSecondEnqueue(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Register(Handler{Stage: "s", Policy: testPolicy(1), Run: func(context.Context, *Job) error { return nil }})

	key := stage.UniqueKey("s", "asset-1")
	_, err := q.Enqueue(context.Background(), "s", nil, Options{UniqueKey: key})
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "s", nil, Options{UniqueKey: key})
	assert.ErrorIs(t, err, ErrDuplicate)

	// A different asset is unaffected.
	_, err = q.Enqueue(context.Background(), "s", nil, Options{UniqueKey: stage.UniqueKey("s", "asset-2")})
	assert.NoError(t, err)
}

func TestWorkerExecutesJob(t *testing.T) {
	q, _ := newTestQueue(t)
	var got atomic.Value
	q.Register(Handler{
		Stage:  "s",
		Policy: testPolicy(1),
		Run: func(ctx context.Context, job *Job) error {
			got.Store(string(job.Payload))
			return nil
		},
	})
	runWorker(t, q)

	_, err := q.Enqueue(context.Background(), "s", "hello", Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return got.Load() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, `"hello"`, got.Load())
}

func TestWorkerReleasesUniqueKeyAfterSuccess(t *testing.T) {
	q, mr := newTestQueue(t)
	q.Register(Handler{Stage: "s", Policy: testPolicy(1), Run: func(context.Context, *Job) error { return nil }})
	runWorker(t, q)

	key := stage.UniqueKey("s", "asset-1")
	_, err := q.Enqueue(context.Background(), "s", nil, Options{UniqueKey: key})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !mr.Exists("cq:unique:" + key)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerRetriesUntilBudgetExhausted(t *testing.T) {
	q, _ := newTestQueue(t)

	var attempts atomic.Int32
	var failedWith atomic.Value
	var failedCalls atomic.Int32
	q.Register(Handler{
		Stage:  "s",
		Policy: testPolicy(2),
		Run: func(context.Context, *Job) error {
			attempts.Add(1)
			return &stage.SubprocessError{Binary: "ffmpeg", ExitCode: 1}
		},
		Failed: func(ctx context.Context, job *Job, err error) {
			failedWith.Store(err)
			failedCalls.Add(1)
		},
	})
	runWorker(t, q)

	_, err := q.Enqueue(context.Background(), "s", nil, Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return failedCalls.Load() == 1 }, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load(), "both tries consumed")

	var spErr *stage.SubprocessError
	assert.True(t, errors.As(failedWith.Load().(error), &spErr))

	// No further attempts after the budget is spent.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int32(1), failedCalls.Load())
}

func TestWorkerDoesNotRetryValidationErrors(t *testing.T) {
	q, _ := newTestQueue(t)

	var attempts atomic.Int32
	var failedCalls atomic.Int32
	q.Register(Handler{
		Stage:  "s",
		Policy: testPolicy(3),
		Run: func(context.Context, *Job) error {
			attempts.Add(1)
			return stage.Validationf("empty source")
		},
		Failed: func(context.Context, *Job, error) { failedCalls.Add(1) },
	})
	runWorker(t, q)

	_, err := q.Enqueue(context.Background(), "s", nil, Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return failedCalls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load(), "validation errors fail on the first attempt")
}

func TestBackoffSchedule(t *testing.T) {
	p := stage.Policies[stage.ExtractMetadata]
	assert.Equal(t, 30*time.Second, backoffFor(p, 1))
	assert.Equal(t, 60*time.Second, backoffFor(p, 2))
	assert.Equal(t, 120*time.Second, backoffFor(p, 3))
	assert.Equal(t, 120*time.Second, backoffFor(p, 7), "past the schedule reuses the last entry")
}
