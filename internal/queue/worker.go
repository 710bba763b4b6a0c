package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/stage"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtreel_queue_jobs_total",
		Help: "Total job attempts by stage and result",
	}, []string{"stage", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtreel_queue_job_duration_seconds",
		Help:    "Job attempt duration by stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 16),
	}, []string{"stage"})
)

// promoteScript atomically moves due jobs from the delayed zset to the
// ready list. KEYS[1]=delayed, KEYS[2]=ready, ARGV[1]=now.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for i, job in ipairs(due) do
	redis.call('LPUSH', KEYS[2], job)
	redis.call('ZREM', KEYS[1], job)
end
return #due
`)

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	// Concurrency is the number of executor goroutines per queue name.
	Concurrency map[string]int
	// PromoteEvery is the delayed-job promotion interval.
	PromoteEvery time.Duration
}

// Worker pulls jobs from the named queues and executes registered
// handlers. Run blocks until ctx is cancelled and all executors drain.
type Worker struct {
	Queue *Queue
	Conf  WorkerConfig
}

// Run starts promotion and executor loops for every queue that has at
// least one registered handler.
func (w *Worker) Run(ctx context.Context) error {
	if w.Conf.PromoteEvery <= 0 {
		w.Conf.PromoteEvery = time.Second
	}

	queues := map[string]int{}
	for _, h := range w.Queue.handlers {
		c := w.Conf.Concurrency[h.Policy.Queue]
		if c <= 0 {
			c = 2
		}
		queues[h.Policy.Queue] = c
	}

	g, ctx := errgroup.WithContext(ctx)
	for name, concurrency := range queues {
		g.Go(func() error { return w.promoteLoop(ctx, name) })
		for i := 0; i < concurrency; i++ {
			g.Go(func() error { return w.consumeLoop(ctx, name) })
		}
	}

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (w *Worker) promoteLoop(ctx context.Context, queueName string) error {
	ticker := time.NewTicker(w.Conf.PromoteEvery)
	defer ticker.Stop()
	logger := log.WithComponent("queue")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().Unix()
			err := promoteScript.Run(ctx, w.Queue.rdb,
				[]string{delayedKey(queueName), readyKey(queueName)}, now).Err()
			if err != nil && err != redis.Nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("queue", queueName).Msg("delayed job promotion failed")
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, queueName string) error {
	logger := log.WithComponent("queue")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := w.Queue.rdb.BRPop(ctx, 2*time.Second, readyKey(queueName)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Str("queue", queueName).Msg("brpop failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPop returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			logger.Error().Err(err).Str("queue", queueName).Msg("dropping undecodable job")
			continue
		}

		w.execute(ctx, &job)
	}
}

// execute runs one attempt and applies the retry policy.
func (w *Worker) execute(ctx context.Context, job *Job) {
	h, ok := w.Queue.handlers[job.Stage]
	if !ok {
		logger := log.WithComponent("queue")
		logger.Error().Str("stage", job.Stage).Msg("no handler registered, dropping job")
		return
	}

	job.Attempt++
	attemptCtx := log.ContextWithJobID(ctx, job.ID)
	attemptCtx = log.ContextWithStage(attemptCtx, job.Stage)

	var cancel context.CancelFunc
	if h.Policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(attemptCtx, h.Policy.Timeout)
		defer cancel()
	}

	logger := log.WithComponentFromContext(attemptCtx, "queue")
	logger.Info().Int("attempt", job.Attempt).Int("tries", h.Policy.Tries).Msg("job attempt starting")

	start := time.Now()
	err := h.Run(attemptCtx, job)
	jobDuration.WithLabelValues(job.Stage).Observe(time.Since(start).Seconds())

	if err == nil {
		jobsTotal.WithLabelValues(job.Stage, "ok").Inc()
		w.Queue.releaseUnique(ctx, job)
		logger.Info().Dur("took", time.Since(start)).Msg("job attempt succeeded")
		return
	}

	retryable := stage.IsRetryable(err)
	if retryable && job.Attempt < h.Policy.Tries {
		delay := backoffFor(h.Policy, job.Attempt)
		jobsTotal.WithLabelValues(job.Stage, "retry").Inc()
		logger.Warn().Err(err).Dur("backoff", delay).Msg("job attempt failed, scheduling retry")
		// Push with the background-ish parent ctx: a cancelled attempt
		// timeout must not block the retry enqueue.
		if pushErr := w.Queue.push(ctx, job, delay); pushErr != nil {
			logger.Error().Err(pushErr).Msg("retry enqueue failed, invoking failure hook")
			w.fail(ctx, h, job, err)
		}
		return
	}

	if retryable {
		jobsTotal.WithLabelValues(job.Stage, "exhausted").Inc()
		logger.Error().Err(err).Int("attempts", job.Attempt).Msg("retry budget exhausted")
	} else {
		jobsTotal.WithLabelValues(job.Stage, "rejected").Inc()
		logger.Error().Err(err).Msg("non-retryable job failure")
	}
	w.fail(ctx, h, job, err)
}

func (w *Worker) fail(ctx context.Context, h Handler, job *Job, err error) {
	if h.Failed != nil {
		hookCtx := log.ContextWithJobID(ctx, job.ID)
		hookCtx = log.ContextWithStage(hookCtx, job.Stage)
		h.Failed(hookCtx, job, err)
	}
	w.Queue.releaseUnique(ctx, job)
}
