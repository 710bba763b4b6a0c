// Package execx runs the external probe and transcode binaries. It is the
// only place the pipeline touches os/exec; every stage receives a Runner
// so tests can substitute a fake without real binaries.
package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/procgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtreel_subprocess_runs_total",
		Help: "Total subprocess invocations by binary and result",
	}, []string{"binary", "result"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtreel_subprocess_duration_seconds",
		Help:    "Wall-clock duration of subprocess invocations",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"binary"})
)

// Command describes a single external invocation.
type Command struct {
	Path    string        // binary path (e.g. "ffprobe", "ffmpeg")
	Args    []string      // argv without the binary itself
	Timeout time.Duration // hard wall-clock limit; 0 means no limit
}

// Result captures the outcome of one invocation. ExitOk is false on
// non-zero exit and on timeout; callers convert that into a domain error.
type Result struct {
	ExitOk   bool
	ExitCode int
	Stdout   []byte
	Stderr   []string // last lines of stderr, chronological
	TimedOut bool
	Duration time.Duration
}

// Runner executes external commands. It performs no retries; retry policy
// lives at the job level.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ProcessRunner is the real Runner backed by os/exec.
type ProcessRunner struct {
	// KillGrace is how long a timed-out process gets between SIGTERM and
	// SIGKILL of its process group.
	KillGrace time.Duration
	// StderrLines bounds the captured stderr ring. Defaults to 256.
	StderrLines int
}

// NewProcessRunner returns a ProcessRunner with default supervision limits.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{KillGrace: 5 * time.Second, StderrLines: 256}
}

// Run executes cmd and blocks until exit or timeout. A timeout kills the
// whole process group and is reported as TimedOut with ExitOk=false; it is
// not an error at this layer.
func (r *ProcessRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Path == "" {
		return Result{}, errors.New("execx: empty command path")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	capacity := r.StderrLines
	if capacity <= 0 {
		capacity = 256
	}
	ring := NewLineRing(capacity)
	var stdout bytes.Buffer

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...) // #nosec G204 -- argv is built internally, never from request input
	procgroup.Set(c)
	c.Stdout = &stdout
	c.Stderr = ring
	grace := r.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	c.Cancel = func() error {
		return procgroup.KillGroup(c.Process.Pid, grace)
	}

	logger := log.WithComponentFromContext(ctx, "execx")
	logger.Debug().Str("binary", cmd.Path).Strs("args", cmd.Args).Msg("starting subprocess")

	start := time.Now()
	err := c.Run()
	elapsed := time.Since(start)
	runDuration.WithLabelValues(cmd.Path).Observe(elapsed.Seconds())

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   ring.LastN(capacity),
		Duration: elapsed,
	}

	timedOut := runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	res.TimedOut = timedOut

	if err == nil && !timedOut {
		res.ExitOk = true
		runTotal.WithLabelValues(cmd.Path, "ok").Inc()
		return res, nil
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	switch {
	case timedOut:
		runTotal.WithLabelValues(cmd.Path, "timeout").Inc()
		logger.Warn().
			Str("binary", cmd.Path).
			Dur("timeout", cmd.Timeout).
			Strs("stderr", ring.LastN(10)).
			Msg("subprocess timed out")
	case ctx.Err() != nil:
		// Caller cancelled; surface the context error so job-level
		// accounting sees the abort.
		runTotal.WithLabelValues(cmd.Path, "cancelled").Inc()
		return res, ctx.Err()
	default:
		runTotal.WithLabelValues(cmd.Path, "error").Inc()
		logger.Debug().
			Str("binary", cmd.Path).
			Int("exit_code", res.ExitCode).
			Strs("stderr", ring.LastN(10)).
			Msg("subprocess exited non-zero")
	}

	return res, nil
}
