package hook

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/nedscode/dbrouted/pkg/log"
	"github.com/nedscode/dbrouted/pkg/metrics"
)

// Job is one queued hook invocation.
type Job struct {
	Monitor string
	Backend string
	Command string // already-rendered command line
	Timeout time.Duration
}

// Runner invokes configured commands on its own goroutine so a slow or
// crashing script never blocks a monitor tick (spec §4.D).
type Runner struct {
	queue   chan Job
	done    chan struct{}
	unknown *unknownTokenLogger
}

// NewRunner starts a Runner with the given queue depth.
func NewRunner(queueDepth int) *Runner {
	r := &Runner{
		queue: make(chan Job, queueDepth),
		done:  make(chan struct{}),
		unknown: newUnknownTokenLogger(func(token string) {
			log.Warn("event hook: unknown token " + token + " left literal")
		}),
	}
	go r.loop()
	return r
}

// Render renders a command template against ctx, using this Runner's
// unknown-token log-once tracking.
func (r *Runner) Render(template string, ctx Context) string {
	return render(template, ctx, r.unknown)
}

// Enqueue queues a job for execution. It never blocks the caller for
// longer than it takes to push onto the internal channel; a full queue
// drops the job and logs a warning rather than stalling a monitor tick.
func (r *Runner) Enqueue(job Job) {
	select {
	case r.queue <- job:
	default:
		log.Warn("event hook: queue full, dropping hook for " + job.Backend)
		metrics.HookInvocations.WithLabelValues(job.Monitor, "dropped").Inc()
	}
}

// Stop drains no further jobs and stops the worker goroutine. In-flight
// jobs are allowed to finish or time out on their own.
func (r *Runner) Stop() {
	close(r.done)
}

func (r *Runner) loop() {
	for {
		select {
		case <-r.done:
			return
		case job := <-r.queue:
			r.run(job)
		}
	}
}

func (r *Runner) run(job Job) {
	fields := strings.Fields(job.Command)
	if len(fields) == 0 {
		return
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	err := cmd.Run()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		log.Logger.Error().
			Str("monitor", job.Monitor).
			Str("backend", job.Backend).
			Dur("timeout", timeout).
			Msg("event hook timed out, killed")
		metrics.HookInvocations.WithLabelValues(job.Monitor, "timeout").Inc()
	case err != nil:
		log.Logger.Error().
			Str("monitor", job.Monitor).
			Str("backend", job.Backend).
			Err(err).
			Msg("event hook exited with error")
		metrics.HookInvocations.WithLabelValues(job.Monitor, "error").Inc()
	default:
		metrics.HookInvocations.WithLabelValues(job.Monitor, "ok").Inc()
	}
}
