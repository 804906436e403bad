package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice-notes-go/internal/metrics"
	"voice-notes-go/internal/types"
)

const terminalWriteTimeout = 10 * time.Second

// Run is the single worker loop. It idles until Submit wakes it and returns when ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("pipeline worker started")
	for {
		if err := ctx.Err(); err != nil {
			q.log.Info("pipeline worker stopped")
			return err
		}
		j := q.next()
		if j == nil {
			select {
			case <-ctx.Done():
				q.log.Info("pipeline worker stopped")
				return ctx.Err()
			case <-q.wake:
			}
			continue
		}
		q.process(ctx, j)
	}
}

// process drives one job to a terminal status, allowing a single full restart.
func (q *Queue) process(ctx context.Context, j *job) {
	log := q.log.WithJob(j.desc.OwnerID, j.desc.NoteID)
	started := q.now()
	log.Info("job started")

	policy := backoff.WithContext(pipelineRetryPolicy(q.opts.PipelineRetryDelay), ctx)
	err := backoff.RetryNotify(func() error {
		return q.runAttempt(ctx, j)
	}, policy, func(err error, wait time.Duration) {
		q.update(j, func(j *job) {
			j.fullRetries++
			j.step = types.StepConverting
			j.sttRetries = 0
			j.llmRetries = 0
			j.progress = bandConverting.start
		})
		metrics.RetriesTotal.WithLabelValues("pipeline").Inc()
		log.WithError(err).WithField("wait", wait.String()).Warn("restarting pipeline from conversion")
	})
	metrics.JobDurationSeconds.Observe(q.now().Sub(started).Seconds())

	if err == nil {
		q.finish(j, func(j *job) {
			j.status = types.StatusCompleted
			j.step = types.StepCompleted
			j.progress = 100
		})
		metrics.JobsFinishedTotal.WithLabelValues(string(types.StatusCompleted)).Inc()
		log.WithField("elapsed", q.now().Sub(started).String()).Info("job completed")
		return
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		err = &StepError{Step: q.read(j).Step, Message: "processing interrupted by shutdown", Err: err}
	}
	q.fail(ctx, j, err)
}

// fail records the terminal error on the note (best effort) and retires the job.
func (q *Queue) fail(ctx context.Context, j *job, err error) {
	log := q.log.WithJob(j.desc.OwnerID, j.desc.NoteID)
	msg := err.Error()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if werr := q.deps.Notes.UpdateNote(writeCtx, j.desc.OwnerID, j.desc.NoteID, types.FailedNote(msg)); werr != nil {
		log.WithError(werr).Error("failed to record job error on note")
	}

	q.finish(j, func(j *job) {
		j.status = types.StatusError
		j.err = msg
	})
	metrics.JobsFinishedTotal.WithLabelValues(string(types.StatusError)).Inc()

	entry := log.WithError(err).WithField("step", q.read(j).Step.String())
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Err != nil {
		entry = entry.WithField("cause", stepErr.Err.Error())
	}
	entry.Error("job failed")
}

// finish applies the terminal mutation and moves the job to history under one lock.
func (q *Queue) finish(j *job, fn func(*job)) {
	q.update(j, func(j *job) {
		fn(j)
		j.finishedAt = q.now()
	})
	q.retire(j)
}
