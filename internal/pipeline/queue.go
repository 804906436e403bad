package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/metrics"
	"voice-notes-go/internal/types"
)

type job struct {
	desc        types.JobDescriptor
	status      types.JobStatus
	progress    float64
	step        types.Step
	sttRetries  int
	llmRetries  int
	fullRetries int
	err         string
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
}

func (j *job) snapshot() types.JobSnapshot {
	return types.JobSnapshot{
		JobDescriptor: j.desc,
		Status:        j.status,
		Progress:      j.progress,
		Step:          j.step,
		STTRetries:    j.sttRetries,
		LLMRetries:    j.llmRetries,
		FullRetries:   j.fullRetries,
		Error:         j.err,
		SubmittedAt:   j.submittedAt,
		StartedAt:     j.startedAt,
		FinishedAt:    j.finishedAt,
	}
}

// Queue holds submitted jobs in arrival order and runs them on a single worker (see Run).
// Job fields are only written by the worker through update; readers get copies.
type Queue struct {
	deps Deps
	opts Options
	log  *logger.Logger

	mu      sync.RWMutex
	active  []*job // queued and processing, FIFO
	history []*job // finished, oldest first
	wake    chan struct{}
	now     func() time.Time
}

func New(deps Deps, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		deps: deps,
		opts: opts,
		log:  opts.Logger.With("component", "pipeline"),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Submit enqueues a job and returns without waiting for it to run.
func (q *Queue) Submit(desc types.JobDescriptor) error {
	if err := validate(desc); err != nil {
		return err
	}
	key := desc.Key()

	q.mu.Lock()
	for _, j := range q.active {
		if j.desc.Key() == key {
			q.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateJob, key)
		}
	}
	// a resubmitted note replaces its finished entry
	q.history = removeKey(q.history, key)
	q.active = append(q.active, &job{
		desc:        desc,
		status:      types.StatusQueued,
		step:        types.StepQueued,
		submittedAt: q.now(),
	})
	queued := q.countQueuedLocked()
	q.mu.Unlock()

	metrics.JobsSubmittedTotal.Inc()
	metrics.QueuedJobs.Set(float64(queued))
	q.log.WithJob(desc.OwnerID, desc.NoteID).WithField("queued", queued).Info("job submitted")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func validate(desc types.JobDescriptor) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"owner_id", desc.OwnerID},
		{"note_id", desc.NoteID},
		{"source_path", desc.SourcePath},
		{"audio_path", desc.AudioPath},
		{"note_path", desc.NotePath},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrInvalidDescriptor, strings.Join(missing, ", "))
}

// QueryProgress reports where a job stands. Unknown keys get Found=false.
func (q *Queue) QueryProgress(key types.JobKey) types.Progress {
	q.mu.RLock()
	defer q.mu.RUnlock()

	queuedTotal := q.countQueuedLocked()
	position := 0
	for _, j := range q.active {
		if j.status == types.StatusQueued {
			position++
		}
		if j.desc.Key() == key {
			return progressFor(j, position, queuedTotal)
		}
	}
	for i := len(q.history) - 1; i >= 0; i-- {
		if j := q.history[i]; j.desc.Key() == key {
			return progressFor(j, 0, queuedTotal)
		}
	}
	return types.Progress{Found: false, StatusText: "Job not found"}
}

// Len counts jobs that are queued or processing.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.active)
}

// Snapshot returns copies of finished jobs (oldest first) followed by active jobs in FIFO order.
func (q *Queue) Snapshot() []types.JobSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]types.JobSnapshot, 0, len(q.history)+len(q.active))
	for _, j := range q.history {
		out = append(out, j.snapshot())
	}
	for _, j := range q.active {
		out = append(out, j.snapshot())
	}
	return out
}

func (q *Queue) update(j *job, fn func(*job)) {
	q.mu.Lock()
	fn(j)
	q.mu.Unlock()
}

func (q *Queue) read(j *job) types.JobSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return j.snapshot()
}

// setProgress only moves progress forward.
func (q *Queue) setProgress(j *job, pct float64) {
	q.update(j, func(j *job) {
		if pct > j.progress {
			j.progress = pct
		}
	})
}

// next marks the first queued job as processing.
func (q *Queue) next() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.active {
		if j.status == types.StatusQueued {
			j.status = types.StatusProcessing
			j.step = types.StepConverting
			j.progress = bandConverting.start
			j.startedAt = q.now()
			metrics.QueuedJobs.Set(float64(q.countQueuedLocked()))
			metrics.ProcessingJobs.Set(1)
			return j
		}
	}
	return nil
}

// retire moves a finished job from active to history, evicting the oldest entries past the limit.
func (q *Queue) retire(j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.active {
		if a == j {
			q.active = append(q.active[:i], q.active[i+1:]...)
			break
		}
	}
	q.history = append(q.history, j)
	if over := len(q.history) - q.opts.HistoryLimit; over > 0 {
		q.history = append([]*job(nil), q.history[over:]...)
	}
	metrics.ProcessingJobs.Set(0)
}

func (q *Queue) countQueuedLocked() int {
	n := 0
	for _, j := range q.active {
		if j.status == types.StatusQueued {
			n++
		}
	}
	return n
}

func removeKey(jobs []*job, key types.JobKey) []*job {
	out := jobs[:0]
	for _, j := range jobs {
		if j.desc.Key() != key {
			out = append(out, j)
		}
	}
	return out
}
