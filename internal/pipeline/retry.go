package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

func stepRetryPolicy(step time.Duration) backoff.BackOff {
	return backoff.WithMaxRetries(&linearBackOff{step: step}, maxStepRetries)
}

func pipelineRetryPolicy(delay time.Duration) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), maxPipelineRetries)
}
