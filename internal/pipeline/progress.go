package pipeline

import (
	"fmt"
	"math"
	"strings"

	"voice-notes-go/internal/types"
)

type band struct {
	start, end float64
}

var (
	bandConverting   = band{10, 40}
	bandSettings     = band{45, 50}
	bandTranscribing = band{50, 70}
	bandSummarizing  = band{70, 90}
	bandSaving       = band{90, 100}
)

// at maps a 0-100 step-local percentage into the band.
func (b band) at(pct float64) float64 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return b.start + pct*(b.end-b.start)/100
}

// queuePosition is 100 at the head of the queue and shrinks toward 0 further back.
// Jobs not waiting in the queue always report 100.
func queuePosition(position, queued int) float64 {
	if position <= 0 || queued <= 0 {
		return 100
	}
	return float64(queued-position+1) / float64(queued) * 100
}

func progressFor(j *job, position, queued int) types.Progress {
	p := types.Progress{
		Found:           true,
		Status:          j.status,
		QueuePosition:   100,
		ProcessProgress: j.progress,
	}
	if j.status == types.StatusQueued {
		p.QueuePosition = queuePosition(position, queued)
	}
	p.StatusText = statusText(j, position, queued)
	return p
}

func statusText(j *job, position, queued int) string {
	switch j.status {
	case types.StatusQueued:
		return fmt.Sprintf("Queued (position %d of %d)", position, queued)
	case types.StatusCompleted:
		return "Completed"
	case types.StatusError:
		return "Error: " + j.err
	}

	var b strings.Builder
	b.WriteString(stepLabel(j.step))
	switch j.step {
	case types.StepTranscribing:
		if j.sttRetries > 0 {
			fmt.Fprintf(&b, " (Retry %d/%d)", j.sttRetries, maxStepRetries)
		}
	case types.StepSummarizing:
		if j.llmRetries > 0 {
			fmt.Fprintf(&b, " (Retry %d/%d)", j.llmRetries, maxStepRetries)
		}
	}
	if j.fullRetries > 0 {
		fmt.Fprintf(&b, " (Pipeline retry %d/%d)", j.fullRetries, maxPipelineRetries)
	}
	fmt.Fprintf(&b, " (%d%%)", int(math.Round(j.progress)))
	return b.String()
}

func stepLabel(s types.Step) string {
	switch s {
	case types.StepQueued:
		return "Starting..."
	case types.StepConverting:
		return "Converting audio..."
	case types.StepSettings:
		return "Loading settings..."
	case types.StepTranscribing:
		return "Transcribing audio to text..."
	case types.StepSummarizing:
		return "Generating note with AI..."
	case types.StepSaving:
		return "Saving note..."
	case types.StepCompleted:
		return "Finishing..."
	default:
		return "Processing..."
	}
}
