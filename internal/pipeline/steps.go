package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice-notes-go/internal/metrics"
	"voice-notes-go/internal/types"
)

// attempt holds what earlier steps produced during one pass. A full restart
// starts from a fresh attempt at conversion.
type attempt struct {
	settings   types.Settings
	transcript string
	summary    types.Summary
}

// runAttempt resumes at the job's current step. Errors wrapped in
// backoff.Permanent end the job; any other error asks for a full restart.
func (q *Queue) runAttempt(ctx context.Context, j *job) error {
	var a attempt
	for {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		step := q.read(j).Step

		var err error
		switch step {
		case types.StepQueued, types.StepConverting:
			err = q.convert(ctx, j)
		case types.StepSettings:
			a.settings, err = q.loadSettings(ctx, j)
		case types.StepTranscribing:
			a.transcript, err = q.transcribe(ctx, j, a.settings)
		case types.StepSummarizing:
			a.summary, err = q.summarize(ctx, j, a.settings, a.transcript)
		case types.StepSaving:
			err = q.save(ctx, j, a)
		case types.StepCompleted:
			return nil
		default:
			return backoff.Permanent(fmt.Errorf("unknown pipeline step %d", step))
		}
		if err != nil {
			return err
		}

		next := nextStep(step)
		q.update(j, func(j *job) { j.step = next })
	}
}

func nextStep(s types.Step) types.Step {
	switch s {
	case types.StepQueued, types.StepConverting:
		return types.StepSettings
	case types.StepSettings:
		return types.StepTranscribing
	case types.StepTranscribing:
		return types.StepSummarizing
	case types.StepSummarizing:
		return types.StepSaving
	default:
		return types.StepCompleted
	}
}

func (q *Queue) convert(ctx context.Context, j *job) error {
	desc := j.desc
	q.setProgress(j, bandConverting.start)

	exists, err := q.deps.Storage.Exists(ctx, desc.SourcePath)
	if err != nil {
		return backoff.Permanent(&StepError{
			Step:     types.StepConverting,
			Message:  "could not check source audio file",
			Attempts: 1,
			Err:      err,
		})
	}
	if !exists {
		return backoff.Permanent(&StepError{
			Step:     types.StepConverting,
			Message:  "source audio file is missing",
			Attempts: 1,
			Err:      fmt.Errorf("%s not found", desc.SourcePath),
		})
	}

	start := time.Now()
	err = q.deps.Transcoder.Transcode(ctx, desc.SourcePath, desc.AudioPath, func(pct float64) {
		q.setProgress(j, bandConverting.at(pct))
	})
	metrics.StepDurationSeconds.WithLabelValues(types.StepConverting.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		return backoff.Permanent(conversionError(err))
	}
	q.setProgress(j, bandConverting.end)
	return nil
}

func (q *Queue) loadSettings(ctx context.Context, j *job) (types.Settings, error) {
	q.setProgress(j, bandSettings.start)
	settings, err := q.deps.Settings.LoadSettings(ctx)
	if err != nil {
		return types.Settings{}, infraError(types.StepSettings, err)
	}
	if !settingsComplete(settings) {
		return types.Settings{}, infraError(types.StepSettings, ErrSettingsIncomplete)
	}
	q.setProgress(j, bandSettings.end)
	return settings, nil
}

func settingsComplete(s types.Settings) bool {
	sttModel := strings.TrimSpace(s.STT.Model) != "" || len(s.STT.ModelVariants) > 0
	llmModel := strings.TrimSpace(s.LLM.Model) != "" || strings.TrimSpace(s.LLM.SummaryModel) != ""
	return strings.TrimSpace(s.STT.BaseURL) != "" && sttModel &&
		strings.TrimSpace(s.LLM.BaseURL) != "" && llmModel
}

func (q *Queue) transcribe(ctx context.Context, j *job, settings types.Settings) (string, error) {
	q.setProgress(j, bandTranscribing.start)
	var transcript string
	err := q.withStepRetries(ctx, j, types.StepTranscribing, func() error {
		text, err := q.deps.Transcriber.Transcribe(ctx, j.desc.AudioPath, settings.STT, j.desc.Language)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("empty transcript")
		}
		transcript = text
		return nil
	})
	if err != nil {
		return "", err
	}
	q.setProgress(j, bandTranscribing.end)
	return transcript, nil
}

func (q *Queue) summarize(ctx context.Context, j *job, settings types.Settings, transcript string) (types.Summary, error) {
	if transcript == "" {
		return types.Summary{}, infraError(types.StepSummarizing, errors.New("no transcript available"))
	}
	categories, err := q.deps.Categories.ListCategories(ctx, j.desc.OwnerID)
	if err != nil {
		return types.Summary{}, infraError(types.StepSummarizing, fmt.Errorf("list categories: %w", err))
	}

	var summary types.Summary
	err = q.withStepRetries(ctx, j, types.StepSummarizing, func() error {
		s, err := q.deps.Summarizer.Summarize(ctx, transcript, settings.LLM, categories)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		return types.Summary{}, err
	}
	q.setProgress(j, bandSummarizing.end)
	return summary, nil
}

// save writes the note and transcript, marks the note completed and only then
// removes the uploaded source.
func (q *Queue) save(ctx context.Context, j *job, a attempt) error {
	desc := j.desc
	log := q.log.WithJob(desc.OwnerID, desc.NoteID)
	q.setProgress(j, bandSaving.start)

	if err := q.deps.Storage.WriteFile(ctx, desc.NotePath, []byte(a.summary.Content)); err != nil {
		return infraError(types.StepSaving, fmt.Errorf("write note: %w", err))
	}
	if err := q.deps.Storage.WriteFile(ctx, TranscriptPath(desc.NotePath), []byte(a.transcript)); err != nil {
		return infraError(types.StepSaving, fmt.Errorf("write transcript: %w", err))
	}
	q.setProgress(j, bandSaving.at(50))

	if err := q.deps.Notes.UpdateNote(ctx, desc.OwnerID, desc.NoteID, types.CompletedNote(a.summary)); err != nil {
		return infraError(types.StepSaving, fmt.Errorf("update note: %w", err))
	}
	q.setProgress(j, bandSaving.at(80))

	if filepath.Clean(desc.SourcePath) == filepath.Clean(desc.AudioPath) {
		return nil
	}
	exists, err := q.deps.Storage.Exists(ctx, desc.SourcePath)
	if err != nil {
		log.WithError(err).Warn("could not check source before cleanup")
		return nil
	}
	if exists {
		if err := q.deps.Storage.Delete(ctx, desc.SourcePath); err != nil {
			log.WithError(err).Warn("source cleanup failed")
		}
	}
	return nil
}

// TranscriptPath is the sibling file holding the raw transcript for a note.
func TranscriptPath(notePath string) string {
	return strings.TrimSuffix(notePath, filepath.Ext(notePath)) + ".transcript.txt"
}

// withStepRetries retries op up to maxStepRetries times with a growing delay.
// Exhaustion is permanent for the job.
func (q *Queue) withStepRetries(ctx context.Context, j *job, step types.Step, op func() error) error {
	scope := "stt"
	if step == types.StepSummarizing {
		scope = "llm"
	}
	log := q.log.WithJob(j.desc.OwnerID, j.desc.NoteID).WithField("step", step.String())

	attempts := 0
	var lastErr error
	policy := backoff.WithContext(stepRetryPolicy(q.opts.StepRetryDelay), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++
		start := time.Now()
		lastErr = op()
		metrics.StepDurationSeconds.WithLabelValues(step.String()).Observe(time.Since(start).Seconds())
		return lastErr
	}, policy, func(err error, wait time.Duration) {
		q.update(j, func(j *job) {
			if step == types.StepSummarizing {
				j.llmRetries++
			} else {
				j.sttRetries++
			}
		})
		metrics.RetriesTotal.WithLabelValues(scope).Inc()
		log.WithError(err).WithField("wait", wait.String()).Warn("step failed, retrying")
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return backoff.Permanent(ctxErr)
	}
	return backoff.Permanent(exhaustedError(step, attempts, lastErr))
}
