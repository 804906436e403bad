package pipeline

import (
	"errors"
	"fmt"

	"voice-notes-go/internal/types"
)

var (
	ErrDuplicateJob       = errors.New("job already queued or processing")
	ErrSettingsIncomplete = errors.New("speech-to-text or llm settings incomplete")
	ErrInvalidDescriptor  = errors.New("invalid job descriptor")
)

const unsupportedAudioMessage = "unsupported or corrupted audio file"

// StepError is a failure attributed to one pipeline step. Message is what the
// user sees; Err keeps the cause for logs and errors.Is.
type StepError struct {
	Step     types.Step
	Message  string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func conversionError(err error) *StepError {
	return &StepError{Step: types.StepConverting, Message: unsupportedAudioMessage, Attempts: 1, Err: err}
}

func exhaustedError(step types.Step, attempts int, err error) *StepError {
	return &StepError{
		Step:     step,
		Message:  fmt.Sprintf("%s failed after %d attempts: %v", step, attempts, err),
		Attempts: attempts,
		Err:      err,
	}
}

func infraError(step types.Step, err error) *StepError {
	return &StepError{
		Step:     step,
		Message:  fmt.Sprintf("%s failed: %v", step, err),
		Attempts: 1,
		Err:      err,
	}
}
