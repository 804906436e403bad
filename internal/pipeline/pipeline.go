// Package pipeline runs uploaded recordings through convert, transcribe,
// summarize and save, one job at a time.
package pipeline

import (
	"context"
	"time"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

// Transcoder converts a source recording to the normalized MP3 at dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, onProgress func(percent float64)) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, settings types.STTSettings, language string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string, settings types.LLMSettings, categories []string) (types.Summary, error)
}

type SettingsSource interface {
	LoadSettings(ctx context.Context) (types.Settings, error)
}

// NotesStore must tolerate repeated updates for the same note.
type NotesStore interface {
	UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error
}

type CategoryStore interface {
	ListCategories(ctx context.Context, ownerID string) ([]string, error)
}

type Storage interface {
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Deps are the collaborators a Queue drives.
type Deps struct {
	Transcoder  Transcoder
	Transcriber Transcriber
	Summarizer  Summarizer
	Settings    SettingsSource
	Notes       NotesStore
	Categories  CategoryStore
	Storage     Storage
}

type Options struct {
	// StepRetryDelay is multiplied by the retry number before a transcription or summarization retry.
	StepRetryDelay time.Duration
	// PipelineRetryDelay is the fixed wait before the single full restart.
	PipelineRetryDelay time.Duration
	// HistoryLimit caps how many finished jobs stay queryable.
	HistoryLimit int
	Logger       *logger.Logger
}

const (
	defaultStepRetryDelay     = 2 * time.Second
	defaultPipelineRetryDelay = 3 * time.Second
	defaultHistoryLimit       = 100

	maxStepRetries     = 3
	maxPipelineRetries = 1
)

func (o Options) withDefaults() Options {
	if o.StepRetryDelay <= 0 {
		o.StepRetryDelay = defaultStepRetryDelay
	}
	if o.PipelineRetryDelay <= 0 {
		o.PipelineRetryDelay = defaultPipelineRetryDelay
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.Logger == nil {
		o.Logger = logger.New()
	}
	return o
}
