// Package processor accepts uploaded recordings and hands them to the pipeline.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

var (
	ErrInvalidUpload    = errors.New("invalid upload")
	ErrUnsupportedAudio = errors.New("unsupported or corrupted audio file")
	ErrTooLarge         = errors.New("upload exceeds size limit")
)

const (
	audioFileName = "audio.mp3"
	noteFileName  = "note.md"
)

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

var allowedExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".ogg": true, ".oga": true, ".opus": true,
	".webm": true, ".flac": true, ".aac": true, ".mp4": true, ".amr": true, ".3gp": true,
}

type MetadataExtractor interface {
	Extract(ctx context.Context, path string) (types.AudioMetadata, error)
}

type NotesWriter interface {
	InsertNote(ctx context.Context, note types.Note) error
	UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error
}

type Submitter interface {
	Submit(desc types.JobDescriptor) error
}

type Upload struct {
	OwnerID  string
	Filename string
	Language string
	Body     io.Reader
}

type Result struct {
	Note       types.Note          `json:"note"`
	Descriptor types.JobDescriptor `json:"job"`
}

// Intake stores an upload under DataDir/<owner>/<note>/, records a processing
// note and queues the job.
type Intake struct {
	dataDir  string
	maxBytes int64
	probe    MetadataExtractor
	notes    NotesWriter
	queue    Submitter
	log      *logger.Logger
	newID    func() string
	now      func() time.Time
}

func NewIntake(dataDir string, maxBytes int64, probe MetadataExtractor, notes NotesWriter, queue Submitter, log *logger.Logger) *Intake {
	if log == nil {
		log = logger.New()
	}
	return &Intake{
		dataDir:  dataDir,
		maxBytes: maxBytes,
		probe:    probe,
		notes:    notes,
		queue:    queue,
		log:      log.With("component", "intake"),
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (in *Intake) Accept(ctx context.Context, up Upload) (Result, error) {
	if !ownerPattern.MatchString(up.OwnerID) || strings.Trim(up.OwnerID, ".") == "" {
		return Result{}, fmt.Errorf("%w: owner id must match %s", ErrInvalidUpload, ownerPattern)
	}
	if up.Body == nil {
		return Result{}, fmt.Errorf("%w: empty body", ErrInvalidUpload)
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if !allowedExtensions[ext] {
		return Result{}, fmt.Errorf("%w: extension %q", ErrUnsupportedAudio, ext)
	}

	noteID := in.newID()
	dir := filepath.Join(in.dataDir, up.OwnerID, noteID)
	log := in.log.WithJob(up.OwnerID, noteID)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create note dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("failed to remove rejected upload")
		}
	}

	// the transcoded file is always audio.mp3, so keep the source under another name
	sourcePath := filepath.Join(dir, "source"+ext)
	if err := in.save(sourcePath, up.Body); err != nil {
		cleanup()
		return Result{}, err
	}

	meta, err := in.probe.Extract(ctx, sourcePath)
	if err != nil {
		cleanup()
		log.WithError(err).Info("rejected upload")
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
	}

	note := types.Note{
		OwnerID:   up.OwnerID,
		ID:        noteID,
		Status:    types.NoteProcessing,
		AudioPath: filepath.Join(dir, audioFileName),
		NotePath:  filepath.Join(dir, noteFileName),
		Metadata:  meta,
		CreatedAt: in.now(),
		UpdatedAt: in.now(),
	}
	if err := in.notes.InsertNote(ctx, note); err != nil {
		cleanup()
		return Result{}, fmt.Errorf("insert note: %w", err)
	}

	desc := types.JobDescriptor{
		OwnerID:    up.OwnerID,
		NoteID:     noteID,
		SourcePath: sourcePath,
		AudioPath:  note.AudioPath,
		NotePath:   note.NotePath,
		Language:   strings.TrimSpace(up.Language),
	}
	if err := in.queue.Submit(desc); err != nil {
		if uerr := in.notes.UpdateNote(ctx, up.OwnerID, noteID, types.FailedNote(err.Error())); uerr != nil {
			log.WithError(uerr).Error("failed to mark note after submit error")
		}
		return Result{}, fmt.Errorf("submit job: %w", err)
	}

	log.WithField("duration_s", meta.DurationSeconds).WithField("format", meta.Format).Info("upload accepted")
	return Result{Note: note, Descriptor: desc}, nil
}

func (in *Intake) save(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	defer f.Close()

	src := body
	if in.maxBytes > 0 {
		src = io.LimitReader(body, in.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	if in.maxBytes > 0 && n > in.maxBytes {
		return ErrTooLarge
	}
	if n == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	return f.Sync()
}
