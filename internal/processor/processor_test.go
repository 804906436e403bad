package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

type fakeProbe struct {
	err error
}

func (f fakeProbe) Extract(ctx context.Context, path string) (types.AudioMetadata, error) {
	if f.err != nil {
		return types.AudioMetadata{}, f.err
	}
	return types.AudioMetadata{DurationSeconds: 3, Format: "wav"}, nil
}

type fakeNotes struct {
	inserted []types.Note
	updates  []types.NoteUpdate
}

func (f *fakeNotes) InsertNote(ctx context.Context, note types.Note) error {
	f.inserted = append(f.inserted, note)
	return nil
}

func (f *fakeNotes) UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

type fakeQueue struct {
	err  error
	jobs []types.JobDescriptor
}

func (f *fakeQueue) Submit(desc types.JobDescriptor) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, desc)
	return nil
}

func newTestIntake(t *testing.T, probe MetadataExtractor, q *fakeQueue) (*Intake, *fakeNotes, string) {
	t.Helper()
	dir := t.TempDir()
	notes := &fakeNotes{}
	in := NewIntake(dir, 1024, probe, notes, q, logger.Discard())
	in.newID = func() string { return "note-1" }
	return in, notes, dir
}

func TestAcceptStoresAndSubmits(t *testing.T) {
	q := &fakeQueue{}
	in, notes, dir := newTestIntake(t, fakeProbe{}, q)

	res, err := in.Accept(context.Background(), Upload{OwnerID: "user-1", Filename: "Lecture.WAV", Language: " de ", Body: strings.NewReader("RIFF....")})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	wantDir := filepath.Join(dir, "user-1", "note-1")
	if res.Descriptor.SourcePath != filepath.Join(wantDir, "source.wav") {
		t.Fatalf("source = %s", res.Descriptor.SourcePath)
	}
	if res.Descriptor.AudioPath != filepath.Join(wantDir, "audio.mp3") || res.Descriptor.NotePath != filepath.Join(wantDir, "note.md") {
		t.Fatalf("descriptor = %+v", res.Descriptor)
	}
	if res.Descriptor.Language != "de" {
		t.Fatalf("language = %q", res.Descriptor.Language)
	}
	data, err := os.ReadFile(res.Descriptor.SourcePath)
	if err != nil || string(data) != "RIFF...." {
		t.Fatalf("source content = %q, %v", data, err)
	}
	if len(notes.inserted) != 1 || notes.inserted[0].Status != types.NoteProcessing || notes.inserted[0].Metadata.Format != "wav" {
		t.Fatalf("inserted = %+v", notes.inserted)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %+v", q.jobs)
	}
}

func TestAcceptRejectsBadInput(t *testing.T) {
	q := &fakeQueue{}
	in, _, _ := newTestIntake(t, fakeProbe{}, q)
	ctx := context.Background()

	if _, err := in.Accept(ctx, Upload{OwnerID: "../etc", Filename: "a.wav", Body: strings.NewReader("x")}); !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("owner: %v", err)
	}
	if _, err := in.Accept(ctx, Upload{OwnerID: "..", Filename: "a.wav", Body: strings.NewReader("x")}); !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("dot owner: %v", err)
	}
	if _, err := in.Accept(ctx, Upload{OwnerID: "u", Filename: "a.exe", Body: strings.NewReader("x")}); !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("extension: %v", err)
	}
	if _, err := in.Accept(ctx, Upload{OwnerID: "u", Filename: "a.wav", Body: strings.NewReader(strings.Repeat("x", 2048))}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("size: %v", err)
	}
	if len(q.jobs) != 0 {
		t.Fatal("nothing should be queued")
	}
}

func TestAcceptRemovesUnreadableAudio(t *testing.T) {
	q := &fakeQueue{}
	in, notes, dir := newTestIntake(t, fakeProbe{err: errors.New("no audio stream")}, q)

	_, err := in.Accept(context.Background(), Upload{OwnerID: "u", Filename: "a.mp3", Body: strings.NewReader("garbage")})
	if !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "u", "note-1")); !os.IsNotExist(statErr) {
		t.Fatalf("upload dir should be removed, stat err = %v", statErr)
	}
	if len(notes.inserted) != 0 {
		t.Fatal("no note should be recorded")
	}
}

func TestAcceptMarksNoteWhenSubmitFails(t *testing.T) {
	q := &fakeQueue{err: errors.New("duplicate")}
	in, notes, _ := newTestIntake(t, fakeProbe{}, q)

	if _, err := in.Accept(context.Background(), Upload{OwnerID: "u", Filename: "a.ogg", Body: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error")
	}
	if len(notes.updates) != 1 || notes.updates[0].Status != types.NoteError {
		t.Fatalf("updates = %+v", notes.updates)
	}
}
