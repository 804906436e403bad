package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"voice-notes-go/internal/store"
	"voice-notes-go/internal/types"
)

var _ store.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNoteLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	recorded := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	note := types.Note{
		OwnerID:   "u1",
		ID:        "n1",
		AudioPath: "/data/u1/n1/audio.mp3",
		NotePath:  "/data/u1/n1/note.md",
		Metadata:  types.AudioMetadata{DurationSeconds: 12.5, Format: "m4a", RecordedAt: recorded},
	}
	if err := s.InsertNote(ctx, note); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertNote(ctx, note); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetNote(ctx, "u1", "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.NoteProcessing || got.Metadata.DurationSeconds != 12.5 || !got.Metadata.RecordedAt.Equal(recorded) {
		t.Fatalf("note = %+v", got)
	}

	summary := types.Summary{Title: "T", Description: "D", Content: "# C", Category: "Biology"}
	for i := 0; i < 2; i++ {
		if err := s.UpdateNote(ctx, "u1", "n1", types.CompletedNote(summary)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	got, _ = s.GetNote(ctx, "u1", "n1")
	if got.Status != types.NoteCompleted || got.Title != "T" || got.Content != "# C" || got.Category != "Biology" || got.Error != "" {
		t.Fatalf("completed note = %+v", got)
	}

	if err := s.UpdateNote(ctx, "u1", "n1", types.FailedNote("boom")); err != nil {
		t.Fatalf("fail update: %v", err)
	}
	got, _ = s.GetNote(ctx, "u1", "n1")
	if got.Status != types.NoteError || got.Error != "boom" || got.Title != "T" {
		t.Fatalf("failed note = %+v", got)
	}
}

func TestMissingNote(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.GetNote(ctx, "u", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if err := s.UpdateNote(ctx, "u", "x", types.FailedNote("x")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, label := range []string{"history", "Biology"} {
		if err := s.AddCategory(ctx, "u1", label); err != nil {
			t.Fatalf("add %s: %v", label, err)
		}
	}
	if err := s.AddCategory(ctx, "u1", "BIOLOGY"); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected case-insensitive duplicate, got %v", err)
	}
	if err := s.AddCategory(ctx, "u2", "Biology"); err != nil {
		t.Fatalf("other owner: %v", err)
	}

	labels, err := s.ListCategories(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(labels) != 2 || labels[0] != "Biology" || labels[1] != "history" {
		t.Fatalf("labels = %v", labels)
	}
	if labels, _ := s.ListCategories(ctx, "nobody"); len(labels) != 0 {
		t.Fatalf("labels = %v", labels)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.LoadSettings(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	want := types.Settings{
		STT: types.STTSettings{BaseURL: "http://stt", Model: "whisper-1", ModelVariants: map[string]string{"de": "whisper-de"}},
		LLM: types.LLMSettings{BaseURL: "http://llm", Model: "gpt", SummaryModel: "gpt-mini"},
	}
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	want.LLM.Model = "gpt-2"
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LLM.Model != "gpt-2" || got.STT.ModelVariants["de"] != "whisper-de" {
		t.Fatalf("settings = %+v", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
