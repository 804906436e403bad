package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

var errBoom = errors.New("boom")

type fakeTranscoder struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    error
	running int
	overlap bool
	hold    chan struct{} // when set, each call waits for a value
	onCall  func()
}

func (f *fakeTranscoder) Transcode(ctx context.Context, src, dst string, onProgress func(float64)) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[src]++
	f.running++
	if f.running > 1 {
		f.overlap = true
	}
	hold, fail, onCall := f.hold, f.fail, f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall()
	}

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return nil
}

func (f *fakeTranscoder) Calls(src string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[src]
}

// fakeTranscriber fails the first failures calls.
type fakeTranscriber struct {
	mu       sync.Mutex
	failures int
	calls    int
	text     string
	onCall   func()
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, settings types.STTSettings, language string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.failures < 0 || f.calls <= f.failures {
		return "", errBoom
	}
	if f.text == "" {
		return "transcript of " + audioPath, nil
	}
	return f.text, nil
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSummarizer struct {
	mu         sync.Mutex
	failures   int
	calls      int
	summary    types.Summary
	categories []string
	onCall     func()
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string, settings types.LLMSettings, categories []string) (types.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.categories = categories
	if f.onCall != nil {
		f.onCall()
	}
	if f.failures < 0 || f.calls <= f.failures {
		return types.Summary{}, errBoom
	}
	if f.summary.Title == "" {
		return types.Summary{Title: "Title", Description: "Desc", Content: "# Note\n" + transcript}, nil
	}
	return f.summary, nil
}

type fakeSettings struct {
	mu       sync.Mutex
	failures int
	calls    int
	settings types.Settings
	onCall   func()
}

func (f *fakeSettings) LoadSettings(ctx context.Context) (types.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if f.failures < 0 || f.calls <= f.failures {
		return types.Settings{}, errBoom
	}
	return f.settings, nil
}

type noteWrite struct {
	ownerID, noteID string
	update          types.NoteUpdate
}

type fakeNotes struct {
	mu         sync.Mutex
	writes     []noteWrite
	failStatus types.NoteStatus
	failures   int
	onCall     func(types.NoteUpdate)
}

func (f *fakeNotes) UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(update)
	}
	if f.failures != 0 && update.Status == f.failStatus {
		if f.failures > 0 {
			f.failures--
		}
		return errBoom
	}
	f.writes = append(f.writes, noteWrite{ownerID, noteID, update})
	return nil
}

func (f *fakeNotes) Last(noteID string) (types.NoteUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].noteID == noteID {
			return f.writes[i].update, true
		}
	}
	return types.NoteUpdate{}, false
}

type fakeCategories struct {
	mu       sync.Mutex
	failures int
	calls    int
	labels   []string
}

func (f *fakeCategories) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return nil, errBoom
	}
	return f.labels, nil
}

type memStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	existsErr error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (m *memStorage) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.files[path]
	return ok, nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *memStorage) WriteFile(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

type harness struct {
	queue       *Queue
	transcoder  *fakeTranscoder
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	settings    *fakeSettings
	notes       *fakeNotes
	categories  *fakeCategories
	storage     *memStorage
}

func newHarness(opts Options) *harness {
	h := &harness{
		transcoder:  &fakeTranscoder{},
		transcriber: &fakeTranscriber{},
		summarizer:  &fakeSummarizer{},
		settings: &fakeSettings{settings: types.Settings{
			STT: types.STTSettings{BaseURL: "http://stt", Model: "whisper-1"},
			LLM: types.LLMSettings{BaseURL: "http://llm", Model: "gpt"},
		}},
		notes:      &fakeNotes{},
		categories: &fakeCategories{},
		storage:    newMemStorage(),
	}
	if opts.StepRetryDelay == 0 {
		opts.StepRetryDelay = time.Millisecond
	}
	if opts.PipelineRetryDelay == 0 {
		opts.PipelineRetryDelay = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	h.queue = New(Deps{
		Transcoder:  h.transcoder,
		Transcriber: h.transcriber,
		Summarizer:  h.summarizer,
		Settings:    h.settings,
		Notes:       h.notes,
		Categories:  h.categories,
		Storage:     h.storage,
	}, opts)
	return h
}

// submit stores a source file for noteID and enqueues it.
func (h *harness) submit(t *testing.T, noteID string) types.JobDescriptor {
	t.Helper()
	desc := types.JobDescriptor{
		OwnerID:    "user-1",
		NoteID:     noteID,
		SourcePath: "/data/user-1/" + noteID + "/source.m4a",
		AudioPath:  "/data/user-1/" + noteID + "/audio.mp3",
		NotePath:   "/data/user-1/" + noteID + "/note.md",
	}
	_ = h.storage.WriteFile(context.Background(), desc.SourcePath, []byte("raw audio"))
	if err := h.queue.Submit(desc); err != nil {
		t.Fatalf("submit %s: %v", noteID, err)
	}
	return desc
}

// start runs the worker until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitTerminal(t *testing.T, noteID string) types.JobSnapshot {
	t.Helper()
	var snap types.JobSnapshot
	waitFor(t, noteID+" to finish", func() bool {
		for _, s := range h.queue.Snapshot() {
			if s.NoteID == noteID && s.Status.Terminal() {
				snap = s
				return true
			}
		}
		return false
	})
	return snap
}
