package types

import "time"

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further work happens for the status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Step marks where a job resumes inside the pipeline.
type Step int

const (
	StepQueued Step = iota
	StepConverting
	StepSettings
	StepTranscribing
	StepSummarizing
	StepSaving
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepQueued:
		return "queued"
	case StepConverting:
		return "converting"
	case StepSettings:
		return "settings"
	case StepTranscribing:
		return "transcribing"
	case StepSummarizing:
		return "summarizing"
	case StepSaving:
		return "saving"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type JobKey struct {
	OwnerID string `json:"owner_id"`
	NoteID  string `json:"note_id"`
}

func (k JobKey) String() string {
	return k.OwnerID + "/" + k.NoteID
}

// JobDescriptor is what an uploader hands to the queue.
type JobDescriptor struct {
	OwnerID    string `json:"owner_id"`
	NoteID     string `json:"note_id"`
	SourcePath string `json:"source_path"`
	AudioPath  string `json:"audio_path"`
	NotePath   string `json:"note_path"`
	Language   string `json:"language,omitempty"`
}

func (d JobDescriptor) Key() JobKey {
	return JobKey{OwnerID: d.OwnerID, NoteID: d.NoteID}
}

// JobSnapshot is a copy of a job's state at one instant.
type JobSnapshot struct {
	JobDescriptor
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Step        Step      `json:"current_step"`
	STTRetries  int       `json:"stt_retries"`
	LLMRetries  int       `json:"llm_retries"`
	FullRetries int       `json:"full_retries"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Progress is what polling clients see.
type Progress struct {
	Found           bool      `json:"found"`
	Status          JobStatus `json:"status,omitempty"`
	QueuePosition   float64   `json:"queue_position"`
	ProcessProgress float64   `json:"process_progress"`
	StatusText      string    `json:"status_text"`
}

type STTSettings struct {
	BaseURL       string            `json:"base_url"`
	APIKey        string            `json:"api_key"`
	Model         string            `json:"model"`
	ModelVariants map[string]string `json:"model_variants,omitempty"`
	Task          string            `json:"task,omitempty"`
	Temperature   float64           `json:"temperature"`
}

type LLMSettings struct {
	BaseURL      string `json:"base_url"`
	APIKey       string `json:"api_key"`
	Model        string `json:"model"`
	SummaryModel string `json:"summary_model,omitempty"`
}

// Settings is the per-attempt configuration snapshot.
type Settings struct {
	STT STTSettings `json:"stt"`
	LLM LLMSettings `json:"llm"`
}

// Summary is the structured note produced from a transcript.
type Summary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Category    string `json:"category,omitempty"`
}

type NoteStatus string

const (
	NoteProcessing NoteStatus = "processing"
	NoteCompleted  NoteStatus = "completed"
	NoteError      NoteStatus = "error"
)

// NoteUpdate carries the fields the pipeline writes back to a note.
type NoteUpdate struct {
	Status      NoteStatus
	Title       string
	Description string
	Content     string
	Category    *string
	Error       string
}

func CompletedNote(s Summary) NoteUpdate {
	u := NoteUpdate{
		Status:      NoteCompleted,
		Title:       s.Title,
		Description: s.Description,
		Content:     s.Content,
	}
	if s.Category != "" {
		category := s.Category
		u.Category = &category
	}
	return u
}

func FailedNote(msg string) NoteUpdate {
	return NoteUpdate{Status: NoteError, Error: msg}
}

type Note struct {
	OwnerID     string        `json:"owner_id"`
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Category    string        `json:"category,omitempty"`
	Status      NoteStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
	AudioPath   string        `json:"audio_path"`
	NotePath    string        `json:"note_path"`
	Metadata    AudioMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type AudioMetadata struct {
	DurationSeconds float64   `json:"duration_seconds"`
	Format          string    `json:"format"`
	Codec           string    `json:"codec,omitempty"`
	SampleRate      int       `json:"sample_rate,omitempty"`
	Channels        int       `json:"channels,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// BatchEntry is one row of a bulk import sheet.
type BatchEntry struct {
	Row      int    `json:"row"`
	OwnerID  string `json:"owner_id"`
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
}
