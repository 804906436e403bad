package httptransport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"voice-notes-go/internal/actionable"
	"voice-notes-go/internal/aggregator"
	"voice-notes-go/internal/dataset"
	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/pipeline"
	"voice-notes-go/internal/processor"
	"voice-notes-go/internal/store"
	"voice-notes-go/internal/types"
)

const ownerHeader = "X-Owner-ID"

// multipart parts beyond this stay on disk
const maxMemory = 32 << 20

type Uploader interface {
	Accept(ctx context.Context, up processor.Upload) (processor.Result, error)
}

type JobQueue interface {
	QueryProgress(key types.JobKey) types.Progress
	Len() int
	Snapshot() []types.JobSnapshot
}

type NoteReader interface {
	GetNote(ctx context.Context, ownerID, noteID string) (types.Note, error)
}

type Handler struct {
	uploads Uploader
	queue   JobQueue
	notes   NoteReader
	log     *logger.Logger
}

func NewHandler(uploads Uploader, queue JobQueue, notes NoteReader, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.New()
	}
	return &Handler{uploads: uploads, queue: queue, notes: notes, log: log.With("component", "http")}
}

type createNoteResp struct {
	NoteID   string         `json:"note_id"`
	Status   string         `json:"status"`
	Progress types.Progress `json:"progress"`
}

type queueResp struct {
	Length int                 `json:"length"`
	Jobs   []types.JobSnapshot `json:"jobs"`
}

type statsResp struct {
	Length   int                 `json:"length"`
	Stats    aggregator.Stats    `json:"stats"`
	Advisory actionable.Advisory `json:"advisory"`
}

func owner(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ownerHeader))
}

// CreateNote takes a multipart upload with a "file" part and an optional
// "language" field, and answers 202 once the job is queued.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if ownerID == "" {
		writeErr(w, http.StatusUnauthorized, "missing "+ownerHeader)
		return
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	res, err := h.uploads.Accept(r.Context(), processor.Upload{
		OwnerID:  ownerID,
		Filename: hdr.Filename,
		Language: r.FormValue("language"),
		Body:     file,
	})
	if err != nil {
		code := uploadStatus(err)
		if code >= http.StatusInternalServerError {
			h.log.WithRequest(r).WithError(err).Error("upload failed")
			writeErr(w, code, "upload failed")
			return
		}
		writeErr(w, code, err.Error())
		return
	}

	key := res.Descriptor.Key()
	writeJSON(w, http.StatusAccepted, createNoteResp{
		NoteID:   key.NoteID,
		Status:   string(res.Note.Status),
		Progress: h.queue.QueryProgress(key),
	})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, processor.ErrInvalidUpload), errors.Is(err, pipeline.ErrInvalidDescriptor):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrUnsupportedAudio):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, processor.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrDuplicateJob):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if ownerID == "" {
		writeErr(w, http.StatusUnauthorized, "missing "+ownerHeader)
		return
	}
	note, err := h.notes.GetNote(r.Context(), ownerID, chi.URLParam(r, "noteID"))
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		h.log.WithRequest(r).WithError(err).Error("get note failed")
		writeErr(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetProgress answers 404 with the "Job not found" progress body for unknown jobs.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ownerID := owner(r)
	if ownerID == "" {
		writeErr(w, http.StatusUnauthorized, "missing "+ownerHeader)
		return
	}
	p := h.queue.QueryProgress(types.JobKey{OwnerID: ownerID, NoteID: chi.URLParam(r, "noteID")})
	if !p.Found {
		writeJSON(w, http.StatusNotFound, p)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueResp{Length: h.queue.Len(), Jobs: h.queue.Snapshot()})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	st := aggregator.Aggregate(h.queue.Snapshot())
	writeJSON(w, http.StatusOK, statsResp{
		Length:   h.queue.Len(),
		Stats:    st,
		Advisory: actionable.Generate(st),
	})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := dataset.WriteHistory(&buf, h.queue.Snapshot()); err != nil {
		h.log.WithRequest(r).WithError(err).Error("report failed")
		writeErr(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
