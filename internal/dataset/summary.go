package dataset

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"voice-notes-go/internal/actionable"
	"voice-notes-go/internal/aggregator"
	"voice-notes-go/internal/types"
)

const (
	jobsSheet    = "Jobs"
	summarySheet = "Summary"
)

var jobColumns = []string{
	"Owner", "Note", "Language", "Status", "Step", "Progress",
	"STT retries", "LLM retries", "Pipeline retries", "Error",
	"Submitted", "Started", "Finished", "Duration (s)",
}

// WriteHistory writes a workbook with one row per job and a summary sheet.
func WriteHistory(w io.Writer, snaps []types.JobSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(jobsSheet, "A1", &jobColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	sorted := make([]types.JobSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})

	for i, s := range sorted {
		row := []interface{}{
			s.OwnerID, s.NoteID, s.Language, string(s.Status), s.Step.String(), s.Progress,
			s.STTRetries, s.LLMRetries, s.FullRetries, s.Error,
			stamp(s.SubmittedAt), stamp(s.StartedAt), stamp(s.FinishedAt), duration(s),
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(jobsSheet, axis, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	st := aggregator.Aggregate(snaps)
	adv := actionable.Generate(st)
	summary := [][]interface{}{
		{"Total jobs", st.Total},
		{"Completed", st.ByStatus[types.StatusCompleted]},
		{"Failed", st.ByStatus[types.StatusError]},
		{"Queued", st.ByStatus[types.StatusQueued]},
		{"Processing", st.ByStatus[types.StatusProcessing]},
		{"Error rate", st.ErrorRate},
		{"STT retry rate", st.STTRetryRate},
		{"LLM retry rate", st.LLMRetryRate},
		{"Pipeline retry rate", st.PipelineRetryRate},
		{"Mean duration (s)", st.MeanDurationSeconds},
		{"Insight", adv.Insight},
		{"Action", adv.Action},
	}
	for i, row := range summary {
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, axis, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func duration(s types.JobSnapshot) float64 {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt).Seconds()
}
