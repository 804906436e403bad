package dataset

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"voice-notes-go/internal/types"
)

func writeSheet(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", axis, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "batch.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestLoadBatch(t *testing.T) {
	path := writeSheet(t, [][]interface{}{
		{"Language", "User ID", "Audio file"},
		{"en", "alice", "/tmp/a.wav"},
		{"", "bob", ""},
		{"de", " carol ", " /tmp/c.mp3 "},
	})

	entries, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0] != (types.BatchEntry{Row: 2, OwnerID: "alice", FilePath: "/tmp/a.wav", Language: "en"}) {
		t.Fatalf("first = %+v", entries[0])
	}
	if entries[1].Row != 4 || entries[1].OwnerID != "carol" || entries[1].FilePath != "/tmp/c.mp3" {
		t.Fatalf("second = %+v", entries[1])
	}
}

func TestLoadBatchNeedsFileColumn(t *testing.T) {
	path := writeSheet(t, [][]interface{}{{"owner", "lang"}, {"a", "en"}})
	if _, err := LoadBatch(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteHistory(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snaps := []types.JobSnapshot{
		{
			JobDescriptor: types.JobDescriptor{OwnerID: "u", NoteID: "n2"},
			Status:        types.StatusQueued,
			SubmittedAt:   start.Add(time.Minute),
		},
		{
			JobDescriptor: types.JobDescriptor{OwnerID: "u", NoteID: "n1", Language: "en"},
			Status:        types.StatusCompleted,
			Step:          types.StepCompleted,
			Progress:      100,
			SubmittedAt:   start,
			StartedAt:     start,
			FinishedAt:    start.Add(42 * time.Second),
		},
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, snaps); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(jobsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[1][1] != "n1" || rows[2][1] != "n2" {
		t.Fatalf("jobs rows = %v", rows)
	}
	if rows[1][3] != "completed" || rows[1][13] != "42" {
		t.Fatalf("completed row = %v", rows[1])
	}
	total, err := f.GetCellValue(summarySheet, "B1")
	if err != nil || total != "2" {
		t.Fatalf("summary total = %q, %v", total, err)
	}
}
