package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"voice-notes-go/internal/types"
)

type fakeAPI struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/notes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			file, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			f.mu.Lock()
			f.uploads = append(f.uploads, r.Header.Get("X-Owner-ID")+":"+hdr.Filename+":"+r.FormValue("language")+":"+string(data))
			f.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"note_id":  "note-" + hdr.Filename,
				"progress": types.Progress{Found: true, StatusText: "Queued (position 1 of 1)"},
			})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/progress") {
			if r.Header.Get("X-Owner-ID") != "alice" {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(types.Progress{StatusText: "Job not found"})
				return
			}
			_ = json.NewEncoder(w).Encode(types.Progress{Found: true, Status: types.StatusCompleted, StatusText: "Completed"})
			return
		}
		http.NotFound(w, r)
	})
	return mux
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBatchUploadsEveryRow(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("AAA"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.mp3"), []byte("BBB"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"owner", "file", "language"},
		{"alice", "a.wav", "en"},
		{"", "b.mp3", ""},
	}
	for i, row := range rows {
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow("Sheet1", axis, &row)
	}
	sheet := filepath.Join(dir, "batch.xlsx")
	if err := f.SaveAs(sheet); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	out, err := runCommand(t, "--server", srv.URL, "batch", "--owner", "bob", sheet)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	want := []string{"alice:a.wav:en:AAA", "bob:b.mp3::BBB"}
	if len(api.uploads) != 2 || api.uploads[0] != want[0] || api.uploads[1] != want[1] {
		t.Fatalf("uploads = %v", api.uploads)
	}
	if !strings.Contains(out, "note-a.wav") || !strings.Contains(out, "Queued (position 1 of 1)") {
		t.Fatalf("output = %s", out)
	}
}

func TestBatchReportsMissingOwner(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	dir := t.TempDir()
	f := excelize.NewFile()
	row := []interface{}{"file"}
	_ = f.SetSheetRow("Sheet1", "A1", &row)
	row = []interface{}{"a.wav"}
	_ = f.SetSheetRow("Sheet1", "A2", &row)
	sheet := filepath.Join(dir, "batch.xlsx")
	if err := f.SaveAs(sheet); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	out, err := runCommand(t, "--server", srv.URL, "batch", sheet)
	if err == nil || !strings.Contains(out, "no owner") {
		t.Fatalf("err = %v, out = %s", err, out)
	}
}

func TestProgressCommand(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	out, err := runCommand(t, "--server", srv.URL, "progress", "alice", "n1")
	if err != nil || strings.TrimSpace(out) != "Completed" {
		t.Fatalf("out = %q, err = %v", out, err)
	}
	out, err = runCommand(t, "--server", srv.URL, "progress", "bob", "n1", "--watch")
	if err != nil || strings.TrimSpace(out) != "Job not found" {
		t.Fatalf("out = %q, err = %v", out, err)
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]column{{Title: "A", Right: true}, {Title: "B", Wrap: 5}}, [][]string{{"1"}, {"2", "xx yy zz"}}, "rows")
	if !strings.Contains(got, "A") || !strings.Contains(got, "rows: 2") {
		t.Fatalf("table = %s", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.Contains(line, "xx yy zz") {
			t.Fatalf("long cell was not wrapped:\n%s", got)
		}
	}
	if renderTable(nil, nil, "") != "" {
		t.Fatal("empty headers should render nothing")
	}
}
