package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"voice-notes-go/internal/types"
)

// LoadBatch reads the first sheet of an xlsx import file. Columns are found by
// header heuristics; rows without a file path are skipped.
func LoadBatch(path string) ([]types.BatchEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	ownerIdx, fileIdx, langIdx := -1, -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "owner") || strings.Contains(l, "user"):
			if ownerIdx == -1 {
				ownerIdx = i
			}
		case strings.Contains(l, "file") || strings.Contains(l, "path") || strings.Contains(l, "audio"):
			if fileIdx == -1 {
				fileIdx = i
			}
		case strings.Contains(l, "lang"):
			if langIdx == -1 {
				langIdx = i
			}
		}
	}
	if fileIdx == -1 {
		return nil, fmt.Errorf("no file column in header %v", rows[0])
	}

	var out []types.BatchEntry
	for i, r := range rows {
		if i == 0 {
			continue
		}
		entry := types.BatchEntry{
			Row:      i + 1,
			OwnerID:  cell(r, ownerIdx),
			FilePath: cell(r, fileIdx),
			Language: cell(r, langIdx),
		}
		if entry.FilePath == "" {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
