// Package sqlite is the single-file notes database used for local installs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voice-notes-go/internal/store"
	"voice-notes-go/internal/types"
)

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open connects to the database at path, creating it if needed, and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps busy errors away
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertNote(ctx context.Context, note types.Note) error {
	meta, err := json.Marshal(note.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	now := s.now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.Status == "" {
		note.Status = types.NoteProcessing
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (
            owner_id, id, title, description, content, category, status, error,
            audio_path, note_path, metadata_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (owner_id, id) DO NOTHING`,
		note.OwnerID,
		note.ID,
		note.Title,
		note.Description,
		note.Content,
		nullableString(note.Category),
		string(note.Status),
		nullableString(note.Error),
		note.AudioPath,
		note.NotePath,
		string(meta),
		formatTime(note.CreatedAt),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("note %s/%s: %w", note.OwnerID, note.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetNote(ctx context.Context, ownerID, noteID string) (types.Note, error) {
	var (
		note                 types.Note
		category, errText    sql.NullString
		status, metadataJSON string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, id, title, description, content, category, status, error,
                audio_path, note_path, metadata_json, created_at, updated_at
         FROM notes WHERE owner_id = ? AND id = ?`,
		ownerID, noteID,
	).Scan(
		&note.OwnerID, &note.ID, &note.Title, &note.Description, &note.Content,
		&category, &status, &errText, &note.AudioPath, &note.NotePath,
		&metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Note{}, store.ErrNotFound
		}
		return types.Note{}, fmt.Errorf("get note: %w", err)
	}

	note.Category = category.String
	note.Error = errText.String
	note.Status = types.NoteStatus(status)
	if err := json.Unmarshal([]byte(metadataJSON), &note.Metadata); err != nil {
		return types.Note{}, fmt.Errorf("decode metadata: %w", err)
	}
	note.CreatedAt = parseTime(createdAt)
	note.UpdatedAt = parseTime(updatedAt)
	return note, nil
}

// UpdateNote writes the pipeline outcome. Repeating the same update is harmless.
func (s *Store) UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error {
	now := formatTime(s.now())

	var (
		res sql.Result
		err error
	)
	switch update.Status {
	case types.NoteCompleted:
		res, err = s.db.ExecContext(ctx,
			`UPDATE notes
             SET status = ?, title = ?, description = ?, content = ?,
                 category = COALESCE(?, category), error = NULL, updated_at = ?
             WHERE owner_id = ? AND id = ?`,
			string(update.Status), update.Title, update.Description, update.Content,
			nullableStringPtr(update.Category), now, ownerID, noteID,
		)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE notes SET status = ?, error = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
			string(update.Status), nullableString(update.Error), now, ownerID, noteID,
		)
	}
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM categories WHERE owner_id = ? ORDER BY label COLLATE NOCASE`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (s *Store) AddCategory(ctx context.Context, ownerID, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("category label required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (owner_id, label, created_at) VALUES (?, ?, ?)
         ON CONFLICT (owner_id, label) DO NOTHING`,
		ownerID, label, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %q: %w", label, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) LoadSettings(ctx context.Context) (types.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Settings{}, fmt.Errorf("settings: %w", store.ErrNotFound)
		}
		return types.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var settings types.Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return types.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings types.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
         ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
