// Package postgres is the notes database for server deployments.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-notes-go/internal/store"
	"voice-notes-go/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Open connects, migrates and returns a Store owning the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var applied bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied {
			continue
		}
		sql, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertNote(ctx context.Context, note types.Note) error {
	meta, err := json.Marshal(note.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if note.Status == "" {
		note.Status = types.NoteProcessing
	}

	const q = `
INSERT INTO notes (owner_id, id, title, description, content, category, status, error, audio_path, note_path, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (owner_id, id) DO NOTHING;
`
	tag, err := s.pool.Exec(ctx, q,
		note.OwnerID, note.ID, note.Title, note.Description, note.Content,
		nullable(note.Category), string(note.Status), nullable(note.Error),
		note.AudioPath, note.NotePath, meta,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s/%s: %w", note.OwnerID, note.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetNote(ctx context.Context, ownerID, noteID string) (types.Note, error) {
	const q = `
SELECT owner_id, id, title, description, content, category, status, error,
       audio_path, note_path, metadata, created_at, updated_at
FROM notes
WHERE owner_id = $1 AND id = $2;
`
	var (
		note     types.Note
		category *string
		errText  *string
		status   string
		meta     []byte
	)
	if err := s.pool.QueryRow(ctx, q, ownerID, noteID).Scan(
		&note.OwnerID, &note.ID, &note.Title, &note.Description, &note.Content,
		&category, // NULL => nil
		&status,
		&errText, // NULL => nil
		&note.AudioPath, &note.NotePath, &meta, &note.CreatedAt, &note.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Note{}, store.ErrNotFound
		}
		return types.Note{}, fmt.Errorf("get note: %w", err)
	}
	note.Status = types.NoteStatus(status)
	if category != nil {
		note.Category = *category
	}
	if errText != nil {
		note.Error = *errText
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &note.Metadata); err != nil {
			return types.Note{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return note, nil
}

func (s *Store) UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error {
	var (
		q    string
		args []any
	)
	switch update.Status {
	case types.NoteCompleted:
		q = `UPDATE notes
SET status=$3, title=$4, description=$5, content=$6, category=COALESCE($7, category), error=NULL, updated_at=now()
WHERE owner_id=$1 AND id=$2;`
		args = []any{ownerID, noteID, string(update.Status), update.Title, update.Description, update.Content, update.Category}
	default:
		q = `UPDATE notes SET status=$3, error=$4, updated_at=now() WHERE owner_id=$1 AND id=$2;`
		args = []any{ownerID, noteID, string(update.Status), nullable(update.Error)}
	}

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT label FROM categories WHERE owner_id=$1 ORDER BY lower(label);`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	labels, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return labels, nil
}

func (s *Store) AddCategory(ctx context.Context, ownerID, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("category label required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO categories (owner_id, label) VALUES ($1, $2) ON CONFLICT (owner_id, lower(label)) DO NOTHING;`,
		ownerID, label)
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %q: %w", label, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) LoadSettings(ctx context.Context) (types.Settings, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, `SELECT data FROM settings WHERE id = 1;`).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Settings{}, fmt.Errorf("settings: %w", store.ErrNotFound)
		}
		return types.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var settings types.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return types.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings types.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const q = `
INSERT INTO settings (id, data, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now();
`
	if _, err := s.pool.Exec(ctx, q, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func nullable(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
