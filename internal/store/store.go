// Package store declares what the notes database offers to the rest of the service.
// Backends live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"

	"voice-notes-go/internal/types"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store is implemented by every backend.
type Store interface {
	InsertNote(ctx context.Context, note types.Note) error
	GetNote(ctx context.Context, ownerID, noteID string) (types.Note, error)
	UpdateNote(ctx context.Context, ownerID, noteID string, update types.NoteUpdate) error
	ListCategories(ctx context.Context, ownerID string) ([]string, error)
	AddCategory(ctx context.Context, ownerID, label string) error
	LoadSettings(ctx context.Context) (types.Settings, error)
	SaveSettings(ctx context.Context, settings types.Settings) error
	Close() error
}
