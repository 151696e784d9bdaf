// Package storage defines the persistence port for notes.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/hipnotes/internal/domain"
)

// ErrNotFound is returned when a note does not exist.
var ErrNotFound = errors.New("not found")

// Filter selects notes for Find and Count.
type Filter struct {
	// OwnerID restricts results to one owner. Empty matches every owner.
	OwnerID string

	// Search is a case-insensitive substring matched against title or content.
	Search string
}

// Sort orders Find results. Ties are broken by id.
type Sort struct {
	Field      string
	Descending bool
}

// Sortable note fields.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortTitle     = "title"
)

// ParseSort turns "-createdAt" style keys into a Sort.
func ParseSort(key string) Sort {
	if len(key) > 0 && key[0] == '-' {
		return Sort{Field: key[1:], Descending: true}
	}
	return Sort{Field: key}
}

// NoteStore defines the interface for note storage
type NoteStore interface {
	// Create persists a new note. ID and timestamps are assigned when empty.
	Create(ctx context.Context, note *domain.Note) error

	// FindByID retrieves a note, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*domain.Note, error)

	// Find lists notes matching filter.
	Find(ctx context.Context, filter Filter, sort Sort, skip, limit int) ([]*domain.Note, error)

	// Count counts notes matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Save writes the mutable fields of an existing note and bumps UpdatedAt.
	Save(ctx context.Context, note *domain.Note) error

	// Delete removes a note.
	Delete(ctx context.Context, note *domain.Note) error

	// Close releases any resources held by the store.
	Close() error
}
