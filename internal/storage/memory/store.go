package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/storage"
)

// Store is an in-memory implementation of NoteStore
type Store struct {
	mu    sync.RWMutex
	notes map[string]*domain.Note
	now   func() time.Time
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		notes: make(map[string]*domain.Note),
		now:   time.Now,
	}
}

func (s *Store) Create(ctx context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = domain.NewID()
	}
	if _, exists := s.notes[note.ID]; exists {
		return fmt.Errorf("note %s already exists", note.ID)
	}

	now := s.now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = note.CreatedAt

	s.notes[note.ID] = note.Clone()
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, exists := s.notes[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return note.Clone(), nil
}

func (s *Store) Find(ctx context.Context, filter storage.Filter, order storage.Sort, skip, limit int) ([]*domain.Note, error) {
	s.mu.RLock()
	matched := s.match(filter)
	s.mu.RUnlock()

	less, err := lessFunc(order)
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	if skip >= len(matched) {
		return []*domain.Note{}, nil
	}
	end := len(matched)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return matched[skip:end], nil
}

func (s *Store) Count(ctx context.Context, filter storage.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.match(filter)), nil
}

func (s *Store) Save(ctx context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[note.ID]; !exists {
		return storage.ErrNotFound
	}
	note.UpdatedAt = s.now().UTC()
	s.notes[note.ID] = note.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[note.ID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.notes, note.ID)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// match returns copies of the notes selected by filter. Callers hold mu.
func (s *Store) match(filter storage.Filter) []*domain.Note {
	search := strings.ToLower(filter.Search)
	var result []*domain.Note
	for _, n := range s.notes {
		if filter.OwnerID != "" && n.OwnerID != filter.OwnerID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Content), search) {
			continue
		}
		result = append(result, n.Clone())
	}
	return result
}

func lessFunc(order storage.Sort) (func(a, b *domain.Note) bool, error) {
	var cmp func(a, b *domain.Note) int
	switch order.Field {
	case storage.SortCreatedAt, "":
		cmp = func(a, b *domain.Note) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case storage.SortUpdatedAt:
		cmp = func(a, b *domain.Note) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case storage.SortTitle:
		cmp = func(a, b *domain.Note) int { return strings.Compare(a.Title, b.Title) }
	default:
		return nil, fmt.Errorf("unsupported sort field %q", order.Field)
	}
	return func(a, b *domain.Note) bool {
		c := cmp(a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order.Descending {
			return c > 0
		}
		return c < 0
	}, nil
}
