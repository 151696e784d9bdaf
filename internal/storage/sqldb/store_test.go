package sqldb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/storage/dialect"
	"github.com/tjfontaine/hipnotes/internal/storage/memory"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	store, err := NewSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLDBStore_CreateAndFindByID(t *testing.T) {
	store := newTestStore(t, "notesdb1")
	ctx := context.Background()

	secret := "hidden"
	note := &domain.Note{Title: "first", Content: "body", OwnerID: "owner-1", Secret: &secret}
	if err := store.Create(ctx, note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(note.ID) != domain.IDLength {
		t.Errorf("ID = %q, want %d chars", note.ID, domain.IDLength)
	}

	retrieved, err := store.FindByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if retrieved.Title != "first" || retrieved.OwnerID != "owner-1" {
		t.Errorf("retrieved = %+v", retrieved)
	}
	if retrieved.Secret == nil || *retrieved.Secret != "hidden" {
		t.Errorf("Secret = %v, want hidden", retrieved.Secret)
	}
	if !retrieved.CreatedAt.Equal(note.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", retrieved.CreatedAt, note.CreatedAt)
	}
}

func TestSQLDBStore_NullSecret(t *testing.T) {
	store := newTestStore(t, "notesdb2")
	ctx := context.Background()

	note := &domain.Note{Title: "t", Content: "c", OwnerID: "o"}
	if err := store.Create(ctx, note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	retrieved, err := store.FindByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if retrieved.Secret != nil {
		t.Errorf("Secret = %q, want nil", *retrieved.Secret)
	}
}

func TestSQLDBStore_FindByIDMissing(t *testing.T) {
	store := newTestStore(t, "notesdb3")
	_, err := store.FindByID(context.Background(), "000000000000000000000000")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindByID() error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_FindAndCount(t *testing.T) {
	store := newTestStore(t, "notesdb4")
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		n := &domain.Note{
			Title:     fmt.Sprintf("note %02d", i),
			Content:   "plain",
			OwnerID:   "owner-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i%5 == 0 {
			n.Content = "has a KEYWORD inside"
		}
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := store.Create(ctx, &domain.Note{Title: "keyword", Content: "x", OwnerID: "owner-2"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name      string
		filter    storage.Filter
		sort      storage.Sort
		skip      int
		limit     int
		wantCount int
		wantLen   int
		wantFirst string
	}{
		{
			name:      "newest first page two",
			filter:    storage.Filter{OwnerID: "owner-1"},
			sort:      storage.Sort{Field: storage.SortCreatedAt, Descending: true},
			skip:      10,
			limit:     10,
			wantCount: 25,
			wantLen:   10,
			wantFirst: "note 14",
		},
		{
			name:      "title ascending last page",
			filter:    storage.Filter{OwnerID: "owner-1"},
			sort:      storage.Sort{Field: storage.SortTitle},
			skip:      20,
			limit:     10,
			wantCount: 25,
			wantLen:   5,
			wantFirst: "note 20",
		},
		{
			name:      "search ignores case",
			filter:    storage.Filter{OwnerID: "owner-1", Search: "keyword"},
			sort:      storage.Sort{Field: storage.SortTitle},
			limit:     10,
			wantCount: 5,
			wantLen:   5,
			wantFirst: "note 00",
		},
		{
			name:      "search wildcard is literal",
			filter:    storage.Filter{OwnerID: "owner-1", Search: "%"},
			limit:     10,
			wantCount: 0,
			wantLen:   0,
		},
		{
			name:      "all owners",
			filter:    storage.Filter{Search: "keyword"},
			limit:     100,
			wantCount: 6,
			wantLen:   6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := store.Count(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("Count() = %d, want %d", count, tt.wantCount)
			}

			notes, err := store.Find(ctx, tt.filter, tt.sort, tt.skip, tt.limit)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if len(notes) != tt.wantLen {
				t.Fatalf("Find() returned %d notes, want %d", len(notes), tt.wantLen)
			}
			if tt.wantFirst != "" && notes[0].Title != tt.wantFirst {
				t.Errorf("first = %q, want %q", notes[0].Title, tt.wantFirst)
			}
		})
	}
}

func TestSQLDBStore_SaveAndDelete(t *testing.T) {
	store := newTestStore(t, "notesdb5")
	ctx := context.Background()
	store.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }

	note := &domain.Note{
		Title:     "t",
		Content:   "c",
		OwnerID:   "o",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ctx, note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	secret := "new secret"
	note.Title = "updated"
	note.Secret = &secret
	if err := store.Save(ctx, note); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.FindByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.Title != "updated" || got.Secret == nil || *got.Secret != "new secret" {
		t.Errorf("saved note = %+v", got)
	}
	if !got.UpdatedAt.Equal(store.now()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, store.now())
	}
	if !got.CreatedAt.Equal(note.CreatedAt) {
		t.Errorf("CreatedAt changed: %v", got.CreatedAt)
	}

	if err := store.Delete(ctx, note); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.FindByID(ctx, note.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, note); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, note); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Save() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_DialectAccessor(t *testing.T) {
	store := newTestStore(t, "notesdb6")

	if store.Dialect() != dialect.SQLite {
		t.Errorf("Dialect() = %v, want sqlite", store.Dialect())
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := Config{
		Driver: "unsupported",
		DSN:    "test",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestStores_CaseInsensitiveUnicodeSearch(t *testing.T) {
	stores := []struct {
		name  string
		store storage.NoteStore
	}{
		{"memory", memory.New()},
		{"sqlite", newTestStore(t, "notesdb_unicode")},
	}
	seed := []*domain.Note{
		{Title: "École notes", Content: "timetable", OwnerID: "owner-1"},
		{Title: "Paris", Content: "ÉCOLE DES BEAUX-ARTS", OwnerID: "owner-1"},
		{Title: "ecole without accent", Content: "plain", OwnerID: "owner-1"},
		{Title: "Ünïcödé", Content: "other owner", OwnerID: "owner-2"},
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"école", []string{"Paris", "École notes"}},
		{"ÉCOLE", []string{"Paris", "École notes"}},
		{"beaux-arts", []string{"Paris"}},
		{"ÜNÏ", nil},
	}

	for _, s := range stores {
		ctx := context.Background()
		for _, n := range seed {
			note := *n
			if err := s.store.Create(ctx, &note); err != nil {
				t.Fatalf("%s Create() error = %v", s.name, err)
			}
		}
		for _, tt := range tests {
			t.Run(s.name+"/"+tt.search, func(t *testing.T) {
				filter := storage.Filter{OwnerID: "owner-1", Search: tt.search}
				notes, err := s.store.Find(ctx, filter, storage.Sort{Field: storage.SortTitle}, 0, 10)
				if err != nil {
					t.Fatalf("Find() error = %v", err)
				}
				var titles []string
				for _, n := range notes {
					titles = append(titles, n.Title)
				}
				if !reflect.DeepEqual(titles, tt.want) {
					t.Errorf("titles = %v, want %v", titles, tt.want)
				}
				count, err := s.store.Count(ctx, filter)
				if err != nil || count != len(tt.want) {
					t.Errorf("Count() = %d, %v, want %d", count, err, len(tt.want))
				}
			})
		}
	}
}
