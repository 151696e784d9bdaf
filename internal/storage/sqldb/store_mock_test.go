package sqldb

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/storage/dialect"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewWithDB(db, dialect.Postgres), mock
}

var noteRowColumns = []string{"id", "owner_id", "title", "content", "secret", "created_at", "updated_at"}

func TestStore_FindByID_Postgres(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, title, content, secret, created_at, updated_at FROM notes WHERE id = $1`)).
		WithArgs("65a1234500012345000abcde").
		WillReturnRows(sqlmock.NewRows(noteRowColumns).
			AddRow("65a1234500012345000abcde", "owner-1", "title", "content", nil, created, created))

	note, err := store.FindByID(context.Background(), "65a1234500012345000abcde")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if note.OwnerID != "owner-1" || note.Secret != nil {
		t.Errorf("note = %+v", note)
	}
}

func TestStore_FindByID_NoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(noteRowColumns))

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindByID() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Find_SearchQuery(t *testing.T) {
	store, mock := newMockStore(t)

	query := `SELECT id, owner_id, title, content, secret, created_at, updated_at FROM notes` +
		` WHERE owner_id = $1 AND (title ILIKE $2 ESCAPE '\' OR content ILIKE $3 ESCAPE '\')` +
		` ORDER BY title DESC, id DESC LIMIT $4 OFFSET $5`
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("owner-1", `%100\%%`, `%100\%%`, 10, 20).
		WillReturnRows(sqlmock.NewRows(noteRowColumns))

	notes, err := store.Find(context.Background(),
		storage.Filter{OwnerID: "owner-1", Search: "100%"},
		storage.Sort{Field: storage.SortTitle, Descending: true}, 20, 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if notes == nil || len(notes) != 0 {
		t.Errorf("Find() = %#v, want empty non-nil slice", notes)
	}
}

func TestStore_Find_UnsupportedSort(t *testing.T) {
	store, _ := newMockStore(t)

	if _, err := store.Find(context.Background(), storage.Filter{}, storage.Sort{Field: "secret"}, 0, 10); err == nil {
		t.Error("expected error for unsupported sort field")
	}
}

func TestStore_Save_NoRowsAffected(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notes SET title = $1, content = $2, secret = $3, updated_at = $4 WHERE id = $5`)).
		WithArgs("t", "c", sqlmock.AnyArg(), sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Save(context.Background(), &domain.Note{ID: "gone", Title: "t", Content: "c"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Save() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Create_ExecError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO notes`).WillReturnError(boom)

	err := store.Create(context.Background(), &domain.Note{Title: "t", Content: "c", OwnerID: "o"})
	if !errors.Is(err, boom) {
		t.Errorf("Create() error = %v, want wrapped %v", err, boom)
	}
}

func TestStore_Count_Error(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("timeout")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notes WHERE owner_id = $1`)).
		WithArgs("owner-1").
		WillReturnError(boom)

	if _, err := store.Count(context.Background(), storage.Filter{OwnerID: "owner-1"}); !errors.Is(err, boom) {
		t.Errorf("Count() error = %v, want wrapped %v", err, boom)
	}
}

func TestStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM notes WHERE id = $1`)).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), &domain.Note{ID: "n1"}); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}
