package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/storage/dialect"
)

// Store is a SQL implementation of NoteStore that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var _ storage.NoteStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.ForDriver(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.Setup() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
	}

	store := NewWithDB(db.DB, d)
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewWithDB wraps an existing connection. The schema is assumed to exist.
func NewWithDB(db *sql.DB, d dialect.Dialect) *Store {
	return &Store{
		db:      sqlx.NewDb(db, d.DriverName()),
		dialect: d,
		now:     time.Now,
	}
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		s.dialect.NotesTable(),
		`CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_owner_created ON notes(owner_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const noteColumns = `id, owner_id, title, content, secret, created_at, updated_at`

var sortColumns = map[string]string{
	storage.SortCreatedAt: "created_at",
	storage.SortUpdatedAt: "updated_at",
	storage.SortTitle:     "title",
}

// timestamp normalizes t to what every dialect can round-trip.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (s *Store) Create(ctx context.Context, note *domain.Note) error {
	if note.ID == "" {
		note.ID = domain.NewID()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = s.now()
	}
	note.CreatedAt = timestamp(note.CreatedAt)
	note.UpdatedAt = note.CreatedAt

	query := s.dialect.Rebind(`INSERT INTO notes (` + noteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		note.ID, note.OwnerID, note.Title, note.Content, note.Secret, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var note domain.Note
	query := s.dialect.Rebind(`SELECT ` + noteColumns + ` FROM notes WHERE id = ?`)
	if err := s.db.GetContext(ctx, &note, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

func (s *Store) Find(ctx context.Context, filter storage.Filter, order storage.Sort, skip, limit int) ([]*domain.Note, error) {
	column := "created_at"
	if order.Field != "" {
		var ok bool
		if column, ok = sortColumns[order.Field]; !ok {
			return nil, fmt.Errorf("unsupported sort field %q", order.Field)
		}
	}
	dir := "ASC"
	if order.Descending {
		dir = "DESC"
	}

	where, args := s.where(filter)
	query := `SELECT ` + noteColumns + ` FROM notes` + where +
		fmt.Sprintf(` ORDER BY %s %s, id %s`, column, dir, dir)
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, skip)
	} else if skip > 0 {
		// SQLite has no OFFSET without LIMIT.
		query += ` LIMIT ? OFFSET ?`
		args = append(args, int64(1<<62), skip)
	}

	notes := []*domain.Note{}
	if err := s.db.SelectContext(ctx, &notes, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (s *Store) Count(ctx context.Context, filter storage.Filter) (int, error) {
	where, args := s.where(filter)
	var count int
	if err := s.db.GetContext(ctx, &count, s.dialect.Rebind(`SELECT COUNT(*) FROM notes`+where), args...); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

func (s *Store) where(filter storage.Filter) (string, []any) {
	var clauses []string
	var args []any
	if filter.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Search != "" {
		pattern := dialect.ContainsPattern(filter.Search)
		clauses = append(clauses, fmt.Sprintf("(%s OR %s)",
			s.dialect.Contains("title"), s.dialect.Contains("content")))
		args = append(args, pattern, pattern)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Save writes title, content and secret in a single conditional update.
// Concurrent writers are last-write-wins.
func (s *Store) Save(ctx context.Context, note *domain.Note) error {
	updatedAt := timestamp(s.now())
	query := s.dialect.Rebind(`UPDATE notes SET title = ?, content = ?, secret = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, note.Title, note.Content, note.Secret, updatedAt, note.ID)
	if err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	if err := expectRow(result); err != nil {
		return err
	}
	note.UpdatedAt = updatedAt
	return nil
}

func (s *Store) Delete(ctx context.Context, note *domain.Note) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM notes WHERE id = ?`), note.ID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return expectRow(result)
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
