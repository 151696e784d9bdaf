// Package dialect captures the SQL differences between the databases the
// notes store runs on.
package dialect

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

// lowerFunc is registered with every sqlite connection. The built-in LOWER
// folds ASCII only.
const lowerFunc = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(lowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Dialect is what the notes store needs to know about a database.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string

	// Rebind rewrites ? placeholders into the driver's bind syntax.
	Rebind(query string) string

	// Setup lists statements to run once after opening a database and
	// before creating the schema.
	Setup() []string

	// NotesTable is the CREATE TABLE statement for notes.
	NotesTable() string

	// Contains returns a case-insensitive predicate matching column
	// against one pattern argument built by ContainsPattern.
	Contains(column string) string
}

// ForDriver returns the dialect for a configured driver name.
func ForDriver(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", name)
	}
}

// ContainsPattern turns a search term into the LIKE argument for Contains.
// Wildcards in the term match literally.
func ContainsPattern(search string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type notesDialect struct {
	driver    string
	bind      int
	timestamp string
	setup     []string
	contains  string
}

var (
	// SQLite stores notes in a local file through modernc.org/sqlite.
	SQLite Dialect = &notesDialect{
		driver:    "sqlite",
		bind:      sqlx.QUESTION,
		timestamp: "TIMESTAMP",
		setup: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
		},
		contains: lowerFunc + `(%s) LIKE ? ESCAPE '\'`,
	}

	// Postgres stores notes through lib/pq.
	Postgres Dialect = &notesDialect{
		driver:    "postgres",
		bind:      sqlx.DOLLAR,
		timestamp: "TIMESTAMP WITH TIME ZONE",
		contains:  `%s ILIKE ? ESCAPE '\'`,
	}
)

func (d *notesDialect) DriverName() string { return d.driver }

func (d *notesDialect) Rebind(query string) string { return sqlx.Rebind(d.bind, query) }

func (d *notesDialect) Setup() []string { return d.setup }

func (d *notesDialect) Contains(column string) string { return fmt.Sprintf(d.contains, column) }

func (d *notesDialect) NotesTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	secret TEXT,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
)`, d.timestamp)
}
