// Package sqlite opens the embedded-SQLite backend of
// internal/ticket/repository. It is the default backend for ticketctl,
// requiring no external database server.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

// Open creates (if needed) and opens a SQLite database at path, with
// foreign keys and a busy timeout set so concurrent batch workers don't
// immediately trip SQLITE_BUSY under the repository's own retry.
func Open(path string) (*repository.Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": {"busy_timeout(5000)", "foreign_keys(1)", "journal_mode(WAL)"},
	}.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids lock thrash

	store, err := repository.Open("sqlite", db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
