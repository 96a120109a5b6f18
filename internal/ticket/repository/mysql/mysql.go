// Package mysql opens the MySQL backend of internal/ticket/repository,
// for deployments that already run a shared MySQL instance instead of
// per-host embedded SQLite.
package mysql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

// Open connects to the MySQL database described by dsn (driver-native
// DSN, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true").
func Open(dsn string) (*repository.Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository/mysql: open: %w", err)
	}
	db.SetMaxOpenConns(10)

	store, err := repository.Open("mysql", db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
