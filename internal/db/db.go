package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Open creates the session database. It lives entirely in memory: the CRM
// state is seeded at startup and discarded when the process exits, so there
// is no on-disk footprint at all.
//
// Each call opens a distinct database; the shared cache ties the pooled
// connections of one *sql.DB to the same in-memory instance.
func Open() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids table-lock errors on the shared cache.
	conn.SetMaxOpenConns(1)
	return conn, nil
}
