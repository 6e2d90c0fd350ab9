/*
Package sqlite binds the shared SQL store to SQLite.

PURPOSE:
  Opens a SQLite database with the settings the dues engine relies on and
  hands it to sqlstore with the SQLite dialect.

CONNECTION SETTINGS:
  _foreign_keys=on     Attendance and payments reference real rows
  _journal_mode=WAL    Readers don't block the single writer
  _txlock=immediate    BEGIN IMMEDIATE: a transaction takes the write lock
                       up front, so check-then-insert cannot interleave
  _busy_timeout=5000   Wait for the lock instead of failing with SQLITE_BUSY

  ":memory:" databases are private to one connection, so the pool is
  capped at a single connection for them.

USAGE:
  store, err := sqlite.New(ctx, "./data/dues.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlstore: Queries and schema
  - store/postgres: The PostgreSQL binding
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/dues-engine/store/sqlstore"
)

const options = "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueConstraintError,
}

// New opens (and migrates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?"+options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
