package shared

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Database wraps a [sql.DB] with the name of the driver it was opened with, so queries written with
// "?" placeholders can be rebound for PostgreSQL.
type Database struct {
	*sql.DB
	Driver string
}

// NewDatabase opens a connection using driver ("sqlite3" or "pgx") and the given path or DSN.
// The SQLite path can be ":memory:" for an in-memory database, in which case the pool is limited to
// one connection so every query sees the same database.
func NewDatabase(driver, path string) (*Database, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	case "":
		driver = DriverSQLite
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite && strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, Driver: driver}, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// Zero values leave the driver defaults in place.
func ConfigureDatabase(db *Database, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}

// Rebind rewrites "?" placeholders to "$1", "$2", ... when the database is PostgreSQL.
func (d *Database) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
