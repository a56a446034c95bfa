package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// IsRemote reports whether dsn names a libsql server rather than a local file.
func IsRemote(dsn string) bool {
	return strings.HasPrefix(dsn, "libsql://") ||
		strings.HasPrefix(dsn, "http://") ||
		strings.HasPrefix(dsn, "https://")
}

// Open opens the database at dsn and makes sure the schema exists. Local files (and
// their parent directories) are created when missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if IsRemote(dsn) {
		database, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, err
		}
		return migrate(ctx, database)
	}

	if dsn == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if dsn != ":memory:" {
		err := os.MkdirAll(filepath.Dir(dsn), 0755)
		if err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, more connections only contend for the lock
	database.SetMaxOpenConns(1)
	_, err = database.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, err
	}
	return migrate(ctx, database)
}

func migrate(ctx context.Context, database *sql.DB) (*sql.DB, error) {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := database.ExecContext(ctx, stmt)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return database, nil
}
