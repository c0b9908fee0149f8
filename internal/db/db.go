package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const MemoryPath = ":memory:"

func Bootstrap(ctx context.Context, dbPath string) (*sql.DB, error) {
	database, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, database); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	inMemory := dbPath == MemoryPath || strings.HasPrefix(dbPath, "file::memory:")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	if inMemory {
		// every pooled connection would get its own empty database
		database.SetMaxOpenConns(1)
	} else {
		pragmas = append([]string{"PRAGMA journal_mode=WAL;"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := database.ExecContext(ctx, pragma); err != nil {
			database.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", pragma, err)
		}
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return database, nil
}
