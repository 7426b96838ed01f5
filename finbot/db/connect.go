package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// Connect opens the embedded libsql database at path, creating the file and
// its parent directory when missing.
func Connect(path string, logger zerolog.Logger) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("database not found, creating a new one")
		file, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %w", path, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory", path)

	database, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verify(database, logger); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

// verify checks basic connectivity and the built-in JSON1 capability.
func verify(database *sql.DB, logger zerolog.Logger) error {
	ctx := context.Background()

	var result int
	if err := database.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	var jsonResult string
	if err := database.QueryRowContext(ctx, `SELECT json_extract('{"probe":"ok"}', '$.probe')`).Scan(&jsonResult); err != nil {
		logger.Warn().Err(err).Msg("JSON1 probe failed")
	} else if jsonResult != "ok" {
		logger.Warn().Str("result", jsonResult).Msg("JSON1 probe returned unexpected result")
	}

	return nil
}
