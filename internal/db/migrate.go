package db

import (
	"embed"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded SQL files that have not run yet, in file
// name order. Each file runs inside its own transaction and is recorded
// in schema_migrations, so reruns are no-ops.
func Migrate(database *DB, log *zap.Logger) error {
	if database == nil || database.Gorm == nil {
		return fmt.Errorf("db: migrate called without an open database")
	}

	err := database.Gorm.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT        PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`).Error
	if err != nil {
		return fmt.Errorf("db: ensure schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("db: read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int64
		err = database.Gorm.
			Raw("SELECT count(*) FROM schema_migrations WHERE name = ?", name).
			Scan(&applied).Error
		if err != nil {
			return fmt.Errorf("db: check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", name, err)
		}

		err = database.Gorm.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(body)).Error; err != nil {
				return err
			}
			return tx.Exec(
				"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
				name, NowUTC()).Error
		})
		if err != nil {
			return fmt.Errorf("db: apply migration %s: %w", name, err)
		}

		if log != nil {
			log.Info("migration applied", zap.String("file", name))
		}
	}

	return nil
}
