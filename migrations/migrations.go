// Package migrations embeds the SQL schema of the ledger database.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
)

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in the order they must be applied
var Files = []string{
	"0001_create_campaigns.sql",
	"0002_create_donations.sql",
	"0003_create_transactions.sql",
	"0004_create_audit_log.sql",
	"0005_create_admins.sql",
}

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Apply runs every migration not yet recorded in schema_migrations and
// returns the names of the files it applied. Each file runs in its own
// transaction together with its version row.
func Apply(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range Files {
		if done[name] {
			continue
		}
		content, err := FS.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		if err := applyOne(ctx, db, name, string(content)); err != nil {
			return applied, err
		}
		log.Printf("Applied migration: %s", name)
		applied = append(applied, name)
	}
	return applied, nil
}

// Pending returns the migrations Apply would run
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range Files {
		if !done[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func applyOne(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return tx.Commit()
}
