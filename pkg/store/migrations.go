package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations, in order.
//
// Cascade rules follow ownership: url→site, result→url, issue→result all
// delete-cascade; issue→issue_type is RESTRICT because the dictionary must
// never be deleted out from under live issues. The stores still perform
// explicit ordered deletes inside a transaction, the FK rules are a backstop.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and api_keys tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					is_owner BOOLEAN NOT NULL DEFAULT FALSE,
					allow_read BOOLEAN NOT NULL DEFAULT FALSE,
					allow_write BOOLEAN NOT NULL DEFAULT FALSE,
					allow_delete BOOLEAN NOT NULL DEFAULT FALSE,
					allow_admin BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS api_keys (
					id VARCHAR(36) PRIMARY KEY,
					secret_hash VARCHAR(255) NOT NULL,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_api_keys_user_id ON api_keys(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS settings (
					id VARCHAR(36) PRIMARY KEY,
					allow_read BOOLEAN NOT NULL DEFAULT FALSE,
					allow_write BOOLEAN NOT NULL DEFAULT FALSE,
					allow_delete BOOLEAN NOT NULL DEFAULT FALSE,
					allow_admin BOOLEAN NOT NULL DEFAULT FALSE,
					setup_complete BOOLEAN NOT NULL DEFAULT FALSE,
					super_admin_id VARCHAR(36) REFERENCES users(id) ON DELETE SET NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     3,
			Description: "Create issue_types dictionary",
			SQL: `
				CREATE TABLE IF NOT EXISTS issue_types (
					code INT PRIMARY KEY,
					description VARCHAR(255) NOT NULL
				);

				INSERT INTO issue_types (code, description) VALUES
					(0, 'unknown'),
					(1, 'error'),
					(2, 'warning'),
					(3, 'notice')
				ON CONFLICT (code) DO NOTHING;
			`,
		},
		{
			Version:     4,
			Description: "Create sites, urls, results, issues tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS sites (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					base_url TEXT NOT NULL,
					is_runnable BOOLEAN NOT NULL DEFAULT TRUE,
					is_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
					schedule VARCHAR(255),
					scan_config JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS urls (
					id VARCHAR(36) PRIMARY KEY,
					site_id VARCHAR(36) NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					address TEXT NOT NULL,
					scan_config JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_urls_site_id ON urls(site_id);

				CREATE TABLE IF NOT EXISTS results (
					id VARCHAR(36) PRIMARY KEY,
					site_id VARCHAR(36) NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
					url_id VARCHAR(36) NOT NULL REFERENCES urls(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_results_site_id ON results(site_id);
				CREATE INDEX idx_results_url_id ON results(url_id);

				CREATE TABLE IF NOT EXISTS issues (
					id VARCHAR(36) PRIMARY KEY,
					result_id VARCHAR(36) NOT NULL REFERENCES results(id) ON DELETE CASCADE,
					code VARCHAR(255) NOT NULL,
					context TEXT NOT NULL DEFAULT '',
					selector TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					type_code INT NOT NULL REFERENCES issue_types(code) ON DELETE RESTRICT,
					runner VARCHAR(255) NOT NULL DEFAULT '',
					runner_extras JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_issues_result_id ON issues(result_id);
				CREATE INDEX idx_issues_type_code ON issues(type_code);
			`,
		},
	}
}

// RunMigrations applies all pending migrations inside individual transactions
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
