package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/lib/pq"
)

const schema = "workflowq"

//go:embed migrations/*.sql
var migrations embed.FS

// psql builds listing queries with $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the schema and applies every embedded migration that has not
// run yet. The transaction-scoped advisory lock makes concurrent instances wait
// for each other instead of racing on DDL.
func Migrate(ctx context.Context, db *sql.DB) error {
	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", constants.MigrationLock); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflowq.schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return err
	}

	for _, script := range scripts {
		var applied bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM workflowq.schema_migrations WHERE version = $1)", script.version,
		).Scan(&applied)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if _, err := tx.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("migration %s: %w", script.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO workflowq.schema_migrations (version) VALUES ($1)", script.version); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type sqlScript struct {
	version string
	body    string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := migrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sqlScript{
			version: strings.TrimSuffix(entry.Name(), ".sql"),
			body:    string(content),
		})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })
	return scripts, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
