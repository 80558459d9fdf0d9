package calllog

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS kaiwa_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

type migrationRecord struct {
	ID        int
	Name      string
	AppliedAt time.Time
	Checksum  string
}

// loadMigrations reads migration files from the embedded filesystem, parses
// them, and sorts by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	upFiles := make(map[string]string)
	downFiles := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.HasSuffix(name, ".up.sql") {
			upFiles[strings.TrimSuffix(name, ".up.sql")] = string(data)
		} else if strings.HasSuffix(name, ".down.sql") {
			downFiles[strings.TrimSuffix(name, ".down.sql")] = string(data)
		}
	}

	var migrations []migrationFile
	for key, up := range upFiles {
		migrations = append(migrations, migrationFile{
			Name:     key,
			Up:       up,
			Down:     downFiles[key],
			Checksum: fmt.Sprintf("%x", sha256.Sum256([]byte(up))),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

func (s *PGStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createMigrationsTableSQL)
	return err
}

func (s *PGStore) appliedMigrations(ctx context.Context) (map[string]migrationRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, applied_at, checksum FROM kaiwa_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]migrationRecord)
	for rows.Next() {
		var rec migrationRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.AppliedAt, &rec.Checksum); err != nil {
			return nil, err
		}
		applied[rec.Name] = rec
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations in order, each in its own
// transaction. Already-applied migrations are checksum-verified.
func (s *PGStore) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("calllog: ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("calllog: load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("calllog: get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if rec, ok := applied[m.Name]; ok {
			if rec.Checksum != m.Checksum {
				return fmt.Errorf("calllog: migration %s checksum mismatch (expected %s, got %s)", m.Name, rec.Checksum, m.Checksum)
			}
			continue
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("calllog: begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("calllog: run migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO kaiwa_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("calllog: record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("calllog: commit migration %s: %w", m.Name, err)
		}
	}

	return nil
}
