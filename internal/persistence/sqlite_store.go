package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/watch"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore implements watch.Store.
type SQLiteStore struct {
	db *sql.DB
}

var _ watch.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths are always slash separated
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadWatches(ctx context.Context) ([]*watch.Watch, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, job_id, source, dedupe_key, status, progress, error, created_at, updated_at, finished_at
		 FROM watches
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*watch.Watch, 0)
	for rows.Next() {
		var item watch.Watch
		var kind, status string
		var progress sql.NullInt64
		var finishedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&kind,
			&item.JobID,
			&item.Source,
			&item.DedupeKey,
			&status,
			&progress,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}
		item.Kind = job.Kind(kind)
		item.Status = watch.Status(status)
		if progress.Valid {
			p := int(progress.Int64)
			item.Progress = &p
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			item.FinishedAt = &t
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertWatch(ctx context.Context, w *watch.Watch) error {
	if w == nil {
		return fmt.Errorf("watch is nil")
	}
	var progress sql.NullInt64
	if w.Progress != nil {
		progress = sql.NullInt64{Int64: int64(*w.Progress), Valid: true}
	}
	var finishedAt sql.NullTime
	if w.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *w.FinishedAt, Valid: true}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO watches (
			id, kind, job_id, source, dedupe_key, status, progress, error, created_at, updated_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			job_id=excluded.job_id,
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			status=excluded.status,
			progress=excluded.progress,
			error=excluded.error,
			updated_at=excluded.updated_at,
			finished_at=excluded.finished_at`,
		w.ID,
		string(w.Kind),
		w.JobID,
		w.Source,
		w.DedupeKey,
		string(w.Status),
		progress,
		w.Error,
		w.CreatedAt,
		w.UpdatedAt,
		finishedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteWatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id)
	return err
}
