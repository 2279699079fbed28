// Package sqlite provides SQLite-backed persistence for projects, story
// threads, tick logs, and telemetry.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/storyloom/internal/director"
	"github.com/louisbranch/storyloom/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/storage"
	"github.com/louisbranch/storyloom/internal/storage/sqlite/migrations"
	"github.com/louisbranch/storyloom/internal/story"
)

// Store provides SQLite-backed persistence for director records.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

func (s *Store) now() int64 {
	return s.clock().UTC().UnixMilli()
}

// PutProject inserts or replaces a project snapshot.
func (s *Store) PutProject(ctx context.Context, project *story.Project) error {
	data, err := state.MarshalCanonical(project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	now := s.now()
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO projects (id, name, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		project.ID, project.Name, data, now, now)
	if err != nil {
		return fmt.Errorf("put project: %w", err)
	}
	return nil
}

// GetProject loads and validates a project snapshot.
func (s *Store) GetProject(ctx context.Context, id string) (*story.Project, error) {
	var data []byte
	row := s.sqlDB.QueryRowContext(ctx, "SELECT data FROM projects WHERE id = ?", id)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return story.DecodeProject(data)
}

// ListProjects returns stored project ids in insertion order.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT id FROM projects ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateThread inserts a new story thread.
func (s *Store) CreateThread(ctx context.Context, thread storage.Thread) error {
	now := s.now()
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO threads (id, project_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		thread.ID, thread.ProjectID, thread.Name, now, now)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// GetThread loads a thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (storage.Thread, error) {
	var thread storage.Thread
	var createdAt, updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, project_id, name, created_at, updated_at FROM threads WHERE id = ?", id)
	if err := row.Scan(&thread.ID, &thread.ProjectID, &thread.Name, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return storage.Thread{}, storage.ErrNotFound
		}
		return storage.Thread{}, fmt.Errorf("get thread: %w", err)
	}
	thread.CreatedAt = time.UnixMilli(createdAt).UTC()
	thread.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return thread, nil
}

// ListThreads returns the threads of a project in creation order.
func (s *Store) ListThreads(ctx context.Context, projectID string) ([]storage.Thread, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, project_id, name, created_at, updated_at FROM threads WHERE project_id = ? ORDER BY created_at, id",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []storage.Thread
	for rows.Next() {
		var thread storage.Thread
		var createdAt, updatedAt int64
		if err := rows.Scan(&thread.ID, &thread.ProjectID, &thread.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		thread.CreatedAt = time.UnixMilli(createdAt).UTC()
		thread.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// PutThreadState stores the thread's current snapshot.
func (s *Store) PutThreadState(ctx context.Context, threadID string, snapshot *state.State) error {
	data, err := state.MarshalCanonical(snapshot)
	if err != nil {
		return fmt.Errorf("encode thread state: %w", err)
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE threads SET state = ?, updated_at = ? WHERE id = ?", data, s.now(), threadID)
	if err != nil {
		return fmt.Errorf("put thread state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put thread state: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetThreadState loads the thread's current snapshot. A thread that has
// never ticked has no snapshot and returns ErrNotFound.
func (s *Store) GetThreadState(ctx context.Context, threadID string) (*state.State, error) {
	var data []byte
	row := s.sqlDB.QueryRowContext(ctx, "SELECT state FROM threads WHERE id = ?", threadID)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get thread state: %w", err)
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	var snapshot state.State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode thread state: %w", err)
	}
	return &snapshot, nil
}

// AppendTickRecord appends one tick record to the thread's log.
func (s *Store) AppendTickRecord(ctx context.Context, threadID string, record director.TickRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode tick record: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO tick_records (thread_id, tick_index, data, created_at)
VALUES (?, ?, ?, ?)`,
		threadID, record.TickIndex, data, s.now())
	if err != nil {
		return fmt.Errorf("append tick record: %w", err)
	}
	return nil
}

// ListTickRecords returns tick records with index greater than afterIndex,
// in tick order, up to limit records. Pass afterIndex -1 for the full log.
func (s *Store) ListTickRecords(ctx context.Context, threadID string, afterIndex int, limit int) ([]director.TickRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT data FROM tick_records
WHERE thread_id = ? AND tick_index > ?
ORDER BY tick_index LIMIT ?`,
		threadID, afterIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("list tick records: %w", err)
	}
	defer rows.Close()

	var records []director.TickRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan tick record: %w", err)
		}
		var record director.TickRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode tick record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AppendTelemetryEvent records one telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (timestamp, severity, thread_id, tick_index, message)
VALUES (?, ?, ?, ?, ?)`,
		timestamp.UTC().UnixMilli(), event.Severity, event.ThreadID, event.TickIndex, event.Message)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
