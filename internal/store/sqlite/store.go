// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sqlite implements store.Store on SQLite. The default DSN is an
// in-memory database, so the registry lives exactly as long as the process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pdf-magic/internal/store"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the task registry database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the registry at dsn and creates the schema if it
// does not exist.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			input_paths TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			result TEXT,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			at TEXT NOT NULL,
			level TEXT NOT NULL,
			input TEXT,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, t types.Task) error {
	inputsJSON, err := json.Marshal(t.InputPaths)
	if err != nil {
		return fmt.Errorf("encoding input paths: %w", err)
	}
	var resultJSON sql.NullString
	if t.Result != nil {
		data, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, operation, input_paths, output_dir, status, progress, result, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			operation=excluded.operation, input_paths=excluded.input_paths,
			output_dir=excluded.output_dir, status=excluded.status,
			progress=excluded.progress, result=excluded.result,
			created_at=excluded.created_at, started_at=excluded.started_at,
			finished_at=excluded.finished_at`,
		t.ID, string(t.Operation), string(inputsJSON), t.OutputDir,
		string(t.Status), t.Progress, resultJSON,
		formatTime(t.CreatedAt), formatTime(t.StartedAt), formatTime(t.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) AppendLog(ctx context.Context, id string, e types.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, at, level, input, message) VALUES (?, ?, ?, ?, ?)`,
		id, formatTime(e.Time), string(e.Level), e.Input, e.Message,
	)
	if err != nil {
		// the foreign key rejects entries for unknown tasks
		if _, getErr := s.getTask(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("appending log for %s: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (types.Task, error) {
	t, err := s.getTask(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	logs, err := s.logs(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	t.Log = logs
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, input_paths, output_dir, status, progress, result, created_at, started_at, finished_at
		 FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	var tasks []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	rows.Close()

	// logs are loaded after the cursor is released; the pool has one connection
	for i := range tasks {
		logs, err := s.logs(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Log = logs
	}
	return tasks, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_logs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("deleting logs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) getTask(ctx context.Context, id string) (types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation, input_paths, output_dir, status, progress, result, created_at, started_at, finished_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) logs(ctx context.Context, id string) ([]types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, level, input, message FROM task_logs WHERE task_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("querying logs for %s: %w", id, err)
	}
	defer rows.Close()

	var entries []types.LogEntry
	for rows.Next() {
		var at, level string
		var input sql.NullString
		var e types.LogEntry
		if err := rows.Scan(&at, &level, &input, &e.Message); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		e.Time = parseTime(at)
		e.Level = types.LogLevel(level)
		e.Input = input.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (types.Task, error) {
	var t types.Task
	var op, inputs, status string
	var created, started, finished string
	var result sql.NullString
	if err := sc.Scan(&t.ID, &op, &inputs, &t.OutputDir, &status, &t.Progress,
		&result, &created, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, err
		}
		return types.Task{}, fmt.Errorf("scanning task: %w", err)
	}
	t.Operation = types.Operation(op)
	t.Status = types.Status(status)
	if err := json.Unmarshal([]byte(inputs), &t.InputPaths); err != nil {
		return types.Task{}, fmt.Errorf("decoding input paths of %s: %w", t.ID, err)
	}
	if result.Valid {
		var r types.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return types.Task{}, fmt.Errorf("decoding result of %s: %w", t.ID, err)
		}
		t.Result = &r
	}
	t.CreatedAt = parseTime(created)
	t.StartedAt = parseTime(started)
	t.FinishedAt = parseTime(finished)
	return t, nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
