package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bytedance/sonic"
	_ "github.com/mattn/go-sqlite3"

	"schedule-board/domain"
)

// SQLiteStore persists the board in a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the board database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS tasks (
		id   TEXT NOT NULL PRIMARY KEY,
		body TEXT NOT NULL,
		rev  INTEGER NOT NULL
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tasks table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads every persisted task.
func (s *SQLiteStore) Load(ctx context.Context) (domain.Tasks, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := domain.Tasks{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t domain.Task
		if err := sonic.UnmarshalString(body, &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", id, err)
		}
		t.ID = id
		tasks[id] = t
	}
	return tasks, rows.Err()
}

// Apply mirrors a committed add or delete.
func (s *SQLiteStore) Apply(ctx context.Context, ev domain.ChangeEvent) error {
	switch ev.Type {
	case domain.EventTaskAdded:
		body, err := sonic.MarshalString(ev.Task)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO tasks (id, body, rev) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET body = excluded.body, rev = excluded.rev
			WHERE excluded.rev >= tasks.rev`,
			ev.TaskID, body, int64(ev.Rev),
		)
		return err
	case domain.EventTaskDeleted:
		_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND rev <= ?`, ev.TaskID, int64(ev.Rev))
		return err
	default:
		return nil
	}
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
