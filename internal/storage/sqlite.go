package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"timetask/internal/task"
	"timetask/pkg/logx"
)

// Config configures the task store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// SQLite persists tasks in one embedded relational table.
type SQLite struct {
	db  *sql.DB
	log logx.Logger
}

// expectedColumns is the schema contract. If an existing table's column
// set differs, the table is dropped and recreated; stored tasks are lost.
// Acceptable for this non-critical scheduler, and logged loudly.
var expectedColumns = []string{
	"id", "scheduled_time", "recurrence", "content",
	"target_type", "user_id", "user_name",
	"user_group_name", "group_title", "is_processed",
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	scheduled_time TEXT NOT NULL,
	recurrence TEXT NOT NULL,
	content TEXT NOT NULL,
	target_type INTEGER NOT NULL DEFAULT 0,
	user_id TEXT,
	user_name TEXT,
	user_group_name TEXT,
	group_title TEXT,
	is_processed INTEGER NOT NULL DEFAULT 0
)`

// Open opens (or creates) the database and validates the schema.
func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &SQLite{db: db, log: log}
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the tasks table, dropping an existing one first when
// its column set no longer matches expectedColumns.
func (s *SQLite) initialize(ctx context.Context) error {
	cols, err := s.tableColumns(ctx, "tasks")
	if err != nil {
		return err
	}
	if len(cols) > 0 && !sameColumnSet(cols, expectedColumns) {
		s.log.Warn("tasks table schema is incompatible; dropping and recreating (stored tasks are discarded)",
			logx.Any("found", cols))
		if _, err := s.db.ExecContext(ctx, "DROP TABLE tasks"); err != nil {
			return fmt.Errorf("drop incompatible tasks table: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (s *SQLite) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

// LoadAll returns every stored task. Rows whose recurrence tag cannot be
// decoded are deleted on the spot so one corrupt record does not poison
// every future startup.
func (s *SQLite) LoadAll(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scheduled_time, recurrence, content, target_type,
		        user_id, user_name, user_group_name, group_title, is_processed
		 FROM tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out     []task.Task
		corrupt []string
	)
	for rows.Next() {
		var (
			t          task.Task
			recurrence string
			targetType int
			userID     sql.NullString
			userName   sql.NullString
			groupName  sql.NullString
			groupTitle sql.NullString
			processed  int
		)
		if err := rows.Scan(&t.ID, &t.ScheduledAt, &recurrence, &t.Payload, &targetType,
			&userID, &userName, &groupName, &groupTitle, &processed); err != nil {
			return nil, err
		}

		rec, err := task.ParseRecurrence(recurrence)
		if err != nil {
			s.log.Error("dropping corrupt task row", logx.String("id", t.ID), logx.Err(err))
			corrupt = append(corrupt, t.ID)
			continue
		}
		t.Recurrence = rec
		t.Origin = task.Origin{
			UserID:    userID.String,
			UserName:  userName.String,
			GroupName: groupName.String,
		}
		if targetType == 1 {
			t.Dest = task.GroupByTitle(groupTitle.String)
		} else {
			t.Dest = task.DirectTo(userID.String)
		}
		t.Processed = processed != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range corrupt {
		if err := s.Delete(ctx, id); err != nil {
			s.log.Warn("failed to delete corrupt task row", logx.String("id", id), logx.Err(err))
		}
	}
	return out, nil
}

// Insert stores a new task. Returns task.ErrDuplicateID on a primary key
// collision.
func (s *SQLite) Insert(ctx context.Context, t task.Task) error {
	targetType := 0
	groupTitle := ""
	if t.Dest.Kind == task.TargetGroup {
		targetType = 1
		groupTitle = t.Dest.GroupTitle
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, scheduled_time, recurrence, content, target_type,
		                   user_id, user_name, user_group_name, group_title, is_processed)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ScheduledAt, t.Recurrence.Wire(), t.Payload, targetType,
		nullStr(t.Origin.UserID), nullStr(t.Origin.UserName), nullStr(t.Origin.GroupName),
		nullStr(groupTitle), boolInt(t.Processed),
	)
	if err != nil && isUniqueViolation(err) {
		return task.ErrDuplicateID
	}
	return err
}

// Delete removes a task row. Deleting an absent id is not an error.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// SetProcessed updates the per-day fired flag. Absent ids are a no-op.
func (s *SQLite) SetProcessed(ctx context.Context, id string, v bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET is_processed = ? WHERE id = ?`, boolInt(v), id)
	return err
}

// ResetProcessed clears the fired flag on every row that has it set and
// reports how many rows changed.
func (s *SQLite) ResetProcessed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET is_processed = 0 WHERE is_processed = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
