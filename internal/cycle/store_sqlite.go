package cycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"opscycle/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	id              TEXT PRIMARY KEY,
	client_ref      TEXT NOT NULL,
	template_id     TEXT NOT NULL,
	assignment_id   TEXT NOT NULL DEFAULT '',
	period_start    DATETIME NOT NULL,
	period_end      DATETIME NOT NULL,
	label           TEXT NOT NULL DEFAULT '',
	generation_mode TEXT NOT NULL,
	status          TEXT NOT NULL,
	generated_at    DATETIME NOT NULL,
	generated_by    TEXT NOT NULL DEFAULT '',
	UNIQUE(client_ref, template_id, period_start, period_end)
);
CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	cycle_id          TEXT NOT NULL,
	task_def_id       TEXT NOT NULL,
	client_ref        TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	position          INTEGER NOT NULL,
	status            TEXT NOT NULL,
	assignee          TEXT NOT NULL DEFAULT '',
	due_at            DATETIME,
	started_at        DATETIME,
	completed_at      DATETIME,
	completed_by      TEXT NOT NULL DEFAULT '',
	evidence_required INTEGER NOT NULL DEFAULT 0,
	evidence_note     TEXT NOT NULL DEFAULT '',
	linked_time_entry TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	UNIQUE(linked_time_entry)
);
CREATE INDEX IF NOT EXISTS idx_tasks_cycle ON tasks(cycle_id);
CREATE INDEX IF NOT EXISTS idx_tasks_def ON tasks(task_def_id);
`

// SQLiteStore persists cycles and tasks in a SQLite database. The unique
// index on (client_ref, template_id, period_start, period_end) is what
// makes generation idempotent under concurrent callers: the second
// insert loses at the constraint, not at a check-then-act lookup.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// ensures the schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateCycle(ctx context.Context, c model.Cycle, tasks []model.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles
			(id, client_ref, template_id, assignment_id, period_start, period_end,
			 label, generation_mode, status, generated_at, generated_by)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		string(c.ID), string(c.ClientRef), string(c.TemplateID), string(c.AssignmentID),
		c.PeriodStart.UTC(), c.PeriodEnd.UTC(),
		c.Label, string(c.GenerationMode), string(c.Status),
		c.GeneratedAt.UTC(), string(c.GeneratedBy),
	)
	if err != nil {
		if isUniqueViolation(err, "cycles.") {
			return fmt.Errorf("%w: client=%s template=%s", ErrCycleExists, c.ClientRef, c.TemplateID)
		}
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, t := range tasks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks
				(id, cycle_id, task_def_id, client_ref, title, description, position,
				 status, assignee, due_at, started_at, completed_at, completed_by,
				 evidence_required, evidence_note, linked_time_entry, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			string(t.ID), string(t.CycleID), string(t.TaskDefID), string(t.ClientRef),
			t.Title, t.Description, t.Position,
			string(t.Status), string(t.Assignee),
			nullTime(t.DueAt), nullTime(t.StartedAt), nullTime(t.CompletedAt), string(t.CompletedBy),
			boolInt(t.EvidenceRequired), t.EvidenceNote, nullRef(t.LinkedTimeEntry),
			t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id model.CycleID) (model.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT * FROM cycles WHERE id = ?`, string(id))
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cycle{}, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListCycles(ctx context.Context, f ListFilter) ([]model.Cycle, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM cycles WHERE 1=1")
	args := []any{}

	if f.Client != "" {
		q.WriteString(" AND client_ref=?")
		args = append(args, string(f.Client))
	}
	if f.Template != "" {
		q.WriteString(" AND template_id=?")
		args = append(args, string(f.Template))
	}
	if f.Status != "" {
		q.WriteString(" AND status=?")
		args = append(args, string(f.Status))
	}
	q.WriteString(" ORDER BY period_start ASC, id ASC")

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []model.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetCycleStatus(ctx context.Context, id model.CycleID, status model.CycleStatus) (model.Cycle, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE cycles SET status=? WHERE id=?`, string(status), string(id))
	if err != nil {
		return model.Cycle{}, fmt.Errorf("update cycle status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Cycle{}, err
	}
	if n == 0 {
		return model.Cycle{}, ErrNotFound
	}
	return s.GetCycle(ctx, id)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id model.TaskID) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT * FROM tasks WHERE id = ?`, string(id))
	t, err := scanStoredTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrTaskNotFound
	}
	return t, err
}

func (s *SQLiteStore) TasksForCycle(ctx context.Context, id model.CycleID) ([]model.Task, error) {
	if _, err := s.GetCycle(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT * FROM tasks WHERE cycle_id = ? ORDER BY position ASC, id ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanStoredTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, position=?, status=?, assignee=?,
			due_at=?, started_at=?, completed_at=?, completed_by=?,
			evidence_required=?, evidence_note=?, updated_at=?
		WHERE id=?`,
		t.Title, t.Description, t.Position, string(t.Status), string(t.Assignee),
		nullTime(t.DueAt), nullTime(t.StartedAt), nullTime(t.CompletedAt), string(t.CompletedBy),
		boolInt(t.EvidenceRequired), t.EvidenceNote, t.UpdatedAt.UTC(),
		string(t.ID),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Task{}, err
	}
	if n == 0 {
		return model.Task{}, ErrTaskNotFound
	}
	return s.GetTask(ctx, t.ID)
}

func (s *SQLiteStore) LinkTimeEntry(ctx context.Context, id model.TaskID, ref model.TimeEntryRef) (model.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET linked_time_entry=?, updated_at=? WHERE id=?`,
		nullRef(ref), time.Now().UTC(), string(id))
	if err != nil {
		if isUniqueViolation(err, "tasks.linked_time_entry") {
			return model.Task{}, fmt.Errorf("%w: %s", ErrTimeEntryTaken, ref)
		}
		return model.Task{}, fmt.Errorf("link time entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Task{}, err
	}
	if n == 0 {
		return model.Task{}, ErrTaskNotFound
	}
	return s.GetTask(ctx, id)
}

func (s *SQLiteStore) AnyTaskForDef(ctx context.Context, defID model.TaskDefID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM tasks WHERE task_def_id = ? LIMIT 1`, string(defID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (model.Cycle, error) {
	var c model.Cycle
	var id, client, template, assignment, mode, status, by string
	err := s.Scan(
		&id, &client, &template, &assignment,
		&c.PeriodStart, &c.PeriodEnd,
		&c.Label, &mode, &status,
		&c.GeneratedAt, &by,
	)
	if err != nil {
		return model.Cycle{}, err
	}
	c.ID = model.CycleID(id)
	c.ClientRef = model.ClientRef(client)
	c.TemplateID = model.TemplateID(template)
	c.AssignmentID = model.AssignmentID(assignment)
	c.GenerationMode = model.GenerationMode(mode)
	c.Status = model.CycleStatus(status)
	c.GeneratedBy = model.UserRef(by)
	return c, nil
}

func scanStoredTask(s scanner) (model.Task, error) {
	var t model.Task
	var id, cycleID, defID, client, status, assignee, completedBy string
	var evidenceRequired int
	var dueAt, startedAt, completedAt sql.NullTime
	var timeEntry sql.NullString

	err := s.Scan(
		&id, &cycleID, &defID, &client,
		&t.Title, &t.Description, &t.Position,
		&status, &assignee,
		&dueAt, &startedAt, &completedAt, &completedBy,
		&evidenceRequired, &t.EvidenceNote, &timeEntry,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.ID = model.TaskID(id)
	t.CycleID = model.CycleID(cycleID)
	t.TaskDefID = model.TaskDefID(defID)
	t.ClientRef = model.ClientRef(client)
	t.Status = model.TaskStatus(status)
	t.Assignee = model.UserRef(assignee)
	t.CompletedBy = model.UserRef(completedBy)
	t.EvidenceRequired = evidenceRequired != 0
	if dueAt.Valid {
		t.DueAt = &dueAt.Time
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if timeEntry.Valid {
		t.LinkedTimeEntry = model.TimeEntryRef(timeEntry.String)
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullRef(r model.TimeEntryRef) any {
	if r == "" {
		return nil
	}
	return string(r)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error, fragment string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, fragment)
}
