package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tealeaf2/taskgantt/internal/models"
)

// Task repository errors.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

// TaskRepository persists task snapshots.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, name, parent_id, depends_json, status, duration_days,
	due_date, created_at, last_status_update, priority, owner,
	blockers_json, tags_json, url, raw_json`

// Upsert inserts a task or updates the stored row for its id. The
// stored position is preserved for existing tasks so the snapshot keeps
// its original order.
func (r *TaskRepository) Upsert(ctx context.Context, task *models.Task) error {
	if task == nil || task.ID == "" {
		return ErrInvalidTask
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return r.upsertWithExecer(ctx, r.db, task, time.Now().UTC())
}

type taskExecer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func (r *TaskRepository) upsertWithExecer(ctx context.Context, execer taskExecer, task *models.Task, now time.Time) error {
	dependsJSON, err := marshalStrings(task.Depends)
	if err != nil {
		return fmt.Errorf("failed to marshal depends: %w", err)
	}
	tagsJSON, err := marshalStrings(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	var blockersJSON sql.NullString
	if len(task.Blockers) > 0 {
		data, err := json.Marshal(task.Blockers)
		if err != nil {
			return fmt.Errorf("failed to marshal blockers: %w", err)
		}
		blockersJSON = sql.NullString{String: string(data), Valid: true}
	}
	var rawJSON sql.NullString
	if len(task.Raw) > 0 {
		rawJSON = sql.NullString{String: string(task.Raw), Valid: true}
	}

	var position int
	if err := execer.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM tasks`,
	).Scan(&position); err != nil {
		return fmt.Errorf("failed to compute task position: %w", err)
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO tasks (
			id, name, parent_id, depends_json, status, duration_days,
			due_date, created_at, last_status_update, priority, owner,
			blockers_json, tags_json, url, raw_json, position, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			depends_json = excluded.depends_json,
			status = excluded.status,
			duration_days = excluded.duration_days,
			due_date = excluded.due_date,
			created_at = excluded.created_at,
			last_status_update = excluded.last_status_update,
			priority = excluded.priority,
			owner = excluded.owner,
			blockers_json = excluded.blockers_json,
			tags_json = excluded.tags_json,
			url = excluded.url,
			raw_json = excluded.raw_json,
			fetched_at = excluded.fetched_at
	`,
		task.ID,
		nullString(task.Name),
		nullString(task.ParentID),
		dependsJSON,
		string(task.Status),
		task.Duration,
		nullTimePtr(task.DueDate),
		nullTime(task.CreatedAt),
		nullTime(task.LastStatusUpdate),
		nullString(string(task.Priority)),
		nullString(task.Owner),
		blockersJSON,
		tagsJSON,
		nullString(task.URL),
		rawJSON,
		position,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// Get retrieves a task by id.
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return r.scanTask(row)
}

// List returns the stored snapshot in its original order.
func (r *TaskRepository) List(ctx context.Context) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := r.scanTaskFromRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task by id.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ReplaceAll swaps the stored snapshot for the given collection in one
// transaction, preserving the collection's order.
func (r *TaskRepository) ReplaceAll(ctx context.Context, tasks []models.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	now := time.Now().UTC()
	for i := range tasks {
		if tasks[i].ID == "" {
			continue
		}
		if err := r.upsertWithExecer(ctx, tx, &tasks[i], now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET position = ? WHERE id = ?`, i, tasks[i].ID,
		); err != nil {
			return fmt.Errorf("failed to set task position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Count returns the number of stored tasks.
func (r *TaskRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

func (r *TaskRepository) scanTask(row *sql.Row) (*models.Task, error) {
	task, err := r.scanTaskColumns(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) scanTaskFromRows(rows *sql.Rows) (*models.Task, error) {
	task, err := r.scanTaskColumns(rows.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) scanTaskColumns(scan func(...any) error) (*models.Task, error) {
	var task models.Task
	var name, parentID, dependsJSON, dueDate, createdAt, lastUpdate sql.NullString
	var priority, owner, blockersJSON, tagsJSON, url, rawJSON sql.NullString
	var status string

	if err := scan(
		&task.ID,
		&name,
		&parentID,
		&dependsJSON,
		&status,
		&task.Duration,
		&dueDate,
		&createdAt,
		&lastUpdate,
		&priority,
		&owner,
		&blockersJSON,
		&tagsJSON,
		&url,
		&rawJSON,
	); err != nil {
		return nil, err
	}

	task.Status = models.Status(status)
	task.Name = name.String
	task.ParentID = parentID.String
	task.Priority = models.Priority(priority.String)
	task.Owner = owner.String
	task.URL = url.String

	if dependsJSON.Valid {
		if err := json.Unmarshal([]byte(dependsJSON.String), &task.Depends); err != nil {
			r.db.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to parse task depends")
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &task.Tags); err != nil {
			r.db.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to parse task tags")
		}
	}
	if blockersJSON.Valid {
		if err := json.Unmarshal([]byte(blockersJSON.String), &task.Blockers); err != nil {
			r.db.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to parse task blockers")
		}
	}
	if rawJSON.Valid {
		task.Raw = json.RawMessage(rawJSON.String)
	}
	if dueDate.Valid {
		if t := parseTime(dueDate.String); !t.IsZero() {
			task.DueDate = &t
		}
	}
	if createdAt.Valid {
		task.CreatedAt = parseTime(createdAt.String)
	}
	if lastUpdate.Valid {
		task.LastStatusUpdate = parseTime(lastUpdate.String)
	}

	return &task, nil
}

func marshalStrings(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullTime(*t)
}
