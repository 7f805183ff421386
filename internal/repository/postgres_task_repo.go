package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/coachdesk/internal/model"
)

const taskColumns = `id, roadmap_id, title, description, is_completed, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

func scanTask(row rowScanner) (*model.Task, error) {
	t := &model.Task{}
	if err := row.Scan(&t.ID, &t.RoadmapID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, roadmap_id, title, description, is_completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.RoadmapID, task.Title, task.Description, task.IsCompleted, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

// Update はタイトルと説明を上書きし、更新後のタスクを返す。
func (r *PostgresTaskRepo) Update(ctx context.Context, id, title, description string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET title = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, title, description,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// ToggleCompletion は完了フラグを反転し、更新後のタスクを返す。
// 読み取りと書き込みを1文で行うため、同時に2回反転しても結果は元に戻る。
func (r *PostgresTaskRepo) ToggleCompletion(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET is_completed = NOT is_completed, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	return t, nil
}

// Delete はタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectAffected(result)
}

// ListByRoadmapIDs は複数ロードマップのタスクを作成順に返す。
func (r *PostgresTaskRepo) ListByRoadmapIDs(ctx context.Context, roadmapIDs []string) ([]*model.Task, error) {
	if len(roadmapIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE roadmap_id = ANY($1::uuid[])
		 ORDER BY created_at, id`,
		pq.Array(roadmapIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// StudentIDByTask はタスクを所有する生徒のIDを返す。見つからない場合は空文字を返す。
func (r *PostgresTaskRepo) StudentIDByTask(ctx context.Context, taskID string) (string, error) {
	var studentID string
	err := r.db.QueryRowContext(ctx,
		`SELECT rm.student_id FROM tasks t
		 JOIN roadmaps rm ON rm.id = t.roadmap_id
		 WHERE t.id = $1`,
		taskID,
	).Scan(&studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve task owner: %w", err)
	}
	return studentID, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
