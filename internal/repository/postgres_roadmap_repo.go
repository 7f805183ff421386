package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/coachdesk/internal/model"
)

const roadmapColumns = `id, student_id, title, status, created_at, updated_at`

// PostgresRoadmapRepo はPostgreSQLを使用したロードマップリポジトリ。
type PostgresRoadmapRepo struct {
	db *sql.DB
}

// NewPostgresRoadmapRepo はPostgresRoadmapRepoを生成する。
func NewPostgresRoadmapRepo(db *sql.DB) *PostgresRoadmapRepo {
	return &PostgresRoadmapRepo{db: db}
}

func scanRoadmap(row rowScanner) (*model.Roadmap, error) {
	rm := &model.Roadmap{}
	var status string
	if err := row.Scan(&rm.ID, &rm.StudentID, &rm.Title, &status, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	rm.Status = model.RoadmapStatus(status)
	return rm, nil
}

// Create はロードマップを作成する。
func (r *PostgresRoadmapRepo) Create(ctx context.Context, roadmap *model.Roadmap) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roadmaps (id, student_id, title, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		roadmap.ID, roadmap.StudentID, roadmap.Title, string(roadmap.Status), roadmap.CreatedAt, roadmap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create roadmap: %w", err)
	}
	return nil
}

// FindByID は指定IDのロードマップを取得する。見つからない場合はnilを返す。
func (r *PostgresRoadmapRepo) FindByID(ctx context.Context, id string) (*model.Roadmap, error) {
	rm, err := scanRoadmap(r.db.QueryRowContext(ctx,
		`SELECT `+roadmapColumns+` FROM roadmaps WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find roadmap: %w", err)
	}
	return rm, nil
}

// Update はタイトルと状態を上書きし、更新後のロードマップを返す。
func (r *PostgresRoadmapRepo) Update(ctx context.Context, id, title string, status model.RoadmapStatus) (*model.Roadmap, error) {
	rm, err := scanRoadmap(r.db.QueryRowContext(ctx,
		`UPDATE roadmaps SET title = $2, status = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+roadmapColumns,
		id, title, string(status),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update roadmap: %w", err)
	}
	return rm, nil
}

// Delete はロードマップを削除する。タスクはCASCADE削除される。
func (r *PostgresRoadmapRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roadmaps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete roadmap: %w", err)
	}
	return expectAffected(result)
}

// ListByStudent は生徒のロードマップを作成日時の新しい順に返す。
func (r *PostgresRoadmapRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.Roadmap, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roadmapColumns+` FROM roadmaps WHERE student_id = $1 ORDER BY created_at DESC, id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roadmaps: %w", err)
	}
	defer rows.Close()

	var roadmaps []*model.Roadmap
	for rows.Next() {
		rm, err := scanRoadmap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roadmap: %w", err)
		}
		roadmaps = append(roadmaps, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roadmaps: %w", err)
	}
	return roadmaps, nil
}

// compile-time interface check
var _ RoadmapRepository = (*PostgresRoadmapRepo)(nil)
