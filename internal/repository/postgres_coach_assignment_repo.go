package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coachdesk/internal/model"
)

// PostgresCoachAssignmentRepo はPostgreSQLを使用した担当関係リポジトリ。
type PostgresCoachAssignmentRepo struct {
	db *sql.DB
}

// NewPostgresCoachAssignmentRepo はPostgresCoachAssignmentRepoを生成する。
func NewPostgresCoachAssignmentRepo(db *sql.DB) *PostgresCoachAssignmentRepo {
	return &PostgresCoachAssignmentRepo{db: db}
}

// Assign は担当関係を登録する。既に登録済みの場合は何もしない。
func (r *PostgresCoachAssignmentRepo) Assign(ctx context.Context, coachID, studentID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coach_students (coach_id, student_id) VALUES ($1, $2)
		 ON CONFLICT (coach_id, student_id) DO NOTHING`,
		coachID, studentID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign coach: %w", err)
	}
	return nil
}

// IsAssigned はコーチが生徒の担当かを返す。
func (r *PostgresCoachAssignmentRepo) IsAssigned(ctx context.Context, coachID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM coach_students WHERE coach_id = $1 AND student_id = $2)`,
		coachID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check coach assignment: %w", err)
	}
	return exists, nil
}

// ListStudents はコーチの担当生徒を作成日時の新しい順に返す。
func (r *PostgresCoachAssignmentRepo) ListStudents(ctx context.Context, coachID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.username, u.role, u.gamertag, u.rank, u.main_agents,
		        u.image_url, u.view_version, u.created_at, u.updated_at
		 FROM users u
		 JOIN coach_students cs ON cs.student_id = u.id
		 WHERE cs.coach_id = $1 AND u.role = 'student'
		 ORDER BY u.created_at DESC, u.id`,
		coachID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned students: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// compile-time interface check
var _ CoachAssignmentRepository = (*PostgresCoachAssignmentRepo)(nil)
