package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/coachdesk/internal/model"
)

const sessionColumns = `id, student_id, date, title, agent, map, notes, vod_link, status, created_at, updated_at`

// PostgresSessionRepo はPostgreSQLを使用したコーチングセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var status string
	err := row.Scan(
		&s.ID, &s.StudentID, &s.Date, &s.Title, &s.Agent, &s.Map,
		&s.Notes, &s.VODLink, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	return s, nil
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, student_id, date, title, agent, map, notes, vod_link, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		session.ID, session.StudentID, session.Date, session.Title, session.Agent, session.Map,
		session.Notes, session.VODLink, string(session.Status), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// Update は日付・メモ・VODリンク・メタデータ・状態を上書きし、更新後のセッションを返す。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`UPDATE sessions
		 SET date = $2, title = $3, agent = $4, map = $5, notes = $6, vod_link = $7, status = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		session.ID, session.Date, session.Title, session.Agent, session.Map,
		session.Notes, session.VODLink, string(session.Status),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return s, nil
}

// Delete はセッションを削除する。ノートはCASCADE削除される。
func (r *PostgresSessionRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectAffected(result)
}

// ListByStudent は生徒のセッションを日付の新しい順に返す。
func (r *PostgresSessionRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE student_id = $1 ORDER BY date DESC, created_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
