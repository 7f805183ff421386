package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/coachdesk/internal/model"
)

const noteColumns = `id, session_id, timestamp_seconds, question, answer, created_at, updated_at`

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

func scanNote(row rowScanner) (*model.Note, error) {
	n := &model.Note{}
	if err := row.Scan(&n.ID, &n.SessionID, &n.Timestamp, &n.Question, &n.Answer, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, session_id, timestamp_seconds, question, answer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		note.ID, note.SessionID, note.Timestamp, note.Question, note.Answer, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// FindByID は指定IDのノートを取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, id string) (*model.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return n, nil
}

// Update は質問とタイムスタンプを上書きし、更新後のノートを返す。
func (r *PostgresNoteRepo) Update(ctx context.Context, id, question string, timestamp int) (*model.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx,
		`UPDATE notes SET question = $2, timestamp_seconds = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+noteColumns,
		id, question, timestamp,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return n, nil
}

// SetAnswer は回答を設定し、更新後のノートを返す。
func (r *PostgresNoteRepo) SetAnswer(ctx context.Context, id, answer string) (*model.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx,
		`UPDATE notes SET answer = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+noteColumns,
		id, answer,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to answer note: %w", err)
	}
	return n, nil
}

// Delete はノートを削除する。
func (r *PostgresNoteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return expectAffected(result)
}

// ListBySession はセッションのノートを作成順に返す。
// タイムスタンプ順への並べ替えは作成順を保ったまま呼び出し側で行う。
func (r *PostgresNoteRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// StudentIDByNote はノートを所有する生徒のIDを返す。見つからない場合は空文字を返す。
func (r *PostgresNoteRepo) StudentIDByNote(ctx context.Context, noteID string) (string, error) {
	var studentID string
	err := r.db.QueryRowContext(ctx,
		`SELECT s.student_id FROM notes n
		 JOIN sessions s ON s.id = n.session_id
		 WHERE n.id = $1`,
		noteID,
	).Scan(&studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve note owner: %w", err)
	}
	return studentID, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
