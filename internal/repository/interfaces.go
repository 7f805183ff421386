// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/hitoshi/coachdesk/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しないことを示す。
// 取得系（Find*）は見つからない場合にnilを返し、このエラーは使わない。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// ListByRole は指定した役割のユーザーを作成日時の新しい順に返す。
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)

	// UpdateSettings は生徒のプロフィール（ゲーマータグ、ランク、メインエージェント）を更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	UpdateSettings(ctx context.Context, id, gamertag, rank string, mainAgents []string) (*model.User, error)

	// SetRole はユーザーの役割を変更する。対象が存在しない場合はErrNotFoundを返す。
	SetRole(ctx context.Context, id string, role model.Role) error

	// BumpViewVersion は生徒の画面データの世代番号を1つ進め、新しい値を返す。
	BumpViewVersion(ctx context.Context, id string) (int64, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーに新しいidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// AuthSessionRepository はログインセッションの永続化インターフェース。
type AuthSessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AuthSession, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CoachAssignmentRepository はコーチと生徒の担当関係の永続化インターフェース。
type CoachAssignmentRepository interface {
	// Assign は担当関係を登録する。既に登録済みの場合は何もしない。
	Assign(ctx context.Context, coachID, studentID string) error
	// IsAssigned はコーチが生徒の担当かを返す。
	IsAssigned(ctx context.Context, coachID, studentID string) (bool, error)
	// ListStudents はコーチの担当生徒を作成日時の新しい順に返す。
	ListStudents(ctx context.Context, coachID string) ([]*model.User, error)
}

// RoadmapRepository はロードマップの永続化インターフェース。
type RoadmapRepository interface {
	// Create はロードマップを作成する。
	Create(ctx context.Context, roadmap *model.Roadmap) error
	// FindByID は指定IDのロードマップを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Roadmap, error)
	// Update はタイトルと状態を上書きし、更新後のロードマップを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id, title string, status model.RoadmapStatus) (*model.Roadmap, error)
	// Delete はロードマップを削除する。タスクはCASCADE削除される。
	// 対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// ListByStudent は生徒のロードマップを作成日時の新しい順に返す。
	ListByStudent(ctx context.Context, studentID string) ([]*model.Roadmap, error)
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)
	// Update はタイトルと説明を上書きし、更新後のタスクを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id, title, description string) (*model.Task, error)
	// ToggleCompletion は完了フラグを行単位で原子的に反転し、更新後のタスクを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	ToggleCompletion(ctx context.Context, id string) (*model.Task, error)
	// Delete はタスクを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// ListByRoadmapIDs は複数ロードマップのタスクを作成順に返す。
	ListByRoadmapIDs(ctx context.Context, roadmapIDs []string) ([]*model.Task, error)
	// StudentIDByTask はタスクを所有する生徒のIDを返す。見つからない場合は空文字を返す。
	StudentIDByTask(ctx context.Context, taskID string) (string, error)
}

// SessionRepository はコーチングセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Update は日付・メモ・VODリンク・メタデータ・状態を上書きし、更新後のセッションを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, session *model.Session) (*model.Session, error)
	// Delete はセッションを削除する。ノートはCASCADE削除される。
	// 対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// ListByStudent は生徒のセッションを日付の新しい順に返す。
	ListByStudent(ctx context.Context, studentID string) ([]*model.Session, error)
}

// NoteRepository はセッションノートの永続化インターフェース。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error
	// FindByID は指定IDのノートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Note, error)
	// Update は質問とタイムスタンプを上書きし、更新後のノートを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id, question string, timestamp int) (*model.Note, error)
	// SetAnswer は回答を設定し、更新後のノートを返す。
	// 対象が存在しない場合はErrNotFoundを返す。
	SetAnswer(ctx context.Context, id, answer string) (*model.Note, error)
	// Delete はノートを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// ListBySession はセッションのノートを作成順に返す。
	ListBySession(ctx context.Context, sessionID string) ([]*model.Note, error)
	// StudentIDByNote はノートを所有する生徒のIDを返す。見つからない場合は空文字を返す。
	StudentIDByNote(ctx context.Context, noteID string) (string, error)
}

// expectAffected は更新系クエリの結果が1行以上に作用したかを検証する。
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ValidID はIDがUUID形式かを判定する。
// UUID列に不正な文字列を渡すとクエリ自体が失敗するため、呼び出し前に弾く。
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}
