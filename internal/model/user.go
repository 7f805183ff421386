// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleCoach はコーチ。全生徒の記録を閲覧・編集できる。
	RoleCoach Role = "coach"
	// RoleStudent は生徒。自分の記録のみ閲覧・編集できる。
	RoleStudent Role = "student"
)

// Valid はRoleが定義済みの値かを判定する。
func (r Role) Valid() bool {
	return r == RoleCoach || r == RoleStudent
}

// User はサービス利用ユーザーを表す。
// 初回サインイン時に作成され、コア処理から削除されることはない。
type User struct {
	ID         string
	Email      string
	Username   string
	Role       Role
	Gamertag   string
	Rank       string
	MainAgents []string
	ImageURL   string
	// ViewVersion は生徒の画面データの世代番号。変更操作ごとに加算される。
	ViewVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsCoach はユーザーがコーチかを返す。
func (u *User) IsCoach() bool {
	return u != nil && u.Role == RoleCoach
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// AuthSession はユーザーのログインセッションを表す。
// コーチングのSessionと区別するためAuthSessionと呼ぶ。
type AuthSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CoachAssignment はコーチと生徒の担当関係を表す。
type CoachAssignment struct {
	CoachID   string
	StudentID string
	CreatedAt time.Time
}
