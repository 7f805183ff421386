// Package model はドメインモデルを定義する。
package model

import "time"

// SessionStatus はコーチングセッションのレビュー状態を表す。
type SessionStatus string

const (
	// SessionStatusPending はレビュー待ち。
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusReviewed はレビュー済み。
	SessionStatusReviewed SessionStatus = "reviewed"
)

// Session はVODレビューを行うコーチングセッションを表す。
type Session struct {
	ID        string
	StudentID string
	Date      time.Time
	Notes     string
	VODLink   string
	Title     string
	Agent     string
	Map       string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note はセッションのVOD上の位置に紐づく質問と回答を表す。
type Note struct {
	ID        string
	SessionID string
	// Timestamp はVOD先頭からの秒数（0以上）。
	Timestamp int
	Question  string
	Answer    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
