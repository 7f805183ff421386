// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, coaching, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeRoadmapNotFound    = "ROADMAP_NOT_FOUND"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeNoteNotFound       = "NOTE_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeStudentNotFound    = "STUDENT_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeForbidden          = "FORBIDDEN"
)

// IsNotFound はエラーコードが「対象なし」系かを判定する。
func (e *APIError) IsNotFound() bool {
	switch e.Code {
	case ErrCodeRoadmapNotFound, ErrCodeTaskNotFound, ErrCodeSessionNotFound,
		ErrCodeNoteNotFound, ErrCodeUserNotFound, ErrCodeStudentNotFound:
		return true
	default:
		return false
	}
}

// NewRoadmapNotFoundError はロードマップ未検出エラーを生成する。
func NewRoadmapNotFoundError(roadmapID string) *APIError {
	return &APIError{
		Code:     ErrCodeRoadmapNotFound,
		Message:  fmt.Sprintf("Roadmap not found: %s", roadmapID),
		Category: "coaching",
		Action:   "Reload the page and try again.",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("Task not found: %s", taskID),
		Category: "coaching",
		Action:   "Reload the page and try again.",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("Session not found: %s", sessionID),
		Category: "coaching",
		Action:   "The session may have been deleted. Go back to the student page.",
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
func NewNoteNotFoundError(noteID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("Note not found: %s", noteID),
		Category: "coaching",
		Action:   "Reload the page and try again.",
	}
}

// NewStudentNotFoundError は生徒未検出エラーを生成する。
func NewStudentNotFoundError(studentID string) *APIError {
	return &APIError{
		Code:     ErrCodeStudentNotFound,
		Message:  fmt.Sprintf("Student not found: %s", studentID),
		Category: "coaching",
		Action:   "The student you are looking for does not exist.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  reason,
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
	}
}

// NewPersistenceError は永続化失敗エラーを生成する。
// 原因の詳細はログにのみ残し、ユーザーには操作名だけを伝える。
func NewPersistenceError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  fmt.Sprintf("Failed to %s", operation),
		Category: "system",
		Action:   "Please try again.",
	}
}

// NewForbiddenError はアクセス拒否エラーを生成する。
// landingにはリダイレクト先となる役割ごとのトップページを指定する。
func NewForbiddenError(landing string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have access to this student's records.",
		Category: "auth",
		Action:   landing,
	}
}
