// Package access は生徒単位のデータに対するアクセス判定を提供する。
//
// 判定は単一の役割チェックのみ: 本人か、コーチであれば許可する。
// ACCESS_POLICY=assigned の場合のみ、コーチに担当割り当てを追加で要求する。
package access

import (
	"context"
	"fmt"

	"github.com/hitoshi/coachdesk/internal/model"
)

// 役割ごとのトップページ
const (
	CoachLanding   = "/coach/dashboard"
	StudentLanding = "/student/dashboard"
	SignInLanding  = "/auth/google/login"
)

// Policy はコーチのアクセス範囲を表す。
type Policy string

const (
	// PolicyOpen は全コーチが全生徒にアクセスできる。
	PolicyOpen Policy = "open"
	// PolicyAssigned は担当割り当てのあるコーチのみアクセスできる。
	PolicyAssigned Policy = "assigned"
)

// Requester はリクエスト元のユーザーを表す。
type Requester struct {
	UserID        string
	Role          model.Role
	Authenticated bool
}

// IsCoach はリクエスト元がコーチかを返す。
func (r Requester) IsCoach() bool {
	return r.Authenticated && r.Role == model.RoleCoach
}

// CanAccessStudentRecord は生徒studentIDのデータにアクセスできるかを判定する。
// 本人またはコーチであれば許可する。未認証は常に拒否する。
func CanAccessStudentRecord(r Requester, studentID string) bool {
	if !r.Authenticated || r.UserID == "" {
		return false
	}
	return r.UserID == studentID || r.Role == model.RoleCoach
}

// LandingPath は役割に応じたトップページのパスを返す。
func LandingPath(r Requester) string {
	if !r.Authenticated {
		return SignInLanding
	}
	switch r.Role {
	case model.RoleCoach:
		return CoachLanding
	case model.RoleStudent:
		return StudentLanding
	default:
		return SignInLanding
	}
}

// UserFinder はユーザー取得インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AssignmentChecker はコーチの担当割り当て確認インターフェース。
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, coachID, studentID string) (bool, error)
}

// Checker はアクセス判定を行う。
// 全ての読み取り・更新の前に呼び出される。
type Checker struct {
	users       UserFinder
	assignments AssignmentChecker
	policy      Policy
}

// NewChecker はCheckerの新しいインスタンスを生成する。
// policyが未知の値の場合はPolicyOpenとして扱う。
func NewChecker(users UserFinder, assignments AssignmentChecker, policy Policy) *Checker {
	if policy != PolicyAssigned {
		policy = PolicyOpen
	}
	return &Checker{users: users, assignments: assignments, policy: policy}
}

// Resolve はユーザーIDからRequesterを組み立てる。
// ユーザーIDが空、またはユーザーが存在しない場合は未認証のRequesterを返す。
func (c *Checker) Resolve(ctx context.Context, userID string) (Requester, error) {
	if userID == "" {
		return Requester{}, nil
	}
	user, err := c.users.FindByID(ctx, userID)
	if err != nil {
		return Requester{}, fmt.Errorf("failed to load requester: %w", err)
	}
	if user == nil {
		return Requester{}, nil
	}
	return Requester{UserID: user.ID, Role: user.Role, Authenticated: true}, nil
}

// Authorize は生徒studentIDのデータへのアクセスを検証する。
// 拒否時は役割ごとのトップページを持つFORBIDDENエラーを返す。
func (c *Checker) Authorize(ctx context.Context, r Requester, studentID string) error {
	if !CanAccessStudentRecord(r, studentID) {
		return model.NewForbiddenError(LandingPath(r))
	}
	if r.UserID == studentID || c.policy != PolicyAssigned {
		return nil
	}

	assigned, err := c.assignments.IsAssigned(ctx, r.UserID, studentID)
	if err != nil {
		return fmt.Errorf("failed to check coach assignment: %w", err)
	}
	if !assigned {
		return model.NewForbiddenError(LandingPath(r))
	}
	return nil
}

// RequireCoach はリクエスト元がコーチであることを検証する。
func (c *Checker) RequireCoach(r Requester) error {
	if !r.IsCoach() {
		return model.NewForbiddenError(LandingPath(r))
	}
	return nil
}
