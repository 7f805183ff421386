// Package user は生徒名簿、ダッシュボード、プロフィールのドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/mutation"
	"github.com/hitoshi/coachdesk/internal/repository"
	"github.com/hitoshi/coachdesk/internal/roadmap"
)

// Checker はアクセス判定インターフェース。
type Checker interface {
	Authorize(ctx context.Context, r access.Requester, studentID string) error
	RequireCoach(r access.Requester) error
}

// RoadmapLister は進捗付きロードマップ一覧の取得インターフェース。
type RoadmapLister interface {
	ListForStudent(ctx context.Context, studentID string) ([]roadmap.RoadmapProgress, error)
}

// SessionLister はセッション一覧の取得インターフェース。
type SessionLister interface {
	ListSessions(ctx context.Context, studentID string) ([]*model.Session, error)
}

// Validator は入力検証インターフェース。
type Validator interface {
	Struct(s any) error
}

// StaleMarker は変更後に生徒の画面データを古いものとして印を付けるインターフェース。
type StaleMarker interface {
	MarkStale(ctx context.Context, studentID string)
}

// SettingsInput は生徒プロフィール更新の入力。
type SettingsInput struct {
	Gamertag   string   `json:"gamertag" validate:"notblank,max=50"`
	Rank       string   `json:"rank" validate:"notblank,max=50"`
	MainAgents []string `json:"main_agents" validate:"max=10,dive,max=50"`
}

// Dashboard は生徒ダッシュボードのデータ。
type Dashboard struct {
	Student     model.User
	Roadmaps    []roadmap.RoadmapProgress
	Sessions    []*model.Session
	ViewVersion int64
}

// Service はユーザー管理のサービス層。
type Service struct {
	users       repository.UserRepository
	assignments repository.CoachAssignmentRepository
	checker     Checker
	roadmaps    RoadmapLister
	sessions    SessionLister
	validator   Validator
	views       StaleMarker
	tracker     *mutation.Tracker
	policy      access.Policy
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	assignments repository.CoachAssignmentRepository,
	checker Checker,
	roadmaps RoadmapLister,
	sessions SessionLister,
	validator Validator,
	views StaleMarker,
	tracker *mutation.Tracker,
	policy access.Policy,
) *Service {
	if tracker == nil {
		tracker = mutation.NewTracker(nil, nil)
	}
	return &Service{
		users:       users,
		assignments: assignments,
		checker:     checker,
		roadmaps:    roadmaps,
		sessions:    sessions,
		validator:   validator,
		views:       views,
		tracker:     tracker,
		policy:      policy,
	}
}

// ListStudents は生徒の一覧を新しい順に返す。コーチのみ利用できる。
// assignedポリシーでは担当している生徒のみを返す。
func (s *Service) ListStudents(ctx context.Context, r access.Requester) ([]*model.User, error) {
	if err := s.checker.RequireCoach(r); err != nil {
		return nil, err
	}

	var (
		students []*model.User
		err      error
	)
	if s.policy == access.PolicyAssigned {
		students, err = s.assignments.ListStudents(ctx, r.UserID)
	} else {
		students, err = s.users.ListByRole(ctx, model.RoleStudent)
	}
	if err != nil {
		return nil, fmt.Errorf("生徒一覧の取得に失敗しました: %w", err)
	}
	if students == nil {
		students = []*model.User{}
	}
	return students, nil
}

// GetDashboard は生徒のプロフィール、ロードマップ、セッションをまとめて返す。
func (s *Service) GetDashboard(ctx context.Context, r access.Requester, studentID string) (*Dashboard, error) {
	if err := s.checker.Authorize(ctx, r, studentID); err != nil {
		return nil, err
	}
	student, err := s.findStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	roadmaps, err := s.roadmaps.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListSessions(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Student:     *student,
		Roadmaps:    roadmaps,
		Sessions:    sessions,
		ViewVersion: student.ViewVersion,
	}, nil
}

// UpdateStudentSettings は生徒のゲーマータグ、ランク、メインエージェントを更新する。
// メインエージェントは重複を除き、入力の順序を保つ。
func (s *Service) UpdateStudentSettings(ctx context.Context, r access.Requester, studentID string, in SettingsInput) (_ *model.User, err error) {
	op := s.tracker.Begin("update_settings")
	defer func() { op.End(err) }()

	if err := s.checker.Authorize(ctx, r, studentID); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, op.Persistence(err)
	}
	if _, err := s.findStudent(ctx, studentID); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, op.Persistence(err)
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateSettings(ctx, studentID,
		strings.TrimSpace(in.Gamertag),
		strings.TrimSpace(in.Rank),
		dedupeAgents(in.MainAgents),
	)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewStudentNotFoundError(studentID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return updated, nil
}

// Landing は役割に応じたトップページのパスを返す。
func (s *Service) Landing(r access.Requester) string {
	return access.LandingPath(r)
}

// GrantCoach はメールアドレスで指定したユーザーをコーチにする。
func (s *Service) GrantCoach(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	if u.Role == model.RoleCoach {
		return u, nil
	}

	if err := s.users.SetRole(ctx, u.ID, model.RoleCoach); err != nil {
		return nil, fmt.Errorf("役割の変更に失敗しました: %w", err)
	}
	u.Role = model.RoleCoach

	slog.Info("コーチ権限を付与しました",
		slog.String("user_id", u.ID),
	)
	return u, nil
}

// AssignCoach はコーチに生徒を担当させる。既に担当している場合は何もしない。
func (s *Service) AssignCoach(ctx context.Context, coachEmail, studentEmail string) error {
	coach, err := s.users.FindByEmail(ctx, strings.TrimSpace(coachEmail))
	if err != nil {
		return fmt.Errorf("コーチの取得に失敗しました: %w", err)
	}
	if coach == nil {
		return model.NewUserNotFoundError()
	}
	if coach.Role != model.RoleCoach {
		return model.NewValidationError(fmt.Sprintf("%s is not a coach", coachEmail))
	}

	student, err := s.users.FindByEmail(ctx, strings.TrimSpace(studentEmail))
	if err != nil {
		return fmt.Errorf("生徒の取得に失敗しました: %w", err)
	}
	if student == nil {
		return model.NewUserNotFoundError()
	}
	if student.Role != model.RoleStudent {
		return model.NewValidationError(fmt.Sprintf("%s is not a student", studentEmail))
	}

	if err := s.assignments.Assign(ctx, coach.ID, student.ID); err != nil {
		return fmt.Errorf("担当の登録に失敗しました: %w", err)
	}

	slog.Info("コーチの担当を登録しました",
		slog.String("coach_id", coach.ID),
		slog.String("student_id", student.ID),
	)
	return nil
}

// findStudent は生徒を取得する。存在しない、または生徒でない場合はSTUDENT_NOT_FOUNDを返す。
func (s *Service) findStudent(ctx context.Context, studentID string) (*model.User, error) {
	if !repository.ValidID(studentID) {
		return nil, model.NewStudentNotFoundError(studentID)
	}
	u, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("生徒の取得に失敗しました: %w", err)
	}
	if u == nil || u.Role != model.RoleStudent {
		return nil, model.NewStudentNotFoundError(studentID)
	}
	return u, nil
}

func dedupeAgents(agents []string) []string {
	seen := make(map[string]struct{}, len(agents))
	result := make([]string, 0, len(agents))
	for _, a := range agents {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		result = append(result, a)
	}
	return result
}
