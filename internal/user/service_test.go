package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/repository"
	"github.com/hitoshi/coachdesk/internal/roadmap"
	"github.com/hitoshi/coachdesk/internal/validation"
)

const (
	studentID = "11111111-1111-1111-1111-111111111111"
	otherID   = "22222222-2222-2222-2222-222222222222"
	coachID   = "33333333-3333-3333-3333-333333333333"
)

var (
	studentReq = access.Requester{UserID: studentID, Role: model.RoleStudent, Authenticated: true}
	otherReq   = access.Requester{UserID: otherID, Role: model.RoleStudent, Authenticated: true}
	coachReq   = access.Requester{UserID: coachID, Role: model.RoleCoach, Authenticated: true}
)

// --- モック ---

type mockUserRepo struct {
	users            map[string]*model.User
	listByRoleFn     func(ctx context.Context, role model.Role) ([]*model.User, error)
	updateSettingsFn func(ctx context.Context, id, gamertag, rank string, agents []string) (*model.User, error)
	setRoleCalls     []string
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	if m.listByRoleFn != nil {
		return m.listByRoleFn(ctx, role)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateSettings(ctx context.Context, id, gamertag, rank string, agents []string) (*model.User, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, id, gamertag, rank, agents)
	}
	return &model.User{ID: id, Gamertag: gamertag, Rank: rank, MainAgents: agents}, nil
}
func (m *mockUserRepo) SetRole(ctx context.Context, id string, role model.Role) error {
	m.setRoleCalls = append(m.setRoleCalls, id)
	return nil
}
func (m *mockUserRepo) BumpViewVersion(ctx context.Context, id string) (int64, error) {
	return 0, nil
}

type mockAssignmentRepo struct {
	assigned   map[[2]string]bool
	listFn     func(ctx context.Context, coachID string) ([]*model.User, error)
	assignArgs [][2]string
}

func (m *mockAssignmentRepo) Assign(ctx context.Context, coachID, studentID string) error {
	m.assignArgs = append(m.assignArgs, [2]string{coachID, studentID})
	return nil
}
func (m *mockAssignmentRepo) IsAssigned(ctx context.Context, coachID, studentID string) (bool, error) {
	return m.assigned[[2]string{coachID, studentID}], nil
}
func (m *mockAssignmentRepo) ListStudents(ctx context.Context, coachID string) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, coachID)
	}
	return nil, nil
}

type mockRoadmaps struct {
	listFn func(ctx context.Context, studentID string) ([]roadmap.RoadmapProgress, error)
}

func (m *mockRoadmaps) ListForStudent(ctx context.Context, studentID string) ([]roadmap.RoadmapProgress, error) {
	if m.listFn != nil {
		return m.listFn(ctx, studentID)
	}
	return []roadmap.RoadmapProgress{}, nil
}

type mockSessions struct{}

func (mockSessions) ListSessions(ctx context.Context, studentID string) ([]*model.Session, error) {
	return []*model.Session{{ID: "s1", StudentID: studentID}}, nil
}

type mockViews struct {
	stale []string
}

func (m *mockViews) MarkStale(ctx context.Context, studentID string) {
	m.stale = append(m.stale, studentID)
}

func newUsers() *mockUserRepo {
	return &mockUserRepo{users: map[string]*model.User{
		studentID: {ID: studentID, Email: "student@example.com", Role: model.RoleStudent, ViewVersion: 3},
		otherID:   {ID: otherID, Email: "other@example.com", Role: model.RoleStudent},
		coachID:   {ID: coachID, Email: "coach@example.com", Role: model.RoleCoach},
	}}
}

func newTestService(users *mockUserRepo, assignments *mockAssignmentRepo, policy access.Policy, views *mockViews) *Service {
	checker := access.NewChecker(users, assignments, policy)
	return NewService(users, assignments, checker, &mockRoadmaps{}, mockSessions{}, validation.New(), views, nil, policy)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

// TestListStudents_CoachOnly は生徒による名簿取得が拒否されることを検証する。
func TestListStudents_CoachOnly(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	_, err := svc.ListStudents(context.Background(), studentReq)
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
}

// TestListStudents_OpenPolicy はopenポリシーで全生徒が返されることを検証する。
func TestListStudents_OpenPolicy(t *testing.T) {
	users := newUsers()
	users.listByRoleFn = func(ctx context.Context, role model.Role) ([]*model.User, error) {
		if role != model.RoleStudent {
			t.Errorf("role = %q, want student", role)
		}
		return []*model.User{users.users[otherID], users.users[studentID]}, nil
	}
	svc := newTestService(users, &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	students, err := svc.ListStudents(context.Background(), coachReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(students) != 2 {
		t.Errorf("len = %d, want 2", len(students))
	}
}

// TestListStudents_AssignedPolicy はassignedポリシーで担当生徒のみが返されることを検証する。
func TestListStudents_AssignedPolicy(t *testing.T) {
	users := newUsers()
	users.listByRoleFn = func(ctx context.Context, role model.Role) ([]*model.User, error) {
		t.Fatal("ListByRole must not be used under the assigned policy")
		return nil, nil
	}
	assignments := &mockAssignmentRepo{listFn: func(ctx context.Context, id string) ([]*model.User, error) {
		return []*model.User{users.users[studentID]}, nil
	}}
	svc := newTestService(users, assignments, access.PolicyAssigned, &mockViews{})

	students, err := svc.ListStudents(context.Background(), coachReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(students) != 1 || students[0].ID != studentID {
		t.Errorf("students = %+v", students)
	}
}

// TestGetDashboard は本人のダッシュボードが世代番号付きで返されることを検証する。
func TestGetDashboard(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	d, err := svc.GetDashboard(context.Background(), studentReq, studentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Student.ID != studentID || d.ViewVersion != 3 {
		t.Errorf("dashboard = %+v", d)
	}
	if len(d.Sessions) != 1 || d.Roadmaps == nil {
		t.Errorf("dashboard content = %+v", d)
	}
}

// TestGetDashboard_Denied は他の生徒と未担当コーチのアクセスが拒否されることを検証する。
func TestGetDashboard_Denied(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})
	_, err := svc.GetDashboard(context.Background(), otherReq, studentID)
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)

	svc = newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyAssigned, &mockViews{})
	_, err = svc.GetDashboard(context.Background(), coachReq, studentID)
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)

	assigned := &mockAssignmentRepo{assigned: map[[2]string]bool{{coachID, studentID}: true}}
	svc = newTestService(newUsers(), assigned, access.PolicyAssigned, &mockViews{})
	if _, err := svc.GetDashboard(context.Background(), coachReq, studentID); err != nil {
		t.Errorf("assigned coach should have access: %v", err)
	}
}

// TestGetDashboard_NotAStudent はコーチのIDを指定した場合にNotFoundになることを検証する。
func TestGetDashboard_NotAStudent(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	_, err := svc.GetDashboard(context.Background(), coachReq, coachID)
	assertAPIErrorCode(t, err, model.ErrCodeStudentNotFound)
}

// TestUpdateStudentSettings はメインエージェントが順序を保って重複除去されることを検証する。
func TestUpdateStudentSettings(t *testing.T) {
	users := newUsers()
	var gotAgents []string
	users.updateSettingsFn = func(ctx context.Context, id, gamertag, rank string, agents []string) (*model.User, error) {
		gotAgents = agents
		return &model.User{ID: id, Gamertag: gamertag, Rank: rank, MainAgents: agents}, nil
	}
	views := &mockViews{}
	svc := newTestService(users, &mockAssignmentRepo{}, access.PolicyOpen, views)

	u, err := svc.UpdateStudentSettings(context.Background(), studentReq, studentID, SettingsInput{
		Gamertag:   " TenZ ",
		Rank:       "Immortal 2",
		MainAgents: []string{"Jett", "Raze", "Jett", " ", "Omen"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Gamertag != "TenZ" {
		t.Errorf("Gamertag = %q", u.Gamertag)
	}
	want := []string{"Jett", "Raze", "Omen"}
	if len(gotAgents) != len(want) {
		t.Fatalf("agents = %v, want %v", gotAgents, want)
	}
	for i := range want {
		if gotAgents[i] != want[i] {
			t.Errorf("agents[%d] = %q, want %q", i, gotAgents[i], want[i])
		}
	}
	if len(views.stale) != 1 {
		t.Errorf("stale = %v", views.stale)
	}
}

// TestUpdateStudentSettings_Blank は空のゲーマータグとランクが拒否されることを検証する。
func TestUpdateStudentSettings_Blank(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	_, err := svc.UpdateStudentSettings(context.Background(), studentReq, studentID, SettingsInput{Gamertag: "", Rank: "Gold"})
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)

	_, err = svc.UpdateStudentSettings(context.Background(), studentReq, studentID, SettingsInput{Gamertag: "x", Rank: "  "})
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
}

// TestUpdateStudentSettings_Vanished は更新直前に消えた生徒がNotFoundになることを検証する。
func TestUpdateStudentSettings_Vanished(t *testing.T) {
	users := newUsers()
	users.updateSettingsFn = func(ctx context.Context, id, gamertag, rank string, agents []string) (*model.User, error) {
		return nil, repository.ErrNotFound
	}
	svc := newTestService(users, &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	_, err := svc.UpdateStudentSettings(context.Background(), coachReq, studentID, SettingsInput{Gamertag: "x", Rank: "y"})
	assertAPIErrorCode(t, err, model.ErrCodeStudentNotFound)
}

// TestLanding は役割ごとのトップページを検証する。
func TestLanding(t *testing.T) {
	svc := newTestService(newUsers(), &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	if got := svc.Landing(coachReq); got != access.CoachLanding {
		t.Errorf("coach landing = %q", got)
	}
	if got := svc.Landing(studentReq); got != access.StudentLanding {
		t.Errorf("student landing = %q", got)
	}
	if got := svc.Landing(access.Requester{}); got != access.SignInLanding {
		t.Errorf("anonymous landing = %q", got)
	}
}

// TestGrantCoach はメールアドレスで指定したユーザーがコーチになることを検証する。
func TestGrantCoach(t *testing.T) {
	users := newUsers()
	svc := newTestService(users, &mockAssignmentRepo{}, access.PolicyOpen, &mockViews{})

	u, err := svc.GrantCoach(context.Background(), "other@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != model.RoleCoach || len(users.setRoleCalls) != 1 {
		t.Errorf("role = %q, calls = %v", u.Role, users.setRoleCalls)
	}

	// 既にコーチの場合は何もしない
	if _, err := svc.GrantCoach(context.Background(), "coach@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users.setRoleCalls) != 1 {
		t.Errorf("SetRole should not be called again: %v", users.setRoleCalls)
	}

	_, err = svc.GrantCoach(context.Background(), "nobody@example.com")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestAssignCoach は役割を確認してから担当を登録することを検証する。
func TestAssignCoach(t *testing.T) {
	assignments := &mockAssignmentRepo{}
	svc := newTestService(newUsers(), assignments, access.PolicyOpen, &mockViews{})

	if err := svc.AssignCoach(context.Background(), "coach@example.com", "student@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments.assignArgs) != 1 || assignments.assignArgs[0] != [2]string{coachID, studentID} {
		t.Errorf("assign args = %v", assignments.assignArgs)
	}

	err := svc.AssignCoach(context.Background(), "other@example.com", "student@example.com")
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)

	err = svc.AssignCoach(context.Background(), "coach@example.com", "coach@example.com")
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
}
