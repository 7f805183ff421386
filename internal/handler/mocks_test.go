package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/middleware"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/review"
	"github.com/hitoshi/coachdesk/internal/roadmap"
	"github.com/hitoshi/coachdesk/internal/user"
)

// --- モック定義 ---

type mockRoadmapService struct {
	createRoadmapFn func(ctx context.Context, r access.Requester, studentID string, in roadmap.CreateRoadmapInput) (*model.Roadmap, error)
	updateRoadmapFn func(ctx context.Context, r access.Requester, roadmapID string, in roadmap.UpdateRoadmapInput) (*model.Roadmap, error)
	deleteRoadmapFn func(ctx context.Context, r access.Requester, roadmapID string) error
	addTaskFn       func(ctx context.Context, r access.Requester, roadmapID string, in roadmap.AddTaskInput) (*model.Task, error)
	updateTaskFn    func(ctx context.Context, r access.Requester, taskID string, in roadmap.UpdateTaskInput) (*model.Task, error)
	toggleTaskFn    func(ctx context.Context, r access.Requester, taskID string) (*model.Task, error)
	deleteTaskFn    func(ctx context.Context, r access.Requester, taskID string) error
}

func (m *mockRoadmapService) CreateRoadmap(ctx context.Context, r access.Requester, studentID string, in roadmap.CreateRoadmapInput) (*model.Roadmap, error) {
	if m.createRoadmapFn != nil {
		return m.createRoadmapFn(ctx, r, studentID, in)
	}
	return &model.Roadmap{ID: "roadmap-1", StudentID: studentID, Title: in.Title, Status: model.RoadmapStatusActive}, nil
}

func (m *mockRoadmapService) UpdateRoadmap(ctx context.Context, r access.Requester, roadmapID string, in roadmap.UpdateRoadmapInput) (*model.Roadmap, error) {
	if m.updateRoadmapFn != nil {
		return m.updateRoadmapFn(ctx, r, roadmapID, in)
	}
	return &model.Roadmap{ID: roadmapID, Title: in.Title, Status: model.RoadmapStatus(in.Status)}, nil
}

func (m *mockRoadmapService) DeleteRoadmap(ctx context.Context, r access.Requester, roadmapID string) error {
	if m.deleteRoadmapFn != nil {
		return m.deleteRoadmapFn(ctx, r, roadmapID)
	}
	return nil
}

func (m *mockRoadmapService) AddTask(ctx context.Context, r access.Requester, roadmapID string, in roadmap.AddTaskInput) (*model.Task, error) {
	if m.addTaskFn != nil {
		return m.addTaskFn(ctx, r, roadmapID, in)
	}
	return &model.Task{ID: "task-1", RoadmapID: roadmapID, Title: in.Title, Description: in.Description}, nil
}

func (m *mockRoadmapService) UpdateTask(ctx context.Context, r access.Requester, taskID string, in roadmap.UpdateTaskInput) (*model.Task, error) {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, r, taskID, in)
	}
	return &model.Task{ID: taskID, Title: in.Title, Description: in.Description}, nil
}

func (m *mockRoadmapService) ToggleTaskCompletion(ctx context.Context, r access.Requester, taskID string) (*model.Task, error) {
	if m.toggleTaskFn != nil {
		return m.toggleTaskFn(ctx, r, taskID)
	}
	return &model.Task{ID: taskID, IsCompleted: true}, nil
}

func (m *mockRoadmapService) DeleteTask(ctx context.Context, r access.Requester, taskID string) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, r, taskID)
	}
	return nil
}

type mockReviewService struct {
	createSessionFn    func(ctx context.Context, r access.Requester, studentID string, in review.CreateSessionInput) (*model.Session, error)
	updateSessionFn    func(ctx context.Context, r access.Requester, sessionID string, in review.UpdateSessionInput) (*model.Session, error)
	deleteSessionFn    func(ctx context.Context, r access.Requester, sessionID string) error
	addNoteFn          func(ctx context.Context, r access.Requester, sessionID string, in review.AddNoteInput) (*model.Note, error)
	updateNoteFn       func(ctx context.Context, r access.Requester, noteID string, in review.UpdateNoteInput) (*model.Note, error)
	deleteNoteFn       func(ctx context.Context, r access.Requester, noteID string) error
	answerQuestionFn   func(ctx context.Context, r access.Requester, noteID string, in review.AnswerInput) (*model.Note, error)
	getSessionDetailFn func(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error)
}

func (m *mockReviewService) CreateSession(ctx context.Context, r access.Requester, studentID string, in review.CreateSessionInput) (*model.Session, error) {
	if m.createSessionFn != nil {
		return m.createSessionFn(ctx, r, studentID, in)
	}
	return &model.Session{ID: "session-1", StudentID: studentID, Status: model.SessionStatusPending}, nil
}

func (m *mockReviewService) UpdateSession(ctx context.Context, r access.Requester, sessionID string, in review.UpdateSessionInput) (*model.Session, error) {
	if m.updateSessionFn != nil {
		return m.updateSessionFn(ctx, r, sessionID, in)
	}
	return &model.Session{ID: sessionID, Notes: in.Notes}, nil
}

func (m *mockReviewService) DeleteSession(ctx context.Context, r access.Requester, sessionID string) error {
	if m.deleteSessionFn != nil {
		return m.deleteSessionFn(ctx, r, sessionID)
	}
	return nil
}

func (m *mockReviewService) AddNote(ctx context.Context, r access.Requester, sessionID string, in review.AddNoteInput) (*model.Note, error) {
	if m.addNoteFn != nil {
		return m.addNoteFn(ctx, r, sessionID, in)
	}
	return &model.Note{ID: "note-1", SessionID: sessionID, Question: in.Question}, nil
}

func (m *mockReviewService) UpdateNote(ctx context.Context, r access.Requester, noteID string, in review.UpdateNoteInput) (*model.Note, error) {
	if m.updateNoteFn != nil {
		return m.updateNoteFn(ctx, r, noteID, in)
	}
	return &model.Note{ID: noteID, Question: in.Question}, nil
}

func (m *mockReviewService) DeleteNote(ctx context.Context, r access.Requester, noteID string) error {
	if m.deleteNoteFn != nil {
		return m.deleteNoteFn(ctx, r, noteID)
	}
	return nil
}

func (m *mockReviewService) AnswerQuestion(ctx context.Context, r access.Requester, noteID string, in review.AnswerInput) (*model.Note, error) {
	if m.answerQuestionFn != nil {
		return m.answerQuestionFn(ctx, r, noteID, in)
	}
	return &model.Note{ID: noteID, Answer: in.Answer}, nil
}

func (m *mockReviewService) GetSessionDetail(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error) {
	if m.getSessionDetailFn != nil {
		return m.getSessionDetailFn(ctx, r, studentID, sessionID)
	}
	return &review.SessionDetail{Session: model.Session{ID: sessionID, StudentID: studentID}}, nil
}

type mockUserService struct {
	listStudentsFn   func(ctx context.Context, r access.Requester) ([]*model.User, error)
	getDashboardFn   func(ctx context.Context, r access.Requester, studentID string) (*user.Dashboard, error)
	updateSettingsFn func(ctx context.Context, r access.Requester, studentID string, in user.SettingsInput) (*model.User, error)
}

func (m *mockUserService) ListStudents(ctx context.Context, r access.Requester) ([]*model.User, error) {
	if m.listStudentsFn != nil {
		return m.listStudentsFn(ctx, r)
	}
	return []*model.User{}, nil
}

func (m *mockUserService) GetDashboard(ctx context.Context, r access.Requester, studentID string) (*user.Dashboard, error) {
	if m.getDashboardFn != nil {
		return m.getDashboardFn(ctx, r, studentID)
	}
	return &user.Dashboard{Student: model.User{ID: studentID, Role: model.RoleStudent}}, nil
}

func (m *mockUserService) UpdateStudentSettings(ctx context.Context, r access.Requester, studentID string, in user.SettingsInput) (*model.User, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, r, studentID, in)
	}
	return &model.User{ID: studentID, Gamertag: in.Gamertag, Rank: in.Rank, MainAgents: in.MainAgents}, nil
}

func (m *mockUserService) Landing(r access.Requester) string {
	return access.LandingPath(r)
}

// mockRecorder は条件付きGETの記録を保持する。
type mockRecorder struct {
	revalidations []bool
}

func (m *mockRecorder) RecordRevalidation(notModified bool) {
	m.revalidations = append(m.revalidations, notModified)
}

// --- ヘルパー ---

var (
	coachRequester   = access.Requester{UserID: "coach-1", Role: model.RoleCoach, Authenticated: true}
	studentRequester = access.Requester{UserID: "student-1", Role: model.RoleStudent, Authenticated: true}
)

// serveWithParams はchiのURLパラメータとRequesterを設定してハンドラーを実行する。
func serveWithParams(h http.HandlerFunc, req *http.Request, requester access.Requester, params map[string]string) *httptest.ResponseRecorder {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.ContextWithRequester(ctx, requester)

	w := httptest.NewRecorder()
	h(w, req.WithContext(ctx))
	return w
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}
