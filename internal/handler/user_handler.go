package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/middleware"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListStudents(ctx context.Context, r access.Requester) ([]*model.User, error)
	GetDashboard(ctx context.Context, r access.Requester, studentID string) (*user.Dashboard, error)
	UpdateStudentSettings(ctx context.Context, r access.Requester, studentID string, in user.SettingsInput) (*model.User, error)
	Landing(r access.Requester) string
}

// UserHandler は生徒一覧・ダッシュボード・プロフィールのHTTPハンドラー。
type UserHandler struct {
	service  UserServiceInterface
	recorder RevalidationRecorder
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, recorder RevalidationRecorder) *UserHandler {
	return &UserHandler{
		service:  service,
		recorder: recorder,
	}
}

// Home は役割に応じたトップページへリダイレクトする。
// GET /api/home
func (h *UserHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.service.Landing(middleware.RequesterFromContext(r.Context())), http.StatusSeeOther)
}

// ListStudents はコーチ向けに生徒一覧を返す。
// GET /api/students
func (h *UserHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context(), middleware.RequesterFromContext(r.Context()))
	if err != nil {
		handleReadError(w, r, err)
		return
	}

	resp := make([]userResponse, 0, len(students))
	for _, s := range students {
		resp = append(resp, toUserResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": resp})
}

// GetDashboard は生徒ダッシュボードを返す。If-None-Matchが一致すれば304を返す。
// GET /api/students/{studentID}
func (h *UserHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	dashboard, err := h.service.GetDashboard(r.Context(), middleware.RequesterFromContext(r.Context()), studentID)
	if err != nil {
		handleReadError(w, r, err)
		return
	}

	writeCachedJSON(w, r, h.recorder, "dashboard-"+studentID, dashboard.ViewVersion, toDashboardResponse(dashboard))
}

// UpdateSettings は生徒のゲーマータグ、ランク、メインエージェントを更新する。
// PUT /api/students/{studentID}/settings
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in user.SettingsInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	updated, err := h.service.UpdateStudentSettings(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "studentID"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "student", toUserResponse(updated))
}
