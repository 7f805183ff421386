package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/middleware"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/roadmap"
)

// RoadmapServiceInterface はロードマップハンドラーが必要とするサービスインターフェース。
type RoadmapServiceInterface interface {
	CreateRoadmap(ctx context.Context, r access.Requester, studentID string, in roadmap.CreateRoadmapInput) (*model.Roadmap, error)
	UpdateRoadmap(ctx context.Context, r access.Requester, roadmapID string, in roadmap.UpdateRoadmapInput) (*model.Roadmap, error)
	DeleteRoadmap(ctx context.Context, r access.Requester, roadmapID string) error
	AddTask(ctx context.Context, r access.Requester, roadmapID string, in roadmap.AddTaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, r access.Requester, taskID string, in roadmap.UpdateTaskInput) (*model.Task, error)
	ToggleTaskCompletion(ctx context.Context, r access.Requester, taskID string) (*model.Task, error)
	DeleteTask(ctx context.Context, r access.Requester, taskID string) error
}

// RoadmapHandler はロードマップとタスクのHTTPハンドラー。
type RoadmapHandler struct {
	service RoadmapServiceInterface
}

// NewRoadmapHandler はRoadmapHandlerを生成する。
func NewRoadmapHandler(service RoadmapServiceInterface) *RoadmapHandler {
	return &RoadmapHandler{service: service}
}

// CreateRoadmap はロードマップを作成する。
// POST /api/students/{studentID}/roadmaps
func (h *RoadmapHandler) CreateRoadmap(w http.ResponseWriter, r *http.Request) {
	var in roadmap.CreateRoadmapInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	created, err := h.service.CreateRoadmap(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "studentID"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusCreated, "roadmap", toRoadmapResponse(created))
}

// UpdateRoadmap はロードマップのタイトルと状態を更新する。
// PUT /api/roadmaps/{id}
func (h *RoadmapHandler) UpdateRoadmap(w http.ResponseWriter, r *http.Request) {
	var in roadmap.UpdateRoadmapInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	updated, err := h.service.UpdateRoadmap(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "roadmap", toRoadmapResponse(updated))
}

// DeleteRoadmap はロードマップとそのタスクを削除する。
// DELETE /api/roadmaps/{id}
func (h *RoadmapHandler) DeleteRoadmap(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoadmap(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "", nil)
}

// AddTask はロードマップにタスクを追加する。
// POST /api/roadmaps/{id}/tasks
func (h *RoadmapHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	var in roadmap.AddTaskInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	task, err := h.service.AddTask(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusCreated, "task", toTaskResponse(task))
}

// UpdateTask はタスクのタイトルと説明を上書きする。
// PUT /api/tasks/{id}
func (h *RoadmapHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var in roadmap.UpdateTaskInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	task, err := h.service.UpdateTask(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "task", toTaskResponse(task))
}

// ToggleTask はタスクの完了状態を反転する。
// POST /api/tasks/{id}/toggle
func (h *RoadmapHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.ToggleTaskCompletion(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "task", toTaskResponse(task))
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *RoadmapHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "", nil)
}
