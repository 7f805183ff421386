package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/middleware"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/review"
)

// ReviewServiceInterface はセッションレビューハンドラーが必要とするサービスインターフェース。
// AddNoteとAnswerQuestionは空入力を無視した場合にnil, nilを返す。
type ReviewServiceInterface interface {
	CreateSession(ctx context.Context, r access.Requester, studentID string, in review.CreateSessionInput) (*model.Session, error)
	UpdateSession(ctx context.Context, r access.Requester, sessionID string, in review.UpdateSessionInput) (*model.Session, error)
	DeleteSession(ctx context.Context, r access.Requester, sessionID string) error
	AddNote(ctx context.Context, r access.Requester, sessionID string, in review.AddNoteInput) (*model.Note, error)
	UpdateNote(ctx context.Context, r access.Requester, noteID string, in review.UpdateNoteInput) (*model.Note, error)
	DeleteNote(ctx context.Context, r access.Requester, noteID string) error
	AnswerQuestion(ctx context.Context, r access.Requester, noteID string, in review.AnswerInput) (*model.Note, error)
	GetSessionDetail(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error)
}

// RevalidationRecorder は条件付きGETの結果を記録するインターフェース。
type RevalidationRecorder interface {
	RecordRevalidation(notModified bool)
}

// ReviewHandler はコーチングセッションとノートのHTTPハンドラー。
type ReviewHandler struct {
	service  ReviewServiceInterface
	recorder RevalidationRecorder
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface, recorder RevalidationRecorder) *ReviewHandler {
	return &ReviewHandler{service: service, recorder: recorder}
}

// GetSessionDetail はセッション詳細を返す。If-None-Matchが一致すれば304を返す。
// GET /api/students/{studentID}/sessions/{sessionID}
func (h *ReviewHandler) GetSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	detail, err := h.service.GetSessionDetail(r.Context(), middleware.RequesterFromContext(r.Context()),
		chi.URLParam(r, "studentID"), sessionID)
	if err != nil {
		handleReadError(w, r, err)
		return
	}

	writeCachedJSON(w, r, h.recorder, "session-"+sessionID, detail.ViewVersion, toSessionDetailResponse(detail))
}

// CreateSession はセッションを作成する。
// POST /api/students/{studentID}/sessions
func (h *ReviewHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var in review.CreateSessionInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	session, err := h.service.CreateSession(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "studentID"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusCreated, "session", toSessionResponse(session))
}

// UpdateSession はセッションを更新する。
// PUT /api/sessions/{id}
func (h *ReviewHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var in review.UpdateSessionInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	session, err := h.service.UpdateSession(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "session", toSessionResponse(session))
}

// DeleteSession はセッションとそのノートを削除する。
// DELETE /api/sessions/{id}
func (h *ReviewHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "", nil)
}

// AddNote はセッションに質問ノートを追加する。
// POST /api/sessions/{id}/notes
func (h *ReviewHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var in review.AddNoteInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	note, err := h.service.AddNote(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	if note == nil {
		writeMutationIgnored(w)
		return
	}
	writeMutationSuccess(w, http.StatusCreated, "note", toNoteResponse(note))
}

// UpdateNote はノートの質問とタイムスタンプを上書きする。
// PUT /api/notes/{id}
func (h *ReviewHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var in review.UpdateNoteInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	note, err := h.service.UpdateNote(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "note", toNoteResponse(note))
}

// DeleteNote はノートを削除する。
// DELETE /api/notes/{id}
func (h *ReviewHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteNote(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "", nil)
}

// AnswerQuestion はノートの質問に回答する。
// PUT /api/notes/{id}/answer
func (h *ReviewHandler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var in review.AnswerInput
	if err := decodeJSON(r, &in); err != nil {
		writeMutationError(w, err)
		return
	}

	note, err := h.service.AnswerQuestion(r.Context(), middleware.RequesterFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	if note == nil {
		writeMutationIgnored(w)
		return
	}
	writeMutationSuccess(w, http.StatusOK, "note", toNoteResponse(note))
}
