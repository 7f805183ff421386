package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/review"
	"github.com/hitoshi/coachdesk/internal/vod"
)

func newDetailService() *mockReviewService {
	return &mockReviewService{
		getSessionDetailFn: func(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error) {
			return &review.SessionDetail{
				Session: model.Session{
					ID:        sessionID,
					StudentID: studentID,
					Date:      time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
					VODLink:   "https://medal.tv/clips/abc123",
					Status:    model.SessionStatusPending,
				},
				Notes: []review.NoteView{
					{Note: model.Note{ID: "n1", Timestamp: 65, Question: "Why peek?"}, Label: "1:05"},
				},
				Player: vod.Player{
					Kind:     vod.PlayerMedal,
					Link:     "https://medal.tv/clips/abc123",
					EmbedURL: "https://medal.tv/games/valorant/clip/abc123?invite=cr-test",
				},
				ViewVersion: 4,
			}, nil
		},
	}
}

func TestReviewHandler_GetSessionDetail_ReturnsDetailWithETag(t *testing.T) {
	recorder := &mockRecorder{}
	h := NewReviewHandler(newDetailService(), recorder)

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil)
	w := serveWithParams(h.GetSessionDetail, req, studentRequester, map[string]string{"studentID": "student-1", "sessionID": "s-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("ETag"); !strings.HasPrefix(got, `W/"session-s-1-4-`) {
		t.Errorf("ETag = %q, want prefix %q", got, `W/"session-s-1-4-`)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	// If-None-Matchなしでは再検証として記録しない
	if len(recorder.revalidations) != 0 {
		t.Errorf("revalidations = %v, want none", recorder.revalidations)
	}

	body := decodeBody(t, w)
	session := body["session"].(map[string]any)
	if session["date"] != "2024-03-09" {
		t.Errorf("date = %v, want 2024-03-09", session["date"])
	}
	notes := body["notes"].([]any)
	if len(notes) != 1 || notes[0].(map[string]any)["label"] != "1:05" {
		t.Errorf("notes = %v", notes)
	}
	player := body["player"].(map[string]any)
	if player["kind"] != "medal" || player["embed_url"] != "https://medal.tv/games/valorant/clip/abc123?invite=cr-test" {
		t.Errorf("player = %v", player)
	}
}

func TestReviewHandler_GetSessionDetail_NotModified(t *testing.T) {
	recorder := &mockRecorder{}
	h := NewReviewHandler(newDetailService(), recorder)
	params := map[string]string{"studentID": "student-1", "sessionID": "s-1"}

	first := serveWithParams(h.GetSessionDetail,
		httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil), studentRequester, params)
	etag := first.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil)
	req.Header.Set("If-None-Match", etag)
	w := serveWithParams(h.GetSessionDetail, req, studentRequester, map[string]string{"studentID": "student-1", "sessionID": "s-1"})

	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotModified)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body should be empty, got %q", w.Body.String())
	}
	if len(recorder.revalidations) != 1 || !recorder.revalidations[0] {
		t.Errorf("revalidations = %v, want [true]", recorder.revalidations)
	}
}

func TestReviewHandler_GetSessionDetail_StaleETag_ReturnsBody(t *testing.T) {
	recorder := &mockRecorder{}
	h := NewReviewHandler(newDetailService(), recorder)

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil)
	req.Header.Set("If-None-Match", `W/"session-s-1-3"`)
	w := serveWithParams(h.GetSessionDetail, req, studentRequester, map[string]string{"studentID": "student-1", "sessionID": "s-1"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(recorder.revalidations) != 1 || recorder.revalidations[0] {
		t.Errorf("revalidations = %v, want [false]", recorder.revalidations)
	}
}

// TestReviewHandler_GetSessionDetail_ChangedContentAtSameVersion_ReturnsBody は
// 世代番号が進まなかった場合でも、内容が変わっていれば古いETagで304にならないことを検証する。
func TestReviewHandler_GetSessionDetail_ChangedContentAtSameVersion_ReturnsBody(t *testing.T) {
	svc := newDetailService()
	h := NewReviewHandler(svc, &mockRecorder{})
	params := map[string]string{"studentID": "student-1", "sessionID": "s-1"}

	first := serveWithParams(h.GetSessionDetail,
		httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil), studentRequester, params)
	oldETag := first.Header().Get("ETag")

	// 回答が追加されたが view_version は 4 のまま
	base := svc.getSessionDetailFn
	svc.getSessionDetailFn = func(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error) {
		detail, err := base(ctx, r, studentID, sessionID)
		if err != nil {
			return nil, err
		}
		detail.Notes[0].Note.Answer = "Hold the angle instead."
		return detail, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/s-1", nil)
	req.Header.Set("If-None-Match", oldETag)
	w := serveWithParams(h.GetSessionDetail, req, studentRequester, params)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("ETag"); got == oldETag {
		t.Errorf("ETag did not change: %q", got)
	}
	notes := decodeBody(t, w)["notes"].([]any)
	if notes[0].(map[string]any)["answer"] != "Hold the angle instead." {
		t.Errorf("notes = %v", notes)
	}
}

// TestReviewHandler_GetSessionDetail_Forbidden_RedirectsToLanding は
// 他の生徒の詳細を開くと自分のトップページへ303で戻されることを検証する。
func TestReviewHandler_GetSessionDetail_Forbidden_RedirectsToLanding(t *testing.T) {
	svc := &mockReviewService{
		getSessionDetailFn: func(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error) {
			return nil, model.NewForbiddenError(access.StudentLanding)
		},
	}
	h := NewReviewHandler(svc, &mockRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-2/sessions/s-1", nil)
	w := serveWithParams(h.GetSessionDetail, req, studentRequester, map[string]string{"studentID": "student-2", "sessionID": "s-1"})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != access.StudentLanding {
		t.Errorf("Location = %q, want %q", loc, access.StudentLanding)
	}
}

func TestReviewHandler_GetSessionDetail_NotFound(t *testing.T) {
	svc := &mockReviewService{
		getSessionDetailFn: func(ctx context.Context, r access.Requester, studentID, sessionID string) (*review.SessionDetail, error) {
			return nil, model.NewSessionNotFoundError(sessionID)
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/students/student-1/sessions/missing", nil)
	w := serveWithParams(h.GetSessionDetail, req, coachRequester, map[string]string{"studentID": "student-1", "sessionID": "missing"})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := decodeBody(t, w); body["code"] != model.ErrCodeSessionNotFound {
		t.Errorf("code = %v, want %s", body["code"], model.ErrCodeSessionNotFound)
	}
}

func TestReviewHandler_CreateSession_PassesInput(t *testing.T) {
	var got review.CreateSessionInput
	svc := &mockReviewService{
		createSessionFn: func(ctx context.Context, r access.Requester, studentID string, in review.CreateSessionInput) (*model.Session, error) {
			got = in
			return &model.Session{
				ID:        "s-new",
				StudentID: studentID,
				Date:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
				Agent:     in.Agent,
				Status:    model.SessionStatusPending,
			}, nil
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/students/student-1/sessions",
		strings.NewReader(`{"date":"2024-05-01","agent":"Jett","map":"Ascent","vod_link":"https://medal.tv/clips/x"}`))
	w := serveWithParams(h.CreateSession, req, coachRequester, map[string]string{"studentID": "student-1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Date != "2024-05-01" || got.Agent != "Jett" || got.Map != "Ascent" || got.VODLink != "https://medal.tv/clips/x" {
		t.Errorf("input = %+v", got)
	}
	session := decodeBody(t, w)["session"].(map[string]any)
	if session["status"] != "pending" {
		t.Errorf("status = %v, want pending", session["status"])
	}
}

func TestReviewHandler_UpdateSession_OmittedFieldsAreNil(t *testing.T) {
	var got review.UpdateSessionInput
	svc := &mockReviewService{
		updateSessionFn: func(ctx context.Context, r access.Requester, sessionID string, in review.UpdateSessionInput) (*model.Session, error) {
			got = in
			return &model.Session{ID: sessionID}, nil
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/sessions/s-1", strings.NewReader(`{"notes":"watch minimap","status":"reviewed"}`))
	w := serveWithParams(h.UpdateSession, req, coachRequester, map[string]string{"id": "s-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Title != nil || got.Agent != nil || got.Map != nil {
		t.Errorf("omitted metadata should be nil: %+v", got)
	}
	if got.Status == nil || *got.Status != "reviewed" {
		t.Errorf("status = %v, want reviewed", got.Status)
	}
}

// TestReviewHandler_AddNote_Ignored は空の質問が無視された場合に
// ignored付きの成功レスポンスを返すことを検証する。
func TestReviewHandler_AddNote_Ignored(t *testing.T) {
	svc := &mockReviewService{
		addNoteFn: func(ctx context.Context, r access.Requester, sessionID string, in review.AddNoteInput) (*model.Note, error) {
			return nil, nil
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s-1/notes", strings.NewReader(`{"timestamp":"1:00","question":"   "}`))
	w := serveWithParams(h.AddNote, req, studentRequester, map[string]string{"id": "s-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["ignored"] != true {
		t.Errorf("body = %v, want success and ignored", body)
	}
}

func TestReviewHandler_AddNote_Created(t *testing.T) {
	svc := &mockReviewService{
		addNoteFn: func(ctx context.Context, r access.Requester, sessionID string, in review.AddNoteInput) (*model.Note, error) {
			return &model.Note{ID: "n-1", SessionID: sessionID, Timestamp: 187, Question: in.Question}, nil
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s-1/notes", strings.NewReader(`{"timestamp":"3:07","question":"Rotate?"}`))
	w := serveWithParams(h.AddNote, req, studentRequester, map[string]string{"id": "s-1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	note := decodeBody(t, w)["note"].(map[string]any)
	if note["timestamp"] != float64(187) || note["label"] != "3:07" {
		t.Errorf("note = %v", note)
	}
}

func TestReviewHandler_AnswerQuestion(t *testing.T) {
	t.Run("回答を設定したノートを返す", func(t *testing.T) {
		h := NewReviewHandler(&mockReviewService{}, nil)

		req := httptest.NewRequest(http.MethodPut, "/api/notes/n-1/answer", strings.NewReader(`{"answer":"Hold the angle"}`))
		w := serveWithParams(h.AnswerQuestion, req, coachRequester, map[string]string{"id": "n-1"})

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		note := decodeBody(t, w)["note"].(map[string]any)
		if note["answer"] != "Hold the angle" {
			t.Errorf("answer = %v", note["answer"])
		}
	})

	t.Run("空の回答が無視された場合", func(t *testing.T) {
		svc := &mockReviewService{
			answerQuestionFn: func(ctx context.Context, r access.Requester, noteID string, in review.AnswerInput) (*model.Note, error) {
				return nil, nil
			},
		}
		h := NewReviewHandler(svc, nil)

		req := httptest.NewRequest(http.MethodPut, "/api/notes/n-1/answer", strings.NewReader(`{"answer":""}`))
		w := serveWithParams(h.AnswerQuestion, req, coachRequester, map[string]string{"id": "n-1"})

		if body := decodeBody(t, w); body["ignored"] != true {
			t.Errorf("body = %v, want ignored", body)
		}
	})

	t.Run("空の回答が拒否された場合は400", func(t *testing.T) {
		svc := &mockReviewService{
			answerQuestionFn: func(ctx context.Context, r access.Requester, noteID string, in review.AnswerInput) (*model.Note, error) {
				return nil, model.NewValidationError("answer must not be blank")
			},
		}
		h := NewReviewHandler(svc, nil)

		req := httptest.NewRequest(http.MethodPut, "/api/notes/n-1/answer", strings.NewReader(`{"answer":""}`))
		w := serveWithParams(h.AnswerQuestion, req, coachRequester, map[string]string{"id": "n-1"})

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestReviewHandler_DeleteNote_Forbidden_Returns403WithLanding(t *testing.T) {
	svc := &mockReviewService{
		deleteNoteFn: func(ctx context.Context, r access.Requester, noteID string) error {
			return model.NewForbiddenError(access.StudentLanding)
		},
	}
	h := NewReviewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/notes/n-1", nil)
	w := serveWithParams(h.DeleteNote, req, studentRequester, map[string]string{"id": "n-1"})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeBody(t, w); body["action"] != access.StudentLanding {
		t.Errorf("action = %v, want %s", body["action"], access.StudentLanding)
	}
}

func TestReviewHandler_UpdateNoteAndDeleteSession(t *testing.T) {
	h := NewReviewHandler(&mockReviewService{}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/notes/n-1", strings.NewReader(`{"timestamp":"0:30","question":"Utility?"}`))
	w := serveWithParams(h.UpdateNote, req, coachRequester, map[string]string{"id": "n-1"})
	if w.Code != http.StatusOK {
		t.Errorf("update note status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/s-1", nil)
	w = serveWithParams(h.DeleteSession, req, coachRequester, map[string]string{"id": "s-1"})
	if w.Code != http.StatusOK {
		t.Errorf("delete session status = %d, want %d", w.Code, http.StatusOK)
	}
}
