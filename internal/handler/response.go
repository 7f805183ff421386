package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/view"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// mutationErrorResponse は変更系APIの失敗レスポンス。
type mutationErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`
}

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
}

// handleReadError は読み取り系APIのエラーを書き込む。
// アクセス拒否の場合は役割ごとのトップページへ303でリダイレクトする。
func handleReadError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeForbidden && r.Method == http.MethodGet {
		http.Redirect(w, r, apiErr.Action, http.StatusSeeOther)
		return
	}
	handleServiceError(w, err)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	if apiErr.IsNotFound() {
		return http.StatusNotFound
	}
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, errCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case errCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeMutationSuccess は変更系APIの成功レスポンスを書き込む。
// keyが空でなければ、対象レコードをそのキーで含める。
func writeMutationSuccess(w http.ResponseWriter, statusCode int, key string, record any) {
	body := map[string]any{"success": true}
	if key != "" {
		body[key] = record
	}
	writeJSON(w, statusCode, body)
}

// writeMutationIgnored は空入力で何もしなかった変更の成功レスポンスを書き込む。
func writeMutationIgnored(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
}

// writeMutationError は変更系APIの失敗レスポンスを書き込む。
// アクセス拒否の場合はactionにトップページのパスが入る。
func writeMutationError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("internal server error", slog.String("error", err.Error()))
		apiErr = internalError()
	}

	resp := mutationErrorResponse{
		Success: false,
		Error:   apiErr.Message,
		Code:    apiErr.Code,
	}
	if apiErr.Code == model.ErrCodeForbidden {
		resp.Action = apiErr.Action
	}
	writeJSON(w, mapAPIErrorToHTTPStatus(apiErr), resp)
}

// writeCachedJSON はvをJSONとして書き込む。本文と世代番号からETagを付け、
// If-None-Matchが一致すれば本文を省いて304を返す。
func writeCachedJSON(w http.ResponseWriter, r *http.Request, recorder RevalidationRecorder, scope string, version int64, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
		return
	}
	body = append(body, '\n')

	etag := view.ETag(scope, version, body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")

	if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" {
		notModified := view.Matches(ifNoneMatch, etag)
		if recorder != nil {
			recorder.RecordRevalidation(notModified)
		}
		if notModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 空ボディはゼロ値として扱う。
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return invalidRequestError()
	}
	return nil
}

const (
	errCodeInvalidRequest = "INVALID_REQUEST"
	errCodeUnauthorized   = "UNAUTHORIZED"
)

func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     errCodeInvalidRequest,
		Message:  "Invalid request body.",
		Category: "validation",
		Action:   "Check the request and try again.",
	}
}

func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
