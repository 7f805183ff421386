// Package review はコーチングセッションとVODノートのドメインロジックを提供する。
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/mutation"
	"github.com/hitoshi/coachdesk/internal/repository"
	"github.com/hitoshi/coachdesk/internal/security"
	"github.com/hitoshi/coachdesk/internal/timecode"
	"github.com/hitoshi/coachdesk/internal/vod"
)

// dateLayout はセッション日付の入力形式。
const dateLayout = "2006-01-02"

// Authorizer は生徒単位のアクセス判定インターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, r access.Requester, studentID string) error
}

// StudentFinder は生徒の存在確認に使うユーザー取得インターフェース。
type StudentFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Validator は入力検証インターフェース。
type Validator interface {
	Struct(s any) error
}

// StaleMarker は変更後に生徒の画面データを古いものとして印を付けるインターフェース。
type StaleMarker interface {
	MarkStale(ctx context.Context, studentID string)
}

// Options はServiceの動作設定。
type Options struct {
	// RejectEmptyText がtrueの場合、空の質問・回答をVALIDATION_FAILEDとして拒否する。
	// falseの場合は何もせずに成功扱いとする。
	RejectEmptyText bool
	// MedalInviteCode はMedal埋め込みURLに付与する招待コード。
	MedalInviteCode string
}

// CreateSessionInput はセッション作成の入力。
type CreateSessionInput struct {
	Date    string `json:"date" validate:"required"`
	Notes   string `json:"notes" validate:"max=10000"`
	VODLink string `json:"vod_link" validate:"max=2048"`
	Title   string `json:"title" validate:"max=200"`
	Agent   string `json:"agent" validate:"max=50"`
	Map     string `json:"map" validate:"max=50"`
}

// UpdateSessionInput はセッション更新の入力。
// Dateが空の場合は現在の日付を保つ。メタデータと状態はnilの場合に現在の値を保つ。
type UpdateSessionInput struct {
	Date    string  `json:"date"`
	Notes   string  `json:"notes" validate:"max=10000"`
	VODLink string  `json:"vod_link" validate:"max=2048"`
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Agent   *string `json:"agent" validate:"omitempty,max=50"`
	Map     *string `json:"map" validate:"omitempty,max=50"`
	Status  *string `json:"status" validate:"omitempty,oneof=pending reviewed"`
}

// AddNoteInput はノート追加の入力。Timestampは "M:SS" 形式の文字列。
type AddNoteInput struct {
	Timestamp string `json:"timestamp"`
	Question  string `json:"question" validate:"notblank,max=2000"`
}

// UpdateNoteInput はノート更新の入力。値はそのまま上書きする。
type UpdateNoteInput struct {
	Timestamp string `json:"timestamp"`
	Question  string `json:"question" validate:"max=2000"`
}

// AnswerInput は質問への回答の入力。
type AnswerInput struct {
	Answer string `json:"answer" validate:"notblank,max=5000"`
}

// NoteView は表示用のラベルを持つノート。
type NoteView struct {
	model.Note
	Label string
}

// SessionDetail はセッション詳細画面のデータ。
type SessionDetail struct {
	Session     model.Session
	Notes       []NoteView
	Player      vod.Player
	ViewVersion int64
}

// Service はセッションレビューのサービス層。
type Service struct {
	sessions  repository.SessionRepository
	notes     repository.NoteRepository
	students  StudentFinder
	authz     Authorizer
	validator Validator
	sanitizer security.TextSanitizer
	links     security.LinkGuard
	views     StaleMarker
	tracker   *mutation.Tracker
	opts      Options
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sessions repository.SessionRepository,
	notes repository.NoteRepository,
	students StudentFinder,
	authz Authorizer,
	validator Validator,
	sanitizer security.TextSanitizer,
	links security.LinkGuard,
	views StaleMarker,
	tracker *mutation.Tracker,
	opts Options,
) *Service {
	if tracker == nil {
		tracker = mutation.NewTracker(nil, nil)
	}
	if opts.MedalInviteCode == "" {
		opts.MedalInviteCode = vod.DefaultInviteCode
	}
	return &Service{
		sessions:  sessions,
		notes:     notes,
		students:  students,
		authz:     authz,
		validator: validator,
		sanitizer: sanitizer,
		links:     links,
		views:     views,
		tracker:   tracker,
		opts:      opts,
	}
}

// CreateSession は生徒に新しいセッションを作成する。状態はpendingで始まる。
func (s *Service) CreateSession(ctx context.Context, r access.Requester, studentID string, in CreateSessionInput) (_ *model.Session, err error) {
	op := s.tracker.Begin("create_session")
	defer func() { op.End(err) }()

	if err := s.authorizeStudent(ctx, op, r, studentID); err != nil {
		return nil, err
	}
	in.Notes = s.sanitizer.Sanitize(in.Notes)
	in.VODLink = strings.TrimSpace(in.VODLink)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if err := s.checkLink(in.VODLink); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &model.Session{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Date:      date,
		Notes:     in.Notes,
		VODLink:   in.VODLink,
		Title:     strings.TrimSpace(in.Title),
		Agent:     strings.TrimSpace(in.Agent),
		Map:       strings.TrimSpace(in.Map),
		Status:    model.SessionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return session, nil
}

// UpdateSession はセッションの日付・メモ・VODリンクを上書きする。
// 空のVODリンクは録画なしとして保存する。
func (s *Service) UpdateSession(ctx context.Context, r access.Requester, sessionID string, in UpdateSessionInput) (_ *model.Session, err error) {
	op := s.tracker.Begin("update_session")
	defer func() { op.End(err) }()

	current, err := s.authorizeSession(ctx, op, r, sessionID)
	if err != nil {
		return nil, err
	}
	in.Notes = s.sanitizer.Sanitize(in.Notes)
	in.VODLink = strings.TrimSpace(in.VODLink)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	next := *current
	if strings.TrimSpace(in.Date) != "" {
		if next.Date, err = parseDate(in.Date); err != nil {
			return nil, err
		}
	}
	if err := s.checkLink(in.VODLink); err != nil {
		return nil, err
	}
	next.Notes = in.Notes
	next.VODLink = in.VODLink
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	if in.Agent != nil {
		next.Agent = strings.TrimSpace(*in.Agent)
	}
	if in.Map != nil {
		next.Map = strings.TrimSpace(*in.Map)
	}
	if in.Status != nil {
		next.Status = model.SessionStatus(*in.Status)
	}

	updated, err := s.sessions.Update(ctx, &next)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, current.StudentID)
	return updated, nil
}

// DeleteSession はセッションとそのノートを削除する。
func (s *Service) DeleteSession(ctx context.Context, r access.Requester, sessionID string) (err error) {
	op := s.tracker.Begin("delete_session")
	defer func() { op.End(err) }()

	current, err := s.authorizeSession(ctx, op, r, sessionID)
	if err != nil {
		return err
	}

	err = s.sessions.Delete(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		return op.Persistence(err)
	}

	s.views.MarkStale(ctx, current.StudentID)
	return nil
}

// AddNote はセッションにVOD上の位置付きの質問を追加する。
// 解釈できないタイムスタンプは0秒として扱う。
// 質問が空の場合、RejectEmptyTextでなければ何もせずにnil, nilを返す。
func (s *Service) AddNote(ctx context.Context, r access.Requester, sessionID string, in AddNoteInput) (_ *model.Note, err error) {
	op := s.tracker.Begin("add_note")
	defer func() { op.End(err) }()

	session, err := s.authorizeSession(ctx, op, r, sessionID)
	if err != nil {
		return nil, err
	}
	in.Question = s.sanitizer.Sanitize(in.Question)
	if in.Question == "" && !s.opts.RejectEmptyText {
		op.Ignore()
		return nil, nil
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := time.Now()
	note := &model.Note{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Timestamp: timecode.Parse(in.Timestamp),
		Question:  in.Question,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, session.StudentID)
	return note, nil
}

// UpdateNote はノートの質問とタイムスタンプを上書きする。回答は変更しない。
func (s *Service) UpdateNote(ctx context.Context, r access.Requester, noteID string, in UpdateNoteInput) (_ *model.Note, err error) {
	op := s.tracker.Begin("update_note")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeNote(ctx, op, r, noteID)
	if err != nil {
		return nil, err
	}
	in.Question = s.sanitizer.Sanitize(in.Question)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	note, err := s.notes.Update(ctx, noteID, in.Question, timecode.Parse(in.Timestamp))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return note, nil
}

// DeleteNote はノートを削除する。
func (s *Service) DeleteNote(ctx context.Context, r access.Requester, noteID string) (err error) {
	op := s.tracker.Begin("delete_note")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeNote(ctx, op, r, noteID)
	if err != nil {
		return err
	}

	err = s.notes.Delete(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNoteNotFoundError(noteID)
	}
	if err != nil {
		return op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return nil
}

// AnswerQuestion はノートの質問に回答を設定する。
// 回答が空の場合、RejectEmptyTextでなければ何もせずにnil, nilを返す。
func (s *Service) AnswerQuestion(ctx context.Context, r access.Requester, noteID string, in AnswerInput) (_ *model.Note, err error) {
	op := s.tracker.Begin("answer_question")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeNote(ctx, op, r, noteID)
	if err != nil {
		return nil, err
	}
	in.Answer = s.sanitizer.Sanitize(in.Answer)
	if in.Answer == "" && !s.opts.RejectEmptyText {
		op.Ignore()
		return nil, nil
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	note, err := s.notes.SetAnswer(ctx, noteID, in.Answer)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewNoteNotFoundError(noteID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return note, nil
}

// GetSessionDetail はセッション、タイムスタンプ順のノート、再生情報を返す。
// セッションが別の生徒のものであればSESSION_NOT_FOUNDを返す。
func (s *Service) GetSessionDetail(ctx context.Context, r access.Requester, studentID, sessionID string) (*SessionDetail, error) {
	if err := s.authz.Authorize(ctx, r, studentID); err != nil {
		return nil, err
	}
	if !repository.ValidID(studentID) {
		return nil, model.NewStudentNotFoundError(studentID)
	}
	if !repository.ValidID(sessionID) {
		return nil, model.NewSessionNotFoundError(sessionID)
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("生徒の取得に失敗しました: %w", err)
	}
	if student == nil || student.Role != model.RoleStudent {
		return nil, model.NewStudentNotFoundError(studentID)
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil || session.StudentID != studentID {
		return nil, model.NewSessionNotFoundError(sessionID)
	}

	notes, err := s.notes.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}

	return &SessionDetail{
		Session:     *session,
		Notes:       labelNotes(SortNotes(notes)),
		Player:      vod.Resolve(session.VODLink, s.opts.MedalInviteCode),
		ViewVersion: student.ViewVersion,
	}, nil
}

// ListSessions は生徒のセッションを日付の新しい順に返す。
// アクセス判定は呼び出し側で行う。
func (s *Service) ListSessions(ctx context.Context, studentID string) ([]*model.Session, error) {
	sessions, err := s.sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, nil
}

// SortNotes はノートをタイムスタンプの昇順に並べ替えた新しいスライスを返す。
// 同じタイムスタンプのノートは入力の順序（作成順）を保つ。
func SortNotes(notes []*model.Note) []*model.Note {
	sorted := make([]*model.Note, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

func labelNotes(notes []*model.Note) []NoteView {
	views := make([]NoteView, len(notes))
	for i, n := range notes {
		views[i] = NoteView{Note: *n, Label: timecode.Format(n.Timestamp)}
	}
	return views
}

// parseDate はセッション日付を解釈する。日付のみとRFC3339形式を受け付ける。
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, raw); err == nil {
		return d, nil
	}
	return time.Time{}, model.NewValidationError("date must be a valid date (YYYY-MM-DD)")
}

// checkLink は空でないVODリンクの安全性を検証する。
func (s *Service) checkLink(link string) error {
	if link == "" {
		return nil
	}
	if err := s.links.ValidateURL(link); err != nil {
		return model.NewValidationError("vod_link: " + err.Error())
	}
	return nil
}

// authorizeStudent は生徒の存在とアクセス権を確認する。
func (s *Service) authorizeStudent(ctx context.Context, op *mutation.Op, r access.Requester, studentID string) error {
	if err := s.authorize(ctx, op, r, studentID); err != nil {
		return err
	}
	if !repository.ValidID(studentID) {
		return model.NewStudentNotFoundError(studentID)
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return op.Persistence(err)
	}
	if student == nil || student.Role != model.RoleStudent {
		return model.NewStudentNotFoundError(studentID)
	}
	return nil
}

// authorizeSession はセッションを取得し、所有する生徒へのアクセス権を確認する。
func (s *Service) authorizeSession(ctx context.Context, op *mutation.Op, r access.Requester, sessionID string) (*model.Session, error) {
	if !repository.ValidID(sessionID) {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, op.Persistence(err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	if err := s.authorize(ctx, op, r, session.StudentID); err != nil {
		return nil, err
	}
	return session, nil
}

// authorizeNote はノートを所有する生徒を解決し、アクセス権を確認する。
func (s *Service) authorizeNote(ctx context.Context, op *mutation.Op, r access.Requester, noteID string) (string, error) {
	if !repository.ValidID(noteID) {
		return "", model.NewNoteNotFoundError(noteID)
	}
	studentID, err := s.notes.StudentIDByNote(ctx, noteID)
	if err != nil {
		return "", op.Persistence(err)
	}
	if studentID == "" {
		return "", model.NewNoteNotFoundError(noteID)
	}
	if err := s.authorize(ctx, op, r, studentID); err != nil {
		return "", err
	}
	return studentID, nil
}

// authorize はアクセス判定を行い、判定自体の失敗は永続化失敗として扱う。
func (s *Service) authorize(ctx context.Context, op *mutation.Op, r access.Requester, studentID string) error {
	err := s.authz.Authorize(ctx, r, studentID)
	if err == nil {
		return nil
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return op.Persistence(err)
}
