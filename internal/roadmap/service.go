// Package roadmap はロードマップとタスクのドメインロジックを提供する。
package roadmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/mutation"
	"github.com/hitoshi/coachdesk/internal/progress"
	"github.com/hitoshi/coachdesk/internal/repository"
	"github.com/hitoshi/coachdesk/internal/security"
)

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

// CreateRoadmapInput はロードマップ作成の入力。
type CreateRoadmapInput struct {
	Title string `json:"title" validate:"notblank,max=200"`
}

// UpdateRoadmapInput はロードマップ更新の入力。
type UpdateRoadmapInput struct {
	Title  string `json:"title" validate:"notblank,max=200"`
	Status string `json:"status" validate:"required,oneof=active completed paused"`
}

// AddTaskInput はタスク追加の入力。
type AddTaskInput struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"notblank,max=5000"`
}

// UpdateTaskInput はタスク更新の入力。値はそのまま上書きする。
type UpdateTaskInput struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// RoadmapProgress はタスクと進捗を含むロードマップ。
type RoadmapProgress struct {
	model.RoadmapWithTasks
	Progress progress.Progress
}

// Service はロードマップ管理のサービス層。
type Service struct {
	roadmaps  repository.RoadmapRepository
	tasks     repository.TaskRepository
	students  StudentFinder
	authz     Authorizer
	validator Validator
	sanitizer security.TextSanitizer
	views     StaleMarker
	tracker   *mutation.Tracker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	roadmaps repository.RoadmapRepository,
	tasks repository.TaskRepository,
	students StudentFinder,
	authz Authorizer,
	validator Validator,
	sanitizer security.TextSanitizer,
	views StaleMarker,
	tracker *mutation.Tracker,
) *Service {
	if tracker == nil {
		tracker = mutation.NewTracker(nil, nil)
	}
	return &Service{
		roadmaps:  roadmaps,
		tasks:     tasks,
		students:  students,
		authz:     authz,
		validator: validator,
		sanitizer: sanitizer,
		views:     views,
		tracker:   tracker,
	}
}

// CreateRoadmap は生徒に新しいロードマップを作成する。状態はactiveで始まる。
func (s *Service) CreateRoadmap(ctx context.Context, r access.Requester, studentID string, in CreateRoadmapInput) (_ *model.Roadmap, err error) {
	op := s.tracker.Begin("create_roadmap")
	defer func() { op.End(err) }()

	if err := s.authorizeStudent(ctx, op, r, studentID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := time.Now()
	rm := &model.Roadmap{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Title:     in.Title,
		Status:    model.RoadmapStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.roadmaps.Create(ctx, rm); err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return rm, nil
}

// UpdateRoadmap はロードマップのタイトルと状態を上書きする。
// 状態の遷移に制約はない。
func (s *Service) UpdateRoadmap(ctx context.Context, r access.Requester, roadmapID string, in UpdateRoadmapInput) (_ *model.Roadmap, err error) {
	op := s.tracker.Begin("update_roadmap")
	defer func() { op.End(err) }()

	current, err := s.authorizeRoadmap(ctx, op, r, roadmapID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	updated, err := s.roadmaps.Update(ctx, roadmapID, in.Title, model.RoadmapStatus(in.Status))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewRoadmapNotFoundError(roadmapID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, current.StudentID)
	return updated, nil
}

// DeleteRoadmap はロードマップとそのタスクを削除する。
func (s *Service) DeleteRoadmap(ctx context.Context, r access.Requester, roadmapID string) (err error) {
	op := s.tracker.Begin("delete_roadmap")
	defer func() { op.End(err) }()

	current, err := s.authorizeRoadmap(ctx, op, r, roadmapID)
	if err != nil {
		return err
	}

	err = s.roadmaps.Delete(ctx, roadmapID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewRoadmapNotFoundError(roadmapID)
	}
	if err != nil {
		return op.Persistence(err)
	}

	s.views.MarkStale(ctx, current.StudentID)
	return nil
}

// AddTask はロードマップに未完了のタスクを追加する。
func (s *Service) AddTask(ctx context.Context, r access.Requester, roadmapID string, in AddTaskInput) (_ *model.Task, err error) {
	op := s.tracker.Begin("add_task")
	defer func() { op.End(err) }()

	rm, err := s.authorizeRoadmap(ctx, op, r, roadmapID)
	if err != nil {
		return nil, err
	}
	in.Description = s.sanitizer.Sanitize(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &model.Task{
		ID:          uuid.New().String(),
		RoadmapID:   roadmapID,
		Title:       in.Title,
		Description: in.Description,
		IsCompleted: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, rm.StudentID)
	return task, nil
}

// UpdateTask はタスクのタイトルと説明を上書きする。完了フラグは変更しない。
func (s *Service) UpdateTask(ctx context.Context, r access.Requester, taskID string, in UpdateTaskInput) (_ *model.Task, err error) {
	op := s.tracker.Begin("update_task")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeTask(ctx, op, r, taskID)
	if err != nil {
		return nil, err
	}
	in.Description = s.sanitizer.Sanitize(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	task, err := s.tasks.Update(ctx, taskID, in.Title, in.Description)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return task, nil
}

// ToggleTaskCompletion はタスクの完了フラグを反転する。
// 反転はデータベース上で1文で行うため、同時実行でも更新が失われない。
func (s *Service) ToggleTaskCompletion(ctx context.Context, r access.Requester, taskID string) (_ *model.Task, err error) {
	op := s.tracker.Begin("toggle_task")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeTask(ctx, op, r, taskID)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.ToggleCompletion(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return nil, op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return task, nil
}

// DeleteTask はタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, r access.Requester, taskID string) (err error) {
	op := s.tracker.Begin("delete_task")
	defer func() { op.End(err) }()

	studentID, err := s.authorizeTask(ctx, op, r, taskID)
	if err != nil {
		return err
	}

	err = s.tasks.Delete(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return op.Persistence(err)
	}

	s.views.MarkStale(ctx, studentID)
	return nil
}

// ListForStudent は生徒のロードマップを新しい順に、タスク（作成順）と進捗付きで返す。
// アクセス判定は呼び出し側で行う。
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]RoadmapProgress, error) {
	roadmaps, err := s.roadmaps.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("ロードマップ一覧の取得に失敗しました: %w", err)
	}
	if len(roadmaps) == 0 {
		return []RoadmapProgress{}, nil
	}

	ids := make([]string, len(roadmaps))
	for i, rm := range roadmaps {
		ids[i] = rm.ID
	}
	tasks, err := s.tasks.ListByRoadmapIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}

	byRoadmap := make(map[string][]model.Task, len(roadmaps))
	for _, t := range tasks {
		byRoadmap[t.RoadmapID] = append(byRoadmap[t.RoadmapID], *t)
	}

	results := make([]RoadmapProgress, len(roadmaps))
	for i, rm := range roadmaps {
		ts := byRoadmap[rm.ID]
		if ts == nil {
			ts = []model.Task{}
		}
		results[i] = RoadmapProgress{
			RoadmapWithTasks: model.RoadmapWithTasks{Roadmap: *rm, Tasks: ts},
			Progress:         progress.Compute(ts),
		}
	}
	return results, nil
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

// authorizeRoadmap はロードマップを取得し、所有する生徒へのアクセス権を確認する。
func (s *Service) authorizeRoadmap(ctx context.Context, op *mutation.Op, r access.Requester, roadmapID string) (*model.Roadmap, error) {
	if !repository.ValidID(roadmapID) {
		return nil, model.NewRoadmapNotFoundError(roadmapID)
	}
	rm, err := s.roadmaps.FindByID(ctx, roadmapID)
	if err != nil {
		return nil, op.Persistence(err)
	}
	if rm == nil {
		return nil, model.NewRoadmapNotFoundError(roadmapID)
	}
	if err := s.authorize(ctx, op, r, rm.StudentID); err != nil {
		return nil, err
	}
	return rm, nil
}

// authorizeTask はタスクを所有する生徒を解決し、アクセス権を確認する。
func (s *Service) authorizeTask(ctx context.Context, op *mutation.Op, r access.Requester, taskID string) (string, error) {
	if !repository.ValidID(taskID) {
		return "", model.NewTaskNotFoundError(taskID)
	}
	studentID, err := s.tasks.StudentIDByTask(ctx, taskID)
	if err != nil {
		return "", op.Persistence(err)
	}
	if studentID == "" {
		return "", model.NewTaskNotFoundError(taskID)
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
