// Package model はドメインモデルを定義する。
package model

import "time"

// RoadmapStatus はロードマップの状態を表す。
// 遷移に制約はなく、ラベル集合のみを固定する。
type RoadmapStatus string

const (
	// RoadmapStatusActive は進行中。
	RoadmapStatusActive RoadmapStatus = "active"
	// RoadmapStatusCompleted は完了。
	RoadmapStatusCompleted RoadmapStatus = "completed"
	// RoadmapStatusPaused は一時停止。
	RoadmapStatusPaused RoadmapStatus = "paused"
)

// Valid はRoadmapStatusが定義済みの値かを判定する。
func (s RoadmapStatus) Valid() bool {
	switch s {
	case RoadmapStatusActive, RoadmapStatusCompleted, RoadmapStatusPaused:
		return true
	default:
		return false
	}
}

// Roadmap は生徒に割り当てられたタスクの集合を表す。
type Roadmap struct {
	ID        string
	StudentID string
	Title     string
	Status    RoadmapStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task はロードマップ内の作業単位を表す。
type Task struct {
	ID          string
	RoadmapID   string
	Title       string
	Description string
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoadmapWithTasks はロードマップと作成順のタスク一覧を結合したモデル。
type RoadmapWithTasks struct {
	Roadmap
	Tasks []Task
}
