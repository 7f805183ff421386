package handler

import (
	"time"

	"github.com/hitoshi/coachdesk/internal/model"
	"github.com/hitoshi/coachdesk/internal/progress"
	"github.com/hitoshi/coachdesk/internal/review"
	"github.com/hitoshi/coachdesk/internal/roadmap"
	"github.com/hitoshi/coachdesk/internal/timecode"
	"github.com/hitoshi/coachdesk/internal/user"
	"github.com/hitoshi/coachdesk/internal/vod"
)

const dateLayout = "2006-01-02"

type userResponse struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Username   string   `json:"username"`
	Role       string   `json:"role"`
	Gamertag   string   `json:"gamertag"`
	Rank       string   `json:"rank"`
	MainAgents []string `json:"main_agents"`
	ImageURL   string   `json:"image_url"`
}

func toUserResponse(u *model.User) userResponse {
	agents := u.MainAgents
	if agents == nil {
		agents = []string{}
	}
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       string(u.Role),
		Gamertag:   u.Gamertag,
		Rank:       u.Rank,
		MainAgents: agents,
		ImageURL:   u.ImageURL,
	}
}

type progressResponse struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

type taskResponse struct {
	ID          string    `json:"id"`
	RoadmapID   string    `json:"roadmap_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		RoadmapID:   t.RoadmapID,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type roadmapResponse struct {
	ID        string            `json:"id"`
	StudentID string            `json:"student_id"`
	Title     string            `json:"title"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Tasks     []taskResponse    `json:"tasks,omitempty"`
	Progress  *progressResponse `json:"progress,omitempty"`
}

func toRoadmapResponse(rm *model.Roadmap) roadmapResponse {
	return roadmapResponse{
		ID:        rm.ID,
		StudentID: rm.StudentID,
		Title:     rm.Title,
		Status:    string(rm.Status),
		CreatedAt: rm.CreatedAt,
		UpdatedAt: rm.UpdatedAt,
	}
}

func toRoadmapProgressResponse(rp roadmap.RoadmapProgress) roadmapResponse {
	resp := toRoadmapResponse(&rp.Roadmap)
	resp.Tasks = make([]taskResponse, 0, len(rp.Tasks))
	for i := range rp.Tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(&rp.Tasks[i]))
	}
	resp.Progress = toProgressResponse(rp.Progress)
	return resp
}

func toProgressResponse(p progress.Progress) *progressResponse {
	return &progressResponse{Completed: p.Completed, Total: p.Total, Percent: p.Percent}
}

type sessionResponse struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      string    `json:"date"`
	Notes     string    `json:"notes"`
	VODLink   string    `json:"vod_link"`
	Title     string    `json:"title"`
	Agent     string    `json:"agent"`
	Map       string    `json:"map"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		StudentID: s.StudentID,
		Date:      s.Date.Format(dateLayout),
		Notes:     s.Notes,
		VODLink:   s.VODLink,
		Title:     s.Title,
		Agent:     s.Agent,
		Map:       s.Map,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type noteResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp int       `json:"timestamp"`
	Label     string    `json:"label"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:        n.ID,
		SessionID: n.SessionID,
		Timestamp: n.Timestamp,
		Label:     timecode.Format(n.Timestamp),
		Question:  n.Question,
		Answer:    n.Answer,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

type dashboardResponse struct {
	Student  userResponse      `json:"student"`
	Roadmaps []roadmapResponse `json:"roadmaps"`
	Sessions []sessionResponse `json:"sessions"`
}

func toDashboardResponse(d *user.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		Student:  toUserResponse(&d.Student),
		Roadmaps: make([]roadmapResponse, 0, len(d.Roadmaps)),
		Sessions: make([]sessionResponse, 0, len(d.Sessions)),
	}
	for _, rp := range d.Roadmaps {
		resp.Roadmaps = append(resp.Roadmaps, toRoadmapProgressResponse(rp))
	}
	for _, s := range d.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	return resp
}

type sessionDetailResponse struct {
	Session sessionResponse `json:"session"`
	Notes   []noteResponse  `json:"notes"`
	Player  vod.Player      `json:"player"`
}

func toSessionDetailResponse(d *review.SessionDetail) sessionDetailResponse {
	resp := sessionDetailResponse{
		Session: toSessionResponse(&d.Session),
		Notes:   make([]noteResponse, 0, len(d.Notes)),
		Player:  d.Player,
	}
	for i := range d.Notes {
		n := toNoteResponse(&d.Notes[i].Note)
		n.Label = d.Notes[i].Label
		resp.Notes = append(resp.Notes, n)
	}
	return resp
}
