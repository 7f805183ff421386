package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/coachdesk/internal/metrics"
	"github.com/hitoshi/coachdesk/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	RequesterResolver middleware.RequesterResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// コーチング
	RoadmapService RoadmapServiceInterface
	ReviewService  ReviewServiceInterface
	UserService    UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	  → Session → Requester → RateLimit(General, Write) → CSRF
//
// 認証ルート（/auth/*）と運用エンドポイントは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	roadmapHandler := NewRoadmapHandler(deps.RoadmapService)
	reviewHandler := NewReviewHandler(deps.ReviewService, collector)
	userHandler := NewUserHandler(deps.UserService, collector)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → Requester → RateLimit → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewRequesterMiddleware(deps.RequesterResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(deps.RateLimiter.WriteMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Get("/api/home", userHandler.Home)

		// 生徒単位のデータ
		r.Route("/api/students", func(r chi.Router) {
			r.Get("/", userHandler.ListStudents)

			r.Route("/{studentID}", func(r chi.Router) {
				r.Get("/", userHandler.GetDashboard)
				r.Put("/settings", userHandler.UpdateSettings)
				r.Post("/roadmaps", roadmapHandler.CreateRoadmap)
				r.Post("/sessions", reviewHandler.CreateSession)
				r.Get("/sessions/{sessionID}", reviewHandler.GetSessionDetail)
			})
		})

		// ロードマップ管理
		r.Route("/api/roadmaps/{id}", func(r chi.Router) {
			r.Put("/", roadmapHandler.UpdateRoadmap)
			r.Delete("/", roadmapHandler.DeleteRoadmap)
			r.Post("/tasks", roadmapHandler.AddTask)
		})

		// タスク管理
		r.Route("/api/tasks/{id}", func(r chi.Router) {
			r.Put("/", roadmapHandler.UpdateTask)
			r.Delete("/", roadmapHandler.DeleteTask)
			r.Post("/toggle", roadmapHandler.ToggleTask)
		})

		// セッション管理
		r.Route("/api/sessions/{id}", func(r chi.Router) {
			r.Put("/", reviewHandler.UpdateSession)
			r.Delete("/", reviewHandler.DeleteSession)
			r.Post("/notes", reviewHandler.AddNote)
		})

		// ノート管理
		r.Route("/api/notes/{id}", func(r chi.Router) {
			r.Put("/", reviewHandler.UpdateNote)
			r.Delete("/", reviewHandler.DeleteNote)
			r.Put("/answer", reviewHandler.AnswerQuestion)
		})
	})

	return r
}

// healthHandler はDB疎通を確認し、200または503を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
