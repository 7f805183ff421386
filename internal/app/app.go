package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/coachdesk/internal/access"
	"github.com/hitoshi/coachdesk/internal/auth"
	"github.com/hitoshi/coachdesk/internal/config"
	"github.com/hitoshi/coachdesk/internal/database"
	"github.com/hitoshi/coachdesk/internal/handler"
	"github.com/hitoshi/coachdesk/internal/logger"
	"github.com/hitoshi/coachdesk/internal/metrics"
	"github.com/hitoshi/coachdesk/internal/middleware"
	"github.com/hitoshi/coachdesk/internal/mutation"
	"github.com/hitoshi/coachdesk/internal/repository"
	"github.com/hitoshi/coachdesk/internal/review"
	"github.com/hitoshi/coachdesk/internal/roadmap"
	"github.com/hitoshi/coachdesk/internal/security"
	"github.com/hitoshi/coachdesk/internal/user"
	"github.com/hitoshi/coachdesk/internal/validation"
	"github.com/hitoshi/coachdesk/internal/view"
	"github.com/hitoshi/coachdesk/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .env由来のLOG_LEVELも反映する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, commandArgs(args))
	case CommandGrantCoach:
		return runGrantCoach(cfg, commandArgs(args))
	case CommandAssignCoach:
		return runAssignCoach(cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// services はコーチングのドメインサービス一式。
type services struct {
	auth    *auth.Service
	roadmap *roadmap.Service
	review  *review.Service
	user    *user.Service
	checker *access.Checker
}

// buildServices はリポジトリとドメインサービスをワイヤリングする。
func buildServices(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector) *services {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	authSessionRepo := repository.NewPostgresAuthSessionRepo(db)
	assignmentRepo := repository.NewPostgresCoachAssignmentRepo(db)
	roadmapRepo := repository.NewPostgresRoadmapRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)

	// 2. 横断的な部品の初期化
	policy := access.Policy(cfg.AccessPolicy)
	checker := access.NewChecker(userRepo, assignmentRepo, policy)
	validator := validation.New()
	sanitizer := security.NewTextSanitizer()
	links := security.NewLinkGuard()
	views := view.NewRefresher(userRepo, slog.Default())
	tracker := mutation.NewTracker(collector, slog.Default())

	// 3. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, authSessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	roadmapService := roadmap.NewService(
		roadmapRepo, taskRepo, userRepo, checker, validator, sanitizer, views, tracker,
	)
	reviewService := review.NewService(
		sessionRepo, noteRepo, userRepo, checker, validator, sanitizer, links, views, tracker,
		review.Options{
			RejectEmptyText: cfg.EmptyTextPolicy == config.EmptyTextReject,
			MedalInviteCode: cfg.MedalInviteCode,
		},
	)
	userService := user.NewService(
		userRepo, assignmentRepo, checker, roadmapService, reviewService, validator, views, tracker, policy,
	)

	return &services{
		auth:    authService,
		roadmap: roadmapService,
		review:  reviewService,
		user:    userService,
		checker: checker,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	svc := buildServices(cfg, db, collector)

	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitWrite),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     repository.NewPostgresAuthSessionRepo(db),
		RequesterResolver: svc.checker,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		RoadmapService: svc.roadmap,
		ReviewService:  svc.review,
		UserService:    svc.user,
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はHTTPサーバーを起動し、SIGINTまたはSIGTERMで停止する。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行し、/healthと/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveUntilSignal(server, "worker")
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしはすべての未適用マイグレーションを適用し、"down"は直近の1つを取り消す。
func runMigrate(cfg *config.Config, args []string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if len(args) > 0 && args[0] == "down" {
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runGrantCoach は指定ユーザーをコーチに昇格する。
// 使い方: grant-coach <email>
func runGrantCoach(cfg *config.Config, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("usage: grant-coach <email>")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := buildServices(cfg, db, metrics.Nop{})
	u, err := svc.user.GrantCoach(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("grant-coach failed: %w", err)
	}

	slog.Info("coach role granted", slog.String("user_id", u.ID), slog.String("email", u.Email))
	return nil
}

// runAssignCoach はコーチに生徒を割り当てる。
// 使い方: assign-coach <coach-email> <student-email>
func runAssignCoach(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: assign-coach <coach-email> <student-email>")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := buildServices(cfg, db, metrics.Nop{})
	if err := svc.user.AssignCoach(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("assign-coach failed: %w", err)
	}

	slog.Info("coach assigned",
		slog.String("coach_email", args[0]),
		slog.String("student_email", args[1]),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
