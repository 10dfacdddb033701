package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/telemetry"
	"github.com/hitoshi/authdemo/internal/view"
)

// SessionManager はセッションCookieの発行・破棄を行う。
// 認証ハンドラーとIdentityミドルウェアの両方から使用する。
type SessionManager interface {
	SessionIssuer
	middleware.SessionStarter
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Resolver          middleware.IdentityResolver
	Sessions          SessionManager
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HSTS              bool
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface

	// ユーザー
	UserService UserServiceInterface
	Renderer    PageRenderer

	// 運用
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Store    Pinger
	Version  string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Tracing → CORS → Logging
//	  ページ:  Identity → CSRF(Cookie発行) → RequirePage
//	  /api:    Identity → RateLimit(General) → RequireAPI → CSRF
//	  /auth:   RateLimit(Auth)
//
// /auth/* はBearerトークンをハンドラー内で検証するため、Identityミドルウェアを通さない。
func NewRouter(deps *RouterDeps) http.Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(telemetry.NewHTTPMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger, m))

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, m)
	userHandler := NewUserHandler(deps.UserService)
	pageHandler := NewPageHandler(deps.Renderer, deps.UserService)
	identity := middleware.NewIdentityMiddleware(deps.Resolver, deps.Sessions, m)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.Store, deps.Version))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/static/*", http.StripPrefix("/static/", view.StaticHandler()))

	// 認証ルート（Bearerトークン）
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Post("/google-login", authHandler.GoogleLogin)
		r.Post("/logout", authHandler.Logout)
	})

	// --- HTMLページ ---
	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(csrf)

		r.Get("/", pageHandler.Public)
		r.With(middleware.RequirePage).Get("/dashboard", pageHandler.Dashboard)
		r.With(middleware.RequirePage).Get("/profile", pageHandler.Profile)
	})

	// --- JSON API ---
	// ミドルウェアスタック: Identity → RateLimit(General) → RequireAPI → CSRF
	r.Route("/api", func(r chi.Router) {
		r.Use(identity)
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.RequireAPI)
		r.Use(csrf)

		r.Get("/me", userHandler.Me)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Post("/update-profile", userHandler.UpdateProfile)
		r.Post("/update-preferences", userHandler.UpdatePreferences)
	})

	return r
}
