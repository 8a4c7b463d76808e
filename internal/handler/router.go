package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/web"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	Metrics           middleware.StatusRecorder
	MetricsHandler    http.Handler

	// 認証
	AuthService AuthService

	// 会員
	MembershipService MembershipService

	// AIチャット
	FunctionInvoker FunctionInvoker
	AIFunctionName  string

	// ランディングページ（空の場合は埋め込みページ）
	StaticDir string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	(RealIP) → RequestID → BearerToken → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// /api/* にはAPI全般のレート制限、サインイン系には加えて認証系のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// プロキシヘッダーを信頼する場合のみRemoteAddrを書き換える
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewBearerTokenMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	authHandler := NewAuthHandler(deps.AuthService)
	membershipHandler := NewMembershipHandler(deps.MembershipService)
	aiHandler := NewAIHandler(deps.FunctionInvoker, deps.AIFunctionName)

	// --- 運用エンドポイント ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/auth", func(r chi.Router) {
			r.Post("/session", authHandler.Session)
			r.Post("/signout", authHandler.SignOut)

			// 総当たり対策として認証系のレート制限を追加
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/signin", authHandler.SignIn)
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin-otp", authHandler.SignInWithOTP)
				r.Post("/signin-oauth", authHandler.SignInWithOAuth)
			})
		})

		r.Route("/membership", func(r chi.Router) {
			r.Post("/check", membershipHandler.Check)
			r.Post("/verify-email", membershipHandler.VerifyEmail)
		})

		r.Post("/ai/chat", aiHandler.Chat)
	})

	// --- ランディングページ ---
	static := web.Handler(deps.StaticDir)
	r.Get("/", static.ServeHTTP)
	r.Get("/*", static.ServeHTTP)

	return r
}
