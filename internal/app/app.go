package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/baasproxy/internal/config"
	"github.com/hitoshi/baasproxy/internal/database"
	"github.com/hitoshi/baasproxy/internal/handler"
	"github.com/hitoshi/baasproxy/internal/logger"
	"github.com/hitoshi/baasproxy/internal/membership"
	"github.com/hitoshi/baasproxy/internal/metrics"
	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/repository"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// defaultServerPort はSERVER_PORT未設定時のポート。
const defaultServerPort = "3000"

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultServerPort
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
		slog.String("provider_host", providerHost(cfg.SupabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// server はHTTPサーバーと、停止時に解放するリソースをまとめたもの。
type server struct {
	handler http.Handler
	closers []func()
}

// Close は保持しているリソースを生成と逆順に解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer は全依存関係をワイヤリングし、ルーターを構築する。
func newServer(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*server, error) {
	s := &server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. プロバイダークライアント
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.ProviderTimeout}
	}
	provider := supabase.NewClient(supabase.Config{
		BaseURL:    cfg.SupabaseURL,
		APIKey:     cfg.SupabaseKey,
		HTTPClient: httpClient,
		Logger:     slog.Default(),
		Metrics:    collector,
	})

	// 3. 会員リポジトリ（DATABASE_URL設定時はDBを直接参照する）
	repo, err := newMembershipRepository(ctx, cfg, provider, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	membershipService := membership.NewService(repo, collector, slog.Default())

	// 4. レート制限
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	s.closers = append(s.closers, rateLimiter.Stop)

	// 5. ルーターの構築
	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		AuthService:       provider,
		MembershipService: membershipService,
		FunctionInvoker:   provider,
		AIFunctionName:    cfg.AIFunctionName,
		StaticDir:         cfg.StaticDir,
	})

	return s, nil
}

// newMembershipRepository は設定に応じた会員リポジトリを返す。
// DB接続を開いた場合はsのclosersに解放処理を追加する。
func newMembershipRepository(ctx context.Context, cfg *config.Config, provider *supabase.Client, s *server) (repository.MembershipRepository, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("membership lookups use the provider table API",
			slog.String("table", cfg.MembershipTable),
		)
		return repository.NewRESTMembershipRepo(provider, cfg.MembershipTable), nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() { closeDB(db) })

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("table", cfg.MembershipTable),
	)
	return repository.NewPostgresMembershipRepo(db, cfg.MembershipTable), nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM受信）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	s, err := newServer(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: s.handler,
		// プロバイダー呼び出しのタイムアウトより長くする
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, httpServer)
}

// serve はctxがキャンセルされるまでHTTPサーバーを実行し、その後グレースフルシャットダウンする。
func serve(ctx context.Context, httpServer *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}

// providerHost はログ用にプロバイダーURLのホスト部分のみを返す。
func providerHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
