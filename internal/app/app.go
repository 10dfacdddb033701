package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/authdemo/internal/auth"
	"github.com/hitoshi/authdemo/internal/config"
	"github.com/hitoshi/authdemo/internal/database"
	"github.com/hitoshi/authdemo/internal/handler"
	"github.com/hitoshi/authdemo/internal/logger"
	"github.com/hitoshi/authdemo/internal/metrics"
	"github.com/hitoshi/authdemo/internal/middleware"
	"github.com/hitoshi/authdemo/internal/repository"
	"github.com/hitoshi/authdemo/internal/security"
	"github.com/hitoshi/authdemo/internal/telemetry"
	"github.com/hitoshi/authdemo/internal/user"
	"github.com/hitoshi/authdemo/internal/view"
)

const (
	// certFetchTimeout はGoogle公開鍵取得1回あたりのタイムアウト。
	certFetchTimeout = 10 * time.Second
	// certFetchMaxSize は公開鍵レスポンスの最大サイズ。
	certFetchMaxSize = 1 << 20
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envを読み込む（既存の環境変数を優先）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetDebug(cfg.Debug)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type Server struct {
	Handler http.Handler

	db          *sql.DB
	rateLimiter *middleware.RateLimiter
	shutdown    telemetry.ShutdownFunc
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close(ctx context.Context) error {
	s.rateLimiter.Stop()

	var errs []error
	if err := s.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	return errors.Join(errs...)
}

// NewServer は設定から全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	// 1. トレーシング
	shutdown, err := telemetry.Setup(ctx, "authdemo", config.AppVersion, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	// 2. ストア
	db, store, err := openStore(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewProfileSanitizer(ssrfGuard)

	// 5. 認証
	keys := auth.NewGoogleCertKeySource(
		cfg.FirebaseCertsURL,
		ssrfGuard.NewSafeClient(certFetchTimeout, certFetchMaxSize),
	)
	verifier := auth.NewInstrumentedVerifier(
		auth.NewFirebaseVerifier(cfg.Firebase.ProjectID, keys),
		cfg.VerifyTimeout,
		collector,
	)
	codec := auth.NewSessionCodec(cfg.SecretKey, cfg.SessionTTL())
	sessions := auth.NewSessionManager(codec, auth.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	})

	// 6. ドメインサービスの初期化
	authService := auth.NewService(verifier, store, auth.ServiceConfig{
		StoreTimeout: cfg.StoreTimeout,
		Metrics:      collector,
		Sanitizer:    sanitizer,
	})
	userService := user.NewService(store, sanitizer, user.ServiceConfig{
		StoreTimeout: cfg.StoreTimeout,
		Metrics:      collector,
	})

	renderer, err := view.NewRenderer(config.AppTitle, cfg.Firebase)
	if err != nil {
		_ = db.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitGeneral),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Resolver:    auth.NewResolver(sessions, verifier),
		Sessions:    sessions,
		RateLimiter: rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		Logger:            slog.Default(),

		AuthService: authService,
		UserService: userService,
		Renderer:    renderer,

		Metrics:  collector,
		Gatherer: reg,
		Store:    db,
		Version:  config.AppVersion,
	})

	return &Server{
		Handler:     router,
		db:          db,
		rateLimiter: rateLimiter,
		shutdown:    shutdown,
	}, nil
}

// openStore はSTORE_DRIVERに応じてユーザードキュメントストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, repository.UserRecordStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established", slog.String("driver", cfg.StoreDriver))
		return db, repository.NewPostgresUserRecordRepo(db, cfg.UsersCollection), nil

	default:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.NewSQLiteUserRecordRepo(db, cfg.UsersCollection)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("database connection established",
			slog.String("driver", cfg.StoreDriver),
			slog.String("path", cfg.SQLitePath),
		)
		return db, repo, nil
	}
}

// runServe はHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	srv, err := NewServer(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-stop:
		slog.Info("shutting down HTTP server...")
	case err := <-serveErr:
		if err != nil {
			_ = srv.Close(context.Background())
			return fmt.Errorf("server listen error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := srv.Close(ctx); err != nil {
		slog.Warn("failed to release resources", slog.String("error", err.Error()))
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runMigrate はドキュメントストアのスキーマを作成する。
// PostgreSQLはマイグレーションを適用し、SQLiteはテーブルを作成する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		slog.Info("creating sqlite schema", slog.String("path", cfg.SQLitePath))
		db, _, err := openStore(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return db.Close()
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

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
