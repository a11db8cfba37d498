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

	"github.com/hitoshi/mealplanner/internal/auth"
	"github.com/hitoshi/mealplanner/internal/config"
	"github.com/hitoshi/mealplanner/internal/database"
	"github.com/hitoshi/mealplanner/internal/handler"
	"github.com/hitoshi/mealplanner/internal/idp"
	"github.com/hitoshi/mealplanner/internal/logger"
	"github.com/hitoshi/mealplanner/internal/metrics"
	"github.com/hitoshi/mealplanner/internal/middleware"
	"github.com/hitoshi/mealplanner/internal/onboarding"
	"github.com/hitoshi/mealplanner/internal/pantry"
	"github.com/hitoshi/mealplanner/internal/repository"
	"github.com/hitoshi/mealplanner/internal/security"
	"github.com/hitoshi/mealplanner/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
			port = "3000"
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
		slog.String("idp_domain", cfg.IDPDomain),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// newIdPClient はIdP呼び出し用のHTTPクライアントを生成する。
// IDP_ALLOW_INSECUREが無効な場合はドメインを検証し、内部ネットワーク宛ての接続を拒否するクライアントを使う。
func newIdPClient(cfg *config.Config) (*http.Client, error) {
	if cfg.IDPAllowInsecure {
		slog.Warn("IdPへの接続保護が無効です。ローカル開発以外では使用しないでください",
			slog.String("idp_domain", cfg.IDPDomain),
		)
		return &http.Client{Timeout: cfg.IDPHTTPTimeout}, nil
	}

	guard := security.NewOutboundGuard()
	if err := guard.ValidateDomain(cfg.IDPDomain); err != nil {
		return nil, fmt.Errorf("invalid IDP_DOMAIN: %w", err)
	}
	return guard.NewClient(cfg.IDPHTTPTimeout), nil
}

// newRegistry はプロセス共通のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はリレーAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. IdPクライアント
	idpClient, err := newIdPClient(cfg)
	if err != nil {
		return err
	}

	tokenCache := idp.NewTokenCache(idp.TokenCacheConfig{
		Domain:       cfg.IDPDomain,
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
		Audience:     cfg.ManagementAudience,
		FetchTimeout: cfg.IDPHTTPTimeout,
	}, idpClient, collector, slog.Default())
	management := idp.NewManagementClient(cfg.IDPDomain, idpClient, collector, slog.Default())

	verifier := auth.NewVerifier(auth.VerifierConfig{
		Domain:       cfg.IDPDomain,
		Audience:     cfg.APIAudience,
		JWKSCacheTTL: cfg.JWKSCacheTTL,
	}, idpClient, slog.Default())

	// 4. ドメインサービス
	onboardingService := onboarding.NewService(
		tokenCache, management, security.NewLabelSanitizer(), collector, slog.Default(),
	)
	pantryService := pantry.NewService(repository.NewPostgresPantryRepo(db))

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitOnboarding),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		HealthChecker:     db,
		Metrics:           collector,
		Gatherer:          reg,
		OnboardingService: onboardingService,
		PantryService:     pantryService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れ在庫の自動削除ジョブとメトリクスサーバーを起動する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	job := cleanup.NewPurgeJob(repository.NewPostgresPantryRepo(db), cfg.PantryExpiredRetention, collector, slog.Default())

	metricsServer := &http.Server{
		Addr:        ":" + cfg.MetricsPort,
		Handler:     metrics.SetupMetricsRoute(reg),
		ReadTimeout: 10 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("purge_interval", cfg.PantryPurgeInterval),
		slog.Duration("expired_retention", cfg.PantryExpiredRetention),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- serveUntilDone(ctx, metricsServer, "metrics server")
	}()

	// 自動削除ジョブをメインgoroutineで実行（ブロッキング）
	job.Loop(ctx, cfg.PantryPurgeInterval)

	if err := <-errCh; err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// serveUntilDone はサーバーを起動し、ctxがキャンセルされるまで待ってからシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
