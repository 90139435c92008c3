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

	"github.com/hitoshi/teeup/internal/config"
	"github.com/hitoshi/teeup/internal/database"
	"github.com/hitoshi/teeup/internal/handler"
	"github.com/hitoshi/teeup/internal/logger"
	"github.com/hitoshi/teeup/internal/metrics"
	"github.com/hitoshi/teeup/internal/middleware"
	"github.com/hitoshi/teeup/internal/participant"
	"github.com/hitoshi/teeup/internal/repository"
	"github.com/hitoshi/teeup/internal/security"
	"github.com/hitoshi/teeup/internal/signup"
	"github.com/hitoshi/teeup/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_FORMAT/LOG_LEVELに従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを作り直す
	logger.Configure(w, logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と book はDB設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandBook:
		return runBook(w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_driver", cfg.DatabaseDriver),
	)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	case CommandSeed:
		return runSeed(cfg)
	case CommandClearSignups:
		return runClearSignups(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
// SQLiteはローカル運用を想定し、起動時に未適用のマイグレーションを適用する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DatabaseDriver == config.DriverSQLite {
		if err := database.RunMigrations(ctx, db, cfg.DatabaseDriver); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database connection established",
		slog.String("driver", cfg.DatabaseDriver),
	)
	return db, nil
}

// services はコマンド間で共有するドメインサービスの組。
type services struct {
	participants *participant.Service
	signups      *signup.Service
}

// newServices はリポジトリとドメインサービスを構築する。recorderはnilでもよい。
func newServices(cfg *config.Config, db *sql.DB, recorder *metrics.Collector) (*services, error) {
	repos, err := repository.New(cfg.DatabaseDriver, db)
	if err != nil {
		return nil, err
	}

	participantOpts := participant.Options{
		RosterLimit:     cfg.RosterLimit,
		DuplicatePolicy: cfg.DuplicatePolicy,
	}
	signupOpts := signup.Options{
		Capacity:    cfg.SignupCapacity,
		WindowWeeks: cfg.SignupWindowWeeks,
	}
	// nilの*Collectorをインターフェースに入れるとnil判定が効かないため、明示的に分岐する
	if recorder != nil {
		participantOpts.Recorder = recorder
		signupOpts.Recorder = recorder
	}

	return &services{
		participants: participant.NewService(repos.Participants, security.NewTextSanitizer(), participantOpts),
		signups:      signup.NewService(repos.Signups, repos.Participants, signupOpts),
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. ドメインサービスの初期化
	svcs, err := newServices(cfg, db, collector)
	if err != nil {
		return err
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitPerMinute))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		ParticipantService: svcs.participants,
		SignupService:      svcs.signups,
		HealthChecker:      db,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rateLimiter,
		Logger:             slog.Default(),
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はserverを起動し、SIGINT/SIGTERMを受信したらグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
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
// 保持期間を過ぎた申込の削除ジョブをCLEANUP_INTERVALごとに実行し、
// 削除件数を/metricsで公開する。SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	svcs, err := newServices(cfg, db, collector)
	if err != nil {
		return err
	}

	// 2. クリーンアップジョブの初期化
	job := cleanup.NewCleanupJob(svcs.signups, slog.Default(), collector)
	job.RetentionDays = cfg.SignupRetentionDays
	scheduler := cleanup.NewScheduler(job, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. メトリクスエンドポイント
	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.SignupRetentionDays),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたはupで未適用分を適用し、downで全て取り消し、versionで現在のバージョンを表示する。
func runMigrate(cfg *config.Config, args []string) error {
	action, ok := ParseMigrateAction(args)
	if !ok {
		return fmt.Errorf("unknown migrate action: %q (want up, down or version)", args[0])
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx := context.Background()
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch action {
	case MigrateDown:
		if err := database.RollbackMigrations(ctx, db, cfg.DatabaseDriver); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back successfully")
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(ctx, db, cfg.DatabaseDriver)
		if err != nil {
			return err
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(ctx, db, cfg.DatabaseDriver); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runSeed は初期名簿を投入する。既存の参加者は連絡先のみ更新する。
func runSeed(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svcs, err := newServices(cfg, db, nil)
	if err != nil {
		return err
	}

	result, err := svcs.participants.Seed(ctx, participant.DefaultRoster())
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("roster seeded",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
	)
	return nil
}

// runClearSignups は全申込を削除する。参加者は残る。
func runClearSignups(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svcs, err := newServices(cfg, db, nil)
	if err != nil {
		return err
	}

	deleted, err := svcs.signups.ClearAll(ctx)
	if err != nil {
		return fmt.Errorf("clear signups failed: %w", err)
	}

	slog.Info("all signups cleared", slog.Int64("deleted_count", deleted))
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない接続文字列は先頭のみ残す。
func maskDatabaseURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	if len(raw) > 20 {
		return raw[:12] + "***@..."
	}
	return "***"
}
