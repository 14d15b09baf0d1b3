// Package main is the entry point for the records API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/diwan-systems/diwan/internal/api"
	"github.com/diwan-systems/diwan/internal/audit"
	"github.com/diwan-systems/diwan/internal/auth"
	"github.com/diwan-systems/diwan/internal/blob"
	"github.com/diwan-systems/diwan/internal/config"
	"github.com/diwan-systems/diwan/internal/health"
	"github.com/diwan-systems/diwan/internal/mailer"
	"github.com/diwan-systems/diwan/internal/middleware"
	"github.com/diwan-systems/diwan/internal/record"
	"github.com/diwan-systems/diwan/internal/serial"
	"github.com/diwan-systems/diwan/internal/user"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Diwan Records API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := make([]any, 0, 32)
	for k, v := range cfg.LogSummary() {
		summary = append(summary, slog.String(k, v))
	}
	logger.Info("configuration loaded", summary...)

	// Stores. An empty database URL selects the in-memory stores, which
	// lose everything on restart; fine for development only.
	var (
		users   user.Repository
		records record.Repository
		audits  audit.Repository
		db      *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		for _, schema := range []string{user.Schema, record.Schema, audit.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				logger.Error("schema migration failed", "error", err)
				os.Exit(1)
			}
		}

		users = user.NewPostgresRepository(db)
		records = record.NewPostgresRepository(db)
		audits = audit.NewPostgresRepository(db)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		users = user.NewInMemoryRepository()
		records = record.NewInMemoryRepository()
		audits = audit.NewInMemoryRepository()
	}

	// Login rate limiter: Redis when configured so the limit holds
	// across replicas, otherwise per-process.
	var (
		limitStore  middleware.RateLimitStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limitStore = middleware.NewRedisRateLimitStore(redisClient)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
	}

	// Attachments.
	var blobs blob.Store
	if cfg.S3Bucket != "" {
		var err error
		blobs, err = blob.NewS3Store(blob.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			logger.Error("blob store init failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no S3 bucket configured, storing attachments in memory")
		blobs = blob.NewInMemoryStore()
	}

	// Password-reset mail.
	var mail mailer.Mailer
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	} else {
		logger.Warn("no SMTP host configured, password reset mail disabled")
	}

	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
	authService := auth.NewService(users, tokens, mail, cfg.FrontendURL, logger)
	generator := serial.NewGenerator(records, cfg.CivilOffsetHours)

	// Audit recorder: one snapshot source per tracked resource plus the
	// user directory.
	snapshots := make(map[string]audit.SnapshotFunc, len(record.Registry)+1)
	for segment, typ := range record.Registry {
		typeName := typ.Name
		snapshots[segment] = func(ctx context.Context, id string) (map[string]any, error) {
			rec, err := records.GetByID(ctx, typeName, id)
			if err != nil {
				return nil, err
			}
			return rec.Document(), nil
		}
	}
	snapshots["users"] = func(ctx context.Context, id string) (map[string]any, error) {
		u, err := users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		p := u.Public()
		return map[string]any{
			"_id":      p.ID,
			"username": p.Username,
			"en_name":  p.EnName,
			"ar_name":  p.ArName,
			"email":    p.Email,
			"roles":    fmt.Sprintf("%v", p.Roles),
			"isActive": p.IsActive,
		}, nil
	}

	auditMetrics := audit.NewMetrics()
	if err := auditMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration failed", "error", err)
		os.Exit(1)
	}
	recorder := audit.NewRecorder(audits, snapshots, logger, auditMetrics)
	defer recorder.Close()

	checkers := make(map[string]health.Checker)
	if db != nil {
		checkers["database"] = health.NewDBChecker(db)
	}
	if redisClient != nil {
		checkers["redis"] = health.NewRedisChecker(redisClient)
	}

	mux := api.NewRouter(api.RouterConfig{
		Auth:            api.NewAuthHandlers(authService, cfg.Production()),
		Users:           api.NewUserHandlers(users),
		Records:         api.NewRecordHandlers(records, generator, blobs),
		Logs:            api.NewLogHandlers(audits),
		Health:          api.NewHealthHandlers(checkers),
		Tokens:          tokens,
		Recorder:        recorder,
		LoginLimitStore: limitStore,
	})

	handler := middleware.RequestID(middleware.Logging(logger)(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
