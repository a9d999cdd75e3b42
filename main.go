package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/stevecastle/galleria/analysiscache"
	"github.com/stevecastle/galleria/api"
	"github.com/stevecastle/galleria/appconfig"
	"github.com/stevecastle/galleria/auth"
	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/logging"
	"github.com/stevecastle/galleria/photos"
	"github.com/stevecastle/galleria/selection"
	"github.com/stevecastle/galleria/storage"
	"github.com/stevecastle/galleria/stream"
	"github.com/stevecastle/galleria/upload"
)

// -----------------------------------------------------------------------------
// Database initialization
// -----------------------------------------------------------------------------

func initDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			logging.L().Warn("failed to set sqlite pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if err := auth.InitializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize users schema: %w", err)
	}
	if err := photos.InitializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize photos schema: %w", err)
	}

	logging.L().Info("connected to SQLite database", zap.String("path", dbPath))
	return db, nil
}

// -----------------------------------------------------------------------------
// Object store and cache
// -----------------------------------------------------------------------------

// newObjectStore returns the configured store and, for the disk driver, the
// directory the server must expose under /uploads/.
func newObjectStore(ctx context.Context, cfg appconfig.Storage) (storage.Store, string, error) {
	switch cfg.Driver {
	case "s3":
		s, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PublicBaseURL:   cfg.PublicBaseURL,
			UsePathStyle:    cfg.UsePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, "", err
		}
		logging.L().Info("storing uploads in S3", zap.String("bucket", cfg.Bucket), zap.String("region", cfg.Region))
		return s, "", nil
	case "disk", "":
		d, err := storage.NewDiskStore(cfg.Dir)
		if err != nil {
			return nil, "", err
		}
		logging.L().Info("storing uploads on disk", zap.String("dir", cfg.Dir))
		return d, cfg.Dir, nil
	default:
		return nil, "", fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newAnalysisCache connects to Redis when configured. A Redis that cannot
// be reached only disables caching.
func newAnalysisCache(ctx context.Context, cfg appconfig.Redis) analysiscache.Cache {
	if cfg.Addr == "" {
		return analysiscache.Nop{}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := analysiscache.NewRedis(ctx, analysiscache.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL(),
	})
	if err != nil {
		logging.L().Warn("analysis cache disabled", zap.Error(err))
		return analysiscache.Nop{}
	}
	logging.L().Info("analysis cache connected", zap.String("addr", cfg.Addr))
	return c
}

func browserURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://localhost" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func main() {
	cfg, cfgPath, err := appconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.LogMode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.L()
	log.Info("configuration loaded", zap.String("path", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ––– database –––
	db, err := initDB(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// ––– services –––
	objects, uploadDir, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize object store", zap.Error(err))
	}
	cache := newAnalysisCache(ctx, cfg.Redis)
	if c, ok := cache.(*analysiscache.Redis); ok {
		defer c.Close()
	}

	classifier := focus.NewClassifier(cfg.Analysis.Focus())
	photoStore := photos.NewStore(db)
	uploads := upload.New(upload.Config{
		MaxBytes:    cfg.Upload.MaxBytes,
		MaxPixels:   cfg.Upload.MaxPixels,
		JPEGQuality: cfg.Upload.JPEGQuality,
		KeyPrefix:   cfg.Storage.Prefix,
	}, objects, photoStore, cache, classifier)

	deps := &api.Dependencies{
		DB:             db,
		Auth:           auth.NewAuthService(db, cfg.JWTSecret),
		Photos:         photoStore,
		Uploads:        uploads,
		Classifier:     classifier,
		Selections:     &selection.Registry{},
		MaxUploadBytes: cfg.Upload.MaxBytes,
		UploadDir:      uploadDir,
	}

	// ––– http server –––
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewMux(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("galleria listening",
			zap.String("addr", cfg.Listen),
			zap.Float64("blur_threshold", classifier.Config().BlurThreshold),
			zap.Int("max_score_width", classifier.Config().MaxScoreWidth))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	if cfg.OpenBrowser {
		if err := browser.OpenURL(browserURL(cfg.Listen)); err != nil {
			log.Warn("failed to open browser", zap.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("shutting down galleria")

	stream.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}
}
