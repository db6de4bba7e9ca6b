package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"malaria-scan/internal/analyze"
	"malaria-scan/internal/classifier"
	"malaria-scan/internal/config"
	"malaria-scan/internal/gemini"
	"malaria-scan/internal/handle"
	"malaria-scan/internal/labrisk"
	"malaria-scan/internal/store"
	"malaria-scan/internal/verifier"
)

func main() {
	if m := os.Getenv("GIN_MODE"); m != "" {
		gin.SetMode(m)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	clf := classifier.New(cfg.ModelDir, nil)
	defer clf.Close()
	// Warm load. A missing artifact is not fatal: predictions degrade to the
	// simulated path and the warning is already logged.
	_ = clf.Load()

	// The verifier is single-shot; the lab predictor may retry transient
	// failures.
	ver := verifier.New(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, 1))
	lab := labrisk.New(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, 3))
	analyzer := analyze.New(clf, ver)

	var (
		repo *store.ScanRepo
		db   handle.HealthChecker
	)
	if cfg.EnableDB {
		pool, err := connectDB(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer pool.Close()
		repo = store.NewScanRepo(pool)
		if err := repo.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
		db = pool
	}

	h := handle.New(analyzer, lab, clf, repo, cfg.GeminiModel, cfg.ScanCacheMaxAge)
	router := handle.Router(h, db)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Analysis holds the connection through the remote round-trip.
		WriteTimeout: 200 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	log.Printf("scan-api listening on :%s (model %s, classifier %s)", cfg.Port, cfg.GeminiModel, clf.State())
	waitForShutdown(server)
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func waitForShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
