// Package handle binds the diagnostic pipeline to the HTTP API consumed by
// the clinical portal frontend.
package handle

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"malaria-scan/internal/classifier"
	"malaria-scan/internal/diag"
	"malaria-scan/internal/store"
)

type Analyzer interface {
	Analyze(ctx context.Context, raw []byte, patientContext string) (diag.AnalysisResult, error)
}

type LabPredictor interface {
	PredictRisk(ctx context.Context, in diag.LabInput) diag.LabRiskResult
	ExtractFromImage(ctx context.Context, image []byte, mime string) diag.LabInput
}

type Model interface {
	State() classifier.State
	Reload() error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handle struct {
	analyzer Analyzer
	lab      LabPredictor
	model    Model

	repo        *store.ScanRepo // nil when the cache is disabled
	geminiModel string
	cacheMaxAge time.Duration
}

func New(analyzer Analyzer, lab LabPredictor, model Model, repo *store.ScanRepo, geminiModel string, cacheMaxAge time.Duration) *Handle {
	return &Handle{
		analyzer:    analyzer,
		lab:         lab,
		model:       model,
		repo:        repo,
		geminiModel: geminiModel,
		cacheMaxAge: cacheMaxAge,
	}
}

// Router builds the gin engine with the portal-facing routes.
func Router(h *Handle, db HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		limitBodySize(10<<20), // smear uploads
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		resp := gin.H{"status": "ok", "model": string(h.model.State())}
		if db == nil {
			resp["db"] = "disabled"
			c.JSON(http.StatusOK, resp)
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["db"] = "unhealthy: " + err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["db"] = "ok"
		c.JSON(http.StatusOK, resp)
	})

	router.POST("/api/scan/analyze", h.AnalyzeScan)
	router.POST("/api/lab/predict", h.PredictLabRisk)
	router.POST("/api/lab/extract", h.ExtractLabData)
	router.GET("/api/model/state", h.ModelState)
	router.POST("/api/model/reload", h.ModelReload)

	return router
}

func limitBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// requestTimeout honors the X-Request-Timeout header or timeoutSec query
// parameter, defaulting to def.
func requestTimeout(c *gin.Context, def time.Duration) time.Duration {
	if ts := c.GetHeader("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	if ts := c.Query("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}
