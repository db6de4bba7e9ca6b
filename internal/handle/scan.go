package handle

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/store"
	"malaria-scan/internal/util"
)

type scanRequest struct {
	Image          string `json:"image"` // base64, bare or data-URL
	PatientContext string `json:"patientContext"`
}

// AnalyzeScan runs the two-stage pipeline for one smear. Identical images
// are answered from the result cache when it is enabled; only an undecodable
// image produces an error status.
func (h *Handle) AnalyzeScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}

	raw, _, err := util.DecodeBase64MaybeDataURL(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is not valid base64"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout(c, 180*time.Second))
	defer cancel()

	hash := util.SHA256Hex(raw)
	if h.repo != nil {
		if row, err := h.repo.FindByHash(ctx, hash, h.geminiModel, h.cacheMaxAge); err == nil {
			c.JSON(http.StatusOK, row.Result)
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Printf("handle: scan cache lookup: %v", err)
		}
	}

	result, err := h.analyzer.Analyze(ctx, raw, req.PatientContext)
	if err != nil {
		var de *diag.DecodeError
		if errors.As(err, &de) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image could not be decoded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	if h.repo != nil {
		if err := h.repo.Upsert(ctx, hash, h.geminiModel, result); err != nil {
			log.Printf("handle: scan cache store: %v", err)
		}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handle) ModelState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": string(h.model.State())})
}

// ModelReload retries a failed artifact load. Reload failure is reported but
// leaves the service running on the simulated path.
func (h *Handle) ModelReload(c *gin.Context) {
	if err := h.model.Reload(); err != nil {
		c.JSON(http.StatusOK, gin.H{"state": string(h.model.State()), "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.model.State())})
}
