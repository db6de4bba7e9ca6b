package handle

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/util"
)

// PredictLabRisk scores a (possibly partial) lab panel. Always 200: a remote
// outage comes back as the Unknown-risk default, keeping the portal flow
// non-blocking.
func (h *Handle) PredictLabRisk(c *gin.Context) {
	var in diag.LabInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout(c, 60*time.Second))
	defer cancel()

	c.JSON(http.StatusOK, h.lab.PredictRisk(ctx, in))
}

type extractRequest struct {
	Image string `json:"image"` // base64 lab-report photo
}

// ExtractLabData pulls structured values from a lab-report image. Fields the
// model could not read are absent from the response, never zeroed.
func (h *Handle) ExtractLabData(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}

	raw, hint, err := util.DecodeBase64MaybeDataURL(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is not valid base64"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout(c, 60*time.Second))
	defer cancel()

	mime := util.PickMIME("", hint, raw)
	c.JSON(http.StatusOK, h.lab.ExtractFromImage(ctx, raw, mime))
}
