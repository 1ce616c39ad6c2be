package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/risklens/internal/health"
	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/realtime"
	"github.com/mbd888/risklens/internal/security"
)

const defaultVerdictLimit = 50

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Mode      string          `json:"mode"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "RiskLens risk scoring API is running",
		"version": Version,
		"mode":    s.scoring.Mode(),
		"model":   s.predictor.Origin(),
		"dataset": s.source.Name(),
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ready, degraded, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case !ready:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Mode:      s.scoring.Mode(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	if ready, _, _ := s.health.CheckAll(c.Request.Context()); !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// listVerdictsHandler handles GET /v1/verdicts?limit=N
func (s *Server) listVerdictsHandler(c *gin.Context) {
	limit := defaultVerdictLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	entries, err := s.auditStore.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list verdicts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list verdicts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verdicts": entries,
		"count":    len(entries),
	})
}

func (s *Server) feedStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Stats())
}

// reloadModelHandler handles POST /v1/model/reload. The previous model keeps
// serving when the artifact cannot be loaded.
func (s *Server) reloadModelHandler(c *gin.Context) {
	if s.cfg.AdminSecret != "" && !security.SecretMatches(c.GetHeader("X-Admin-Secret"), s.cfg.AdminSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Valid X-Admin-Secret header required",
		})
		return
	}

	path := s.cfg.ModelPath
	logger := logging.L(c.Request.Context())
	if err := s.predictor.LoadFile(path); err != nil {
		logger.Warn("model reload failed", "path", path, "error", err)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "model_not_found",
				"message": "No model artifact at " + path,
			})
		case errors.Is(err, ml.ErrInvalidModel):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "invalid_model",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load model",
			})
		}
		return
	}

	logger.Info("model reloaded", "path", path)
	s.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventModelReloaded,
		Timestamp: time.Now().UTC(),
		Data:      gin.H{"origin": path},
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"mode":   s.scoring.Mode(),
		"model":  s.predictor.Origin(),
	})
}
