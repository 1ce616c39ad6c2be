package scoring

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/validation"
)

// Handler provides HTTP endpoints for live scoring.
type Handler struct {
	service *Service
}

// NewHandler creates a new scoring handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the scoring routes.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/analyze", h.Analyze)
	r.POST("/predict", h.Predict)
}

// Analyze handles POST /analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validation.AbortInvalid(c, errs)
		return
	}

	c.JSON(http.StatusOK, h.service.Analyze(c.Request.Context(), req))
}

// Predict handles POST /predict
func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validation.AbortInvalid(c, errs)
		return
	}

	resp, err := h.service.Predict(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ml.ErrUnknownLocation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "unknown_location",
				"message": "Location was not seen when the model was trained",
			})
			return
		}
		logging.L(c.Request.Context()).Error("prediction failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "prediction_failed",
			"message": "Failed to score transaction",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
