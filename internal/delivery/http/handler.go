package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dealwatch/backend/internal/domain"
	"github.com/dealwatch/backend/internal/usecase"
)

const readinessTimeout = 5 * time.Second

// Handler holds dependencies for HTTP handlers
type Handler struct {
	pipeline *usecase.Pipeline
	sender   domain.ChannelSender
}

// NewHandler creates a new HTTP handler
func NewHandler(pipeline *usecase.Pipeline, sender domain.ChannelSender) *Handler {
	return &Handler{
		pipeline: pipeline,
		sender:   sender,
	}
}

// submitDealRequest is the inbound deal submission payload.
type submitDealRequest struct {
	Title       string `json:"title" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// HealthCheck returns the liveness status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dealwatch-backend",
		"version": "1.0.0",
	})
}

// ReadyCheck reports whether the channel-send capability is reachable
func (h *Handler) ReadyCheck(c *gin.Context) {
	if h.sender == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "channel sender not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.sender.CheckReachable(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// SubmitDeal accepts one candidate deal and runs it through the pipeline
// synchronously. The response always says what happened: rejected (with
// reason), duplicate, delivered, or failed. Never a silent success.
func (h *Handler) SubmitDeal(c *gin.Context) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "pipeline not configured",
		})
		return
	}

	var req submitDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing required fields: title and url",
		})
		return
	}

	record := domain.DealRecord{
		Title:        req.Title,
		URL:          req.URL,
		Price:        req.Price,
		Description:  req.Description,
		DiscoveredAt: time.Now().UTC(),
	}

	result := h.pipeline.Submit(c.Request.Context(), record)

	resp := gin.H{
		"submissionId": uuid.NewString(),
		"status":       string(result.Status),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	switch result.Status {
	case usecase.StatusRejected:
		resp["reason"] = string(result.Reason)
		c.JSON(http.StatusBadRequest, resp)
	case usecase.StatusDuplicate:
		c.JSON(http.StatusOK, resp)
	case usecase.StatusDelivered:
		resp["externalId"] = result.ExternalID
		c.JSON(http.StatusOK, resp)
	default:
		// Accepted but delivery failed downstream.
		if result.Err != nil {
			resp["error"] = result.Err.Error()
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

// GetSummary reports the pipeline's aggregated counts for this run
func (h *Handler) GetSummary(c *gin.Context) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "pipeline not configured",
		})
		return
	}
	c.JSON(http.StatusOK, h.pipeline.Summary())
}
