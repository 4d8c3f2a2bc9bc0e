package handler

import (
	"context"
	"net/http"

	"pawhaven/internal/middleware"

	"github.com/gin-gonic/gin"
)

type deviceTokenStore interface {
	Upsert(ctx context.Context, userID, token, platform string) error
}

type DeviceHandler struct {
	tokens deviceTokenStore
}

func NewDeviceHandler(tokens deviceTokenStore) *DeviceHandler {
	return &DeviceHandler{tokens: tokens}
}

// RegisterFCMToken saves the FCM token for push notifications.
func (h *DeviceHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push registration unavailable"})
		return
	}
	if err := h.tokens.Upsert(c.Request.Context(), middleware.GetUserID(c), req.Token, req.Platform); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
