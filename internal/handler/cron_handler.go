package handler

import (
	"net/http"
	"time"

	"pawhaven/internal/service"

	"github.com/gin-gonic/gin"
)

type CronHandler struct {
	sweeper *service.Sweeper
	now     func() time.Time
}

func NewCronHandler(sweeper *service.Sweeper) *CronHandler {
	return &CronHandler{sweeper: sweeper, now: func() time.Time { return time.Now().UTC() }}
}

// ExpireApplications runs one sweep. Authorization is done by middleware.CronSecret.
func (h *CronHandler) ExpireApplications(c *gin.Context) {
	report, err := h.sweeper.Run(c.Request.Context(), h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"message":   "failed to fetch expired applications",
			"processed": 0,
			"errors":    1,
			"results":   []service.SweepItemResult{},
		})
		return
	}
	message := "expiration sweep completed"
	if report.Interrupted {
		message = "expiration sweep interrupted"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   message,
		"processed": report.Processed,
		"skipped":   report.Skipped,
		"errors":    report.Errors,
		"results":   report.Results,
	})
}
