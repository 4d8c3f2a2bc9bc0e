package router

import (
	"net/http"
	"time"

	"pawhaven/internal/app"
	"pawhaven/internal/handler"
	"pawhaven/internal/middleware"
	"pawhaven/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(a *app.App, limiter *middleware.InMemoryRateLimiter) *gin.Engine {
	cfg := a.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	webhookHandler := handler.NewPaymentWebhookHandler(a.Reconciler, cfg.Payment.WebhookSecret(), a.Log)
	cronHandler := handler.NewCronHandler(a.Sweeper)
	paymentHandler := handler.NewPaymentHandler(a.Payments)
	deviceHandler := handler.NewDeviceHandler(nil)
	if a.DeviceTokens != nil {
		deviceHandler = handler.NewDeviceHandler(a.DeviceTokens)
	}

	authMw := middleware.AuthRequired(&cfg.JWT)
	rateMw := middleware.RateLimit(limiter)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	// Processor retries must never be throttled.
	r.POST("/payments/webhook", webhookHandler.Handle)

	r.POST("/cron/expire-applications", rateMw, middleware.CronSecret(cfg.Cron.Secret), cronHandler.ExpireApplications)

	payments := r.Group("/payments")
	payments.Use(rateMw, authMw)
	{
		payments.POST("/initialize", paymentHandler.Initialize)
		payments.GET("/verify/:reference", paymentHandler.Verify)
	}

	me := r.Group("/me")
	me.Use(rateMw, authMw)
	{
		me.POST("/fcm-token", deviceHandler.RegisterFCMToken)
	}

	r.GET("/ws/notifications", rateMw, ws.UpgradeNotificationWS(&cfg.JWT, a.Hub, a.Log))

	return r
}
