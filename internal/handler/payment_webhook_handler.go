package handler

import (
	"io"
	"log/slog"
	"net/http"

	"pawhaven/internal/domain"
	"pawhaven/internal/service"
	"pawhaven/pkg/payment"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookHandler struct {
	reconciler *service.Reconciler
	secret     string
	log        *slog.Logger
}

func NewPaymentWebhookHandler(reconciler *service.Reconciler, secret string, log *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{reconciler: reconciler, secret: secret, log: log.With("component", "webhook")}
}

// Handle verifies the signature over the raw body, then reconciles. Once the
// event is authentic and parseable the processor always gets 200, so it does
// not redeliver what we already logged.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}
	sig := c.GetHeader("X-Signature")
	if sig == "" {
		sig = c.GetHeader("X-Paystack-Signature")
	}
	if !payment.VerifySignature(h.secret, body, sig) {
		h.log.Warn("webhook signature rejected", "ip", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid signature"})
		return
	}
	env, err := domain.ParseEnvelope(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid payload"})
		return
	}
	if _, err := h.reconciler.Reconcile(c.Request.Context(), env); err != nil {
		h.log.Error("webhook not applied", "event", env.Event, "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
