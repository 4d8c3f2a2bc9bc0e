package handler

import (
	"errors"
	"net/http"

	"pawhaven/internal/domain"
	"pawhaven/internal/middleware"
	"pawhaven/internal/service"
	"pawhaven/pkg/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initializeRequest struct {
	Amount        int64  `json:"amount" binding:"required"`
	Type          string `json:"type" binding:"required"`
	ApplicationID string `json:"applicationId" binding:"required"`
	ListingID     string `json:"listingId"`
	BreederID     string `json:"breederId"`
	SeekerEmail   string `json:"seekerEmail" binding:"required,email"`
}

// Initialize opens a payment attempt for the caller's application.
func (h *PaymentHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	out, err := h.payments.Initialize(c.Request.Context(), service.InitializeInput{
		SeekerID:      middleware.GetUserID(c),
		SeekerEmail:   req.SeekerEmail,
		ApplicationID: req.ApplicationID,
		ListingID:     req.ListingID,
		BreederID:     req.BreederID,
		Type:          req.Type,
		Amount:        req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Verify reports the processor's view of a payment. It changes nothing locally.
func (h *PaymentHandler) Verify(c *gin.Context) {
	out, err := h.payments.Verify(c.Request.Context(), middleware.GetUserID(c), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func writeError(c *gin.Context, err error) {
	var gerr *payment.GatewayError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidPaymentType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domain.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrApplicationNotPayable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &gerr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment processor error", "message": gerr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
