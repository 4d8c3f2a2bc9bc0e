package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pawhaven/config"
	"pawhaven/internal/domain"
	"pawhaven/internal/models"
	"pawhaven/internal/repository"
	"pawhaven/pkg/payment"

	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
)

type InitializeInput struct {
	SeekerID      string
	SeekerEmail   string
	ApplicationID string
	ListingID     string
	BreederID     string
	Type          string
	Amount        int64 // minor units
}

type InitializeOutput struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
}

type VerifyOutput struct {
	Status    string     `json:"status"`
	Reference string     `json:"reference"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// PaymentService opens payment attempts with the processor. The pending
// Transaction is stored before the processor is called so a webhook can never
// arrive for an unknown reference.
type PaymentService struct {
	store       repository.ReconciliationStore
	gateway     payment.Gateway
	auditor     Auditor
	log         *slog.Logger
	cfg         config.PaymentConfig
	rate        decimal.Decimal
	nonce       func() string
	callTimeout time.Duration
}

func NewPaymentService(store repository.ReconciliationStore, gateway payment.Gateway, auditor Auditor, cfg config.PaymentConfig, log *slog.Logger, callTimeout time.Duration) (*PaymentService, error) {
	rate, err := decimal.NewFromString(cfg.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("commission rate %q: %w", cfg.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate %s out of range [0,1)", rate)
	}
	nonce, err := nanoid.CustomASCII("0123456789abcdefghijklmnopqrstuvwxyz", 12)
	if err != nil {
		return nil, err
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &PaymentService{
		store:       store,
		gateway:     gateway,
		auditor:     auditor,
		log:         log.With("component", "payments"),
		cfg:         cfg,
		rate:        rate,
		nonce:       nonce,
		callTimeout: callTimeout,
	}, nil
}

// Commission is the platform share of amount, rounded half away from zero to a whole minor unit.
func (s *PaymentService) Commission(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(s.rate).Round(0).IntPart()
}

func (s *PaymentService) Initialize(ctx context.Context, in InitializeInput) (*InitializeOutput, error) {
	if in.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	pt, err := domain.ParsePaymentType(in.Type)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	app, err := s.store.GetApplication(sctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.SeekerID != in.SeekerID {
		return nil, domain.ErrUnauthorized
	}
	if in.ListingID != "" && app.ListingID != in.ListingID {
		return nil, fmt.Errorf("%w: listing does not match application", domain.ErrApplicationNotPayable)
	}
	listing, err := s.store.GetListing(sctx, app.ListingID)
	if err != nil {
		return nil, err
	}
	if in.BreederID != "" && listing.OwnerID != in.BreederID {
		return nil, fmt.Errorf("%w: breeder does not own listing", domain.ErrApplicationNotPayable)
	}
	if app.Status != domain.ApplicationSubmitted {
		return nil, fmt.Errorf("%w: application is %s", domain.ErrApplicationNotPayable, app.Status)
	}
	switch {
	case pt == domain.PaymentReservation && app.ReservationPaid:
		return nil, domain.ErrAlreadyPaid
	case pt == domain.PaymentFinal && !app.ReservationPaid:
		return nil, fmt.Errorf("%w: reservation fee not paid", domain.ErrApplicationNotPayable)
	}
	paid, err := s.store.HasCompletedTransaction(sctx, app.ID, pt)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, domain.ErrAlreadyPaid
	}

	tx := &models.Transaction{
		ApplicationID:     app.ID,
		SeekerID:          app.SeekerID,
		BreederID:         listing.OwnerID,
		ListingID:         app.ListingID,
		Amount:            in.Amount,
		CommissionFee:     s.Commission(in.Amount),
		Currency:          s.cfg.Currency,
		PaymentType:       pt,
		Status:            domain.TransactionPending,
		ExternalReference: fmt.Sprintf("%s_%s_%s", pt, app.ID, s.nonce()),
		PayoutStatus:      domain.PayoutPending,
	}
	if err := s.store.CreateTransaction(sctx, tx); err != nil {
		return nil, err
	}
	cancel()

	resp, err := s.gateway.Initialize(ctx, payment.InitializeRequest{
		AmountMinor: tx.Amount,
		Email:       in.SeekerEmail,
		Reference:   tx.ExternalReference,
		Currency:    tx.Currency,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: map[string]interface{}{
			"application_id": app.ID,
			"listing_id":     app.ListingID,
			"payment_type":   string(pt),
			"seeker_id":      app.SeekerID,
			"breeder_id":     listing.OwnerID,
		},
	})
	if err != nil {
		s.abandon(ctx, tx, err)
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	s.record(ctx, AuditEntry{
		ActorID:    tx.SeekerID,
		Action:     domain.AuditPaymentInitialized,
		Resource:   "transaction",
		ResourceID: tx.ID,
		Metadata: map[string]interface{}{
			"reference":      tx.ExternalReference,
			"application_id": tx.ApplicationID,
			"payment_type":   string(pt),
			"amount":         tx.Amount,
			"commission_fee": tx.CommissionFee,
		},
	})
	return &InitializeOutput{AuthorizationURL: resp.AuthorizationURL, Reference: tx.ExternalReference}, nil
}

// Verify asks the processor about reference. It never changes local state;
// only the webhook does.
func (s *PaymentService) Verify(ctx context.Context, userID, reference string) (*VerifyOutput, error) {
	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	tx, err := s.store.GetTransactionByReference(sctx, reference)
	cancel()
	if err != nil {
		return nil, err
	}
	if tx.SeekerID != userID && tx.BreederID != userID {
		return nil, domain.ErrNotFound
	}
	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	out := &VerifyOutput{Status: "pending", Reference: reference, Amount: res.AmountMinor}
	if res.Status == payment.VerifySuccess {
		out.Status = "completed"
		out.PaidAt = res.PaidAt
	}
	return out, nil
}

func (s *PaymentService) abandon(ctx context.Context, tx *models.Transaction, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
	defer cancel()
	if _, err := s.store.FailTransaction(ctx, tx.ID, domain.FailureInitializeFailed); err != nil {
		s.log.Error("mark transaction failed", "reference", tx.ExternalReference, "error", err)
	}
	var gerr *payment.GatewayError
	if errors.As(cause, &gerr) {
		s.log.Warn("processor rejected initialize", "reference", tx.ExternalReference, "status", gerr.StatusCode, "message", gerr.Message)
	} else {
		s.log.Error("initialize payment", "reference", tx.ExternalReference, "error", cause)
	}
}

func (s *PaymentService) record(ctx context.Context, e AuditEntry) {
	if s.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.auditor.Record(ctx, e); err != nil {
		s.log.Warn("audit write failed", "action", e.Action, "error", err)
	}
}
