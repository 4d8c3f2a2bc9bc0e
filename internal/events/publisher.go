package events

import (
	"context"
	"time"
)

// Event types published after reconciliation and sweep outcomes commit.
const (
	TypePaymentCompleted     = "payment.completed"
	TypePaymentFailed        = "payment.failed"
	TypePaymentAfterExpiry   = "payment.after_expiry"
	TypePaymentDuplicate     = "payment.duplicate"
	TypeApplicationCompleted = "application.completed"
	TypeApplicationExpired   = "application.expired"
	TypeListingReleased      = "listing.released"
	TypePayoutRequested      = "payout.requested"
)

type Event struct {
	Type          string                 `json:"type"`
	ApplicationID string                 `json:"application_id"`
	ListingID     string                 `json:"listing_id,omitempty"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	Reference     string                 `json:"reference,omitempty"`
	PaymentType   string                 `json:"payment_type,omitempty"`
	Amount        int64                  `json:"amount,omitempty"`
	Currency      string                 `json:"currency,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher drops everything. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }
