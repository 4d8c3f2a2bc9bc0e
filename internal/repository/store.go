package repository

import (
	"context"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/models"
)

// ReconciliationStore is the persistence boundary shared by the webhook
// reconciler and the expiration sweeper. Every mutation is a compare-and-swap
// on the row's current state: the bool result reports whether the write
// applied, and (false, nil) means another process got there first.
type ReconciliationStore interface {
	// WithinTx runs fn against a store bound to a single database transaction.
	// fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(s ReconciliationStore) error) error

	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, id string, paidAt time.Time) (bool, error)
	FailTransaction(ctx context.Context, id, reason string) (bool, error)
	ClaimPayout(ctx context.Context, id string) (bool, error)
	HasCompletedTransaction(ctx context.Context, applicationID string, paymentType domain.PaymentType) (bool, error)

	GetApplication(ctx context.Context, id string) (*models.Application, error)
	MarkReservationPaid(ctx context.Context, applicationID string) (bool, error)
	CompleteApplication(ctx context.Context, applicationID string) (bool, error)
	ExpireApplication(ctx context.Context, applicationID string) (bool, error)

	GetListing(ctx context.Context, id string) (*models.Listing, error)
	TransitionListingStatus(ctx context.Context, listingID string, from, to domain.ListingStatus) (bool, error)

	ListExpirationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]ExpirationCandidate, error)
}

// ExpirationCandidate is a stale unpaid application joined with its listing.
type ExpirationCandidate struct {
	ApplicationID string
	ListingID     string
	SeekerID      string
	BreederID     string
	ListingTitle  string
	ListingStatus domain.ListingStatus
	CreatedAt     time.Time
}
