package repository

import (
	"context"
	"errors"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/models"

	"gorm.io/gorm"
)

// GormStore implements ReconciliationStore with conditional UPDATEs: each
// mutation carries its expected current state in the WHERE clause and
// reports RowsAffected == 1.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(ReconciliationStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return domain.NewStoreError("create transaction", s.db.WithContext(ctx).Create(t).Error)
}

func (s *GormStore) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Where("external_reference = ?", reference).First(&t).Error
	if err != nil {
		return nil, notFoundOr("get transaction", err)
	}
	return &t, nil
}

func (s *GormStore) CompleteTransaction(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	return s.cas("complete transaction", s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TransactionPending).
		Updates(map[string]interface{}{"status": domain.TransactionCompleted, "paid_at": paidAt}))
}

func (s *GormStore) FailTransaction(ctx context.Context, id, reason string) (bool, error) {
	return s.cas("fail transaction", s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TransactionPending).
		Updates(map[string]interface{}{"status": domain.TransactionFailed, "failure_reason": reason}))
}

func (s *GormStore) ClaimPayout(ctx context.Context, id string) (bool, error) {
	return s.cas("claim payout", s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND payout_status = ?", id, domain.TransactionCompleted, domain.PayoutPending).
		Update("payout_status", domain.PayoutProcessing))
}

func (s *GormStore) HasCompletedTransaction(ctx context.Context, applicationID string, paymentType domain.PaymentType) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("application_id = ? AND payment_type = ? AND status = ?", applicationID, paymentType, domain.TransactionCompleted).
		Count(&n).Error
	if err != nil {
		return false, domain.NewStoreError("count completed transactions", err)
	}
	return n > 0, nil
}

func (s *GormStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var a models.Application
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("get application", err)
	}
	return &a, nil
}

func (s *GormStore) MarkReservationPaid(ctx context.Context, applicationID string) (bool, error) {
	return s.cas("mark reservation paid", s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ? AND reservation_paid = ?", applicationID, domain.ApplicationSubmitted, false).
		Update("reservation_paid", true))
}

func (s *GormStore) CompleteApplication(ctx context.Context, applicationID string) (bool, error) {
	now := time.Now().UTC()
	return s.cas("complete application", s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ?", applicationID, domain.ApplicationSubmitted).
		Updates(map[string]interface{}{
			"status":           domain.ApplicationCompleted,
			"payment_complete": true,
			"completed_at":     now,
		}))
}

func (s *GormStore) ExpireApplication(ctx context.Context, applicationID string) (bool, error) {
	now := time.Now().UTC()
	return s.cas("expire application", s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ? AND reservation_paid = ?", applicationID, domain.ApplicationSubmitted, false).
		Updates(map[string]interface{}{"status": domain.ApplicationExpired, "expired_at": now}))
}

func (s *GormStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("get listing", err)
	}
	return &l, nil
}

func (s *GormStore) TransitionListingStatus(ctx context.Context, listingID string, from, to domain.ListingStatus) (bool, error) {
	return s.cas("transition listing", s.db.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ? AND status = ?", listingID, from).
		Update("status", to))
}

func (s *GormStore) ListExpirationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]ExpirationCandidate, error) {
	var out []ExpirationCandidate
	err := s.db.WithContext(ctx).Table("applications a").
		Select(`a.id AS application_id, a.listing_id, a.seeker_id, a.created_at,
			l.owner_id AS breeder_id, l.title AS listing_title, l.status AS listing_status`).
		Joins("INNER JOIN listings l ON l.id = a.listing_id").
		Where("a.status = ? AND a.reservation_paid = ? AND a.created_at < ?", domain.ApplicationSubmitted, false, cutoff).
		Order("a.created_at ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, domain.NewStoreError("list expiration candidates", err)
	}
	return out, nil
}

func (s *GormStore) cas(op string, res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, domain.NewStoreError(op, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return domain.NewStoreError(op, err)
}
