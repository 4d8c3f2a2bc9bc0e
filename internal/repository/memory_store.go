package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/models"

	"github.com/google/uuid"
)

var errDuplicateReference = errors.New("duplicate external_reference")

// MemoryStore is an in-process ReconciliationStore for local runs and tests.
// Single operations are atomic under mu; WithinTx blocks are serialized with
// each other and rolled back from a snapshot on error.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	listings     map[string]models.Listing
	applications map[string]models.Application
	transactions map[string]models.Transaction
	byReference  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:     make(map[string]models.Listing),
		applications: make(map[string]models.Application),
		transactions: make(map[string]models.Transaction),
		byReference:  make(map[string]string),
	}
}

// PutListing inserts or replaces a listing.
func (m *MemoryStore) PutListing(l models.Listing) models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.UpdatedAt = time.Now().UTC()
	m.listings[l.ID] = l
	return l
}

// PutApplication inserts or replaces an application.
func (m *MemoryStore) PutApplication(a models.Application) models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = time.Now().UTC()
	m.applications[a.ID] = a
	return a
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ReconciliationStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("create transaction", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byReference[t.ExternalReference]; dup {
		return domain.NewStoreError("create transaction", errDuplicateReference)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.PayoutStatus == "" {
		t.PayoutStatus = domain.PayoutPending
	}
	m.transactions[t.ID] = *t
	m.byReference[t.ExternalReference] = t.ID
	return nil
}

func (m *MemoryStore) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get transaction", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byReference[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := m.transactions[id]
	return &t, nil
}

func (m *MemoryStore) CompleteTransaction(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	return m.updateTransaction(ctx, id, func(t *models.Transaction) bool {
		if t.Status != domain.TransactionPending {
			return false
		}
		t.Status = domain.TransactionCompleted
		t.PaidAt = &paidAt
		return true
	})
}

func (m *MemoryStore) FailTransaction(ctx context.Context, id, reason string) (bool, error) {
	return m.updateTransaction(ctx, id, func(t *models.Transaction) bool {
		if t.Status != domain.TransactionPending {
			return false
		}
		t.Status = domain.TransactionFailed
		t.FailureReason = reason
		return true
	})
}

func (m *MemoryStore) ClaimPayout(ctx context.Context, id string) (bool, error) {
	return m.updateTransaction(ctx, id, func(t *models.Transaction) bool {
		if t.Status != domain.TransactionCompleted || t.PayoutStatus != domain.PayoutPending {
			return false
		}
		t.PayoutStatus = domain.PayoutProcessing
		return true
	})
}

func (m *MemoryStore) HasCompletedTransaction(ctx context.Context, applicationID string, paymentType domain.PaymentType) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("count completed transactions", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ApplicationID == applicationID && t.PaymentType == paymentType && t.Status == domain.TransactionCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get application", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) MarkReservationPaid(ctx context.Context, applicationID string) (bool, error) {
	return m.updateApplication(ctx, applicationID, func(a *models.Application) bool {
		if a.Status != domain.ApplicationSubmitted || a.ReservationPaid {
			return false
		}
		a.ReservationPaid = true
		return true
	})
}

func (m *MemoryStore) CompleteApplication(ctx context.Context, applicationID string) (bool, error) {
	return m.updateApplication(ctx, applicationID, func(a *models.Application) bool {
		if a.Status != domain.ApplicationSubmitted {
			return false
		}
		now := time.Now().UTC()
		a.Status = domain.ApplicationCompleted
		a.PaymentComplete = true
		a.CompletedAt = &now
		return true
	})
}

func (m *MemoryStore) ExpireApplication(ctx context.Context, applicationID string) (bool, error) {
	return m.updateApplication(ctx, applicationID, func(a *models.Application) bool {
		if a.Status != domain.ApplicationSubmitted || a.ReservationPaid {
			return false
		}
		now := time.Now().UTC()
		a.Status = domain.ApplicationExpired
		a.ExpiredAt = &now
		return true
	})
}

func (m *MemoryStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get listing", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (m *MemoryStore) TransitionListingStatus(ctx context.Context, listingID string, from, to domain.ListingStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("transition listing", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	m.listings[listingID] = l
	return true, nil
}

func (m *MemoryStore) ListExpirationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]ExpirationCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("list expiration candidates", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExpirationCandidate
	for _, a := range m.applications {
		if a.Status != domain.ApplicationSubmitted || a.ReservationPaid || !a.CreatedAt.Before(cutoff) {
			continue
		}
		l, ok := m.listings[a.ListingID]
		if !ok {
			continue
		}
		out = append(out, ExpirationCandidate{
			ApplicationID: a.ID,
			ListingID:     a.ListingID,
			SeekerID:      a.SeekerID,
			BreederID:     l.OwnerID,
			ListingTitle:  l.Title,
			ListingStatus: l.Status,
			CreatedAt:     a.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) updateTransaction(ctx context.Context, id string, apply func(*models.Transaction) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("update transaction", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok || !apply(&t) {
		return false, nil
	}
	t.UpdatedAt = time.Now().UTC()
	m.transactions[id] = t
	return true, nil
}

func (m *MemoryStore) updateApplication(ctx context.Context, id string, apply func(*models.Application) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("update application", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok || !apply(&a) {
		return false, nil
	}
	a.UpdatedAt = time.Now().UTC()
	m.applications[id] = a
	return true, nil
}

type memorySnapshot struct {
	listings     map[string]models.Listing
	applications map[string]models.Application
	transactions map[string]models.Transaction
	byReference  map[string]string
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memorySnapshot{
		listings:     cloneMap(m.listings),
		applications: cloneMap(m.applications),
		transactions: cloneMap(m.transactions),
		byReference:  cloneMap(m.byReference),
	}
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = s.listings
	m.applications = s.applications
	m.transactions = s.transactions
	m.byReference = s.byReference
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
