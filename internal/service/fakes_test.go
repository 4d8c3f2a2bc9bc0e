package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/events"
	"pawhaven/internal/logging"
	"pawhaven/internal/metrics"
	"pawhaven/internal/models"
	"pawhaven/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
)

var errTest = errors.New("test error")

type sentNotification struct {
	UserID string
	Type   string
	Data   map[string]interface{}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	// FailFor makes Notify return errTest for these user IDs.
	FailFor  map[string]bool
	OnNotify func()
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, notifType, title, body string, data map[string]interface{}) error {
	if n.OnNotify != nil {
		n.OnNotify()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailFor[userID] {
		return errTest
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: notifType, Data: data})
	return nil
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
	Err     error
}

func (a *recordingAuditor) Record(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture is a memory store seeded with one listing and one submitted application.
type fixture struct {
	store    *repository.MemoryStore
	notifier *recordingNotifier
	auditor  *recordingAuditor
	pub      *recordingPublisher
	metrics  *metrics.Metrics
	listing  models.Listing
	app      models.Application
}

func newFixture(t *testing.T, listingStatus domain.ListingStatus, appAge time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		notifier: &recordingNotifier{},
		auditor:  &recordingAuditor{},
		pub:      &recordingPublisher{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.listing = f.store.PutListing(models.Listing{OwnerID: "breeder-1", Title: "Border collie pup", Status: listingStatus})
	f.app = f.store.PutApplication(models.Application{
		ListingID: f.listing.ID,
		SeekerID:  "seeker-1",
		Status:    domain.ApplicationSubmitted,
		CreatedAt: time.Now().UTC().Add(-appAge),
	})
	return f
}

// addApplication seeds another listing owned by breeder-1 with one submitted application.
func (f *fixture) addApplication(t *testing.T, listingStatus domain.ListingStatus, age time.Duration) (models.Listing, models.Application) {
	t.Helper()
	l := f.store.PutListing(models.Listing{OwnerID: "breeder-1", Title: "Beagle pup", Status: listingStatus})
	a := f.store.PutApplication(models.Application{
		ListingID: l.ID,
		SeekerID:  "seeker-2",
		Status:    domain.ApplicationSubmitted,
		CreatedAt: time.Now().UTC().Add(-age),
	})
	return l, a
}

func (f *fixture) reconciler() *Reconciler {
	return NewReconciler(f.store, f.notifier, f.auditor, f.pub, f.metrics, logging.Discard(), time.Second)
}

func (f *fixture) sweeper() *Sweeper {
	return NewSweeper(f.store, f.notifier, f.auditor, f.pub, f.metrics, logging.Discard(), 24*time.Hour, 100, time.Second)
}

func (f *fixture) pendingTx(t *testing.T, pt domain.PaymentType, amount int64) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ApplicationID:     f.app.ID,
		SeekerID:          f.app.SeekerID,
		BreederID:         f.listing.OwnerID,
		ListingID:         f.listing.ID,
		Amount:            amount,
		CommissionFee:     amount / 20,
		Currency:          "NGN",
		PaymentType:       pt,
		Status:            domain.TransactionPending,
		ExternalReference: fmt.Sprintf("%s_%s_%d", pt, f.app.ID, time.Now().UnixNano()),
	}
	if err := f.store.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatal(err)
	}
	return tx
}

func (f *fixture) application(t *testing.T) *models.Application {
	t.Helper()
	a, err := f.store.GetApplication(context.Background(), f.app.ID)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func (f *fixture) listingNow(t *testing.T) *models.Listing {
	t.Helper()
	l, err := f.store.GetListing(context.Background(), f.listing.ID)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func (f *fixture) transaction(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	tx, err := f.store.GetTransactionByReference(context.Background(), reference)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

// chargeEnvelope builds a processor envelope for tx as the processor would send it.
func chargeEnvelope(t *testing.T, event string, tx *models.Transaction) *domain.Envelope {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"reference": tx.ExternalReference,
			"amount":    tx.Amount,
			"currency":  tx.Currency,
			"status":    "success",
			"paid_at":   "2026-03-01T10:00:00Z",
			"metadata": map[string]string{
				"application_id": tx.ApplicationID,
				"listing_id":     tx.ListingID,
				"payment_type":   string(tx.PaymentType),
				"seeker_id":      tx.SeekerID,
				"breeder_id":     tx.BreederID,
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	env, err := domain.ParseEnvelope(body)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
