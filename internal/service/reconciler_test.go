package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/events"
	"pawhaven/internal/logging"
	"pawhaven/internal/models"
	"pawhaven/internal/repository"
)

// faultyStore fails selected writes and keeps WithinTx bound to itself.
type faultyStore struct {
	*repository.MemoryStore
	completeErr  error
	expireErrFor map[string]bool
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(repository.ReconciliationStore) error) error {
	return s.MemoryStore.WithinTx(ctx, func(repository.ReconciliationStore) error { return fn(s) })
}

func (s *faultyStore) CompleteTransaction(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	if s.completeErr != nil {
		return false, s.completeErr
	}
	return s.MemoryStore.CompleteTransaction(ctx, id, paidAt)
}

func (s *faultyStore) ExpireApplication(ctx context.Context, id string) (bool, error) {
	if s.expireErrFor[id] {
		return false, domain.NewStoreError("expire application", errTest)
	}
	return s.MemoryStore.ExpireApplication(ctx, id)
}

func TestReconcileReservationPayment(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeApplied || !res.ApplicationUpdated || res.AfterExpiry {
		t.Fatalf("unexpected result %+v", res)
	}

	if app := f.application(t); !app.ReservationPaid || app.Status != domain.ApplicationSubmitted {
		t.Errorf("application = %+v", app)
	}
	got := f.transaction(t, tx.ExternalReference)
	if got.Status != domain.TransactionCompleted || got.PaidAt == nil {
		t.Errorf("transaction = %+v", got)
	}
	if l := f.listingNow(t); l.Status != domain.ListingReserved {
		t.Errorf("listing status = %s", l.Status)
	}

	sent := f.notifier.all()
	if len(sent) != 1 || sent[0].UserID != "breeder-1" || sent[0].Type != domain.NotifReservationPaid {
		t.Errorf("notifications = %+v", sent)
	}
	if got := f.auditor.actions(); !equalStrings(got, []string{domain.AuditPaymentCompleted}) {
		t.Errorf("audit = %v", got)
	}
	if got := f.pub.types(); !equalStrings(got, []string{events.TypePaymentCompleted}) {
		t.Errorf("events = %v", got)
	}
}

func TestReconcileAlreadyCompletedTransaction(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	if ok, _ := f.store.CompleteTransaction(context.Background(), tx.ID, time.Now()); !ok {
		t.Fatal("seed completion lost")
	}

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if app := f.application(t); app.ReservationPaid {
		t.Error("application changed for an already-completed transaction")
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	if n := len(f.pub.types()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestReconcileRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	env := chargeEnvelope(t, domain.EventChargeSuccess, tx)
	r := f.reconciler()

	if _, err := r.Reconcile(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	before := f.application(t)
	res, err := r.Reconcile(context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s", res.Outcome)
	}
	after := f.application(t)
	if after.ReservationPaid != before.ReservationPaid || after.Status != before.Status {
		t.Errorf("state changed on redelivery: %+v -> %+v", before, after)
	}
	if n := len(f.notifier.all()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if n := len(f.auditor.actions()); n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}

func TestReconcileConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentFinal, 100000)
	if ok, _ := f.store.MarkReservationPaid(context.Background(), f.app.ID); !ok {
		t.Fatal("seed reservation")
	}
	env := chargeEnvelope(t, domain.EventChargeSuccess, tx)
	r := f.reconciler()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Reconcile(context.Background(), env)
			if err != nil {
				t.Errorf("Reconcile: %v", err)
				return
			}
			if res.Outcome == OutcomeApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if n := len(f.notifier.all()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	want := []string{events.TypePaymentCompleted, events.TypeApplicationCompleted, events.TypePayoutRequested}
	if got := f.pub.types(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestReconcileFinalPayment(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, 2*time.Hour)
	if ok, _ := f.store.MarkReservationPaid(context.Background(), f.app.ID); !ok {
		t.Fatal("seed reservation")
	}
	tx := f.pendingTx(t, domain.PaymentFinal, 100000)

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeApplied || !res.ApplicationUpdated || !res.PayoutRequested {
		t.Fatalf("unexpected result %+v", res)
	}

	app := f.application(t)
	if app.Status != domain.ApplicationCompleted || !app.PaymentComplete || app.CompletedAt == nil {
		t.Errorf("application = %+v", app)
	}
	if got := f.transaction(t, tx.ExternalReference); got.PayoutStatus != domain.PayoutProcessing {
		t.Errorf("payout status = %s", got.PayoutStatus)
	}
	if l := f.listingNow(t); l.Status != domain.ListingReserved {
		t.Errorf("listing touched by final payment: %s", l.Status)
	}

	sent := f.notifier.all()
	if len(sent) != 1 || sent[0].Type != domain.NotifFinalPaymentDone || sent[0].UserID != "breeder-1" {
		t.Errorf("notifications = %+v", sent)
	}
	var payout *events.Event
	for i := range f.pub.events {
		if f.pub.events[i].Type == events.TypePayoutRequested {
			payout = &f.pub.events[i]
		}
	}
	if payout == nil {
		t.Fatal("no payout.requested event")
	}
	if payout.Amount != 95000 {
		t.Errorf("payout amount = %d, want 95000", payout.Amount)
	}
}

func TestReconcileLatePaymentAfterExpiry(t *testing.T) {
	f := newFixture(t, domain.ListingAvailable, 30*time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	if ok, _ := f.store.ExpireApplication(context.Background(), f.app.ID); !ok {
		t.Fatal("seed expiry")
	}

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Outcome != OutcomeApplied || res.ApplicationUpdated || !res.AfterExpiry {
		t.Fatalf("unexpected result %+v", res)
	}
	app := f.application(t)
	if app.Status != domain.ApplicationExpired || app.ReservationPaid {
		t.Errorf("expired application was resurrected: %+v", app)
	}
	if got := f.transaction(t, tx.ExternalReference); got.Status != domain.TransactionCompleted {
		t.Errorf("transaction status = %s", got.Status)
	}

	sent := f.notifier.all()
	if len(sent) != 2 {
		t.Fatalf("notifications = %+v", sent)
	}
	for _, n := range sent {
		if n.Type != domain.NotifPaymentAfterExpiry {
			t.Errorf("notification type = %s", n.Type)
		}
	}
	if got := f.auditor.actions(); !equalStrings(got, []string{domain.AuditPaymentAfterExpiry}) {
		t.Errorf("audit = %v", got)
	}
	if got := f.pub.types(); !equalStrings(got, []string{events.TypePaymentAfterExpiry}) {
		t.Errorf("events = %v", got)
	}
}

func TestReconcileSecondPaymentOfSameTypeIsDuplicate(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	first := f.pendingTx(t, domain.PaymentReservation, 5000)
	second := f.pendingTx(t, domain.PaymentReservation, 5000)
	r := f.reconciler()

	if _, err := r.Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, first)); err != nil {
		t.Fatal(err)
	}
	res, err := r.Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeApplied || !res.DuplicatePayment {
		t.Fatalf("unexpected result %+v", res)
	}
	got := f.transaction(t, second.ExternalReference)
	if got.Status != domain.TransactionFailed || got.FailureReason != domain.FailureDuplicatePayment {
		t.Errorf("second transaction = %+v", got)
	}
	sent := f.notifier.all()
	if len(sent) != 2 || sent[1].Type != domain.NotifDuplicatePayment || sent[1].UserID != "seeker-1" {
		t.Errorf("notifications = %+v", sent)
	}
	want := []string{events.TypePaymentCompleted, events.TypePaymentDuplicate}
	if got := f.pub.types(); !equalStrings(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestReconcileChargeFailed(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	env := chargeEnvelope(t, domain.EventChargeFailed, tx)
	r := f.reconciler()

	res, err := r.Reconcile(context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", res.Outcome)
	}
	got := f.transaction(t, tx.ExternalReference)
	if got.Status != domain.TransactionFailed || got.FailureReason != domain.FailureProcessorDeclined {
		t.Errorf("transaction = %+v", got)
	}
	if app := f.application(t); app.ReservationPaid {
		t.Error("failed charge marked reservation paid")
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d", n)
	}

	res, err = r.Reconcile(context.Background(), env)
	if err != nil || res.Outcome != OutcomeDuplicate {
		t.Errorf("redelivery = %+v, %v", res, err)
	}
	if got := f.pub.types(); !equalStrings(got, []string{events.TypePaymentFailed}) {
		t.Errorf("events = %v", got)
	}
}

func TestReconcileSuccessForFailedTransaction(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	if ok, _ := f.store.FailTransaction(context.Background(), tx.ID, domain.FailureInitializeFailed); !ok {
		t.Fatal("seed failure")
	}

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if got := f.transaction(t, tx.ExternalReference); got.Status != domain.TransactionFailed {
		t.Errorf("failed transaction moved to %s", got.Status)
	}
	if got := f.auditor.actions(); !equalStrings(got, []string{domain.AuditEventRejected}) {
		t.Errorf("audit = %v", got)
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d", n)
	}
}

func TestReconcileRejectsMismatchedEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Transaction)
	}{
		{"unknown reference", func(tx *models.Transaction) { tx.ExternalReference = "reservation_unknown_x" }},
		{"amount mismatch", func(tx *models.Transaction) { tx.Amount++ }},
		{"application mismatch", func(tx *models.Transaction) { tx.ApplicationID = "someone-else" }},
		{"payment type mismatch", func(tx *models.Transaction) { tx.PaymentType = domain.PaymentFinal }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domain.ListingReserved, time.Hour)
			tx := f.pendingTx(t, domain.PaymentReservation, 5000)
			forged := *tx
			tt.mutate(&forged)

			res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, &forged))
			if !errors.Is(err, domain.ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
			if res.Outcome != OutcomeRejected {
				t.Errorf("outcome = %s", res.Outcome)
			}
			if got := f.transaction(t, tx.ExternalReference); got.Status != domain.TransactionPending {
				t.Errorf("transaction status = %s", got.Status)
			}
			if app := f.application(t); app.ReservationPaid {
				t.Error("application changed")
			}
			if got := f.auditor.actions(); !equalStrings(got, []string{domain.AuditEventRejected}) {
				t.Errorf("audit = %v", got)
			}
			if n := len(f.notifier.all()); n != 0 {
				t.Errorf("notifications = %d", n)
			}
		})
	}
}

func TestReconcileIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	env, err := domain.ParseEnvelope([]byte(`{"event":"transfer.success","data":{"reference":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.reconciler().Reconcile(context.Background(), env)
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("Reconcile = %+v, %v", res, err)
	}
	if n := len(f.auditor.actions()); n != 0 {
		t.Errorf("audit entries = %d", n)
	}
}

func TestReconcileStoreFailureLeavesNoSideEffects(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)
	store := &faultyStore{MemoryStore: f.store, completeErr: domain.NewStoreError("complete transaction", errTest)}
	r := NewReconciler(store, f.notifier, f.auditor, f.pub, nil, logging.Discard(), time.Second)

	res, err := r.Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	var serr *domain.StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if res.Outcome != OutcomeError {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if got := f.transaction(t, tx.ExternalReference); got.Status != domain.TransactionPending {
		t.Errorf("transaction status = %s", got.Status)
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d", n)
	}
}

func TestReconcileNotificationFailureKeepsState(t *testing.T) {
	f := newFixture(t, domain.ListingReserved, time.Hour)
	f.notifier.FailFor = map[string]bool{"breeder-1": true}
	f.auditor.Err = errTest
	tx := f.pendingTx(t, domain.PaymentReservation, 5000)

	res, err := f.reconciler().Reconcile(context.Background(), chargeEnvelope(t, domain.EventChargeSuccess, tx))
	if err != nil || res.Outcome != OutcomeApplied {
		t.Fatalf("Reconcile = %+v, %v", res, err)
	}
	if app := f.application(t); !app.ReservationPaid {
		t.Error("reservation rolled back by a side-effect failure")
	}
}

// A reservation payment racing the sweep must end in exactly one of two
// consistent states regardless of which side commits first.
func TestReservationPaymentRacesSweep(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture(t, domain.ListingReserved, 30*time.Hour)
		tx := f.pendingTx(t, domain.PaymentReservation, 5000)
		env := chargeEnvelope(t, domain.EventChargeSuccess, tx)

		var (
			wg     sync.WaitGroup
			res    *ReconcileResult
			report *SweepReport
			rerr   error
			serr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, rerr = f.reconciler().Reconcile(context.Background(), env)
		}()
		go func() {
			defer wg.Done()
			report, serr = f.sweeper().Run(context.Background(), time.Now().UTC())
		}()
		wg.Wait()
		if rerr != nil || serr != nil {
			t.Fatalf("run %d: reconcile err %v, sweep err %v", i, rerr, serr)
		}

		app := f.application(t)
		if app.Status == domain.ApplicationExpired && app.ReservationPaid {
			t.Fatalf("run %d: application both expired and paid", i)
		}
		if f.transaction(t, tx.ExternalReference).Status != domain.TransactionCompleted {
			t.Fatalf("run %d: payment not recorded", i)
		}
		switch {
		case res.ApplicationUpdated:
			if app.Status != domain.ApplicationSubmitted || !app.ReservationPaid {
				t.Fatalf("run %d: payment won but application = %+v", i, app)
			}
			if report.Processed != 0 {
				t.Fatalf("run %d: sweep expired a paid application", i)
			}
			if f.listingNow(t).Status != domain.ListingReserved {
				t.Fatalf("run %d: listing released under a paid application", i)
			}
		case res.AfterExpiry:
			if app.Status != domain.ApplicationExpired || report.Processed != 1 {
				t.Fatalf("run %d: sweep won but application = %+v, report = %+v", i, app, report)
			}
		default:
			t.Fatalf("run %d: unexpected result %+v", i, res)
		}
	}
}
