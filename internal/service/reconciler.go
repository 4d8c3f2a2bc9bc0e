package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pawhaven/internal/domain"
	"pawhaven/internal/events"
	"pawhaven/internal/metrics"
	"pawhaven/internal/models"
	"pawhaven/internal/repository"
)

type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeFailed    ReconcileOutcome = "failed"
	OutcomeIgnored   ReconcileOutcome = "ignored"
	OutcomeRejected  ReconcileOutcome = "rejected"
	OutcomeError     ReconcileOutcome = "error"
)

// ReconcileResult describes what one delivery did.
type ReconcileResult struct {
	Outcome            ReconcileOutcome
	Reference          string
	TransactionID      string
	ApplicationID      string
	PaymentType        domain.PaymentType
	ApplicationUpdated bool
	AfterExpiry        bool
	DuplicatePayment   bool
	PayoutRequested    bool
}

// Reconciler applies verified processor events to local state exactly once.
// The Transaction row is the idempotency record: only the delivery that wins
// the pending->completed write emits notifications, audit entries and events.
type Reconciler struct {
	store       repository.ReconciliationStore
	notifier    Notifier
	auditor     Auditor
	events      events.Publisher
	metrics     *metrics.Metrics
	log         *slog.Logger
	callTimeout time.Duration
	now         func() time.Time
}

func NewReconciler(store repository.ReconciliationStore, notifier Notifier, auditor Auditor, pub events.Publisher, m *metrics.Metrics, log *slog.Logger, callTimeout time.Duration) *Reconciler {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Reconciler{
		store:       store,
		notifier:    notifier,
		auditor:     auditor,
		events:      pub,
		metrics:     m,
		log:         log.With("component", "reconciler"),
		callTimeout: callTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// applied is filled inside the DB transaction and drives post-commit effects.
type applied struct {
	tx          *models.Transaction
	app         *models.Application
	listing     *models.Listing
	completed   bool
	appUpdated  bool
	afterExpiry bool
	duplicate   bool
	payout      bool
	paidAt      time.Time
}

// Reconcile handles one envelope. Non-charge events are ignored. A returned
// error is either a domain.ErrMalformedEvent or a store failure; both are
// acknowledged to the processor by the caller.
func (r *Reconciler) Reconcile(ctx context.Context, env *domain.Envelope) (res *ReconcileResult, err error) {
	// The processor may hang up; the write that started must still finish.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	res = &ReconcileResult{}
	defer func() {
		r.metrics.RecordReconcile(env.Event, string(res.Outcome), time.Since(start))
	}()

	if !env.IsCharge() {
		res.Outcome = OutcomeIgnored
		r.log.Info("ignoring processor event", "event", env.Event)
		return res, nil
	}

	ev, err := env.ChargeEvent()
	if err != nil {
		res.Outcome = OutcomeRejected
		r.reject(ctx, env.Event, "", err)
		return res, err
	}
	res.Reference = ev.Reference
	res.PaymentType = ev.Payment.Type()
	res.ApplicationID = ev.Payment.Ref().ApplicationID

	tx, err := r.lookup(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			res.Outcome = OutcomeRejected
			r.reject(ctx, env.Event, ev.Reference, err)
		} else {
			res.Outcome = OutcomeError
			r.log.Error("load transaction", "reference", ev.Reference, "error", err)
		}
		return res, err
	}
	res.TransactionID = tx.ID

	switch tx.Status {
	case domain.TransactionCompleted:
		res.Outcome = OutcomeDuplicate
		r.log.Info("duplicate delivery", "reference", ev.Reference, "transaction_id", tx.ID)
		return res, nil
	case domain.TransactionFailed:
		res.Outcome = OutcomeDuplicate
		if ev.Succeeded() {
			// Money moved for an attempt we already gave up on; someone has to look at it.
			r.log.Error("success event for failed transaction", "reference", ev.Reference, "transaction_id", tx.ID, "failure_reason", tx.FailureReason)
			r.audit(ctx, AuditEntry{
				ActorID:    tx.SeekerID,
				Action:     domain.AuditEventRejected,
				Resource:   "transaction",
				ResourceID: tx.ID,
				Metadata:   map[string]interface{}{"reference": ev.Reference, "reason": "transaction already failed", "failure_reason": tx.FailureReason},
			})
		}
		return res, nil
	}

	if !ev.Succeeded() {
		return r.applyFailure(ctx, tx, res)
	}

	var a applied
	err = r.withTimeout(ctx, func(ctx context.Context) error {
		return r.store.WithinTx(ctx, func(s repository.ReconciliationStore) error {
			var err error
			a, err = r.applySuccess(ctx, s, tx, ev)
			return err
		})
	})
	if err != nil {
		res.Outcome = OutcomeError
		r.log.Error("reconcile payment", "reference", ev.Reference, "transaction_id", tx.ID, "error", err)
		return res, err
	}
	if !a.completed && !a.duplicate {
		res.Outcome = OutcomeDuplicate
		r.log.Info("lost completion race", "reference", ev.Reference, "transaction_id", tx.ID)
		return res, nil
	}

	res.Outcome = OutcomeApplied
	res.ApplicationUpdated = a.appUpdated
	res.AfterExpiry = a.afterExpiry
	res.DuplicatePayment = a.duplicate
	res.PayoutRequested = a.payout
	r.emitSuccess(ctx, ev, &a)
	return res, nil
}

func (r *Reconciler) lookup(ctx context.Context, ev *domain.ChargeEvent) (*models.Transaction, error) {
	var tx *models.Transaction
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		tx, err = r.store.GetTransactionByReference(ctx, ev.Reference)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Malformed("no transaction for reference %q", ev.Reference)
	}
	if err != nil {
		return nil, err
	}
	ref := ev.Payment.Ref()
	switch {
	case tx.ApplicationID != ref.ApplicationID:
		return nil, domain.Malformed("application_id %q does not match transaction", ref.ApplicationID)
	case tx.PaymentType != ev.Payment.Type():
		return nil, domain.Malformed("payment_type %q does not match transaction", ev.Payment.Type())
	case ev.Succeeded() && ev.Amount != tx.Amount:
		return nil, domain.Malformed("amount %d does not match transaction amount %d", ev.Amount, tx.Amount)
	}
	return tx, nil
}

func (r *Reconciler) applySuccess(ctx context.Context, s repository.ReconciliationStore, tx *models.Transaction, ev *domain.ChargeEvent) (applied, error) {
	a := applied{tx: tx, paidAt: ev.PaidAt}
	if a.paidAt.IsZero() {
		a.paidAt = r.now()
	}

	already, err := s.HasCompletedTransaction(ctx, tx.ApplicationID, tx.PaymentType)
	if err != nil {
		return a, err
	}
	if already {
		won, err := s.FailTransaction(ctx, tx.ID, domain.FailureDuplicatePayment)
		if err != nil {
			return a, err
		}
		a.duplicate = won
		return a, nil
	}

	won, err := s.CompleteTransaction(ctx, tx.ID, a.paidAt)
	if err != nil || !won {
		return a, err
	}
	a.completed = true

	app, err := s.GetApplication(ctx, tx.ApplicationID)
	if err != nil {
		return a, fmt.Errorf("load application %s: %w", tx.ApplicationID, err)
	}
	a.app = app
	if l, err := s.GetListing(ctx, app.ListingID); err == nil {
		a.listing = l
	} else if !errors.Is(err, domain.ErrNotFound) {
		return a, err
	}

	switch ev.Payment.(type) {
	case domain.ReservationPayment:
		a.appUpdated, err = s.MarkReservationPaid(ctx, app.ID)
	case domain.FinalPayment:
		a.appUpdated, err = s.CompleteApplication(ctx, app.ID)
		if err == nil && a.appUpdated {
			a.payout, err = s.ClaimPayout(ctx, tx.ID)
		}
	}
	if err != nil {
		return a, err
	}
	if !a.appUpdated {
		// A concurrent sweep may have committed between the read above and the write.
		if cur, err := s.GetApplication(ctx, app.ID); err == nil {
			a.app = cur
		}
		a.afterExpiry = a.app.Status == domain.ApplicationExpired
	}
	return a, nil
}

func (r *Reconciler) applyFailure(ctx context.Context, tx *models.Transaction, res *ReconcileResult) (*ReconcileResult, error) {
	var won bool
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		won, err = r.store.FailTransaction(ctx, tx.ID, domain.FailureProcessorDeclined)
		return err
	})
	if err != nil {
		res.Outcome = OutcomeError
		r.log.Error("fail transaction", "reference", tx.ExternalReference, "error", err)
		return res, err
	}
	if !won {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	res.Outcome = OutcomeFailed
	r.audit(ctx, AuditEntry{
		ActorID:    tx.SeekerID,
		Action:     domain.AuditPaymentFailed,
		Resource:   "transaction",
		ResourceID: tx.ID,
		Metadata: map[string]interface{}{
			"reference":      tx.ExternalReference,
			"application_id": tx.ApplicationID,
			"payment_type":   string(tx.PaymentType),
		},
	})
	r.publish(ctx, events.Event{
		Type:          events.TypePaymentFailed,
		ApplicationID: tx.ApplicationID,
		ListingID:     tx.ListingID,
		TransactionID: tx.ID,
		Reference:     tx.ExternalReference,
		PaymentType:   string(tx.PaymentType),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	})
	return res, nil
}

func (r *Reconciler) emitSuccess(ctx context.Context, ev *domain.ChargeEvent, a *applied) {
	tx := a.tx
	base := events.Event{
		ApplicationID: tx.ApplicationID,
		ListingID:     tx.ListingID,
		TransactionID: tx.ID,
		Reference:     tx.ExternalReference,
		PaymentType:   string(tx.PaymentType),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	}
	meta := map[string]interface{}{
		"reference":           tx.ExternalReference,
		"application_id":      tx.ApplicationID,
		"listing_id":          tx.ListingID,
		"payment_type":        string(tx.PaymentType),
		"amount":              tx.Amount,
		"application_updated": a.appUpdated,
	}
	entry := AuditEntry{ActorID: tx.SeekerID, Resource: "transaction", ResourceID: tx.ID, Metadata: meta}

	if a.duplicate {
		entry.Action = domain.AuditPaymentDuplicate
		r.audit(ctx, entry)
		r.notify(ctx, duplicatePaymentNotice(tx.SeekerID, tx.ApplicationID, tx.ExternalReference))
		r.publish(ctx, with(base, events.TypePaymentDuplicate))
		return
	}

	title := ""
	if a.listing != nil {
		title = a.listing.Title
	}
	switch {
	case a.afterExpiry:
		entry.Action = domain.AuditPaymentAfterExpiry
		r.audit(ctx, entry)
		r.notify(ctx, lateSeekerNotice(tx.SeekerID, tx.ApplicationID, tx.ExternalReference))
		r.notify(ctx, lateBreederNotice(tx.BreederID, tx.ApplicationID, tx.ExternalReference))
		r.publish(ctx, with(base, events.TypePaymentAfterExpiry))
	case !a.appUpdated:
		entry.Action = domain.AuditPaymentCompleted
		r.audit(ctx, entry)
		r.log.Warn("payment completed without application change", "reference", tx.ExternalReference, "application_id", tx.ApplicationID, "application_status", a.app.Status)
		r.publish(ctx, with(base, events.TypePaymentCompleted))
	default:
		entry.Action = domain.AuditPaymentCompleted
		r.audit(ctx, entry)
		if _, final := ev.Payment.(domain.FinalPayment); final {
			r.notify(ctx, finalPaymentNotice(tx.BreederID, tx.ApplicationID, title, tx.Amount, tx.Currency))
			evs := []events.Event{with(base, events.TypePaymentCompleted), with(base, events.TypeApplicationCompleted)}
			if a.payout {
				p := with(base, events.TypePayoutRequested)
				p.Amount = tx.Amount - tx.CommissionFee
				p.Data = map[string]interface{}{"breeder_id": tx.BreederID, "commission_fee": tx.CommissionFee}
				evs = append(evs, p)
			}
			r.publish(ctx, evs...)
		} else {
			r.notify(ctx, reservationPaidNotice(tx.BreederID, tx.ApplicationID, title, tx.Amount, tx.Currency))
			r.publish(ctx, with(base, events.TypePaymentCompleted))
		}
	}
}

func with(e events.Event, typ string) events.Event {
	e.Type = typ
	return e
}

func (r *Reconciler) reject(ctx context.Context, event, reference string, cause error) {
	r.log.Warn("rejected payment event", "event", event, "reference", reference, "error", cause)
	r.audit(ctx, AuditEntry{
		Action:     domain.AuditEventRejected,
		Resource:   "payment_event",
		ResourceID: reference,
		Metadata:   map[string]interface{}{"event": event, "reason": cause.Error()},
	})
}

func (r *Reconciler) notify(ctx context.Context, n notice) {
	if r.notifier == nil {
		return
	}
	_ = r.withTimeout(ctx, func(ctx context.Context) error {
		if err := n.send(ctx, r.notifier); err != nil {
			r.log.Warn("notification failed", "error", err)
		}
		return nil
	})
}

func (r *Reconciler) audit(ctx context.Context, e AuditEntry) {
	if r.auditor == nil {
		return
	}
	_ = r.withTimeout(ctx, func(ctx context.Context) error {
		if err := r.auditor.Record(ctx, e); err != nil {
			r.log.Warn("audit write failed", "action", e.Action, "resource_id", e.ResourceID, "error", err)
		}
		return nil
	})
}

func (r *Reconciler) publish(ctx context.Context, evs ...events.Event) {
	now := r.now()
	for i := range evs {
		evs[i].OccurredAt = now
	}
	_ = r.withTimeout(ctx, func(ctx context.Context) error {
		if err := r.events.Publish(ctx, evs...); err != nil {
			r.log.Warn("publish events failed", "error", err)
		}
		return nil
	})
}

func (r *Reconciler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return fn(ctx)
}
