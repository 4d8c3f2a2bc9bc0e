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
	"pawhaven/internal/repository"
)

// Sweep item statuses.
const (
	SweepExpired = "expired"
	SweepSkipped = "skipped"
	SweepError   = "error"
)

type SweepItemResult struct {
	ApplicationID         string   `json:"applicationId"`
	ListingID             string   `json:"listingId"`
	Status                string   `json:"status"`
	PreviousListingStatus string   `json:"previousListingStatus"`
	ListingReleased       bool     `json:"listingReleased"`
	Error                 string   `json:"error,omitempty"`
	NotificationErrors    []string `json:"notificationErrors,omitempty"`
}

type SweepReport struct {
	Cutoff      time.Time         `json:"cutoff"`
	Processed   int               `json:"processed"`
	Errors      int               `json:"errors"`
	Skipped     int               `json:"skipped"`
	Interrupted bool              `json:"interrupted,omitempty"`
	Results     []SweepItemResult `json:"results"`
}

// Sweeper expires submitted applications whose reservation fee was not paid
// within the expiry window, releasing reserved listings.
type Sweeper struct {
	store       repository.ReconciliationStore
	notifier    Notifier
	auditor     Auditor
	events      events.Publisher
	metrics     *metrics.Metrics
	log         *slog.Logger
	window      time.Duration
	batchSize   int
	callTimeout time.Duration
}

func NewSweeper(store repository.ReconciliationStore, notifier Notifier, auditor Auditor, pub events.Publisher, m *metrics.Metrics, log *slog.Logger, window time.Duration, batchSize int, callTimeout time.Duration) *Sweeper {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Sweeper{
		store:       store,
		notifier:    notifier,
		auditor:     auditor,
		events:      pub,
		metrics:     m,
		log:         log.With("component", "sweeper"),
		window:      window,
		batchSize:   batchSize,
		callTimeout: callTimeout,
	}
}

// Run performs one sweep as of now. Only a failure to fetch candidates is
// returned as an error; per-item failures are recorded in the report.
// Cancelling ctx stops the run between items; the item in flight completes.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{Cutoff: now.Add(-s.window), Results: []SweepItemResult{}}

	var candidates []repository.ExpirationCandidate
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = s.store.ListExpirationCandidates(ctx, report.Cutoff, s.batchSize)
		return err
	})
	if err != nil {
		s.metrics.RecordSweepRun("fetch_error", time.Since(start))
		s.log.Error("fetch expiration candidates", "cutoff", report.Cutoff, "error", err)
		return nil, fmt.Errorf("fetch expiration candidates: %w", err)
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			report.Interrupted = true
			s.log.Warn("sweep interrupted", "remaining", len(candidates)-len(report.Results))
			break
		}
		item := s.expire(context.WithoutCancel(ctx), c)
		switch item.Status {
		case SweepExpired:
			report.Processed++
		case SweepSkipped:
			report.Skipped++
		}
		if item.Error != "" {
			report.Errors++
		}
		s.metrics.RecordSweepItem(item.Status)
		report.Results = append(report.Results, item)
	}

	result := "ok"
	if report.Errors > 0 {
		result = "partial"
	}
	s.metrics.RecordSweepRun(result, time.Since(start))
	s.log.Info("sweep finished",
		"cutoff", report.Cutoff,
		"candidates", len(candidates),
		"processed", report.Processed,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, c repository.ExpirationCandidate) SweepItemResult {
	item := SweepItemResult{
		ApplicationID:         c.ApplicationID,
		ListingID:             c.ListingID,
		PreviousListingStatus: string(c.ListingStatus),
	}

	var expired bool
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(st repository.ReconciliationStore) error {
			var err error
			expired, err = st.ExpireApplication(ctx, c.ApplicationID)
			if err != nil || !expired {
				return err
			}
			switch {
			case c.ListingStatus == domain.ListingReserved:
				item.ListingReleased, err = st.TransitionListingStatus(ctx, c.ListingID, domain.ListingReserved, domain.ListingAvailable)
			case c.ListingStatus.Terminal():
				s.log.Info("listing already decided, leaving it", "application_id", c.ApplicationID, "listing_id", c.ListingID, "listing_status", c.ListingStatus)
			}
			return err
		})
	})
	if err != nil {
		item.Status = SweepError
		item.ListingReleased = false
		item.Error = err.Error()
		s.log.Error("expire application", "application_id", c.ApplicationID, "error", err)
		return item
	}
	if !expired {
		item.Status = SweepSkipped
		s.log.Info("application moved on before expiry", "application_id", c.ApplicationID)
		return item
	}
	item.Status = SweepExpired

	for _, n := range []notice{
		expiredSeekerNotice(c.SeekerID, c.ApplicationID, c.ListingTitle),
		expiredBreederNotice(c.BreederID, c.ApplicationID, c.ListingID, c.ListingTitle, item.ListingReleased),
	} {
		if err := s.notify(ctx, n); err != nil {
			item.NotificationErrors = append(item.NotificationErrors, err.Error())
			s.log.Warn("expiry notification failed", "application_id", c.ApplicationID, "error", err)
		}
	}

	resulting := c.ListingStatus
	if item.ListingReleased {
		resulting = domain.ListingAvailable
	}
	if err := s.audit(ctx, AuditEntry{
		Action:     domain.AuditApplicationExpired,
		Resource:   "application",
		ResourceID: c.ApplicationID,
		Metadata: map[string]interface{}{
			"listing_id":              c.ListingID,
			"seeker_id":               c.SeekerID,
			"previous_status":         string(domain.ApplicationSubmitted),
			"status":                  string(domain.ApplicationExpired),
			"previous_listing_status": string(c.ListingStatus),
			"listing_status":          string(resulting),
			"listing_released":        item.ListingReleased,
			"application_created_at":  c.CreatedAt,
		},
	}); err != nil {
		item.Error = fmt.Sprintf("audit: %v", err)
		s.log.Warn("expiry audit failed", "application_id", c.ApplicationID, "error", err)
	}

	evs := []events.Event{{Type: events.TypeApplicationExpired, ApplicationID: c.ApplicationID, ListingID: c.ListingID}}
	if item.ListingReleased {
		evs = append(evs, events.Event{Type: events.TypeListingReleased, ApplicationID: c.ApplicationID, ListingID: c.ListingID})
	}
	now := time.Now().UTC()
	for i := range evs {
		evs[i].OccurredAt = now
	}
	if err := s.withTimeout(ctx, func(ctx context.Context) error { return s.events.Publish(ctx, evs...) }); err != nil {
		s.log.Warn("publish expiry events", "application_id", c.ApplicationID, "error", err)
	}
	return item
}

func (s *Sweeper) notify(ctx context.Context, n notice) error {
	if s.notifier == nil {
		return nil
	}
	return s.withTimeout(ctx, func(ctx context.Context) error { return n.send(ctx, s.notifier) })
}

func (s *Sweeper) audit(ctx context.Context, e AuditEntry) error {
	if s.auditor == nil {
		return nil
	}
	return s.withTimeout(ctx, func(ctx context.Context) error { return s.auditor.Record(ctx, e) })
}

func (s *Sweeper) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", s.callTimeout, err)
	}
	return err
}
