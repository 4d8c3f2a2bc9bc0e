package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnparseableEvent means the webhook body is not a processor envelope at all.
var ErrUnparseableEvent = errors.New("unparseable payment event")

// Envelope is the processor's outer webhook shape.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	PaidAt    string          `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
}

type chargeMetadata struct {
	ApplicationID string `json:"application_id"`
	ListingID     string `json:"listing_id"`
	PaymentType   string `json:"payment_type"`
	SeekerID      string `json:"seeker_id"`
	BreederID     string `json:"breeder_id"`
}

// PaymentRef carries the entity IDs every payment event must name.
type PaymentRef struct {
	ApplicationID string
	ListingID     string
	SeekerID      string
	BreederID     string
}

// Payment is either a ReservationPayment or a FinalPayment.
type Payment interface {
	Type() PaymentType
	Ref() PaymentRef
}

type ReservationPayment struct{ PaymentRef }

func (ReservationPayment) Type() PaymentType { return PaymentReservation }
func (p ReservationPayment) Ref() PaymentRef { return p.PaymentRef }

type FinalPayment struct{ PaymentRef }

func (FinalPayment) Type() PaymentType { return PaymentFinal }
func (p FinalPayment) Ref() PaymentRef { return p.PaymentRef }

// ChargeEvent is a charge.success or charge.failed delivery mapped to typed fields.
type ChargeEvent struct {
	Name      string
	Reference string
	Amount    int64
	Currency  string
	PaidAt    time.Time
	Payment   Payment
}

func (e *ChargeEvent) Succeeded() bool {
	return e.Name == EventChargeSuccess
}

// ParseEnvelope decodes the outer envelope. Only syntactically broken bodies fail here.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrUnparseableEvent)
	}
	return &env, nil
}

// IsCharge reports whether the envelope is a charge outcome this service reconciles.
func (e *Envelope) IsCharge() bool {
	return e.Event == EventChargeSuccess || e.Event == EventChargeFailed
}

// ChargeEvent maps the envelope data to a ChargeEvent, rejecting anything that
// does not carry a reference and the full metadata set.
func (e *Envelope) ChargeEvent() (*ChargeEvent, error) {
	if !e.IsCharge() {
		return nil, Malformed("event %q is not a charge outcome", e.Event)
	}
	var data chargeData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, Malformed("data: %v", err)
	}
	if strings.TrimSpace(data.Reference) == "" {
		return nil, Malformed("missing reference")
	}
	meta, err := decodeMetadata(data.Metadata)
	if err != nil {
		return nil, err
	}
	ref := PaymentRef{
		ApplicationID: meta.ApplicationID,
		ListingID:     meta.ListingID,
		SeekerID:      meta.SeekerID,
		BreederID:     meta.BreederID,
	}
	var missing []string
	for name, v := range map[string]string{
		"application_id": ref.ApplicationID,
		"listing_id":     ref.ListingID,
		"seeker_id":      ref.SeekerID,
		"breeder_id":     ref.BreederID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, Malformed("missing metadata %s", strings.Join(missing, ","))
	}

	ev := &ChargeEvent{
		Name:      e.Event,
		Reference: data.Reference,
		Amount:    data.Amount,
		Currency:  data.Currency,
	}
	switch PaymentType(meta.PaymentType) {
	case PaymentReservation:
		ev.Payment = ReservationPayment{ref}
	case PaymentFinal:
		ev.Payment = FinalPayment{ref}
	default:
		return nil, Malformed("unknown payment_type %q", meta.PaymentType)
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			ev.PaidAt = t
		}
	}
	return ev, nil
}

// Some processors deliver metadata as a JSON-encoded string rather than an object.
func decodeMetadata(raw json.RawMessage) (chargeMetadata, error) {
	var meta chargeMetadata
	if len(raw) == 0 || string(raw) == "null" {
		return meta, Malformed("missing metadata")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return meta, Malformed("metadata: %v", err)
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, Malformed("metadata: %v", err)
	}
	return meta, nil
}
