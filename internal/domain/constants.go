package domain

type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingReserved  ListingStatus = "reserved"
	ListingSold      ListingStatus = "sold"
	ListingCompleted ListingStatus = "completed"
)

// Terminal listings have been decided by some application. The sweep still
// expires stale applications against them but leaves the listing alone.
func (s ListingStatus) Terminal() bool {
	return s == ListingSold || s == ListingCompleted
}

type ApplicationStatus string

const (
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationExpired   ApplicationStatus = "expired"
	ApplicationCompleted ApplicationStatus = "completed"
)

type PaymentType string

const (
	PaymentReservation PaymentType = "reservation"
	PaymentFinal       PaymentType = "final"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(s) {
	case PaymentReservation, PaymentFinal:
		return PaymentType(s), nil
	}
	return "", ErrInvalidPaymentType
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Failure reasons stored on failed transactions.
const (
	FailureProcessorDeclined = "processor_declined"
	FailureInitializeFailed  = "initialize_failed"
	FailureDuplicatePayment  = "duplicate_payment"
)

// Notification types.
const (
	NotifReservationPaid    = "RESERVATION_FEE_PAID"
	NotifFinalPaymentDone   = "FINAL_PAYMENT_COMPLETED"
	NotifApplicationExpired = "APPLICATION_EXPIRED"
	NotifPaymentAfterExpiry = "PAYMENT_AFTER_EXPIRY"
	NotifDuplicatePayment   = "DUPLICATE_PAYMENT"
)

// Audit actions.
const (
	AuditPaymentCompleted   = "payment_completed"
	AuditPaymentFailed      = "payment_failed"
	AuditPaymentDuplicate   = "duplicate_payment"
	AuditPaymentAfterExpiry = "payment_after_expiry"
	AuditEventRejected      = "payment_event_rejected"
	AuditApplicationExpired = "application_expired"
	AuditPaymentInitialized = "payment_initialized"
)

// Processor event names.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)
