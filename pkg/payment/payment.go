package payment

import (
	"context"
	"fmt"
	"time"
)

// Gateway is the processor boundary. It holds no business state and never retries.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResponse, error)
	CreateTransferRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

type InitializeRequest struct {
	AmountMinor int64 // kobo, cents
	Email       string
	Reference   string
	Currency    string
	CallbackURL string
	Metadata    map[string]interface{}
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

type VerifyResponse struct {
	Reference   string
	Status      VerifyStatus
	AmountMinor int64
	Currency    string
	PaidAt      *time.Time
}

type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

type Recipient struct {
	Code string
}

type TransferRequest struct {
	AmountMinor   int64
	RecipientCode string
	Reference     string
	Reason        string
}

type Transfer struct {
	Code   string
	Status string
}

// GatewayError is a non-2xx answer from the processor.
type GatewayError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// RequestObserver is told about every processor call and its outcome.
type RequestObserver func(operation string, err error)
