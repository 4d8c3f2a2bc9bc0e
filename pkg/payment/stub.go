package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StubGateway is an in-process gateway for development. Every initialized
// reference verifies as success unless it was marked failed with Fail.
type StubGateway struct {
	mu      sync.Mutex
	amounts map[string]int64
	failed  map[string]bool
}

func NewStubGateway() *StubGateway {
	return &StubGateway{amounts: make(map[string]int64), failed: make(map[string]bool)}
}

func (s *StubGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("initialize: amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.amounts[req.Reference]; dup {
		return nil, &GatewayError{Operation: "initialize", StatusCode: 400, Message: "Duplicate Transaction Reference"}
	}
	s.amounts[req.Reference] = req.AmountMinor
	return &InitializeResponse{
		AuthorizationURL: "https://checkout.stub.local/" + req.Reference,
		AccessCode:       "stub_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (s *StubGateway) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.amounts[reference]
	if !ok {
		return nil, &GatewayError{Operation: "verify", StatusCode: 404, Message: "Transaction reference not found"}
	}
	if s.failed[reference] {
		return &VerifyResponse{Reference: reference, Status: VerifyFailed, AmountMinor: amount}, nil
	}
	now := time.Now().UTC()
	return &VerifyResponse{Reference: reference, Status: VerifySuccess, AmountMinor: amount, PaidAt: &now}, nil
}

// Fail makes later Verify calls for reference report failed.
func (s *StubGateway) Fail(reference string) {
	s.mu.Lock()
	s.failed[reference] = true
	s.mu.Unlock()
}

func (s *StubGateway) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error) {
	return &Recipient{Code: "RCP_stub_" + strings.ToLower(req.AccountNumber)}, nil
}

func (s *StubGateway) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	return &Transfer{Code: "TRF_stub_" + req.Reference, Status: "success"}, nil
}
