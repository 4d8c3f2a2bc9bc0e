package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// PaystackClient talks to the Paystack REST API.
type PaystackClient struct {
	http    *resty.Client
	observe RequestObserver
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func NewPaystackClient(baseURL, secretKey string, timeout time.Duration) *PaystackClient {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(secretKey).
		SetHeader("Content-Type", "application/json")
	return &PaystackClient{http: c}
}

// WithObserver sets a callback run after every request.
func (p *PaystackClient) WithObserver(fn RequestObserver) *PaystackClient {
	p.observe = fn
	return p
}

func (p *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("initialize: amount must be positive")
	}
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
	}
	if req.Currency != "" {
		body["currency"] = req.Currency
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}
	var out paystackEnvelope[struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}]
	if err := p.do(ctx, "initialize", "POST", "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &InitializeResponse{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        ref,
	}, nil
}

func (p *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	var out paystackEnvelope[struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	}]
	if err := p.do(ctx, "verify", "GET", "/transaction/verify/"+reference, nil, &out); err != nil {
		return nil, err
	}
	res := &VerifyResponse{
		Reference:   reference,
		Status:      mapPaystackStatus(out.Data.Status),
		AmountMinor: out.Data.Amount,
		Currency:    out.Data.Currency,
	}
	if out.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, out.Data.PaidAt); err == nil {
			res.PaidAt = &t
		}
	}
	return res, nil
}

func (p *PaystackClient) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error) {
	body := map[string]interface{}{
		"type":           "nuban",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	}
	var out paystackEnvelope[struct {
		RecipientCode string `json:"recipient_code"`
	}]
	if err := p.do(ctx, "create_recipient", "POST", "/transferrecipient", body, &out); err != nil {
		return nil, err
	}
	return &Recipient{Code: out.Data.RecipientCode}, nil
}

func (p *PaystackClient) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	body := map[string]interface{}{
		"source":    "balance",
		"amount":    req.AmountMinor,
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	var out paystackEnvelope[struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}]
	if err := p.do(ctx, "transfer", "POST", "/transfer", body, &out); err != nil {
		return nil, err
	}
	return &Transfer{Code: out.Data.TransferCode, Status: out.Data.Status}, nil
}

type envelopeStatus interface {
	ok() (bool, string)
}

func (e *paystackEnvelope[T]) ok() (bool, string) { return e.Status, e.Message }

func (p *PaystackClient) do(ctx context.Context, op, method, path string, body interface{}, out envelopeStatus) (err error) {
	defer func() {
		if p.observe != nil {
			p.observe(op, err)
		}
	}()
	req := p.http.R().SetContext(ctx).SetResult(out).SetError(out)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("payment gateway %s: %w", op, err)
	}
	status, msg := out.ok()
	if resp.IsError() {
		if msg == "" {
			msg = resp.Status()
		}
		return &GatewayError{Operation: op, StatusCode: resp.StatusCode(), Message: msg}
	}
	if !status {
		return &GatewayError{Operation: op, StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}

func mapPaystackStatus(s string) VerifyStatus {
	switch s {
	case "success":
		return VerifySuccess
	case "failed", "reversed":
		return VerifyFailed
	default:
		return VerifyPending
	}
}
