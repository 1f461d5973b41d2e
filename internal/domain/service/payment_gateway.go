package service

import "context"

// InitializeRequest asks the gateway to start collecting AmountMinor from Email.
type InitializeRequest struct {
	Reference   string
	Email       string
	AmountMinor int64
	Currency    string
	CallbackURL string
	JobID       string
	CustomerID  string
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionStatus is the gateway's view of a single charge.
type TransactionStatus struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
	Email       string
	JobID       string
	CustomerID  string
}

func (s *TransactionStatus) Succeeded() bool {
	return s.Status == "success"
}

// WebhookEvent is a verified, decoded gateway callback.
type WebhookEvent struct {
	Event       string
	Transaction TransactionStatus
}

type PaymentGateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*TransactionStatus, error)
	// ParseWebhook checks the signature over the raw body before decoding it.
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
}
