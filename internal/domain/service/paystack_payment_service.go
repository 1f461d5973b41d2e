package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

const EventChargeSuccess = "charge.success"

// PaystackPaymentService talks to the Paystack REST API.
type PaystackPaymentService struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewPaystackPaymentService(secretKey, baseURL string) *PaystackPaymentService {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackPaymentService{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type paystackTransaction struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
	// Paystack echoes metadata back either as an object or as a JSON string.
	Metadata json.RawMessage `json:"metadata"`
}

func (t *paystackTransaction) toStatus() *TransactionStatus {
	status := &TransactionStatus{
		Reference:   t.Reference,
		Status:      t.Status,
		AmountMinor: t.Amount,
		Currency:    t.Currency,
		Email:       t.Customer.Email,
	}

	var meta map[string]interface{}
	raw := t.Metadata
	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}
	if json.Unmarshal(raw, &meta) == nil {
		status.JobID, _ = meta["job_id"].(string)
		status.CustomerID, _ = meta["customer_id"].(string)
	}
	return status
}

func (s *PaystackPaymentService) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	logger.Info("Initializing Paystack transaction %s for job %s, amount: %d", req.Reference, req.JobID, req.AmountMinor)

	body, err := json.Marshal(paystackInitializeRequest{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Reference:   req.Reference,
		Currency:    req.Currency,
		CallbackURL: req.CallbackURL,
		Metadata: map[string]string{
			"job_id":      req.JobID,
			"customer_id": req.CustomerID,
		},
	})
	if err != nil {
		return nil, errors.Internal("Failed to encode payment request", err)
	}

	data, err := s.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var resp InitializeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.ExternalService("Failed to parse payment gateway response", err)
	}
	return &resp, nil
}

func (s *PaystackPaymentService) Verify(ctx context.Context, reference string) (*TransactionStatus, error) {
	data, err := s.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var tx paystackTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, errors.ExternalService("Failed to parse payment gateway response", err)
	}
	return tx.toStatus(), nil
}

func (s *PaystackPaymentService) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !s.validSignature(body, signature) {
		return nil, errors.Unauthorized("Invalid webhook signature", nil)
	}

	var payload struct {
		Event string              `json:"event"`
		Data  paystackTransaction `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Validation("Malformed webhook payload")
	}

	return &WebhookEvent{
		Event:       payload.Event,
		Transaction: *payload.Data.toStatus(),
	}, nil
}

// validSignature compares x-paystack-signature with HMAC-SHA512(body, secret).
func (s *PaystackPaymentService) validSignature(body []byte, signature string) bool {
	if s.secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (s *PaystackPaymentService) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, errors.Internal("Failed to create payment request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, errors.ExternalService("Payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalService("Failed to read payment gateway response", err)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.ExternalService("Failed to parse payment gateway response", err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		logger.Error("Paystack %s %s failed: status=%d message=%s", method, path, resp.StatusCode, env.Message)
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.NotFound("Payment", fmt.Errorf("paystack: %s", env.Message))
		}
		return nil, errors.ExternalService("Payment gateway error: "+env.Message, nil)
	}
	return env.Data, nil
}
