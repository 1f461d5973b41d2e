package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbee/pkg/errors"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackInitialize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var req paystackInitializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(550000), req.Amount)
		assert.Equal(t, "c@example.com", req.Email)
		assert.Equal(t, "job-1", req.Metadata["job_id"])

		w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/x","access_code":"x","reference":"job_job-1_1"}}`))
	}))
	defer server.Close()

	svc := NewPaystackPaymentService("sk_test", server.URL)
	resp, err := svc.Initialize(context.Background(), InitializeRequest{
		Reference:   "job_job-1_1",
		Email:       "c@example.com",
		AmountMinor: 550000,
		JobID:       "job-1",
		CustomerID:  "c",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/x", resp.AuthorizationURL)
	assert.Equal(t, "job_job-1_1", resp.Reference)
}

func TestPaystackVerifyDecodesMetadataString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref-9", r.URL.Path)
		w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"success","reference":"ref-9","amount":550000,"currency":"NGN","customer":{"email":"c@example.com"},"metadata":"{\"job_id\":\"job-1\",\"customer_id\":\"c\"}"}}`))
	}))
	defer server.Close()

	status, err := NewPaystackPaymentService("sk_test", server.URL).Verify(context.Background(), "ref-9")
	require.NoError(t, err)
	assert.True(t, status.Succeeded())
	assert.Equal(t, int64(550000), status.AmountMinor)
	assert.Equal(t, "job-1", status.JobID)
	assert.Equal(t, "c", status.CustomerID)
}

func TestPaystackGatewayFailureIsExternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":false,"message":"upstream down"}`))
	}))
	defer server.Close()

	_, err := NewPaystackPaymentService("sk_test", server.URL).Verify(context.Background(), "ref")
	assert.True(t, errors.Is(err, errors.CodeExternalService))
}

func TestPaystackParseWebhook(t *testing.T) {
	svc := NewPaystackPaymentService("sk_test", "")
	body := []byte(`{"event":"charge.success","data":{"status":"success","reference":"r1","amount":1000,"metadata":{"job_id":"j","customer_id":"c"}}}`)

	event, err := svc.ParseWebhook(body, sign("sk_test", body))
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, event.Event)
	assert.Equal(t, "j", event.Transaction.JobID)

	_, err = svc.ParseWebhook(body, sign("wrong", body))
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	_, err = svc.ParseWebhook(body, "")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}
