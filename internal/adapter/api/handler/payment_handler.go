package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"workbee/internal/usecase"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
	"workbee/pkg/response"
)

const (
	paystackSignatureHeader = "X-Paystack-Signature"
	maxWebhookBody          = 1 << 20
)

type PaymentHandler struct {
	paymentUseCase *usecase.PaymentUseCase
}

func NewPaymentHandler(paymentUseCase *usecase.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{
		paymentUseCase: paymentUseCase,
	}
}

type initiatePaymentRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// InitiatePayment opens a checkout for the job's total. Only the customer of
// a job awaiting payment may call it.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req initiatePaymentRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	initiation, err := h.paymentUseCase.InitiatePayment(c.Request().Context(), c.Param("id"), userID, req.Email)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, initiation)
}

func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	verification, err := h.paymentUseCase.VerifyPayment(c.Request().Context(), c.Param("reference"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, verification)
}

// PaystackWebhook is called by Paystack, authenticated by the HMAC signature
// over the raw body. Non-2xx answers make Paystack retry, so callbacks that
// can never apply are logged and acknowledged.
func (h *PaymentHandler) PaystackWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return response.Error(c, errors.Validation("Unreadable webhook body"))
	}

	signature := c.Request().Header.Get(paystackSignatureHeader)
	if err := h.paymentUseCase.HandleWebhook(c.Request().Context(), body, signature); err != nil {
		logger.WithFields(logger.Fields{
			"ip":    c.RealIP(),
			"error": err.Error(),
		}).Warn("payment webhook not applied")
		if webhookRefused(err) {
			return response.Error(c, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// webhookRefused reports whether the callback gets a non-2xx answer. Storage
// and gateway outages may clear on redelivery. Bad signatures never come from
// Paystack, so refusing them causes no retries.
func webhookRefused(err error) bool {
	return errors.Is(err, errors.CodeExternalService) || errors.Is(err, errors.CodeUnauthorized)
}
