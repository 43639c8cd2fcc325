package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/logcontext"
	"payment-service/internal/metrics"
	"payment-service/internal/model"
	"payment-service/internal/payment"
	"payment-service/internal/webhook"
)

const maxWebhookBodyBytes = 1 << 20

type GatewayOrders interface {
	Initiate(ctx context.Context, orderID uuid.UUID) (*payment.GatewayOrder, error)
}

type Payments interface {
	AddPayment(ctx context.Context, orderID uuid.UUID, claim payment.Claim) (*model.Payment, error)
	Refund(ctx context.Context, paymentID uuid.UUID, amount int64) (*model.Refund, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
}

type Webhooks interface {
	Ingest(ctx context.Context, body []byte, sig string) (*webhook.Outcome, error)
	Events(ctx context.Context, correlationID string) ([]*model.WebhookEvent, error)
}

type Handler struct {
	gatewayOrders   GatewayOrders
	payments        Payments
	webhooks        Webhooks
	signatureHeader string
	log             *slog.Logger
}

func NewHandler(gatewayOrders GatewayOrders, payments Payments, webhooks Webhooks, signatureHeader string, log *slog.Logger) *Handler {
	return &Handler{
		gatewayOrders:   gatewayOrders,
		payments:        payments,
		webhooks:        webhooks,
		signatureHeader: signatureHeader,
		log:             log,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/webhook", h.receiveWebhook)
	r.Get("/webhook-events", h.listWebhookEvents)

	r.Route("/orders/{id}", func(r chi.Router) {
		r.Post("/gateway-order", h.createGatewayOrder)
		r.Post("/payments", h.addPayment)
		r.Post("/cancel", h.cancelOrder)
	})
	r.Post("/payments/{id}/refunds", h.refundPayment)

	return r
}

// requestContext puts the request id on every log line of the request.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logcontext.AppendCtx(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type gatewayOrderResp struct {
	CorrelationID string `json:"correlationId"`
	KeyID         string `json:"keyId"`
}

type addPaymentReq struct {
	Amount   int64          `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

type refundReq struct {
	Amount int64 `json:"amount"`
}

type errorResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read body")
		return
	}

	outcome, err := h.webhooks.Ingest(r.Context(), body, r.Header.Get(h.signatureHeader))
	switch {
	case errors.Is(err, webhook.ErrSignatureMismatch):
		h.writeError(w, http.StatusBadRequest, "SIGNATURE_MISMATCH", "webhook signature does not match")
		return
	case errors.Is(err, webhook.ErrMissingCorrelationID):
		h.writeError(w, http.StatusBadRequest, "MISSING_CORRELATION_ID", "webhook payload carries no order id")
		return
	case err != nil:
		h.log.ErrorContext(r.Context(), "Webhook could not be recorded", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "webhook could not be recorded")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "eventId": outcome.Event.ID})
}

func (h *Handler) listWebhookEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlationId")
	if correlationID == "" {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "correlationId is required")
		return
	}

	events, err := h.webhooks.Events(r.Context(), correlationID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) createGatewayOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.gatewayOrders.Initiate(r.Context(), orderID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gatewayOrderResp{CorrelationID: result.CorrelationID, KeyID: result.Credentials.KeyID})
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req addPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body")
		return
	}

	result, err := h.payments.AddPayment(r.Context(), orderID, payment.Claim{Amount: req.Amount, Metadata: req.Metadata})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body")
		return
	}

	result, err := h.payments.Refund(r.Context(), paymentID, req.Amount)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.payments.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(code payment.ErrorCode) int {
	switch code {
	case payment.CodeOrderNotFound, payment.CodePaymentNotFound:
		return http.StatusNotFound
	case payment.CodeInvalidOrderState, payment.CodeInvalidPaymentState:
		return http.StatusConflict
	case payment.CodeInvalidAmount:
		return http.StatusBadRequest
	case payment.CodeGatewayError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeFailure renders a typed result as {code, message}. Anything else is
// logged and hidden behind a 500.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var resultErr *payment.ResultError
	if errors.As(err, &resultErr) {
		h.writeError(w, statusFor(resultErr.Code), string(resultErr.Code), resultErr.Message)
		return
	}

	h.log.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResp{Code: code, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
