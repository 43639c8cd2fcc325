// Command gateway-mock serves a Razorpay-shaped API backed by an in-memory
// gateway, signs simulated checkouts and webhooks, and accepts transition
// notifications. It is meant for local runs of the payment service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/signature"
)

const (
	errorRate   = 0.5
	contentType = "application/json"
)

type payReq struct {
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type payResp struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

type ErrorResponse struct {
	Error map[string]string `json:"error"`
}

type mock struct {
	fake          *gateway.Fake
	keySecret     string
	webhookURL    string
	webhookSecret string
	webhookDelay  time.Duration
	client        *http.Client
	logger        *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	m := &mock{
		fake:          gateway.NewFake(),
		keySecret:     config.GetString("KEY_SECRET", "rzp_test_secret"),
		webhookURL:    config.GetString("WEBHOOK_URL", "http://localhost:8080/webhook"),
		webhookSecret: config.GetString("WEBHOOK_SECRET", "whsec_local"),
		webhookDelay:  time.Duration(config.GetInt("WEBHOOK_DELAY_MS", 500)) * time.Millisecond,
		client:        &http.Client{Timeout: 5 * time.Second},
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", m.createOrder)
	mux.HandleFunc("GET /v1/orders/{id}/payments", m.listPayments)
	mux.HandleFunc("POST /v1/payments/{id}/refund", m.refund)
	mux.HandleFunc("POST /mock/orders/{id}/pay", m.pay)
	mux.HandleFunc("POST /notifications", alwaysSuccessHandler)
	mux.HandleFunc("POST /notifications/random-fail", randomFailHandler)

	addr := config.GetString("MOCK_ADDR", ":8085")
	logger.Info("gateway mock listening", "addr", addr)
	if err := http.ListenAndServe(addr, countMiddleware(logger, loggingMiddleware(logger, mux))); err != nil {
		logger.Error("gateway mock stopped", "error", err)
		os.Exit(1)
	}
}

func (m *mock) createOrder(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "amount must be positive")
		return
	}

	order, err := m.fake.CreateOrder(r.Context(), config.Credentials{}, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (m *mock) listPayments(w http.ResponseWriter, r *http.Request) {
	items := m.fake.Payments(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"entity": "collection", "count": len(items), "items": items})
}

func (m *mock) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid body")
		return
	}

	refund, err := m.fake.Refund(r.Context(), config.Credentials{}, r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refund.Raw)
}

// pay simulates a buyer completing checkout: it records a payment, returns
// the signed checkout result and sends the matching webhook.
func (m *mock) pay(w http.ResponseWriter, r *http.Request) {
	gatewayOrderID := r.PathValue("id")
	order, ok := m.fake.Order(gatewayOrderID)
	if !ok {
		writeError(w, http.StatusNotFound, "BAD_REQUEST_ERROR", "order not found")
		return
	}

	req := payReq{Amount: order.Amount, Status: gateway.PaymentStatusCaptured}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid body")
			return
		}
	}

	paymentID := m.fake.Pay(gatewayOrderID, req.Amount, req.Status)

	event := "payment." + req.Status
	go m.sendWebhook(context.Background(), event, gatewayOrderID, paymentID, req.Amount)

	writeJSON(w, http.StatusOK, payResp{
		PaymentID: paymentID,
		OrderID:   gatewayOrderID,
		Signature: signature.Sign(m.keySecret, signature.PaymentPayload(gatewayOrderID, paymentID)),
	})
}

func (m *mock) sendWebhook(ctx context.Context, event, gatewayOrderID, paymentID string, amount int64) {
	time.Sleep(m.webhookDelay)

	body := []byte(fmt.Sprintf(
		`{"entity":"event","event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"status":%q}}},"created_at":%d}`,
		event, paymentID, gatewayOrderID, amount, event[len("payment."):], time.Now().Unix()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("Error creating webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Razorpay-Signature", signature.Sign(m.webhookSecret, body))

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Error("Error sending webhook", "error", err)
		return
	}
	defer resp.Body.Close()
	m.logger.Info("Webhook delivered", "event", event, "status", resp.Status)
}

func alwaysSuccessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func randomFailHandler(w http.ResponseWriter, _ *http.Request) {
	if rand.Float64() < errorRate {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: map[string]string{"code": code, "description": description}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
