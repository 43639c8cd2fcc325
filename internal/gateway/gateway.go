// Package gateway talks to the payment gateway. Core logic depends on the
// Gateway interface only; Razorpay is the production adapter and Fake serves
// tests and the local mock server.
package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"payment-service/internal/config"
)

var ErrTransport = errors.New("gateway transport error")

type Gateway interface {
	CreateOrder(ctx context.Context, creds config.Credentials, req CreateOrderRequest) (*RemoteOrder, error)
	// GetCapturedAmount returns the captured amount for the gateway order and
	// false when no captured payment exists.
	GetCapturedAmount(ctx context.Context, creds config.Credentials, gatewayOrderID string) (int64, bool, error)
	Refund(ctx context.Context, creds config.Credentials, paymentID string, amount int64) (*RefundResponse, error)
}

type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
}

type RemoteOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type RemotePayment struct {
	ID      string `json:"id"`
	Entity  string `json:"entity"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

type paymentCollection struct {
	Entity string          `json:"entity"`
	Count  int             `json:"count"`
	Items  []RemotePayment `json:"items"`
}

type RefundResponse struct {
	ID        string         `json:"id"`
	PaymentID string         `json:"payment_id"`
	Amount    int64          `json:"amount"`
	Status    string         `json:"status"`
	Raw       map[string]any `json:"-"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
	Raw         map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s %s", e.StatusCode, e.Code, e.Description)
}

const PaymentStatusCaptured = "captured"

// CapturedAmount picks the captured payment out of an order's payments.
func CapturedAmount(payments []RemotePayment) (int64, bool) {
	for _, p := range payments {
		if p.Status == PaymentStatusCaptured {
			return p.Amount, true
		}
	}
	return 0, false
}
