package gateway

import (
	"context"
	"fmt"
	"sync"

	"payment-service/internal/config"
)

// Fake is an in-memory gateway. Tests drive it directly; cmd/gateway-mock
// serves it over HTTP.
type Fake struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]*RemoteOrder
	payments map[string][]RemotePayment
	refunds  []RefundResponse

	// CreateErr, CaptureErr and RefundErr are returned by the matching call
	// when set.
	CreateErr  error
	CaptureErr error
	RefundErr  error
	// RefundStatus overrides the status of the next refunds ("processed" by default).
	RefundStatus string
}

func NewFake() *Fake {
	return &Fake{
		orders:   map[string]*RemoteOrder{},
		payments: map[string][]RemotePayment{},
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateOrder(_ context.Context, _ config.Credentials, req CreateOrderRequest) (*RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	order := &RemoteOrder{
		ID:       f.nextID("order"),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	f.orders[order.ID] = order
	copied := *order
	return &copied, nil
}

func (f *Fake) GetCapturedAmount(_ context.Context, _ config.Credentials, gatewayOrderID string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CaptureErr != nil {
		return 0, false, f.CaptureErr
	}

	amount, found := CapturedAmount(f.payments[gatewayOrderID])
	return amount, found, nil
}

func (f *Fake) Refund(_ context.Context, _ config.Credentials, paymentID string, amount int64) (*RefundResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RefundErr != nil {
		return nil, f.RefundErr
	}

	status := f.RefundStatus
	if status == "" {
		status = "processed"
	}

	refund := RefundResponse{
		ID:        f.nextID("rfnd"),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    status,
	}
	refund.Raw = map[string]any{
		"id":         refund.ID,
		"entity":     "refund",
		"payment_id": paymentID,
		"amount":     amount,
		"status":     status,
	}
	f.refunds = append(f.refunds, refund)
	return &refund, nil
}

// Pay records a payment against a gateway order and returns its id.
func (f *Fake) Pay(gatewayOrderID string, amount int64, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	payment := RemotePayment{
		ID:      f.nextID("pay"),
		Entity:  "payment",
		Amount:  amount,
		Status:  status,
		OrderID: gatewayOrderID,
	}
	f.payments[gatewayOrderID] = append(f.payments[gatewayOrderID], payment)
	return payment.ID
}

func (f *Fake) Order(id string) (RemoteOrder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[id]
	if !ok {
		return RemoteOrder{}, false
	}
	return *order, true
}

func (f *Fake) Payments(gatewayOrderID string) []RemotePayment {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]RemotePayment(nil), f.payments[gatewayOrderID]...)
}

func (f *Fake) Refunds() []RefundResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]RefundResponse(nil), f.refunds...)
}
