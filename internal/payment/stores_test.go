package payment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/config"
	"payment-service/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryOrders implements OrderStore and order.Store.
type memoryOrders struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*model.Order
	transitions []model.OrderTransition
}

func newMemoryOrders(orders ...*model.Order) *memoryOrders {
	s := &memoryOrders{orders: map[uuid.UUID]*model.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memoryOrders) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *memoryOrders) SetGatewayOrderID(_ context.Context, id uuid.UUID, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.State != model.OrderArrangingPayment {
		return model.ErrNotFound
	}
	o.GatewayOrderID = &gatewayOrderID
	return nil
}

func (s *memoryOrders) CompareAndSetState(_ context.Context, t model.OrderTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[t.OrderID]
	if o.State != t.From {
		return false, nil
	}
	o.State = t.To
	s.transitions = append(s.transitions, t)
	return true, nil
}

func (s *memoryOrders) state(id uuid.UUID) model.OrderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].State
}

func (s *memoryOrders) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transitions)
}

type memoryPayments struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*model.Payment
}

func newMemoryPayments(payments ...*model.Payment) *memoryPayments {
	s := &memoryPayments{payments: map[uuid.UUID]*model.Payment{}}
	for _, p := range payments {
		s.payments[p.ID] = p
	}
	return s
}

// Create rejects a second Settled payment for the same gateway payment, as
// the payments_settled_transaction_idx index does.
func (s *memoryPayments) Create(_ context.Context, payment *model.Payment) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.State == model.PaymentSettled {
		for _, p := range s.payments {
			if p.State == model.PaymentSettled && p.OrderID == payment.OrderID && p.TransactionID == payment.TransactionID {
				return nil, model.ErrDuplicate
			}
		}
	}
	payment.ID = uuid.New()
	payment.CreatedAt = time.Now()
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *memoryPayments) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

func (s *memoryPayments) ListByOrderID(_ context.Context, orderID uuid.UUID) ([]*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryPayments) settledCount(orderID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.payments {
		if p.OrderID == orderID && p.State == model.PaymentSettled {
			count++
		}
	}
	return count
}

type memoryRefunds struct {
	mu       sync.Mutex
	payments *memoryPayments
	refunds  []*model.Refund
}

func newMemoryRefunds(payments *memoryPayments) *memoryRefunds {
	return &memoryRefunds{payments: payments}
}

func (s *memoryRefunds) Reserve(ctx context.Context, refund *model.Refund) (*model.Refund, error) {
	payment, err := s.payments.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var reserved int64
	for _, r := range s.refunds {
		if r.PaymentID == refund.PaymentID && r.State != model.RefundFailed {
			reserved += r.Amount
		}
	}
	if reserved+refund.Amount > payment.Amount {
		return nil, model.ErrInsufficientBalance
	}

	stored := *refund
	stored.ID = uuid.New()
	stored.State = model.RefundPending
	stored.CreatedAt = time.Now()
	s.refunds = append(s.refunds, &stored)
	copied := stored
	return &copied, nil
}

func (s *memoryRefunds) Complete(_ context.Context, refund *model.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refunds {
		if r.ID == refund.ID {
			r.State = refund.State
			r.TransactionID = refund.TransactionID
			r.Metadata = refund.Metadata
			return nil
		}
	}
	return model.ErrNotFound
}

func (s *memoryRefunds) settledTotal(paymentID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.refunds {
		if r.PaymentID == paymentID && r.State == model.RefundSettled {
			total += r.Amount
		}
	}
	return total
}

const (
	testChannel   = "default-channel"
	testKeyID     = "rzp_test_key"
	testKeySecret = "rzp_test_secret"
)

func testCredentials() *config.StaticCredentials {
	return config.NewStaticCredentials(map[string]config.Credentials{
		testChannel: {KeyID: testKeyID, KeySecret: testKeySecret},
	})
}

func arrangingOrder(total int64, gatewayOrderID string) *model.Order {
	o := &model.Order{
		ID:           uuid.New(),
		Code:         "ORD-" + uuid.NewString()[:8],
		Channel:      testChannel,
		State:        model.OrderArrangingPayment,
		TotalWithTax: total,
		CustomerID:   "customer-1",
	}
	if gatewayOrderID != "" {
		o.GatewayOrderID = &gatewayOrderID
	}
	return o
}
