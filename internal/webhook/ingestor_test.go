package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/model"
	"payment-service/internal/order"
	"payment-service/internal/signature"
)

const testSecret = "whsec_test"

type memoryEvents struct {
	mu        sync.Mutex
	events    []*model.WebhookEvent
	createErr error
}

func (s *memoryEvents) Create(_ context.Context, event *model.WebhookEvent) (*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, event)
	return event, nil
}

func (s *memoryEvents) ListByGatewayOrderID(_ context.Context, gatewayOrderID string) ([]*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.WebhookEvent{}
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].GatewayOrderID == gatewayOrderID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *memoryEvents) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// memoryOrders implements OrderStore and order.Store.
type memoryOrders struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*model.Order
	transitions int
	lookupErr   error
	afterLookup func(o *model.Order)
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

func (s *memoryOrders) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, o := range s.orders {
		if o.CorrelationID() == gatewayOrderID {
			copied := *o
			if s.afterLookup != nil {
				s.afterLookup(o)
			}
			return &copied, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *memoryOrders) SetGatewayStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id].GatewayStatus = &status
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
	s.transitions++
	return true, nil
}

func (s *memoryOrders) get(id uuid.UUID) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

type fixture struct {
	events   *memoryEvents
	orders   *memoryOrders
	ingestor *Ingestor
}

func newFixture(orders ...*model.Order) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{events: &memoryEvents{}, orders: newMemoryOrders(orders...)}
	f.ingestor = NewIngestor(testSecret, f.events, f.orders, order.NewMachine(f.orders, logger), logger)
	return f
}

func orderWithCorrelation(state model.OrderState, gatewayOrderID string) *model.Order {
	return &model.Order{
		ID:             uuid.New(),
		Code:           "ORD-1",
		State:          state,
		TotalWithTax:   50000,
		GatewayOrderID: &gatewayOrderID,
	}
}

func paymentBody(event, gatewayOrderID string) []byte {
	return []byte(fmt.Sprintf(
		`{"entity":"event","event":%q,"payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"amount":50000,"status":"captured"}}}}`,
		event, gatewayOrderID))
}

func orderBody(event, gatewayOrderID string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":%q,"payload":{"order":{"entity":{"id":%q,"status":"paid"}}}}`,
		event, gatewayOrderID))
}

func sign(body []byte) string {
	return signature.Sign(testSecret, body)
}

func TestIngest_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		state model.OrderState
	}{
		{"payment authorized", paymentBody(EventPaymentAuthorized, "order_1"), model.OrderPaymentAuthorized},
		{"payment captured", paymentBody(EventPaymentCaptured, "order_1"), model.OrderPaymentSettled},
		{"order paid", orderBody(EventOrderPaid, "order_1"), model.OrderPaymentSettled},
		{"unmapped event", paymentBody("payment.failed", "order_1"), model.OrderArrangingPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := orderWithCorrelation(model.OrderArrangingPayment, "order_1")
			f := newFixture(o)

			outcome, err := f.ingestor.Ingest(context.Background(), tt.body, sign(tt.body))
			require.NoError(t, err)
			require.NoError(t, outcome.FollowUpError)

			stored := f.orders.get(o.ID)
			assert.Equal(t, tt.state, stored.State)
			assert.Equal(t, tt.state != model.OrderArrangingPayment, outcome.Transitioned)
			require.NotNil(t, stored.GatewayStatus)
			assert.Equal(t, 1, f.events.count())
		})
	}
}

func TestIngest_AlteredBodyIsRejected(t *testing.T) {
	body := paymentBody(EventPaymentCaptured, "order_1")
	sig := sign(body)

	for i := range body {
		o := orderWithCorrelation(model.OrderArrangingPayment, "order_1")
		f := newFixture(o)

		altered := append([]byte(nil), body...)
		altered[i] ^= 0x01

		_, err := f.ingestor.Ingest(context.Background(), altered, sig)
		require.True(t, errors.Is(err, ErrSignatureMismatch), "byte %d", i)
		assert.Zero(t, f.events.count())
		assert.Equal(t, model.OrderArrangingPayment, f.orders.get(o.ID).State)
	}
}

func TestIngest_MissingSignature(t *testing.T) {
	f := newFixture()
	_, err := f.ingestor.Ingest(context.Background(), paymentBody(EventPaymentCaptured, "order_1"), "")
	assert.True(t, errors.Is(err, ErrSignatureMismatch))
}

func TestIngest_MissingCorrelationID(t *testing.T) {
	for _, body := range [][]byte{
		[]byte(`{"event":"payment.captured","payload":{}}`),
		[]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`),
		[]byte(`not json`),
	} {
		f := newFixture()
		_, err := f.ingestor.Ingest(context.Background(), body, sign(body))
		assert.True(t, errors.Is(err, ErrMissingCorrelationID), string(body))
		assert.Zero(t, f.events.count())
	}
}

func TestIngest_UnknownOrder(t *testing.T) {
	o := orderWithCorrelation(model.OrderArrangingPayment, "order_1")
	f := newFixture(o)
	body := paymentBody(EventPaymentCaptured, "order_unknown")

	outcome, err := f.ingestor.Ingest(context.Background(), body, sign(body))
	require.NoError(t, err)

	assert.False(t, outcome.OrderFound)
	assert.Equal(t, 1, f.events.count())
	assert.Equal(t, model.OrderArrangingPayment, f.orders.get(o.ID).State)
	assert.Nil(t, f.orders.get(o.ID).GatewayStatus)
}

func TestIngest_LateCaptureAfterSettlement(t *testing.T) {
	o := orderWithCorrelation(model.OrderPaymentSettled, "order_1")
	f := newFixture(o)
	body := paymentBody(EventPaymentCaptured, "order_1")

	for i := 0; i < 2; i++ {
		outcome, err := f.ingestor.Ingest(context.Background(), body, sign(body))
		require.NoError(t, err)
		assert.False(t, outcome.Transitioned)
	}

	assert.Equal(t, 2, f.events.count())
	assert.Zero(t, f.orders.transitions)
	stored := f.orders.get(o.ID)
	assert.Equal(t, model.OrderPaymentSettled, stored.State)
	assert.Equal(t, EventPaymentCaptured, *stored.GatewayStatus)
}

func TestIngest_AuthorizedAfterConcurrentSettlement(t *testing.T) {
	o := orderWithCorrelation(model.OrderArrangingPayment, "order_1")
	f := newFixture(o)
	// the verifier settles the order between the webhook's lookup and its transition
	f.orders.afterLookup = func(stored *model.Order) {
		stored.State = model.OrderPaymentSettled
	}
	body := paymentBody(EventPaymentAuthorized, "order_1")

	outcome, err := f.ingestor.Ingest(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.NoError(t, outcome.FollowUpError)
	assert.True(t, outcome.OrderFound)
	assert.False(t, outcome.Transitioned)
	assert.Zero(t, f.orders.transitions)
	assert.Equal(t, model.OrderPaymentSettled, f.orders.get(o.ID).State)
}

func TestIngest_FollowUpFailureIsAcknowledged(t *testing.T) {
	f := newFixture()
	f.orders.lookupErr = errors.New("connection reset")
	body := paymentBody(EventPaymentCaptured, "order_1")

	outcome, err := f.ingestor.Ingest(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Error(t, outcome.FollowUpError)
	assert.Equal(t, 1, f.events.count())
}

func TestIngest_PersistFailure(t *testing.T) {
	f := newFixture()
	f.events.createErr = errors.New("connection reset")
	body := paymentBody(EventPaymentCaptured, "order_1")

	_, err := f.ingestor.Ingest(context.Background(), body, sign(body))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSignatureMismatch))
}

func TestIngest_SecretNotConfigured(t *testing.T) {
	f := newFixture()
	f.ingestor.secret = ""
	body := paymentBody(EventPaymentCaptured, "order_1")

	_, err := f.ingestor.Ingest(context.Background(), body, signature.Sign("", body))
	assert.True(t, errors.Is(err, ErrSecretNotConfigured))
}

func TestEvents_NewestFirst(t *testing.T) {
	f := newFixture()
	for _, event := range []string{EventPaymentAuthorized, EventPaymentCaptured} {
		body := paymentBody(event, "order_1")
		_, err := f.ingestor.Ingest(context.Background(), body, sign(body))
		require.NoError(t, err)
	}

	events, err := f.ingestor.Events(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventPaymentCaptured, events[0].Event)
	assert.JSONEq(t, string(paymentBody(EventPaymentCaptured, "order_1")), string(events[0].Payload))
}
