package model

import (
	"time"

	"github.com/google/uuid"
)

type OrderState string

const (
	OrderCreated           OrderState = "Created"
	OrderAddingItems       OrderState = "AddingItems"
	OrderArrangingPayment  OrderState = "ArrangingPayment"
	OrderPaymentAuthorized OrderState = "PaymentAuthorized"
	OrderPaymentSettled    OrderState = "PaymentSettled"
	OrderShipped           OrderState = "Shipped"
	OrderDelivered         OrderState = "Delivered"
	OrderDeclined          OrderState = "Declined"
	OrderCancelled         OrderState = "Cancelled"
)

type Order struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"`
	Channel        string     `json:"channel"`
	State          OrderState `json:"state"`
	TotalWithTax   int64      `json:"totalWithTax"`
	CustomerID     string     `json:"customerId"`
	GatewayOrderID *string    `json:"gatewayOrderId,omitempty"`
	GatewayStatus  *string    `json:"gatewayStatus,omitempty"`
	PlacedAt       *time.Time `json:"placedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CorrelationID returns the gateway order id, or "" when none was minted yet.
func (o *Order) CorrelationID() string {
	if o.GatewayOrderID == nil {
		return ""
	}
	return *o.GatewayOrderID
}

// OrderTransition is an applied state change. Each one is stored as an
// outbox row and later published to Kafka.
type OrderTransition struct {
	ID              uuid.UUID  `json:"id"`
	OrderID         uuid.UUID  `json:"orderId"`
	OrderCode       string     `json:"orderCode"`
	From            OrderState `json:"fromState"`
	To              OrderState `json:"toState"`
	CreatedAt       time.Time  `json:"createdAt"`
	ScheduledAt     *time.Time `json:"-"`
	PublishedAt     *time.Time `json:"-"`
	PublishAttempts int        `json:"-"`
	Error           *string    `json:"-"`
}
