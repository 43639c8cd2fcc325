package message

import (
	"time"

	"github.com/google/uuid"
)

// OrderTransition is the Kafka message published for every applied order
// state change.
type OrderTransition struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"orderId"`
	OrderCode string    `json:"orderCode"`
	From      string    `json:"fromState"`
	To        string    `json:"toState"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
}

// Notification is the body posted to the downstream notification endpoint.
type Notification struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"orderId"`
	OrderCode  string    `json:"orderCode"`
	State      string    `json:"state"`
	Previous   string    `json:"previousState"`
	OccurredAt time.Time `json:"occurredAt"`
}
