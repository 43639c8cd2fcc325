package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentState string

const (
	PaymentCreated    PaymentState = "Created"
	PaymentAuthorized PaymentState = "Authorized"
	PaymentSettled    PaymentState = "Settled"
	PaymentDeclined   PaymentState = "Declined"
	PaymentError      PaymentState = "Error"
	PaymentCancelled  PaymentState = "Cancelled"
)

type Payment struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       uuid.UUID      `json:"orderId"`
	State         PaymentState   `json:"state"`
	TransactionID string         `json:"transactionId"`
	Amount        int64          `json:"amount"`
	ErrorMessage  *string        `json:"errorMessage,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type RefundState string

const (
	RefundPending RefundState = "Pending"
	RefundSettled RefundState = "Settled"
	RefundFailed  RefundState = "Failed"
)

type Refund struct {
	ID            uuid.UUID      `json:"id"`
	PaymentID     uuid.UUID      `json:"paymentId"`
	Amount        int64          `json:"amount"`
	State         RefundState    `json:"state"`
	TransactionID string         `json:"transactionId"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
