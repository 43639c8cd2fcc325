package model

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the audit copy of a gateway callback. Rows are only ever
// inserted.
type WebhookEvent struct {
	ID             int64           `json:"id"`
	Event          string          `json:"event"`
	GatewayOrderID string          `json:"correlationId"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
}
