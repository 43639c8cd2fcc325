package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"payment-service/internal/model"
)

// WebhookEventRepository is append-only: events are inserted and listed,
// never updated or deleted.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `INSERT INTO webhook_events (event, gateway_order_id, payload, created_at)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.pool.QueryRow(ctx, query, event.Event, event.GatewayOrderID, []byte(event.Payload), event.CreatedAt).
		Scan(&event.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert webhook event")
	}
	return event, nil
}

// ListByGatewayOrderID returns the events for a correlation id, newest first.
func (r *WebhookEventRepository) ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]*model.WebhookEvent, error) {
	query := `SELECT id, event, gateway_order_id, payload, created_at
	          FROM webhook_events WHERE gateway_order_id = $1
	          ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, gatewayOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "query webhook events")
	}
	defer rows.Close()

	events := []*model.WebhookEvent{}
	for rows.Next() {
		var event model.WebhookEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.Event, &event.GatewayOrderID, &payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, &event)
	}
	return events, rows.Err()
}
