package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"payment-service/internal/model"
)

const orderColumns = `id, code, channel, state, total_with_tax, customer_id, gateway_order_id, gateway_status, placed_at, created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order as handed over by checkout.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `INSERT INTO orders (id, code, channel, state, total_with_tax, customer_id, gateway_order_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := r.pool.QueryRow(ctx, query, order.ID, order.Code, order.Channel, order.State, order.TotalWithTax,
		order.CustomerID, order.GatewayOrderID, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "order %s", id)
	}
	return order, nil
}

func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1`, gatewayOrderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "order with gateway order %s", gatewayOrderID)
	}
	return order, nil
}

// SetGatewayOrderID stores the correlation id while the order is still
// arranging payment.
func (r *OrderRepository) SetGatewayOrderID(ctx context.Context, id uuid.UUID, gatewayOrderID string) error {
	query := `UPDATE orders SET gateway_order_id = $2, updated_at = $3 WHERE id = $1 AND state = $4`
	tag, err := r.pool.Exec(ctx, query, id, gatewayOrderID, time.Now(), model.OrderArrangingPayment)
	if err != nil {
		return errors.Wrap(err, "update gateway order id")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(model.ErrNotFound, "order %s arranging payment", id)
	}
	return nil
}

func (r *OrderRepository) SetGatewayStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE orders SET gateway_status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return errors.Wrap(err, "update gateway status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(model.ErrNotFound, "order %s", id)
	}
	return nil
}

// CompareAndSetState applies t only while the order is still in t.From. The
// outbox row for the transition is written in the same transaction, and
// placed_at is stamped the first time payment is authorized or settled.
func (r *OrderRepository) CompareAndSetState(ctx context.Context, t model.OrderTransition) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `UPDATE orders
	          SET state      = $3,
	              updated_at = $4,
	              placed_at  = CASE
	                               WHEN placed_at IS NULL AND $3 IN ($5, $6) THEN $4
	                               ELSE placed_at END
	          WHERE id = $1 AND state = $2`
	tag, err := tx.Exec(ctx, query, t.OrderID, t.From, t.To, t.CreatedAt,
		model.OrderPaymentAuthorized, model.OrderPaymentSettled)
	if err != nil {
		return false, errors.Wrap(err, "update order state")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	scheduledAt := t.CreatedAt
	_, err = tx.Exec(ctx, `INSERT INTO order_transitions (id, order_id, order_code, from_state, to_state, created_at, scheduled_at)
	                       VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.OrderID, t.OrderCode, t.From, t.To, t.CreatedAt, scheduledAt)
	if err != nil {
		return false, errors.Wrap(err, "insert order transition")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var order model.Order
	err := row.Scan(&order.ID, &order.Code, &order.Channel, &order.State, &order.TotalWithTax, &order.CustomerID,
		&order.GatewayOrderID, &order.GatewayStatus, &order.PlacedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
