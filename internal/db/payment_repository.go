package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"payment-service/internal/model"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	if payment.Metadata == nil {
		payment.Metadata = map[string]any{}
	}

	query := `INSERT INTO payments (id, order_id, state, transaction_id, amount, error_message, metadata, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := r.pool.QueryRow(ctx, query, payment.ID, payment.OrderID, payment.State, payment.TransactionID,
		payment.Amount, payment.ErrorMessage, payment.Metadata, payment.CreatedAt).Scan(&payment.ID)
	if isUniqueViolation(err) {
		return nil, errors.Wrapf(model.ErrDuplicate, "settled payment %s for order %s", payment.TransactionID, payment.OrderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert payment")
	}
	return payment, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT id, order_id, state, transaction_id, amount, error_message, metadata, created_at
	          FROM payments WHERE id = $1`
	payment, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment %s", id)
	}
	return payment, nil
}

func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*model.Payment, error) {
	query := `SELECT id, order_id, state, transaction_id, amount, error_message, metadata, created_at
	          FROM payments WHERE order_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query payments")
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var payment model.Payment
	err := row.Scan(&payment.ID, &payment.OrderID, &payment.State, &payment.TransactionID, &payment.Amount,
		&payment.ErrorMessage, &payment.Metadata, &payment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

type RefundRepository struct {
	pool *pgxpool.Pool
}

func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

// Reserve records refund as Pending after checking, under a lock on the
// payment row, that pending and settled refunds stay within the payment
// amount. Failed refunds release their share.
func (r *RefundRepository) Reserve(ctx context.Context, refund *model.Refund) (*model.Refund, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var paid int64
	err = tx.QueryRow(ctx, `SELECT amount FROM payments WHERE id = $1 FOR UPDATE`, refund.PaymentID).Scan(&paid)
	if err != nil {
		return nil, notFound(err, "payment %s", refund.PaymentID)
	}

	var reserved int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM refunds WHERE payment_id = $1 AND state IN ($2, $3)`,
		refund.PaymentID, model.RefundPending, model.RefundSettled).Scan(&reserved)
	if err != nil {
		return nil, errors.Wrap(err, "sum refunds")
	}
	if reserved+refund.Amount > paid {
		return nil, errors.Wrapf(model.ErrInsufficientBalance, "payment %s has %d of %d refunded", refund.PaymentID, reserved, paid)
	}

	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now()
	}
	if refund.Metadata == nil {
		refund.Metadata = map[string]any{}
	}
	refund.State = model.RefundPending

	query := `INSERT INTO refunds (id, payment_id, amount, state, transaction_id, metadata, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.Exec(ctx, query, refund.ID, refund.PaymentID, refund.Amount, refund.State,
		refund.TransactionID, refund.Metadata, refund.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert refund")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return refund, nil
}

// Complete stores the gateway outcome of a reserved refund.
func (r *RefundRepository) Complete(ctx context.Context, refund *model.Refund) error {
	if refund.Metadata == nil {
		refund.Metadata = map[string]any{}
	}
	query := `UPDATE refunds SET state = $2, transaction_id = $3, metadata = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, refund.ID, refund.State, refund.TransactionID, refund.Metadata)
	if err != nil {
		return errors.Wrap(err, "update refund")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(model.ErrNotFound, "refund %s", refund.ID)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
