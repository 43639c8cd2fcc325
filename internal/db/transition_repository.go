package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/model"
)

// TransitionRepository reads and updates the order_transitions outbox.
type TransitionRepository struct {
	pool *pgxpool.Pool
}

func NewTransitionRepository(pool *pgxpool.Pool) *TransitionRepository {
	return &TransitionRepository{pool: pool}
}

func (r *TransitionRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetUnpublished locks up to limit due transitions. Rows locked by another
// producer are skipped.
func (r *TransitionRepository) GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*model.OrderTransition, error) {
	query := `SELECT id, order_id, order_code, from_state, to_state, created_at, scheduled_at, published_at, publish_attempts, error
	          FROM order_transitions
	          WHERE scheduled_at IS NOT NULL AND scheduled_at <= NOW()
	          ORDER BY scheduled_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []*model.OrderTransition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func (r *TransitionRepository) Update(ctx context.Context, tx pgx.Tx, t *model.OrderTransition) error {
	query := `UPDATE order_transitions
	          SET scheduled_at = $2, published_at = $3, publish_attempts = $4, error = $5
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, t.ID, t.ScheduledAt, t.PublishedAt, t.PublishAttempts, t.Error)
	return err
}

func scanTransition(row pgx.Row) (*model.OrderTransition, error) {
	var t model.OrderTransition
	err := row.Scan(&t.ID, &t.OrderID, &t.OrderCode, &t.From, &t.To, &t.CreatedAt, &t.ScheduledAt, &t.PublishedAt,
		&t.PublishAttempts, &t.Error)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
