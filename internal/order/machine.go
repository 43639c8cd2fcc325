package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/logcontext"
	"payment-service/internal/model"
)

var (
	ErrIllegalTransition = errors.New("illegal order state transition")
	ErrConcurrentUpdate  = errors.New("order state changed concurrently")
)

var (
	transitionChangedCounter = metrics.GetOrCreateCounter(`order_transition_total{result="changed"}`)
	transitionNoopCounter    = metrics.GetOrCreateCounter(`order_transition_total{result="noop"}`)
	transitionIllegalCounter = metrics.GetOrCreateCounter(`order_transition_total{result="illegal"}`)
	transitionErrorCounter   = metrics.GetOrCreateCounter(`order_transition_total{result="error"}`)
)

// Store persists order state. CompareAndSetState must apply t only while the
// stored state still equals t.From, and report whether it did.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	CompareAndSetState(ctx context.Context, t model.OrderTransition) (bool, error)
}

// Hook runs after a state change has been stored. Hooks never run for a
// request that leaves the state unchanged.
type Hook func(ctx context.Context, order *model.Order, t model.OrderTransition)

type Result struct {
	Order   *model.Order
	From    model.OrderState
	Changed bool
}

type Machine struct {
	store  Store
	hooks  []Hook
	logger *slog.Logger
	now    func() time.Time
}

func NewMachine(store Store, logger *slog.Logger, hooks ...Hook) *Machine {
	return &Machine{
		store:  store,
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
	}
}

// Transition moves the order to the requested state. Requesting the state
// the order is already in succeeds without side effects, which lets the
// checkout return and the webhook both ask for the same state.
func (m *Machine) Transition(ctx context.Context, orderID uuid.UUID, to model.OrderState) (Result, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", orderID.String()))

	// one retry: a lost compare-and-set means another writer moved the order
	for attempt := 0; attempt < 2; attempt++ {
		current, err := m.store.GetByID(ctx, orderID)
		if err != nil {
			transitionErrorCounter.Inc()
			return Result{}, err
		}

		if current.State == to {
			m.logger.InfoContext(ctx, "Order already in requested state", "state", to)
			transitionNoopCounter.Inc()
			return Result{Order: current, From: current.State}, nil
		}

		if !CanTransition(current.State, to) {
			m.logger.WarnContext(ctx, "Illegal order transition requested", "from", current.State, "to", to)
			transitionIllegalCounter.Inc()
			return Result{Order: current, From: current.State},
				errors.Wrapf(ErrIllegalTransition, "%s -> %s", current.State, to)
		}

		transition := model.OrderTransition{
			ID:        uuid.New(),
			OrderID:   current.ID,
			OrderCode: current.Code,
			From:      current.State,
			To:        to,
			CreatedAt: m.now(),
		}

		changed, err := m.store.CompareAndSetState(ctx, transition)
		if err != nil {
			transitionErrorCounter.Inc()
			return Result{}, errors.Wrap(err, "update order state")
		}
		if !changed {
			m.logger.InfoContext(ctx, "Order state moved underneath transition, re-reading", "from", current.State, "to", to)
			continue
		}

		current.State = to
		current.UpdatedAt = transition.CreatedAt
		transitionChangedCounter.Inc()
		m.logger.InfoContext(ctx, "Order transitioned", "from", transition.From, "to", to)

		for _, hook := range m.hooks {
			hook(ctx, current, transition)
		}

		return Result{Order: current, From: transition.From, Changed: true}, nil
	}

	transitionErrorCounter.Inc()
	return Result{}, errors.Wrapf(ErrConcurrentUpdate, "order %s -> %s", orderID, to)
}
