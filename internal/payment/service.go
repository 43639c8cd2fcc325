package payment

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
	"payment-service/internal/order"
)

type PaymentStore interface {
	Create(ctx context.Context, payment *model.Payment) (*model.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*model.Payment, error)
}

// RefundStore reserves refundable balance before the gateway is asked and
// records the outcome afterwards.
type RefundStore interface {
	Reserve(ctx context.Context, refund *model.Refund) (*model.Refund, error)
	Complete(ctx context.Context, refund *model.Refund) error
}

type Transitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, to model.OrderState) (order.Result, error)
}

// Claim is the client's report of a completed gateway checkout.
type Claim struct {
	Amount   int64
	Metadata map[string]any
}

// Service records payments and refunds for orders.
type Service struct {
	orders   OrderStore
	payments PaymentStore
	refunds  RefundStore
	creds    config.CredentialStore
	machine  Transitioner
	verifier *Verifier
	refunder *Refunder
	logger   *slog.Logger
}

func NewService(orders OrderStore, payments PaymentStore, refunds RefundStore, creds config.CredentialStore,
	machine Transitioner, verifier *Verifier, refunder *Refunder, logger *slog.Logger) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		refunds:  refunds,
		creds:    creds,
		machine:  machine,
		verifier: verifier,
		refunder: refunder,
		logger:   logger,
	}
}

// AddPayment verifies a claim, records the resulting payment and settles the
// order when the payment settled. A claim for a capture that is already
// recorded returns the recorded payment.
func (s *Service) AddPayment(ctx context.Context, orderID uuid.UUID, claim Claim) (*model.Payment, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", orderID.String()))

	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, newResultError(CodeOrderNotFound, ErrOrderNotFound, "The order id you have provided is invalid")
	}
	if err != nil {
		return nil, err
	}

	switch o.State {
	case model.OrderArrangingPayment, model.OrderPaymentAuthorized, model.OrderPaymentSettled:
	default:
		return nil, newResultError(CodeInvalidOrderState, ErrInvalidOrderState,
			"A payment cannot be added to an order in state "+string(o.State))
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("correlationId", o.CorrelationID()))

	if claimed := ParsePaymentDetails(claim.Metadata).GatewayOrderID; claimed != "" && claimed != o.CorrelationID() {
		s.logger.WarnContext(ctx, "Client reported a different gateway order id", "claimed", claimed)
	}

	creds, err := s.creds.Lookup(ctx, o.Channel)
	if err != nil {
		s.logger.ErrorContext(ctx, "No gateway credentials for channel", "channel", o.Channel, "error", err)
		return nil, err
	}

	payment := s.verifier.Verify(ctx, VerifyInput{
		Order:       o,
		Amount:      claim.Amount,
		Credentials: creds,
		Metadata:    claim.Metadata,
	})

	if payment.State == model.PaymentSettled {
		existing, err := s.settledPayment(ctx, o.ID, payment.TransactionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.InfoContext(ctx, "Payment already recorded", "paymentId", existing.ID)
			s.settle(ctx, o.ID)
			return existing, nil
		}
	}

	recorded, err := s.payments.Create(ctx, payment)
	if errors.Is(err, model.ErrDuplicate) {
		// a concurrent claim for the same capture won the insert
		existing, lookupErr := s.settledPayment(ctx, o.ID, payment.TransactionID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Payment already recorded", "paymentId", existing.ID)
		return existing, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "record payment")
	}

	if reason := DeclineReason(recorded); reason != nil {
		s.logger.WarnContext(ctx, "Payment declined", "paymentId", recorded.ID, "error", reason)
	} else {
		s.logger.InfoContext(ctx, "Payment recorded", "paymentId", recorded.ID, "state", recorded.State)
	}

	if recorded.State == model.PaymentSettled {
		s.settle(ctx, o.ID)
	}
	return recorded, nil
}

// settledPayment returns the Settled payment already recorded for the gateway
// payment, or nil.
func (s *Service) settledPayment(ctx context.Context, orderID uuid.UUID, transactionID string) (*model.Payment, error) {
	payments, err := s.payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	for _, p := range payments {
		if p.State == model.PaymentSettled && p.TransactionID == transactionID {
			return p, nil
		}
	}
	return nil, nil
}

func (s *Service) settle(ctx context.Context, orderID uuid.UUID) {
	result, err := s.machine.Transition(ctx, orderID, model.OrderPaymentSettled)
	if err != nil {
		s.logger.ErrorContext(ctx, "Settled payment could not settle the order", "error", err)
	} else if !result.Changed {
		s.logger.InfoContext(ctx, "Order was already settled")
	}
}

// Refund reserves amount of a settled payment's refundable balance, asks the
// gateway and records the outcome. Failed refunds release the reservation.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, amount int64) (*model.Refund, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", paymentID.String()))

	payment, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, newResultError(CodePaymentNotFound, ErrPaymentNotFound, "The payment id you have provided is invalid")
	}
	if err != nil {
		return nil, err
	}

	if payment.State != model.PaymentSettled {
		return nil, newResultError(CodeInvalidPaymentState, ErrInvalidPaymentState,
			"Only settled payments can be refunded, payment is "+string(payment.State))
	}

	if amount <= 0 || amount > payment.Amount {
		return nil, newResultError(CodeInvalidAmount, ErrInvalidAmount,
			"Refund amount must be positive and not exceed the refundable balance")
	}

	o, err := s.orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	creds, err := s.creds.Lookup(ctx, o.Channel)
	if err != nil {
		s.logger.ErrorContext(ctx, "No gateway credentials for channel", "channel", o.Channel, "error", err)
		return nil, err
	}

	reserved, err := s.refunds.Reserve(ctx, &model.Refund{PaymentID: payment.ID, Amount: amount})
	if errors.Is(err, model.ErrInsufficientBalance) {
		s.logger.WarnContext(ctx, "Refund exceeds refundable balance", "amount", amount, "error", err)
		return nil, newResultError(CodeInvalidAmount, ErrInvalidAmount,
			"Refund amount must be positive and not exceed the refundable balance")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reserve refund")
	}

	refund := s.refunder.Refund(ctx, creds, payment, amount)
	refund.ID = reserved.ID
	refund.CreatedAt = reserved.CreatedAt

	if err := s.refunds.Complete(ctx, refund); err != nil {
		s.logger.ErrorContext(ctx, "Error recording refund outcome", "refundId", refund.ID, "state", refund.State, "error", err)
		return nil, errors.Wrap(err, "record refund")
	}
	s.logger.InfoContext(ctx, "Refund recorded", "refundId", refund.ID, "state", refund.State)
	return refund, nil
}

// Cancel moves the order to Cancelled.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	result, err := s.machine.Transition(ctx, orderID, model.OrderCancelled)
	if errors.Is(err, model.ErrNotFound) {
		return nil, newResultError(CodeOrderNotFound, ErrOrderNotFound, "The order id you have provided is invalid")
	}
	if errors.Is(err, order.ErrIllegalTransition) {
		return nil, newResultError(CodeInvalidOrderState, ErrInvalidOrderState, err.Error())
	}
	if err != nil {
		return nil, err
	}
	return result.Order, nil
}
