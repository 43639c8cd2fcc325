package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/logcontext"
	"payment-service/internal/model"
	"payment-service/internal/order"
	"payment-service/internal/signature"
)

var (
	ErrSignatureMismatch    = errors.New("webhook signature mismatch")
	ErrMissingCorrelationID = errors.New("webhook payload carries no gateway order id")
	ErrSecretNotConfigured  = errors.New("webhook secret is not configured")
)

const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventOrderPaid         = "order.paid"
)

var (
	webhookRejectedSignatureCounter   = metrics.GetOrCreateCounter(`webhook_total{result="signature_mismatch"}`)
	webhookRejectedCorrelationCounter = metrics.GetOrCreateCounter(`webhook_total{result="missing_correlation_id"}`)
	webhookPersistFailedCounter       = metrics.GetOrCreateCounter(`webhook_total{result="persist_failed"}`)
	webhookUnknownOrderCounter        = metrics.GetOrCreateCounter(`webhook_total{result="unknown_order"}`)
	webhookTransitionedCounter        = metrics.GetOrCreateCounter(`webhook_total{result="transitioned"}`)
	webhookIgnoredCounter             = metrics.GetOrCreateCounter(`webhook_total{result="ignored"}`)
	webhookFollowUpFailedCounter      = metrics.GetOrCreateCounter(`webhook_total{result="follow_up_failed"}`)

	webhookDurationHistogram = metrics.GetOrCreateHistogram(`webhook_duration_milliseconds`)
)

type EventStore interface {
	Create(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, error)
	ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]*model.WebhookEvent, error)
}

type OrderStore interface {
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	SetGatewayStatus(ctx context.Context, id uuid.UUID, status string) error
}

type Transitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, to model.OrderState) (order.Result, error)
}

// envelope is the part of the gateway callback body the ingestor reads.
type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (e envelope) correlationID() string {
	if e.Payload.Payment != nil && e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

// Outcome describes what an accepted webhook led to.
type Outcome struct {
	Event         *model.WebhookEvent
	OrderFound    bool
	Transitioned  bool
	FollowUpError error
}

type Ingestor struct {
	secret  string
	events  EventStore
	orders  OrderStore
	machine Transitioner
	logger  *slog.Logger
}

func NewIngestor(secret string, events EventStore, orders OrderStore, machine Transitioner, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		secret:  secret,
		events:  events,
		orders:  orders,
		machine: machine,
		logger:  logger,
	}
}

// Ingest authenticates and records a gateway callback, then advances the
// order when it is still arranging payment. Only authentication, payload
// and persistence failures are returned; everything after the event row is
// stored is reported through Outcome.FollowUpError.
func (i *Ingestor) Ingest(ctx context.Context, body []byte, sig string) (*Outcome, error) {
	startTime := time.Now()
	defer func() {
		webhookDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	if i.secret == "" {
		return nil, ErrSecretNotConfigured
	}

	if !signature.Verify(i.secret, body, sig) {
		webhookRejectedSignatureCounter.Inc()
		i.logger.WarnContext(ctx, "Rejected webhook with invalid signature")
		return nil, ErrSignatureMismatch
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		webhookRejectedCorrelationCounter.Inc()
		i.logger.WarnContext(ctx, "Rejected unparseable webhook", "error", err)
		return nil, errors.Wrap(ErrMissingCorrelationID, err.Error())
	}

	correlationID := env.correlationID()
	if correlationID == "" {
		webhookRejectedCorrelationCounter.Inc()
		i.logger.WarnContext(ctx, "Rejected webhook without gateway order id", "event", env.Event)
		return nil, ErrMissingCorrelationID
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("correlationId", correlationID))

	event, err := i.events.Create(ctx, &model.WebhookEvent{
		Event:          env.Event,
		GatewayOrderID: correlationID,
		Payload:        json.RawMessage(body),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		webhookPersistFailedCounter.Inc()
		i.logger.ErrorContext(ctx, "Error persisting webhook event", "error", err)
		return nil, errors.Wrap(err, "persist webhook event")
	}
	i.logger.InfoContext(ctx, "Webhook event recorded", "event", env.Event, "eventId", event.ID)

	outcome := &Outcome{Event: event}
	if err := i.followUp(ctx, env.Event, correlationID, outcome); err != nil {
		webhookFollowUpFailedCounter.Inc()
		i.logger.ErrorContext(ctx, "Webhook follow-up failed", "event", env.Event, "error", err)
		outcome.FollowUpError = err
	}
	return outcome, nil
}

func (i *Ingestor) followUp(ctx context.Context, event, correlationID string, outcome *Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	o, err := i.orders.GetByGatewayOrderID(ctx, correlationID)
	if errors.Is(err, model.ErrNotFound) {
		webhookUnknownOrderCounter.Inc()
		i.logger.InfoContext(ctx, "Webhook for untracked gateway order")
		return nil
	}
	if err != nil {
		return err
	}
	outcome.OrderFound = true
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", o.ID.String()))

	if err := i.orders.SetGatewayStatus(ctx, o.ID, event); err != nil {
		return err
	}

	target, ok := targetState(event)
	if !ok || o.State != model.OrderArrangingPayment {
		webhookIgnoredCounter.Inc()
		i.logger.InfoContext(ctx, "Webhook needs no transition", "event", event, "state", o.State)
		return nil
	}

	result, err := i.machine.Transition(ctx, o.ID, target)
	if errors.Is(err, order.ErrIllegalTransition) {
		// the order moved on after it was read, e.g. the verifier settled it
		webhookIgnoredCounter.Inc()
		i.logger.InfoContext(ctx, "Webhook transition superseded", "event", event, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if result.Changed {
		webhookTransitionedCounter.Inc()
		outcome.Transitioned = true
	} else {
		webhookIgnoredCounter.Inc()
	}
	return nil
}

func targetState(event string) (model.OrderState, bool) {
	switch event {
	case EventPaymentAuthorized:
		return model.OrderPaymentAuthorized, true
	case EventPaymentCaptured, EventOrderPaid:
		return model.OrderPaymentSettled, true
	}
	return "", false
}

// Events returns the recorded callbacks for a gateway order, newest first.
func (i *Ingestor) Events(ctx context.Context, correlationID string) ([]*model.WebhookEvent, error) {
	return i.events.ListByGatewayOrderID(ctx, correlationID)
}
