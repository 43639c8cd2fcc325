package payment

import (
	"context"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
)

var (
	gatewayOrderCreatedCounter = metrics.GetOrCreateCounter(`gateway_order_total{result="created"}`)
	gatewayOrderReusedCounter  = metrics.GetOrCreateCounter(`gateway_order_total{result="reused"}`)
	gatewayOrderRejectedCount  = metrics.GetOrCreateCounter(`gateway_order_total{result="rejected"}`)
	gatewayOrderFailedCounter  = metrics.GetOrCreateCounter(`gateway_order_total{result="gateway_error"}`)
)

type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	SetGatewayOrderID(ctx context.Context, id uuid.UUID, gatewayOrderID string) error
}

// GatewayOrder is what the checkout client needs to open the gateway's
// payment page.
type GatewayOrder struct {
	CorrelationID string
	Credentials   config.Credentials
}

type InitiatorOptions struct {
	Currency string
	// ReuseCorrelationID returns an already stored gateway order id instead
	// of minting a new one.
	ReuseCorrelationID bool
}

type Initiator struct {
	orders  OrderStore
	creds   config.CredentialStore
	gateway gateway.Gateway
	opts    InitiatorOptions
	logger  *slog.Logger
}

func NewInitiator(orders OrderStore, creds config.CredentialStore, gw gateway.Gateway, opts InitiatorOptions, logger *slog.Logger) *Initiator {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Initiator{orders: orders, creds: creds, gateway: gw, opts: opts, logger: logger}
}

// Initiate mints a gateway order for the local order and stores its id.
// Expected failures are returned as *ResultError; missing credentials and
// storage failures are returned as plain errors.
func (i *Initiator) Initiate(ctx context.Context, orderID uuid.UUID) (*GatewayOrder, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", orderID.String()))

	order, err := i.orders.GetByID(ctx, orderID)
	if errors.Is(err, model.ErrNotFound) {
		gatewayOrderRejectedCount.Inc()
		return nil, newResultError(CodeOrderNotFound, ErrOrderNotFound, "The order id you have provided is invalid")
	}
	if err != nil {
		return nil, err
	}

	if order.State != model.OrderArrangingPayment {
		gatewayOrderRejectedCount.Inc()
		return nil, newResultError(CodeInvalidOrderState, ErrInvalidOrderState,
			`The order must be in "ArrangingPayment" state in order to generate a gateway order id for it`)
	}

	creds, err := i.creds.Lookup(ctx, order.Channel)
	if err != nil {
		i.logger.ErrorContext(ctx, "No gateway credentials for channel", "channel", order.Channel, "error", err)
		return nil, err
	}

	if i.opts.ReuseCorrelationID && order.GatewayOrderID != nil {
		gatewayOrderReusedCounter.Inc()
		i.logger.InfoContext(ctx, "Reusing gateway order", "correlationId", *order.GatewayOrderID)
		return &GatewayOrder{CorrelationID: *order.GatewayOrderID, Credentials: creds}, nil
	}

	remote, err := i.gateway.CreateOrder(ctx, creds, gateway.CreateOrderRequest{
		Amount:   order.TotalWithTax,
		Currency: i.opts.Currency,
		Receipt:  order.Code,
	})
	if err != nil {
		gatewayOrderFailedCounter.Inc()
		i.logger.ErrorContext(ctx, "Gateway order creation failed", "error", err)
		return nil, newResultError(CodeGatewayError, errors.Wrap(ErrGateway, err.Error()),
			"Could not create gateway order. See logs for details.")
	}

	if order.GatewayOrderID != nil {
		i.logger.WarnContext(ctx, "Replacing gateway order id", "previous", *order.GatewayOrderID, "correlationId", remote.ID)
	}

	err = i.orders.SetGatewayOrderID(ctx, order.ID, remote.ID)
	if errors.Is(err, model.ErrNotFound) {
		// the order left ArrangingPayment while the gateway call was in flight
		gatewayOrderRejectedCount.Inc()
		return nil, newResultError(CodeInvalidOrderState, ErrInvalidOrderState,
			`The order must be in "ArrangingPayment" state in order to generate a gateway order id for it`)
	}
	if err != nil {
		return nil, err
	}

	gatewayOrderCreatedCounter.Inc()
	i.logger.InfoContext(ctx, "Gateway order stored", "correlationId", remote.ID, "amount", order.TotalWithTax)
	return &GatewayOrder{CorrelationID: remote.ID, Credentials: creds}, nil
}
