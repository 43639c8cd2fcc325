package payment

import (
	"context"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/model"
)

var (
	refundSettledCounter = metrics.GetOrCreateCounter(`refund_total{result="settled"}`)
	refundFailedCounter  = metrics.GetOrCreateCounter(`refund_total{result="failed"}`)
)

const (
	refundStatusProcessed = "processed"
	refundStatusPending   = "pending"
)

type Refunder struct {
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewRefunder(gw gateway.Gateway, logger *slog.Logger) *Refunder {
	return &Refunder{gateway: gw, logger: logger}
}

// Refund asks the gateway to refund amount of a settled payment and maps the
// answer to a local refund. It never fails and never touches the order.
func (r *Refunder) Refund(ctx context.Context, creds config.Credentials, payment *model.Payment, amount int64) *model.Refund {
	refund := &model.Refund{
		PaymentID: payment.ID,
		Amount:    amount,
	}

	response, err := r.gateway.Refund(ctx, creds, payment.TransactionID, amount)
	if err != nil {
		refundFailedCounter.Inc()
		r.logger.ErrorContext(ctx, "Gateway refund failed", "transactionId", payment.TransactionID, "error", err)

		refund.State = model.RefundFailed
		refund.Metadata = map[string]any{"error": err.Error()}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Raw != nil {
			refund.Metadata = apiErr.Raw
		}
		return refund
	}

	if response.ID != "" && (response.Status == refundStatusProcessed || response.Status == refundStatusPending) {
		refundSettledCounter.Inc()
		r.logger.InfoContext(ctx, "Refund accepted by gateway", "refundId", response.ID, "status", response.Status)
		refund.State = model.RefundSettled
		refund.TransactionID = response.ID
		refund.Metadata = response.Raw
		return refund
	}

	refundFailedCounter.Inc()
	r.logger.WarnContext(ctx, "Refund not accepted by gateway", "refundId", response.ID, "status", response.Status)
	refund.State = model.RefundFailed
	refund.Metadata = response.Raw
	if refund.Metadata == nil {
		refund.Metadata = map[string]any{"id": response.ID, "status": response.Status}
	}
	return refund
}
