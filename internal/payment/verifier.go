package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/model"
	"payment-service/internal/signature"
)

var (
	verifySettledCounter           = metrics.GetOrCreateCounter(`payment_verification_total{result="settled"}`)
	verifySignatureMismatchCounter = metrics.GetOrCreateCounter(`payment_verification_total{result="signature_mismatch"}`)
	verifyNotFoundCounter          = metrics.GetOrCreateCounter(`payment_verification_total{result="not_found"}`)
	verifyAmountMismatchCounter    = metrics.GetOrCreateCounter(`payment_verification_total{result="amount_mismatch"}`)
	verifyErrorCounter             = metrics.GetOrCreateCounter(`payment_verification_total{result="error"}`)
)

type VerifyInput struct {
	Order       *model.Order
	Amount      int64
	Credentials config.Credentials
	Metadata    map[string]any
}

type Verifier struct {
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewVerifier(gw gateway.Gateway, logger *slog.Logger) *Verifier {
	return &Verifier{gateway: gw, logger: logger}
}

// Verify checks a checkout return against the gateway and returns the
// payment to record. It never fails: every problem becomes a Declined or
// Error payment.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (payment *model.Payment) {
	details := ParsePaymentDetails(in.Metadata)

	defer func() {
		if r := recover(); r != nil {
			verifyErrorCounter.Inc()
			v.logger.ErrorContext(ctx, "Payment verification panicked", "panic", r)
			payment = v.errored(in, fmt.Sprint(r))
		}
	}()

	correlationID := in.Order.CorrelationID()
	if correlationID == "" || details.PaymentID == "" ||
		!signature.Verify(in.Credentials.KeySecret, signature.PaymentPayload(correlationID, details.PaymentID), details.Signature) {
		verifySignatureMismatchCounter.Inc()
		v.logger.WarnContext(ctx, "Payment signature mismatch", "paymentId", details.PaymentID)
		return v.declined(in, details, ErrSignatureMismatch)
	}

	captured, found, err := v.gateway.GetCapturedAmount(ctx, in.Credentials, correlationID)
	if err != nil {
		verifyErrorCounter.Inc()
		v.logger.ErrorContext(ctx, "Error fetching captured amount", "error", err)
		return v.errored(in, err.Error())
	}
	if !found {
		verifyNotFoundCounter.Inc()
		v.logger.WarnContext(ctx, "No captured payment for gateway order")
		return v.declined(in, details, ErrNotFoundUpstream)
	}

	if captured != in.Order.TotalWithTax {
		verifyAmountMismatchCounter.Inc()
		v.logger.WarnContext(ctx, "Captured amount does not match order total",
			"captured", captured, "expected", in.Order.TotalWithTax)
		return v.declined(in, details, ErrAmountMismatch)
	}

	verifySettledCounter.Inc()
	v.logger.InfoContext(ctx, "Payment verified", "paymentId", details.PaymentID, "amount", captured)
	return &model.Payment{
		OrderID:       in.Order.ID,
		State:         model.PaymentSettled,
		TransactionID: details.PaymentID,
		Amount:        captured,
		Metadata:      in.Metadata,
	}
}

func (v *Verifier) declined(in VerifyInput, details PaymentDetails, reason error) *model.Payment {
	message := declineMessages[reason]
	return &model.Payment{
		OrderID:       in.Order.ID,
		State:         model.PaymentDeclined,
		TransactionID: details.PaymentID,
		Amount:        in.Amount,
		ErrorMessage:  &message,
		Metadata:      in.Metadata,
	}
}

func (v *Verifier) errored(in VerifyInput, message string) *model.Payment {
	return &model.Payment{
		OrderID:      in.Order.ID,
		State:        model.PaymentError,
		Amount:       in.Order.TotalWithTax,
		ErrorMessage: &message,
		Metadata:     in.Metadata,
	}
}
