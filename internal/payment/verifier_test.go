package payment

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/model"
	"payment-service/internal/signature"
)

func claimMetadata(gatewayOrderID, paymentID, sig string) map[string]any {
	return map[string]any{
		"payment_details": map[string]any{
			"razorpay_order_id":   gatewayOrderID,
			"razorpay_payment_id": paymentID,
			"razorpay_signature":  sig,
		},
	}
}

func signedMetadata(gatewayOrderID, paymentID string) map[string]any {
	sig := signature.Sign(testKeySecret, signature.PaymentPayload(gatewayOrderID, paymentID))
	return claimMetadata(gatewayOrderID, paymentID, sig)
}

func verify(gw gateway.Gateway, o *model.Order, metadata map[string]any) *model.Payment {
	return NewVerifier(gw, discardLogger()).Verify(context.Background(), VerifyInput{
		Order:       o,
		Amount:      o.TotalWithTax,
		Credentials: config.Credentials{KeyID: testKeyID, KeySecret: testKeySecret},
		Metadata:    metadata,
	})
}

func TestVerifier_Settles(t *testing.T) {
	gw := gateway.NewFake()
	paymentID := gw.Pay("order_1", 50000, gateway.PaymentStatusCaptured)

	payment := verify(gw, arrangingOrder(50000, "order_1"), signedMetadata("order_1", paymentID))

	assert.Equal(t, model.PaymentSettled, payment.State)
	assert.Equal(t, paymentID, payment.TransactionID)
	assert.Equal(t, int64(50000), payment.Amount)
	assert.Nil(t, payment.ErrorMessage)
}

func TestVerifier_TopLevelMetadata(t *testing.T) {
	gw := gateway.NewFake()
	paymentID := gw.Pay("order_1", 50000, gateway.PaymentStatusCaptured)
	metadata := map[string]any{
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  signature.Sign(testKeySecret, signature.PaymentPayload("order_1", paymentID)),
	}

	payment := verify(gw, arrangingOrder(50000, "order_1"), metadata)
	assert.Equal(t, model.PaymentSettled, payment.State)
}

func TestVerifier_SignatureMismatch(t *testing.T) {
	gw := gateway.NewFake()
	paymentID := gw.Pay("order_1", 50000, gateway.PaymentStatusCaptured)
	valid := signature.Sign(testKeySecret, signature.PaymentPayload("order_1", paymentID))

	tests := []struct {
		name     string
		order    *model.Order
		metadata map[string]any
	}{
		{"wrong secret", arrangingOrder(50000, "order_1"),
			claimMetadata("order_1", paymentID, signature.Sign("other-secret", signature.PaymentPayload("order_1", paymentID)))},
		{"signed for another payment", arrangingOrder(50000, "order_1"),
			claimMetadata("order_1", paymentID, signature.Sign(testKeySecret, signature.PaymentPayload("order_1", "pay_other")))},
		{"signed for another order", arrangingOrder(50000, "order_1"),
			claimMetadata("order_1", paymentID, signature.Sign(testKeySecret, signature.PaymentPayload("order_2", paymentID)))},
		{"client claims a different order id", arrangingOrder(50000, "order_2"), claimMetadata("order_1", paymentID, valid)},
		{"empty signature", arrangingOrder(50000, "order_1"), claimMetadata("order_1", paymentID, "")},
		{"no correlation id", arrangingOrder(50000, ""), claimMetadata("order_1", paymentID, valid)},
		{"no metadata", arrangingOrder(50000, "order_1"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := verify(gw, tt.order, tt.metadata)
			assert.Equal(t, model.PaymentDeclined, payment.State)
			require.NotNil(t, payment.ErrorMessage)
			assert.Equal(t, MessageSignatureMismatch, *payment.ErrorMessage)
			assert.True(t, errors.Is(DeclineReason(payment), ErrSignatureMismatch))
		})
	}
}

func TestVerifier_NoCapturedPayment(t *testing.T) {
	gw := gateway.NewFake()
	gw.Pay("order_1", 50000, "authorized")

	payment := verify(gw, arrangingOrder(50000, "order_1"), signedMetadata("order_1", "pay_9"))

	assert.Equal(t, model.PaymentDeclined, payment.State)
	assert.Equal(t, MessageNoPaymentFound, *payment.ErrorMessage)
	assert.True(t, errors.Is(DeclineReason(payment), ErrNotFoundUpstream))
}

func TestVerifier_AmountMismatch(t *testing.T) {
	for _, captured := range []int64{1, 49999, 50001, 5000000} {
		gw := gateway.NewFake()
		paymentID := gw.Pay("order_1", captured, gateway.PaymentStatusCaptured)

		payment := verify(gw, arrangingOrder(50000, "order_1"), signedMetadata("order_1", paymentID))

		assert.Equal(t, model.PaymentDeclined, payment.State, "captured %d", captured)
		assert.Equal(t, MessageAmountMismatch, *payment.ErrorMessage)
		assert.True(t, errors.Is(DeclineReason(payment), ErrAmountMismatch))
	}
}

func TestVerifier_GatewayFailureIsError(t *testing.T) {
	gw := gateway.NewFake()
	gw.CaptureErr = errors.Wrap(gateway.ErrTransport, "i/o timeout")

	payment := verify(gw, arrangingOrder(50000, "order_1"), signedMetadata("order_1", "pay_1"))

	assert.Equal(t, model.PaymentError, payment.State)
	assert.Contains(t, *payment.ErrorMessage, "i/o timeout")
	assert.Empty(t, payment.TransactionID)
	assert.Nil(t, DeclineReason(payment))
}

type panickingGateway struct {
	gateway.Gateway
}

func (panickingGateway) GetCapturedAmount(context.Context, config.Credentials, string) (int64, bool, error) {
	panic("unexpected payload")
}

func TestVerifier_PanicIsError(t *testing.T) {
	payment := verify(panickingGateway{}, arrangingOrder(50000, "order_1"), signedMetadata("order_1", "pay_1"))

	assert.Equal(t, model.PaymentError, payment.State)
	assert.Equal(t, "unexpected payload", *payment.ErrorMessage)
}
