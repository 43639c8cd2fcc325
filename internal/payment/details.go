package payment

// PaymentDetails are the gateway ids the client brings back from checkout.
type PaymentDetails struct {
	PaymentID      string
	Signature      string
	GatewayOrderID string
}

const (
	metadataPaymentDetails = "payment_details"
	metadataPaymentID      = "razorpay_payment_id"
	metadataSignature      = "razorpay_signature"
	metadataOrderID        = "razorpay_order_id"
)

// ParsePaymentDetails reads metadata.payment_details. Top-level keys are
// accepted when the nested object is absent.
func ParsePaymentDetails(metadata map[string]any) PaymentDetails {
	source := metadata
	if nested, ok := metadata[metadataPaymentDetails].(map[string]any); ok {
		source = nested
	}

	str := func(key string) string {
		value, _ := source[key].(string)
		return value
	}

	return PaymentDetails{
		PaymentID:      str(metadataPaymentID),
		Signature:      str(metadataSignature),
		GatewayOrderID: str(metadataOrderID),
	}
}
