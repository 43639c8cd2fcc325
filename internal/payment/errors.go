package payment

import (
	"github.com/pkg/errors"

	"payment-service/internal/model"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidOrderState   = errors.New("invalid order state")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrNotFoundUpstream    = errors.New("no payment found upstream")
	ErrGateway             = errors.New("gateway error")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInvalidPaymentState = errors.New("invalid payment state")
	ErrInvalidAmount       = errors.New("invalid amount")
)

type ErrorCode string

const (
	CodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	CodeInvalidOrderState   ErrorCode = "INVALID_ORDER_STATE"
	CodeGatewayError        ErrorCode = "GATEWAY_ERROR"
	CodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	CodeInvalidPaymentState ErrorCode = "INVALID_PAYMENT_STATE"
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
)

// Error messages recorded on declined payments.
const (
	MessageSignatureMismatch = "SIGNATURE MISMATCH"
	MessageNoPaymentFound    = "NO PAYMENT FOUND FOR GIVEN ORDER ID"
	MessageAmountMismatch    = "AMOUNT MISMATCH"
)

var declineMessages = map[error]string{
	ErrSignatureMismatch: MessageSignatureMismatch,
	ErrNotFoundUpstream:  MessageNoPaymentFound,
	ErrAmountMismatch:    MessageAmountMismatch,
}

// DeclineReason returns the sentinel behind a declined payment's error
// message, or nil when the payment was not declined by verification.
func DeclineReason(payment *model.Payment) error {
	if payment.State != model.PaymentDeclined || payment.ErrorMessage == nil {
		return nil
	}
	for reason, message := range declineMessages {
		if *payment.ErrorMessage == message {
			return reason
		}
	}
	return nil
}

// ResultError is an expected, caller-facing failure. Anything else returned
// alongside it is infrastructure or configuration trouble.
type ResultError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *ResultError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *ResultError) Unwrap() error {
	return e.Err
}

func newResultError(code ErrorCode, sentinel error, message string) *ResultError {
	return &ResultError{Code: code, Message: message, Err: sentinel}
}
