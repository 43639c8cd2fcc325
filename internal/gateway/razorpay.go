package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"

	"payment-service/internal/config"
)

var (
	gatewayRequestSuccessCounter   = metrics.GetOrCreateCounter(`gateway_requests_total{result="success"}`)
	gatewayRequestRejectedCounter  = metrics.GetOrCreateCounter(`gateway_requests_total{result="rejected"}`)
	gatewayRequestTransportCounter = metrics.GetOrCreateCounter(`gateway_requests_total{result="transport_error"}`)

	gatewayRequestDurationHistogram = metrics.GetOrCreateHistogram(`gateway_request_duration_milliseconds`)
)

type Razorpay struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewRazorpay(cfg config.Gateway, logger *slog.Logger) *Razorpay {
	return &Razorpay{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		logger:  logger,
	}
}

func (r *Razorpay) CreateOrder(ctx context.Context, creds config.Credentials, req CreateOrderRequest) (*RemoteOrder, error) {
	if req.Amount <= 0 {
		return nil, errors.New("order amount must be positive")
	}

	var order RemoteOrder
	if _, err := r.do(ctx, creds, http.MethodPost, "/v1/orders", req, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, errors.New("gateway returned an order without id")
	}

	r.logger.InfoContext(ctx, "Gateway order created", "gatewayOrderId", order.ID, "amount", order.Amount)
	return &order, nil
}

func (r *Razorpay) GetCapturedAmount(ctx context.Context, creds config.Credentials, gatewayOrderID string) (int64, bool, error) {
	var collection paymentCollection
	path := "/v1/orders/" + url.PathEscape(gatewayOrderID) + "/payments"
	if _, err := r.do(ctx, creds, http.MethodGet, path, nil, &collection); err != nil {
		return 0, false, err
	}

	amount, found := CapturedAmount(collection.Items)
	return amount, found, nil
}

func (r *Razorpay) Refund(ctx context.Context, creds config.Credentials, paymentID string, amount int64) (*RefundResponse, error) {
	var refund RefundResponse
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	raw, err := r.do(ctx, creds, http.MethodPost, path, map[string]int64{"amount": amount}, &refund)
	if err != nil {
		return nil, err
	}
	refund.Raw = raw
	return &refund, nil
}

// do sends one request and decodes a 2xx body into out. The decoded body is
// also returned as a generic map for diagnostics.
func (r *Razorpay) do(ctx context.Context, creds config.Credentials, method, path string, body, out any) (map[string]any, error) {
	startTime := time.Now()
	defer func() {
		gatewayRequestDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal gateway request")
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "build gateway request")
	}
	req.SetBasicAuth(creds.KeyID, creds.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r.logger.DebugContext(ctx, "Sending gateway request", "method", method, "path", path)

	resp, err := r.client.Do(req)
	if err != nil {
		gatewayRequestTransportCounter.Inc()
		return nil, errors.Wrapf(ErrTransport, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		gatewayRequestTransportCounter.Inc()
		return nil, errors.Wrapf(ErrTransport, "read %s %s response: %v", method, path, err)
	}

	var raw map[string]any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &raw); err != nil {
			gatewayRequestRejectedCounter.Inc()
			return nil, errors.Wrapf(err, "decode gateway response (status %d)", resp.StatusCode)
		}
	}

	if resp.StatusCode >= 400 {
		gatewayRequestRejectedCounter.Inc()
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
		if detail, ok := raw["error"].(map[string]any); ok {
			apiErr.Code, _ = detail["code"].(string)
			apiErr.Description, _ = detail["description"].(string)
		}
		r.logger.WarnContext(ctx, "Gateway rejected request", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		return raw, apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, errors.Wrap(err, "decode gateway response")
		}
	}

	gatewayRequestSuccessCounter.Inc()
	return raw, nil
}
