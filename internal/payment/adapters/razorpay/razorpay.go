// Package razorpay captures authorized Razorpay payments through the
// official razorpay-go client.
package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

var defaultCurrencies = []string{"INR"}

// paymentsAPI is the subset of the razorpay-go Payment resource in use.
type paymentsAPI interface {
	Capture(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "razorpay"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = f.Provider()
	}
	keyID, err := adapters.RequireString(name, cfg.Config, "key_id")
	if err != nil {
		return nil, err
	}
	keySecret, err := adapters.RequireString(name, cfg.Config, "key_secret")
	if err != nil {
		return nil, err
	}
	currencies, err := adapters.NewCurrencySet(name, cfg.Currencies, defaultCurrencies)
	if err != nil {
		return nil, err
	}

	client := rzp.NewClient(keyID, keySecret)
	return newAdapter(name, currencies, client.Payment), nil
}

func newAdapter(name string, currencies adapters.CurrencySet, payments paymentsAPI) *Adapter {
	return &Adapter{name: name, currencies: currencies, payments: payments}
}

// Adapter treats the payment token as a Razorpay payment id that the
// checkout has already authorized. A sale captures it.
type Adapter struct {
	name       string
	currencies adapters.CurrencySet
	payments   paymentsAPI
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) SupportsCurrency(currency string) bool {
	return a.currencies.Supports(currency)
}

func (a *Adapter) Sale(ctx context.Context, req paymentdomain.SaleRequest) (*paymentdomain.GatewayResult, error) {
	if !strings.HasPrefix(req.PaymentToken, "pay_") {
		return nil, fmt.Errorf("%w: %w: razorpay payment id expected", paymentdomain.ErrRequestNotSent, paymentdomain.ErrInvalidRequest)
	}
	data := map[string]interface{}{"currency": money.NormalizeCurrency(req.Currency)}

	payment, err := call(ctx, func() (map[string]interface{}, error) {
		return a.payments.Capture(req.PaymentToken, int(req.AmountMinor), data, nil)
	})
	raw := encode(payment)
	if err != nil {
		if declined(err) {
			return &paymentdomain.GatewayResult{
				TransactionID:  req.PaymentToken,
				Currency:       money.NormalizeCurrency(req.Currency),
				FailureMessage: failureMessage(err, payment),
				RawPayload:     raw,
			}, nil
		}
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: empty capture response", paymentdomain.ErrGatewayUnavailable)
	}

	// Capture does not expand card details; a failed lookup only loses the label.
	if detailed, fetchErr := call(ctx, func() (map[string]interface{}, error) {
		return a.payments.Fetch(req.PaymentToken, map[string]interface{}{"expand[]": "card"}, nil)
	}); fetchErr == nil && detailed != nil {
		for key, value := range detailed {
			if _, ok := payment[key]; !ok || key == "card" {
				payment[key] = value
			}
		}
	}
	return paymentResult(payment, raw, req.Currency), nil
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundCall) (*paymentdomain.GatewayResult, error) {
	data := map[string]interface{}{
		"receipt": req.AttemptID,
	}
	if req.OrderReference != "" {
		data["notes"] = map[string]interface{}{"order_reference": req.OrderReference}
	}

	refund, err := call(ctx, func() (map[string]interface{}, error) {
		return a.payments.Refund(req.OriginalTransactionID, int(req.AmountMinor), data, nil)
	})
	raw := encode(refund)
	if err != nil {
		if declined(err) {
			return &paymentdomain.GatewayResult{
				Currency:       money.NormalizeCurrency(req.Currency),
				FailureMessage: failureMessage(err, refund),
				RawPayload:     raw,
			}, nil
		}
		return nil, err
	}

	status, _ := refund["status"].(string)
	result := &paymentdomain.GatewayResult{
		TransactionID: stringField(refund, "id"),
		AmountMinor:   intField(refund, "amount"),
		Currency:      money.NormalizeCurrency(stringField(refund, "currency")),
		RawPayload:    raw,
	}
	if status == "failed" {
		result.FailureMessage = "refund failed"
		return result, nil
	}
	result.Success = true
	return result, nil
}

// call runs a blocking SDK request and stops waiting when ctx ends. The
// request itself cannot be cancelled, so a late return is an unknown outcome.
func call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}

	type response struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan response, 1)
	go func() {
		body, err := fn()
		done <- response{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil && !declined(r.err) {
			return r.body, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, r.err)
		}
		return r.body, r.err
	}
}

func declined(err error) bool {
	var badRequest *rzperrors.BadRequestError
	return errors.As(err, &badRequest)
}

func failureMessage(err error, body map[string]interface{}) string {
	if envelope, ok := body["error"].(map[string]interface{}); ok {
		if description, ok := envelope["description"].(string); ok && description != "" {
			return description
		}
	}
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return "razorpay_request_failed"
}

func paymentResult(payment map[string]interface{}, raw []byte, requestedCurrency string) *paymentdomain.GatewayResult {
	result := &paymentdomain.GatewayResult{
		TransactionID: stringField(payment, "id"),
		AmountMinor:   intField(payment, "amount"),
		Currency:      money.NormalizeCurrency(stringField(payment, "currency")),
		RawPayload:    raw,
	}
	if result.Currency == "" {
		result.Currency = money.NormalizeCurrency(requestedCurrency)
	}

	switch stringField(payment, "method") {
	case "upi":
		result.CardType = "UPI"
		result.CardLabel = stringField(payment, "vpa")
	case "card":
		if card, ok := payment["card"].(map[string]interface{}); ok {
			result.CardType = adapters.NormalizeCardType(stringField(card, "network"))
			result.CardLabel = stringField(card, "last4")
		}
	default:
		result.CardType = stringField(payment, "method")
		result.CardLabel = stringField(payment, "wallet")
	}

	status := stringField(payment, "status")
	if status == "captured" {
		result.Success = true
		return result
	}
	result.FailureMessage = stringField(payment, "error_description")
	if result.FailureMessage == "" {
		result.FailureMessage = "payment " + status
	}
	return result
}

// encode re-serializes the decoded SDK response; razorpay-go does not expose
// the body as received.
func encode(body map[string]interface{}) []byte {
	if body == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return raw
}

func stringField(body map[string]interface{}, key string) string {
	value, _ := body[key].(string)
	return value
}

func intField(body map[string]interface{}, key string) int64 {
	switch value := body[key].(type) {
	case float64:
		return int64(value)
	case int:
		return int64(value)
	case int64:
		return value
	case json.Number:
		n, _ := value.Int64()
		return n
	}
	return 0
}
