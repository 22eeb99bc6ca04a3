package adyen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

const (
	apiVersion  = "v71"
	testBaseURL = "https://checkout-test.adyen.com/" + apiVersion
)

var defaultCurrencies = []string{"EUR", "USD", "GBP", "AUD", "SEK", "NOK", "DKK"}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "adyen"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = f.Provider()
	}
	apiKey, err := adapters.RequireString(name, cfg.Config, "api_key")
	if err != nil {
		return nil, err
	}
	merchantAccount, err := adapters.RequireString(name, cfg.Config, "merchant_account")
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
		case "", "test", "sandbox":
			baseURL = testBaseURL
		case "live", "production":
			prefix, err := adapters.RequireString(name, cfg.Config, "live_url_prefix")
			if err != nil {
				return nil, err
			}
			baseURL = fmt.Sprintf("https://%s-checkout-live.adyenpayments.com/checkout/%s", prefix, apiVersion)
		default:
			return nil, &paymentdomain.ConfigurationError{Gateway: name, Field: "environment"}
		}
	}

	currencies, err := adapters.NewCurrencySet(name, cfg.Currencies, defaultCurrencies)
	if err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = adapters.NewHTTPClient(cfg.Timeout)
	}

	return &Adapter{
		name:            name,
		baseURL:         baseURL,
		apiKey:          apiKey,
		merchantAccount: merchantAccount,
		currencies:      currencies,
		client:          client,
	}, nil
}

// Adapter talks to the Adyen Checkout API. Adyen has no transaction search on
// that API, so ambiguous Adyen attempts are left for manual review.
type Adapter struct {
	name            string
	baseURL         string
	apiKey          string
	merchantAccount string
	currencies      adapters.CurrencySet
	client          *http.Client
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) SupportsCurrency(currency string) bool {
	return a.currencies.Supports(currency)
}

func (a *Adapter) Sale(ctx context.Context, req paymentdomain.SaleRequest) (*paymentdomain.GatewayResult, error) {
	method, err := paymentMethod(req.PaymentToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", paymentdomain.ErrRequestNotSent, paymentdomain.ErrInvalidRequest, err)
	}
	body := paymentRequest{
		Amount:             amount{Currency: req.Currency, Value: req.AmountMinor},
		Reference:          req.BasketReference,
		MerchantAccount:    a.merchantAccount,
		PaymentMethod:      method,
		ShopperInteraction: "Ecommerce",
	}
	if req.SubmitForSettlement {
		zero := 0
		body.CaptureDelayHours = &zero
	}

	resp, raw, err := a.post(ctx, "/payments", body, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, adapters.StatusError(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &paymentdomain.GatewayResult{
			Currency:       money.NormalizeCurrency(req.Currency),
			FailureMessage: errorMessage(raw),
			RawPayload:     raw,
		}, nil
	}

	var payment paymentResponse
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("%w: decode payment response: %v", paymentdomain.ErrGatewayUnavailable, err)
	}

	result := &paymentdomain.GatewayResult{
		TransactionID: payment.PSPReference,
		AmountMinor:   req.AmountMinor,
		Currency:      money.NormalizeCurrency(req.Currency),
		CardLabel:     payment.AdditionalData["cardSummary"],
		CardType:      adapters.NormalizeCardType(payment.brand()),
		RawPayload:    raw,
	}
	if payment.Amount != nil {
		result.AmountMinor = payment.Amount.Value
		result.Currency = money.NormalizeCurrency(payment.Amount.Currency)
	}

	switch payment.ResultCode {
	case "Authorised":
		result.Success = true
	case "Refused", "Cancelled", "Error":
		result.FailureMessage = payment.RefusalReason
		if result.FailureMessage == "" {
			result.FailureMessage = payment.ResultCode
		}
	default:
		// Received, Pending and redirect codes leave the outcome open.
		return nil, fmt.Errorf("%w: result code %s", paymentdomain.ErrGatewayUnavailable, payment.ResultCode)
	}
	return result, nil
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundCall) (*paymentdomain.GatewayResult, error) {
	reference := req.OrderReference
	if reference == "" {
		reference = req.AttemptID
	}
	body := refundRequest{
		Amount:          amount{Currency: req.Currency, Value: req.AmountMinor},
		MerchantAccount: a.merchantAccount,
		Reference:       reference,
	}

	path := "/payments/" + url.PathEscape(req.OriginalTransactionID) + "/refunds"
	resp, raw, err := a.post(ctx, path, body, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, adapters.StatusError(resp)
	}

	result := &paymentdomain.GatewayResult{
		AmountMinor: req.AmountMinor,
		Currency:    money.NormalizeCurrency(req.Currency),
		RawPayload:  raw,
	}
	if resp.StatusCode >= http.StatusBadRequest {
		result.FailureMessage = errorMessage(raw)
		return result, nil
	}

	var refund refundResponse
	if err := json.Unmarshal(raw, &refund); err != nil {
		return nil, fmt.Errorf("%w: decode refund response: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	result.TransactionID = refund.PSPReference
	if refund.Status == "received" {
		result.Success = true
	} else {
		result.FailureMessage = "refund " + refund.Status
	}
	return result, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload any, idempotencyKey string) (*http.Response, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}
	req.Header.Set("x-API-key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return adapters.Do(a.client, req)
}

// paymentMethod accepts either the JSON paymentMethod object produced by
// the Adyen web components or a stored payment method id.
func paymentMethod(token string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "{") {
		var method map[string]any
		if err := json.Unmarshal([]byte(token), &method); err != nil {
			return nil, fmt.Errorf("payment method: %w", err)
		}
		if _, ok := method["type"]; !ok {
			method["type"] = "scheme"
		}
		return method, nil
	}
	return map[string]any{
		"type":                  "scheme",
		"storedPaymentMethodId": token,
	}, nil
}

func errorMessage(raw []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if message := strings.TrimSpace(apiErr.Message); message != "" {
			return message
		}
	}
	return "adyen_request_failed"
}
