package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

var defaultCurrencies = []string{"USD", "EUR", "GBP", "AUD", "CAD", "JPY", "SGD"}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = f.Provider()
	}
	secret, err := adapters.RequireString(name, cfg.Config, "secret_key")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(secret, "sk_") && !strings.HasPrefix(secret, "rk_") {
		return nil, &paymentdomain.ConfigurationError{Gateway: name, Field: "secret_key"}
	}
	accountID, _ := adapters.ReadString(cfg.Config, "account_id")

	currencies, err := adapters.NewCurrencySet(name, cfg.Currencies, defaultCurrencies)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = adapters.NewHTTPClient(cfg.Timeout)
	}

	return &Adapter{
		name:       name,
		baseURL:    baseURL,
		apiKey:     secret,
		accountID:  accountID,
		currencies: currencies,
		client:     client,
	}, nil
}

type Adapter struct {
	name       string
	baseURL    string
	apiKey     string
	accountID  string
	currencies adapters.CurrencySet
	client     *http.Client
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) SupportsCurrency(currency string) bool {
	return a.currencies.Supports(currency)
}

// Sale creates a charge. The attempt id doubles as the Idempotency-Key so a
// transport-level resend cannot create a second charge.
func (a *Adapter) Sale(ctx context.Context, req paymentdomain.SaleRequest) (*paymentdomain.GatewayResult, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	values.Set("currency", strings.ToLower(req.Currency))
	values.Set("source", req.PaymentToken)
	values.Set("capture", strconv.FormatBool(req.SubmitForSettlement))
	values.Set("description", req.BasketReference)
	values.Set("metadata[basket_reference]", req.BasketReference)
	values.Set("metadata[attempt_id]", req.AttemptID)

	resp, raw, err := a.doRequest(ctx, http.MethodPost, "/v1/charges", values, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if err := outcomeError(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return declined(raw, req.Currency), nil
	}

	var c charge
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return nil, fmt.Errorf("%w: stripe_response_invalid", paymentdomain.ErrGatewayUnavailable)
	}
	return chargeResult(c, raw), nil
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundCall) (*paymentdomain.GatewayResult, error) {
	values := url.Values{}
	values.Set("charge", req.OriginalTransactionID)
	values.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	if req.OrderReference != "" {
		values.Set("metadata[order_reference]", req.OrderReference)
	}
	values.Set("metadata[attempt_id]", req.AttemptID)

	resp, raw, err := a.doRequest(ctx, http.MethodPost, "/v1/refunds", values, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if err := outcomeError(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return declined(raw, req.Currency), nil
	}

	var r refund
	if err := json.Unmarshal(raw, &r); err != nil || r.ID == "" {
		return nil, fmt.Errorf("%w: stripe_response_invalid", paymentdomain.ErrGatewayUnavailable)
	}
	result := &paymentdomain.GatewayResult{
		TransactionID: r.ID,
		AmountMinor:   r.Amount,
		Currency:      money.NormalizeCurrency(r.Currency),
		RawPayload:    raw,
	}
	switch r.Status {
	case "succeeded", "pending":
		result.Success = true
	default:
		result.FailureMessage = r.FailureReason
		if result.FailureMessage == "" {
			result.FailureMessage = "refund " + r.Status
		}
	}
	return result, nil
}

// LookupAddress reads the card billing details attached to a token.
func (a *Adapter) LookupAddress(ctx context.Context, tokenID string) (*paymentdomain.GatewayAddress, error) {
	resp, raw, err := a.doRequest(ctx, http.MethodGet, "/v1/tokens/"+url.PathEscape(tokenID), nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, adapters.StatusError(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: a.name, Reason: errorMessage(raw)}
	}

	var tok token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.Card == nil || tok.Card.AddressLine1 == "" {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: a.name, Reason: "token has no billing address"}
	}
	card := tok.Card
	return &paymentdomain.GatewayAddress{
		FullName:    card.Name,
		FirstName:   card.Name,
		Line1:       card.AddressLine1,
		Line2:       card.AddressLine2,
		City:        card.AddressCity,
		Postcode:    card.AddressZip,
		State:       card.AddressState,
		CountryCode: card.AddressCountry,
	}, nil
}

// FindSale searches charges by the attempt id stored in metadata.
func (a *Adapter) FindSale(ctx context.Context, q paymentdomain.SaleQuery) (*paymentdomain.GatewayResult, error) {
	query := fmt.Sprintf("metadata['attempt_id']:'%s'", strings.ReplaceAll(q.AttemptID, "'", ""))
	if q.AttemptID == "" {
		query = fmt.Sprintf("metadata['basket_reference']:'%s'", strings.ReplaceAll(q.BasketReference, "'", ""))
	}
	path := "/v1/charges/search?" + url.Values{"query": {query}}.Encode()

	resp, raw, err := a.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, adapters.StatusError(resp)
	}

	var found chargeSearch
	if err := json.Unmarshal(raw, &found); err != nil {
		return nil, fmt.Errorf("decode charge search: %w", err)
	}
	if len(found.Data) == 0 {
		return nil, nil
	}
	c := found.Data[0]
	encoded, _ := json.Marshal(c)
	return chargeResult(c, encoded), nil
}

func (a *Adapter) doRequest(ctx context.Context, method, path string, values url.Values, idempotencyKey string) (*http.Response, []byte, error) {
	var body *strings.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if a.accountID != "" {
		req.Header.Set("Stripe-Account", a.accountID)
	}
	return adapters.Do(a.client, req)
}

// outcomeError reports responses that do not settle the outcome. 429 is
// rejected before processing; 409 means a request with the same key is
// still in flight; 5xx may have been processed.
func outcomeError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", paymentdomain.ErrRequestNotSent)
	case resp.StatusCode == http.StatusConflict:
		return adapters.StatusError(resp)
	case resp.StatusCode >= http.StatusInternalServerError:
		return adapters.StatusError(resp)
	}
	return nil
}

func declined(raw []byte, currency string) *paymentdomain.GatewayResult {
	var envelope errorResponse
	_ = json.Unmarshal(raw, &envelope)
	return &paymentdomain.GatewayResult{
		Success:        false,
		TransactionID:  envelope.Error.Charge,
		Currency:       money.NormalizeCurrency(currency),
		FailureMessage: errorMessage(raw),
		RawPayload:     raw,
	}
}

func chargeResult(c charge, raw []byte) *paymentdomain.GatewayResult {
	result := &paymentdomain.GatewayResult{
		TransactionID: c.ID,
		AmountMinor:   c.Amount,
		Currency:      money.NormalizeCurrency(c.Currency),
		RawPayload:    raw,
	}
	if card := c.card(); card != nil {
		result.CardType = adapters.NormalizeCardType(card.Brand)
		result.CardLabel = card.Last4
	}
	if c.Status == "succeeded" && c.Paid {
		result.Success = true
		return result
	}
	result.FailureMessage = c.FailureMessage
	if result.FailureMessage == "" {
		result.FailureMessage = "charge " + c.Status
	}
	return result
}

func errorMessage(raw []byte) string {
	var envelope errorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if message := strings.TrimSpace(envelope.Error.Message); message != "" {
			return message
		}
	}
	return "stripe_request_failed"
}
