package braintree

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

const (
	sandboxURL    = "https://api.sandbox.braintreegateway.com:443"
	productionURL = "https://api.braintreegateway.com:443"
	apiVersion    = "6"
)

var settledStatuses = map[string]struct{}{
	"authorized":               {},
	"submitted_for_settlement": {},
	"settling":                 {},
	"settlement_pending":       {},
	"settled":                  {},
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "braintree"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	name := cfg.Name
	if name == "" {
		name = f.Provider()
	}
	merchantID, err := adapters.RequireString(name, cfg.Config, "merchant_id")
	if err != nil {
		return nil, err
	}
	publicKey, err := adapters.RequireString(name, cfg.Config, "public_key")
	if err != nil {
		return nil, err
	}
	privateKey, err := adapters.RequireString(name, cfg.Config, "private_key")
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
		case "production", "live":
			baseURL = productionURL
		case "", "sandbox", "development", "test":
			baseURL = sandboxURL
		default:
			return nil, &paymentdomain.ConfigurationError{Gateway: name, Field: "environment"}
		}
	}

	merchantAccounts := adapters.ReadStringMap(cfg.Config, "merchant_accounts")
	defaults := []string{"USD"}
	if len(merchantAccounts) > 0 {
		defaults = defaults[:0]
		for currency := range merchantAccounts {
			defaults = append(defaults, currency)
		}
	}
	currencies, err := adapters.NewCurrencySet(name, cfg.Currencies, defaults)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = adapters.NewHTTPClient(cfg.Timeout)
	}

	return &Adapter{
		name:             name,
		baseURL:          baseURL,
		merchantID:       merchantID,
		publicKey:        publicKey,
		privateKey:       privateKey,
		merchantAccounts: merchantAccounts,
		currencies:       currencies,
		client:           client,
	}, nil
}

type Adapter struct {
	name             string
	baseURL          string
	merchantID       string
	publicKey        string
	privateKey       string
	merchantAccounts map[string]string
	currencies       adapters.CurrencySet
	client           *http.Client
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) SupportsCurrency(currency string) bool {
	return a.currencies.Supports(currency)
}

func (a *Adapter) Sale(ctx context.Context, req paymentdomain.SaleRequest) (*paymentdomain.GatewayResult, error) {
	amount, err := money.FormatMinor(req.AmountMinor, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}

	body := saleRequest{
		Type:               "sale",
		Amount:             amount,
		OrderID:            req.BasketReference,
		PaymentMethodNonce: req.PaymentToken,
		MerchantAccountID:  a.merchantAccounts[money.NormalizeCurrency(req.Currency)],
		Options: saleOptions{
			SubmitForSettlement: xmlBool{Type: "boolean", Value: req.SubmitForSettlement},
		},
	}

	resp, raw, err := a.post(ctx, "/transactions", body)
	if err != nil {
		return nil, err
	}
	return a.interpret(resp, raw, req.Currency)
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundCall) (*paymentdomain.GatewayResult, error) {
	amount, err := money.FormatMinor(req.AmountMinor, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}

	body := refundRequest{Amount: amount, OrderID: req.OrderReference}
	path := "/transactions/" + url.PathEscape(req.OriginalTransactionID) + "/refund"
	resp, raw, err := a.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return a.interpret(resp, raw, req.Currency)
}

func (a *Adapter) GenerateClientToken(ctx context.Context) (string, error) {
	resp, raw, err := a.post(ctx, "/client_token", clientTokenRequest{Version: 2})
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", adapters.StatusError(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &paymentdomain.GatewayError{Gateway: a.name, Message: errorMessage(raw, resp.Status)}
	}
	var token clientTokenResponse
	if err := xml.Unmarshal(raw, &token); err != nil || strings.TrimSpace(token.Value) == "" {
		return "", fmt.Errorf("%w: invalid client token response", paymentdomain.ErrGatewayUnavailable)
	}
	return strings.TrimSpace(token.Value), nil
}

func (a *Adapter) LookupAddress(ctx context.Context, token string) (*paymentdomain.GatewayAddress, error) {
	resp, raw, err := a.do(ctx, http.MethodGet, "/payment_methods/any/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &paymentdomain.AddressNotFoundError{Gateway: a.name, Reason: "unknown or expired token"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, adapters.StatusError(resp)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &paymentdomain.AddressNotFoundError{Gateway: a.name, Reason: errorMessage(raw, resp.Status)}
	}

	var method paymentMethod
	if err := xml.Unmarshal(raw, &method); err != nil {
		return nil, fmt.Errorf("decode payment method: %w", err)
	}
	addr := method.BillingAddress
	if addr == nil {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: a.name, Reason: "token has no billing address"}
	}
	return &paymentdomain.GatewayAddress{
		FirstName:   addr.FirstName,
		LastName:    addr.LastName,
		Line1:       addr.StreetAddress,
		Line2:       addr.ExtendedAddress,
		City:        addr.Locality,
		Postcode:    addr.PostalCode,
		State:       addr.Region,
		CountryCode: addr.CountryCodeAlpha2,
	}, nil
}

// FindSale searches sales by order id, which carries the basket reference.
func (a *Adapter) FindSale(ctx context.Context, q paymentdomain.SaleQuery) (*paymentdomain.GatewayResult, error) {
	search := searchRequest{OrderID: searchIs{Is: q.BasketReference}}
	if !q.Since.IsZero() {
		search.CreatedAt = &searchRange{Min: q.Since.UTC().Add(-time.Minute).Format(time.RFC3339)}
	}
	resp, raw, err := a.post(ctx, "/transactions/advanced_search", search)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, adapters.StatusError(resp)
	}

	var found searchResponse
	if err := xml.Unmarshal(raw, &found); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	// Several attempts may share a basket; the newest matching sale wins.
	var (
		newest   *paymentdomain.GatewayResult
		newestAt time.Time
	)
	for _, txn := range found.Transactions {
		if txn.Type != "" && txn.Type != "sale" {
			continue
		}
		result := a.resultFromTransaction(txn, raw, q.Currency)
		if q.AmountMinor != 0 && result.AmountMinor != q.AmountMinor {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(txn.CreatedAt))
		if newest == nil || createdAt.After(newestAt) {
			newest, newestAt = result, createdAt
		}
	}
	return newest, nil
}

func (a *Adapter) interpret(resp *http.Response, raw []byte, currency string) (*paymentdomain.GatewayResult, error) {
	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var txn transaction
		if err := xml.Unmarshal(raw, &txn); err != nil || txn.ID == "" {
			return nil, fmt.Errorf("%w: unreadable transaction response", paymentdomain.ErrGatewayUnavailable)
		}
		return a.resultFromTransaction(txn, raw, currency), nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, adapters.StatusError(resp)
	default:
		result := &paymentdomain.GatewayResult{
			Success:        false,
			Currency:       money.NormalizeCurrency(currency),
			FailureMessage: errorMessage(raw, resp.Status),
			RawPayload:     raw,
		}
		var apiErr apiErrorResponse
		if err := xml.Unmarshal(raw, &apiErr); err == nil && apiErr.Transaction != nil {
			result.TransactionID = apiErr.Transaction.ID
		}
		return result, nil
	}
}

func (a *Adapter) resultFromTransaction(txn transaction, raw []byte, currency string) *paymentdomain.GatewayResult {
	if txn.CurrencyISOCode != "" {
		currency = txn.CurrencyISOCode
	}
	amountMinor, _ := money.ParseMajor(txn.Amount, currency)

	result := &paymentdomain.GatewayResult{
		TransactionID: txn.ID,
		AmountMinor:   amountMinor,
		Currency:      money.NormalizeCurrency(currency),
		RawPayload:    raw,
	}
	if txn.PaymentInstrumentType == "paypal_account" {
		result.CardType = adapters.CardTypePayPal
		result.CardLabel = txn.PayPal.PayerEmail
	} else {
		result.CardType = adapters.NormalizeCardType(txn.CreditCard.CardType)
		result.CardLabel = txn.CreditCard.MaskedNumber
		if result.CardLabel == "" {
			result.CardLabel = txn.CreditCard.Last4
		}
	}

	if _, ok := settledStatuses[txn.Status]; ok {
		result.Success = true
		return result
	}
	result.FailureMessage = txn.ProcessorResponseText
	if result.FailureMessage == "" {
		result.FailureMessage = txn.Status
	}
	return result
}

func (a *Adapter) post(ctx context.Context, path string, payload any) (*http.Response, []byte, error) {
	encoded, err := xml.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode request: %v", paymentdomain.ErrRequestNotSent, err)
	}
	return a.do(ctx, http.MethodPost, path, append([]byte(xml.Header), encoded...))
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) (*http.Response, []byte, error) {
	endpoint := a.baseURL + "/merchants/" + url.PathEscape(a.merchantID) + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrRequestNotSent, err)
	}
	req.SetBasicAuth(a.publicKey, a.privateKey)
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("X-ApiVersion", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	return adapters.Do(a.client, req)
}

func errorMessage(raw []byte, fallback string) string {
	var apiErr apiErrorResponse
	if err := xml.Unmarshal(raw, &apiErr); err == nil && strings.TrimSpace(apiErr.Message) != "" {
		return strings.TrimSpace(apiErr.Message)
	}
	return fallback
}
