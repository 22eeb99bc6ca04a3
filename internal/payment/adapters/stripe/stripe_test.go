package stripe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Name:       "stripe",
		BaseURL:    server.URL,
		Currencies: []string{"USD", "JPY"},
		Config: map[string]any{
			"secret_key": "sk_test_123",
			"account_id": "acct_1",
		},
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return adapter.(*Adapter)
}

func TestSaleSendsIdempotencyKeyAndParsesCharge(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "attempt-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "acct_1", r.Header.Get("Stripe-Account"))

		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Equal(t, "1500", form.Get("amount"))
		assert.Equal(t, "jpy", form.Get("currency"))
		assert.Equal(t, "tok_visa", form.Get("source"))
		assert.Equal(t, "basket-9", form.Get("metadata[basket_reference]"))

		_, _ = io.WriteString(w, `{"id":"ch_1","amount":1500,"currency":"jpy","status":"succeeded","paid":true,
			"payment_method_details":{"card":{"brand":"amex","last4":"0005"}}}`)
	})

	result, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		BasketReference:     "basket-9",
		AttemptID:           "attempt-1",
		PaymentToken:        "tok_visa",
		AmountMinor:         1500,
		Currency:            "JPY",
		SubmitForSettlement: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ch_1", result.TransactionID)
	assert.Equal(t, int64(1500), result.AmountMinor)
	assert.Equal(t, "JPY", result.Currency)
	assert.Equal(t, "american_express", result.CardType)
	assert.Equal(t, "0005", result.CardLabel)
	assert.NotEmpty(t, result.RawPayload)
}

func TestSaleCardErrorIsDecline(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.","charge":"ch_declined"}}`)
	})

	result, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		AttemptID: "a", PaymentToken: "tok", AmountMinor: 100, Currency: "USD",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Your card was declined.", result.FailureMessage)
	assert.Equal(t, "ch_declined", result.TransactionID)
}

func TestSaleServerErrorIsAmbiguous(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		AttemptID: "a", PaymentToken: "tok", AmountMinor: 100, Currency: "USD",
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrGatewayUnavailable))
}

func TestSaleRateLimitedWasNotProcessed(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		AttemptID: "a", PaymentToken: "tok", AmountMinor: 100, Currency: "USD",
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrRequestNotSent))
}

func TestRefundPendingCountsAsAccepted(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		_ = r.ParseForm()
		assert.Equal(t, "ch_1", r.PostForm.Get("charge"))
		assert.Equal(t, "500", r.PostForm.Get("amount"))
		_, _ = io.WriteString(w, `{"id":"re_1","amount":500,"currency":"usd","status":"pending","charge":"ch_1"}`)
	})

	result, err := adapter.Refund(context.Background(), paymentdomain.RefundCall{
		OriginalTransactionID: "ch_1",
		AttemptID:             "attempt-r",
		AmountMinor:           500,
		Currency:              "USD",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "re_1", result.TransactionID)
}

func TestLookupAddressReadsTokenCard(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tokens/tok_ok":
			_, _ = io.WriteString(w, `{"id":"tok_ok","card":{"name":"Ada Lovelace","address_line1":"1 Main St",
				"address_city":"London","address_zip":"N1 9GU","address_country":"GB"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"No such token: 'tok_missing'"}}`)
		}
	})

	address, err := adapter.LookupAddress(context.Background(), "tok_ok")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", address.FullName)
	assert.Equal(t, "1 Main St", address.Line1)
	assert.Equal(t, "GB", address.CountryCode)

	_, err = adapter.LookupAddress(context.Background(), "tok_missing")
	var notFound *paymentdomain.AddressNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "No such token: 'tok_missing'", notFound.Reason)
}

func TestFindSaleByAttemptID(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges/search", r.URL.Path)
		switch r.URL.Query().Get("query") {
		case "metadata['attempt_id']:'attempt-1'":
			_, _ = io.WriteString(w, `{"data":[{"id":"ch_1","amount":100,"currency":"usd","status":"succeeded","paid":true}]}`)
		default:
			_, _ = io.WriteString(w, `{"data":[]}`)
		}
	})

	found, err := adapter.FindSale(context.Background(), paymentdomain.SaleQuery{AttemptID: "attempt-1"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Success)
	assert.Equal(t, "ch_1", found.TransactionID)

	missing, err := adapter.FindSale(context.Background(), paymentdomain.SaleQuery{AttemptID: "attempt-2"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFactoryRejectsMissingSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Name: "stripe", Config: map[string]any{}})
	var cfgErr *paymentdomain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "secret_key", cfgErr.Field)

	_, err = NewFactory().NewAdapter(paymentdomain.AdapterConfig{Name: "stripe", Config: map[string]any{"secret_key": "pk_test_1"}})
	assert.True(t, errors.Is(err, paymentdomain.ErrInvalidConfig))
}
