package braintree

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Name:       "braintree",
		BaseURL:    server.URL,
		Currencies: []string{"USD", "EUR"},
		Config: map[string]any{
			"merchant_id": "m1",
			"public_key":  "pub",
			"private_key": "priv",
			"merchant_accounts": map[string]any{
				"EUR": "acct_eur",
			},
		},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter), server
}

func TestSaleSettlesPayPalTransaction(t *testing.T) {
	responseBody := `<?xml version="1.0" encoding="UTF-8"?>
<transaction>
  <id>txn_1</id>
  <type>sale</type>
  <status>submitted_for_settlement</status>
  <amount>49.99</amount>
  <currency-iso-code>USD</currency-iso-code>
  <order-id>basket-1</order-id>
  <payment-instrument-type>paypal_account</payment-instrument-type>
  <paypal><payer-email>payer@example.com</payer-email></paypal>
</transaction>`

	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/m1/transactions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "pub" || pass != "priv" {
			t.Fatalf("expected basic auth with api keys")
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{
			"<amount>49.99</amount>",
			"<payment-method-nonce>nonce-1</payment-method-nonce>",
			"<order-id>basket-1</order-id>",
			`<submit-for-settlement type="boolean">true</submit-for-settlement>`,
		} {
			if !strings.Contains(string(body), want) {
				t.Fatalf("request body missing %s: %s", want, body)
			}
		}
		if strings.Contains(string(body), "merchant-account-id") {
			t.Fatalf("USD sale must use the default merchant account")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, responseBody)
	})

	result, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		BasketReference:     "basket-1",
		AttemptID:           "01HZX",
		PaymentToken:        "nonce-1",
		AmountMinor:         4999,
		Currency:            "USD",
		SubmitForSettlement: true,
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if !result.Success || result.TransactionID != "txn_1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.CardType != "PayPal" || result.CardLabel != "payer@example.com" {
		t.Fatalf("unexpected card fields %q %q", result.CardType, result.CardLabel)
	}
	if result.AmountMinor != 4999 || result.Currency != "USD" {
		t.Fatalf("unexpected amount %d %s", result.AmountMinor, result.Currency)
	}
	if string(result.RawPayload) != responseBody {
		t.Fatalf("raw payload must be stored as received")
	}
}

func TestSaleUsesCurrencyMerchantAccount(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<merchant-account-id>acct_eur</merchant-account-id>") {
			t.Fatalf("expected EUR merchant account: %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `<transaction><id>txn_eur</id><status>authorized</status><amount>10.00</amount><currency-iso-code>EUR</currency-iso-code><payment-instrument-type>credit_card</payment-instrument-type><credit-card><card-type>Visa</card-type><last-4>1111</last-4></credit-card></transaction>`)
	})

	result, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		BasketReference: "basket-eur",
		PaymentToken:    "nonce-eur",
		AmountMinor:     1000,
		Currency:        "EUR",
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if !result.Success || result.CardType != "visa" || result.CardLabel != "1111" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSaleDeclineKeepsMessageVerbatim(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `<api-error-response><errors></errors><message>Insufficient Funds</message><transaction><id>txn_declined</id><status>processor_declined</status></transaction></api-error-response>`)
	})

	result, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{
		BasketReference: "basket-2",
		PaymentToken:    "nonce-2",
		AmountMinor:     4999,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("a decline is not an error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected decline")
	}
	if result.FailureMessage != "Insufficient Funds" {
		t.Fatalf("unexpected message %q", result.FailureMessage)
	}
	if result.TransactionID != "txn_declined" {
		t.Fatalf("expected declined transaction id, got %q", result.TransactionID)
	}
}

func TestSaleServerErrorIsAmbiguous(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{PaymentToken: "n", AmountMinor: 1, Currency: "USD"})
	if !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
}

func TestSaleUnreachableGatewayIsNotSent(t *testing.T) {
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := adapter.Sale(context.Background(), paymentdomain.SaleRequest{PaymentToken: "n", AmountMinor: 1, Currency: "USD"})
	if !errors.Is(err, paymentdomain.ErrRequestNotSent) {
		t.Fatalf("expected request not sent, got %v", err)
	}
}

func TestRefundPostsToTransaction(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/m1/transactions/txn_1/refund" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<amount>20.00</amount>") {
			t.Fatalf("unexpected refund body %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `<transaction><id>txn_refund</id><type>credit</type><status>submitted_for_settlement</status><amount>20.00</amount><currency-iso-code>USD</currency-iso-code></transaction>`)
	})

	result, err := adapter.Refund(context.Background(), paymentdomain.RefundCall{
		OriginalTransactionID: "txn_1",
		AmountMinor:           2000,
		Currency:              "USD",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !result.Success || result.TransactionID != "txn_refund" || result.AmountMinor != 2000 {
		t.Fatalf("unexpected refund result %+v", result)
	}
}

func TestLookupAddress(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/merchants/m1/payment_methods/any/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `<credit-card><token>tok</token><billing-address><first-name>Ada</first-name><last-name>Lovelace</last-name><street-address>1 Main St</street-address><locality>London</locality><postal-code>N1</postal-code><country-code-alpha2>GB</country-code-alpha2></billing-address></credit-card>`)
	})

	addr, err := adapter.LookupAddress(context.Background(), "tok")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if addr.FirstName != "Ada" || addr.City != "London" || addr.CountryCode != "GB" {
		t.Fatalf("unexpected address %+v", addr)
	}

	if _, err := adapter.LookupAddress(context.Background(), "missing"); !errors.Is(err, paymentdomain.ErrAddressNotFound) {
		t.Fatalf("expected address not found, got %v", err)
	}
}

func TestFactoryRequiresCredentials(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Name:   "braintree",
		Config: map[string]any{"merchant_id": "m1", "public_key": "pub"},
	})
	var cfgErr *paymentdomain.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "private_key" {
		t.Fatalf("expected missing private_key, got %v", err)
	}
}

func TestSupportsCurrency(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	if !adapter.SupportsCurrency("usd") || adapter.SupportsCurrency("JPY") {
		t.Fatalf("unexpected currency support")
	}
}

func TestFindSalePrefersNewestAttempt(t *testing.T) {
	responseBody := `<?xml version="1.0" encoding="UTF-8"?>
<credit-card-transactions>
  <transaction>
    <id>txn_declined</id>
    <type>sale</type>
    <status>processor_declined</status>
    <amount>49.99</amount>
    <currency-iso-code>USD</currency-iso-code>
    <order-id>basket-9</order-id>
    <created-at>2026-03-01T10:00:00Z</created-at>
    <processor-response-text>Do Not Honor</processor-response-text>
  </transaction>
  <transaction>
    <id>txn_settled</id>
    <type>sale</type>
    <status>submitted_for_settlement</status>
    <amount>49.99</amount>
    <currency-iso-code>USD</currency-iso-code>
    <order-id>basket-9</order-id>
    <created-at>2026-03-01T10:02:00Z</created-at>
  </transaction>
  <transaction>
    <id>txn_other_amount</id>
    <type>sale</type>
    <status>submitted_for_settlement</status>
    <amount>10.00</amount>
    <currency-iso-code>USD</currency-iso-code>
    <order-id>basket-9</order-id>
    <created-at>2026-03-01T10:05:00Z</created-at>
  </transaction>
</credit-card-transactions>`

	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/m1/transactions/advanced_search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "basket-9") {
			t.Fatalf("expected basket in search, got %s", body)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(responseBody))
	})

	result, err := adapter.FindSale(context.Background(), paymentdomain.SaleQuery{
		BasketReference: "basket-9",
		AmountMinor:     4999,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if result == nil || result.TransactionID != "txn_settled" || !result.Success {
		t.Fatalf("expected newest settled sale, got %+v", result)
	}
}
