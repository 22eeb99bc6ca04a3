package domain

import (
	"context"
	"net/http"
	"time"
)

// GatewayAdapter is the capability every gateway variant provides.
// A definitive rejection is a result with Success=false and a nil error.
// Errors mean the outcome is unknown (ErrGatewayUnavailable) or that nothing
// reached the gateway (ErrRequestNotSent).
type GatewayAdapter interface {
	Name() string
	SupportsCurrency(currency string) bool
	Sale(ctx context.Context, req SaleRequest) (*GatewayResult, error)
	Refund(ctx context.Context, req RefundCall) (*GatewayResult, error)
}

// ClientTokenGenerator is implemented by gateways with client-side tokenization.
type ClientTokenGenerator interface {
	GenerateClientToken(ctx context.Context) (string, error)
}

// AddressLookup is implemented by gateways that keep billing details on a token.
type AddressLookup interface {
	LookupAddress(ctx context.Context, token string) (*GatewayAddress, error)
}

// SaleFinder lets reconciliation ask a gateway what happened to an attempt.
// A nil result with a nil error means the gateway has no such transaction.
type SaleFinder interface {
	FindSale(ctx context.Context, q SaleQuery) (*GatewayResult, error)
}

type SaleRequest struct {
	BasketReference     string
	AttemptID           string
	PaymentToken        string
	AmountMinor         int64
	Currency            string
	SubmitForSettlement bool
}

type RefundCall struct {
	OriginalTransactionID string
	AttemptID             string
	AmountMinor           int64
	Currency              string
	OrderReference        string
}

type SaleQuery struct {
	BasketReference string
	AttemptID       string
	AmountMinor     int64
	Currency        string
	Since           time.Time
}

// GatewayResult carries the interpreted fields alongside the raw payload
// exactly as received.
type GatewayResult struct {
	Success        bool
	TransactionID  string
	AmountMinor    int64
	Currency       string
	CardLabel      string
	CardType       string
	FailureMessage string
	RawPayload     []byte
}

type GatewayAddress struct {
	FullName    string
	FirstName   string
	LastName    string
	Line1       string
	Line2       string
	City        string
	Postcode    string
	State       string
	CountryCode string
}

// AdapterConfig is the validated input to a factory. Config holds the
// provider-specific credential keys.
type AdapterConfig struct {
	Name        string
	Environment string
	Currencies  []string
	BaseURL     string
	Timeout     time.Duration
	Config      map[string]any
	HTTPClient  *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}
