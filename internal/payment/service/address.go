package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	referencedomain "github.com/smallbiznis/paycore/internal/reference/domain"
	"github.com/smallbiznis/paycore/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// AddressResolver reads the billing address a gateway keeps on a payment token.
type AddressResolver struct {
	cfg        config.Config
	log        *zap.Logger
	registry   *adapters.Registry
	references referencedomain.Repository
	timeout    time.Duration
}

func NewAddressResolver(p Params) *AddressResolver {
	return &AddressResolver{
		cfg:        p.Config,
		log:        p.Log.Named("payment.address"),
		registry:   p.Registry,
		references: p.References,
		timeout:    gatewayTimeout(p.Config),
	}
}

// Resolve returns a fresh BillingAddress. An empty gateway name means the
// configured default gateway.
func (r *AddressResolver) Resolve(ctx context.Context, gatewayName, token string) (*paymentdomain.BillingAddress, error) {
	gatewayName = resolveGatewayName(gatewayName, r.cfg)
	adapter, err := r.registry.Adapter(gatewayName)
	if err != nil {
		return nil, err
	}
	lookup, ok := adapter.(paymentdomain.AddressLookup)
	if !ok {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: gatewayName, Reason: "gateway does not expose billing addresses"}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: gatewayName, Reason: "empty payment token"}
	}

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	found, err := lookup.LookupAddress(callCtx, token)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrAddressNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup address via %s: %w", gatewayName, err)
	}
	if found == nil {
		return nil, &paymentdomain.AddressNotFoundError{Gateway: gatewayName}
	}

	country, err := r.references.FindCountry(ctx, found.CountryCode)
	if err != nil {
		if errors.Is(err, referencedomain.ErrCountryNotFound) {
			ctxlogger.WithContext(ctx, r.log).Info("billing address has unknown country",
				zap.String("gateway", gatewayName),
				zap.String("country_code", found.CountryCode),
			)
			return nil, &paymentdomain.AddressNotFoundError{Gateway: gatewayName, Reason: "unknown country " + found.CountryCode}
		}
		return nil, fmt.Errorf("lookup country: %w", err)
	}

	firstName, lastName := found.FirstName, found.LastName
	if firstName == "" && lastName == "" {
		firstName, lastName = splitName(found.FullName)
	}
	return &paymentdomain.BillingAddress{
		FirstName:   firstName,
		LastName:    lastName,
		Line1:       found.Line1,
		Line2:       found.Line2,
		City:        found.City,
		Postcode:    found.Postcode,
		State:       found.State,
		CountryCode: country.Code,
		CountryName: country.Name,
	}, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
