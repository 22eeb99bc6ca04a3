package domain

import (
	"context"
	"errors"
)

var ErrCountryNotFound = errors.New("country_not_found")

type Repository interface {
	ListCountries(ctx context.Context) ([]Country, error)
	// FindCountry resolves an ISO-3166 alpha-2 code, case-insensitively.
	FindCountry(ctx context.Context, code string) (*Country, error)
}
