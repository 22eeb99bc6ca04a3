package reference

import (
	"context"
	"strings"

	"github.com/smallbiznis/paycore/internal/reference/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) ListCountries(ctx context.Context) ([]domain.Country, error) {
	var countries []domain.Country
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, name FROM countries ORDER BY name`).
		Scan(&countries).Error
	if err != nil {
		return nil, err
	}
	return countries, nil
}

func (r *repository) FindCountry(ctx context.Context, code string) (*domain.Country, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return nil, domain.ErrCountryNotFound
	}

	var country domain.Country
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, name FROM countries WHERE code = ? LIMIT 1`, code).
		Scan(&country).Error
	if err != nil {
		return nil, err
	}
	if country.Code == "" {
		return nil, domain.ErrCountryNotFound
	}
	return &country, nil
}
