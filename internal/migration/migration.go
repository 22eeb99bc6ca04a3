package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	referencedomain "github.com/smallbiznis/paycore/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

var defaultCountries = []referencedomain.Country{
	{Code: "AU", Name: "Australia"},
	{Code: "CA", Name: "Canada"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "IN", Name: "India"},
	{Code: "JP", Name: "Japan"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "SG", Name: "Singapore"},
	{Code: "US", Name: "United States"},
}

// AutoMigrate creates the schema for dialects without embedded SQL
// (sqlite, mysql). The append-only guarantee there rests on the repository
// having no update or delete path.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&referencedomain.Country{},
		&paymentdomain.ProcessorResponseRecord{},
		&paymentdomain.TokenClaim{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	countries := append([]referencedomain.Country(nil), defaultCountries...)
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&countries).Error; err != nil {
		return fmt.Errorf("seed countries: %w", err)
	}
	return nil
}
