package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository is the append-only store of processor response records.
// It deliberately has no update or delete operation.
type Repository interface {
	Append(ctx context.Context, db *gorm.DB, record *ProcessorResponseRecord) error
	FindSettledSale(ctx context.Context, db *gorm.DB, transactionID string) (*SettledSale, error)
	SumRefunded(ctx context.Context, db *gorm.DB, originalTransactionID string) (int64, error)
	ListUnresolvedAmbiguous(ctx context.Context, db *gorm.DB, direction string, before time.Time, limit int) ([]ProcessorResponseRecord, error)
	ListByBasket(ctx context.Context, db *gorm.DB, basketReference string) ([]ProcessorResponseRecord, error)
}

type TokenClaimRepository interface {
	// Insert fails with a duplicate-key error when the fingerprint exists.
	Insert(ctx context.Context, db *gorm.DB, claim *TokenClaim) error
	Delete(ctx context.Context, db *gorm.DB, fingerprint string) error
}
