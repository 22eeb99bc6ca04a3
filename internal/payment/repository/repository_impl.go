package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, record *domain.ProcessorResponseRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO processor_response_records (
			id, attempt_id, basket_reference, order_reference, transaction_id,
			original_transaction_id, resolves_record_id, gateway, direction, outcome,
			amount_minor, currency, failure_message, raw_payload, request_summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AttemptID,
		record.BasketReference,
		record.OrderReference,
		record.TransactionID,
		record.OriginalTransactionID,
		record.ResolvesRecordID,
		record.Gateway,
		record.Direction,
		record.Outcome,
		record.AmountMinor,
		record.Currency,
		record.FailureMessage,
		record.RawPayload,
		record.RequestSummary,
		record.CreatedAt,
	).Error
}

func (r *repo) FindSettledSale(ctx context.Context, db *gorm.DB, transactionID string) (*domain.SettledSale, error) {
	var item domain.SettledSale
	err := db.WithContext(ctx).Raw(
		`SELECT id AS record_id, transaction_id, basket_reference, gateway, amount_minor, currency
		 FROM processor_response_records
		 WHERE transaction_id = ? AND direction = ? AND outcome = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		transactionID,
		domain.DirectionSale,
		domain.OutcomeSuccess,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.RecordID == 0 {
		return nil, nil
	}
	return &item, nil
}

// SumRefunded counts successful refunds and refunds whose outcome is still
// unknown, since the latter may have moved money.
func (r *repo) SumRefunded(ctx context.Context, db *gorm.DB, originalTransactionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_minor), 0)
		 FROM processor_response_records
		 WHERE original_transaction_id = ? AND direction = ? AND outcome IN (?, ?)`,
		originalTransactionID,
		domain.DirectionRefund,
		domain.OutcomeSuccess,
		domain.OutcomeAmbiguous,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListUnresolvedAmbiguous(ctx context.Context, db *gorm.DB, direction string, before time.Time, limit int) ([]domain.ProcessorResponseRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.ProcessorResponseRecord
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.attempt_id, p.basket_reference, p.order_reference, p.transaction_id,
			p.original_transaction_id, p.resolves_record_id, p.gateway, p.direction, p.outcome,
			p.amount_minor, p.currency, p.failure_message, p.raw_payload, p.request_summary, p.created_at
		 FROM processor_response_records p
		 WHERE p.outcome = ? AND p.direction = ? AND p.created_at < ?
		   AND NOT EXISTS (
			SELECT 1 FROM processor_response_records r WHERE r.resolves_record_id = p.id
		   )
		 ORDER BY p.created_at ASC, p.id ASC
		 LIMIT ?`,
		domain.OutcomeAmbiguous,
		direction,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByBasket(ctx context.Context, db *gorm.DB, basketReference string) ([]domain.ProcessorResponseRecord, error) {
	var items []domain.ProcessorResponseRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, attempt_id, basket_reference, order_reference, transaction_id,
			original_transaction_id, resolves_record_id, gateway, direction, outcome,
			amount_minor, currency, failure_message, raw_payload, request_summary, created_at
		 FROM processor_response_records
		 WHERE basket_reference = ?
		 ORDER BY id ASC`,
		basketReference,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

type tokenClaimRepo struct{}

func ProvideTokenClaims() domain.TokenClaimRepository {
	return &tokenClaimRepo{}
}

func (r *tokenClaimRepo) Insert(ctx context.Context, db *gorm.DB, claim *domain.TokenClaim) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_token_claims (fingerprint, gateway, claimed_at)
		 VALUES (?, ?, ?)`,
		claim.Fingerprint,
		claim.Gateway,
		claim.ClaimedAt,
	).Error
}

func (r *tokenClaimRepo) Delete(ctx context.Context, db *gorm.DB, fingerprint string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payment_token_claims WHERE fingerprint = ?`,
		fingerprint,
	).Error
}
