// Package recorder persists every raw gateway exchange before the caller is
// given a verdict.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/audit/masking"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// sensitiveKeys never reach a request summary unmasked.
var sensitiveKeys = []string{"payment_token", "token", "nonce", "payer_email"}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Recorder struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) *Recorder {
	return &Recorder{
		db:      p.DB,
		log:     p.Log.Named("payment.recorder"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.ObsMetrics,
	}
}

// Record appends one exchange and returns its id. A failure here must fail
// the enclosing operation.
func (r *Recorder) Record(ctx context.Context, record *domain.ProcessorResponseRecord) (snowflake.ID, error) {
	if record == nil {
		return 0, domain.ErrInvalidRequest
	}
	record.Gateway = strings.TrimSpace(record.Gateway)
	if record.Gateway == "" || record.AttemptID == "" {
		return 0, domain.ErrInvalidRequest
	}
	switch record.Direction {
	case domain.DirectionSale, domain.DirectionRefund:
	default:
		return 0, domain.ErrInvalidRequest
	}
	switch record.Outcome {
	case domain.OutcomeSuccess, domain.OutcomeFailed, domain.OutcomeAmbiguous:
	default:
		return 0, domain.ErrInvalidRequest
	}

	record.ID = r.genID.Generate()
	record.CreatedAt = r.clock.Now().UTC()
	if len(record.RequestSummary) > 0 {
		record.RequestSummary = datatypes.JSONMap(masking.MaskFields(record.RequestSummary, sensitiveKeys...))
	}

	if err := r.repo.Append(ctx, r.db, record); err != nil {
		// The gateway may already have moved money; operators reconcile
		// from this line.
		ctxlogger.WithContext(ctx, r.log).Error("failed to record processor response",
			zap.String("gateway", record.Gateway),
			zap.String("direction", record.Direction),
			zap.String("outcome", record.Outcome),
			zap.String("attempt_id", record.AttemptID),
			zap.String("basket_reference", record.BasketReference),
			zap.String("transaction_id", deref(record.TransactionID)),
			zap.Int64("amount_minor", record.AmountMinor),
			zap.String("currency", record.Currency),
			zap.Error(err),
		)
		r.metrics.RecordAuditWriteFailure(ctx, record.Gateway, record.Direction)
		return 0, fmt.Errorf("record processor response: %w", err)
	}

	r.metrics.RecordAuditRecord(ctx, record.Gateway, record.Direction, record.Outcome)
	return record.ID, nil
}

// LookupSale returns the successful sale for a gateway transaction id.
func (r *Recorder) LookupSale(ctx context.Context, transactionID string) (*domain.SettledSale, error) {
	return r.repo.FindSettledSale(ctx, r.db, strings.TrimSpace(transactionID))
}

func (r *Recorder) RefundedAmount(ctx context.Context, transactionID string) (int64, error) {
	return r.repo.SumRefunded(ctx, r.db, strings.TrimSpace(transactionID))
}

// ListUnresolvedAmbiguous returns ambiguous records created before the
// cutoff that have no resolution record yet.
func (r *Recorder) ListUnresolvedAmbiguous(ctx context.Context, direction string, before time.Time, limit int) ([]domain.ProcessorResponseRecord, error) {
	return r.repo.ListUnresolvedAmbiguous(ctx, r.db, direction, before, limit)
}

func (r *Recorder) History(ctx context.Context, basketReference string) ([]domain.ProcessorResponseRecord, error) {
	return r.repo.ListByBasket(ctx, r.db, strings.TrimSpace(basketReference))
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
