// Package reconciliation resolves charges whose gateway outcome was unknown
// by asking the gateway what happened to the attempt.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultGracePeriod   = 15 * time.Minute
	defaultNotFoundAfter = 24 * time.Hour
	defaultBatchSize     = 100

	notFoundMessage = "no gateway transaction found"
)

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Registry   *adapters.Registry
	Recorder   *recorder.Recorder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Summary counts what one sweep did.
type Summary struct {
	Scanned int
	Settled int
	Failed  int
	Pending int
	Manual  int
	Errors  int
}

type Service struct {
	log           *zap.Logger
	registry      *adapters.Registry
	recorder      *recorder.Recorder
	clock         clock.Clock
	metrics       *obsmetrics.Metrics
	gracePeriod   time.Duration
	notFoundAfter time.Duration
	batchSize     int
	timeout       time.Duration
}

func NewService(p Params) *Service {
	cfg := p.Config.Payment
	s := &Service{
		log:           p.Log.Named("payment.reconciliation"),
		registry:      p.Registry,
		recorder:      p.Recorder,
		clock:         p.Clock,
		metrics:       p.ObsMetrics,
		gracePeriod:   cfg.ReconcileGracePeriod,
		notFoundAfter: cfg.ReconcileNotFoundAfter,
		batchSize:     cfg.ReconcileBatchSize,
		timeout:       cfg.GatewayTimeout,
	}
	if s.gracePeriod <= 0 {
		s.gracePeriod = defaultGracePeriod
	}
	if s.notFoundAfter <= 0 {
		s.notFoundAfter = defaultNotFoundAfter
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.timeout <= 0 {
		s.timeout = adapters.DefaultTimeout
	}
	return s
}

// Sweep resolves one batch of ambiguous sales. Each resolution is a new
// record pointing at the ambiguous one, which stays untouched.
func (s *Service) Sweep(ctx context.Context) (Summary, error) {
	now := s.clock.Now()
	items, err := s.recorder.ListUnresolvedAmbiguous(ctx, paymentdomain.DirectionSale, now.Add(-s.gracePeriod), s.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("list ambiguous records: %w", err)
	}

	var summary Summary
	for i := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++
		item := items[i]
		log := s.log.With(
			zap.Stringer("record_id", item.ID),
			zap.String("gateway", item.Gateway),
			zap.String("attempt_id", item.AttemptID),
		)

		adapter, err := s.registry.Adapter(item.Gateway)
		if err != nil {
			log.Warn("gateway no longer configured, leaving for manual review")
			summary.Manual++
			continue
		}
		finder, ok := adapter.(paymentdomain.SaleFinder)
		if !ok {
			summary.Manual++
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		found, err := finder.FindSale(callCtx, paymentdomain.SaleQuery{
			BasketReference: item.BasketReference,
			AttemptID:       item.AttemptID,
			AmountMinor:     item.AmountMinor,
			Currency:        item.Currency,
			Since:           item.CreatedAt,
		})
		cancel()
		if err != nil {
			log.Warn("gateway lookup failed", zap.Error(err))
			summary.Errors++
			continue
		}

		if found == nil && now.Sub(item.CreatedAt) < s.notFoundAfter {
			summary.Pending++
			continue
		}

		resolution := s.resolution(item, found)
		if _, err := s.recorder.Record(ctx, resolution); err != nil {
			// A concurrent sweep may have resolved it first.
			if !db.IsDuplicateKeyErr(err) {
				log.Error("failed to record resolution", zap.Error(err))
				summary.Errors++
			}
			continue
		}
		s.metrics.RecordReconciliation(ctx, item.Gateway, resolution.Outcome)
		if resolution.Outcome == paymentdomain.OutcomeSuccess {
			summary.Settled++
		} else {
			summary.Failed++
		}
		log.Info("ambiguous sale resolved", zap.String("outcome", resolution.Outcome))
	}
	return summary, nil
}

func (s *Service) resolution(item paymentdomain.ProcessorResponseRecord, found *paymentdomain.GatewayResult) *paymentdomain.ProcessorResponseRecord {
	resolves := item.ID
	record := &paymentdomain.ProcessorResponseRecord{
		AttemptID:        item.AttemptID,
		BasketReference:  item.BasketReference,
		ResolvesRecordID: &resolves,
		Gateway:          item.Gateway,
		Direction:        item.Direction,
		Outcome:          paymentdomain.OutcomeFailed,
		AmountMinor:      item.AmountMinor,
		Currency:         item.Currency,
		RequestSummary: datatypes.JSONMap{
			"source":        "reconciliation",
			"resolution_of": item.ID.String(),
		},
	}
	if found == nil {
		message := notFoundMessage
		record.FailureMessage = &message
		return record
	}

	record.RawPayload = found.RawPayload
	if found.TransactionID != "" {
		transactionID := found.TransactionID
		record.TransactionID = &transactionID
	}
	if found.AmountMinor > 0 {
		record.AmountMinor = found.AmountMinor
	}
	if found.Success {
		record.Outcome = paymentdomain.OutcomeSuccess
		return record
	}
	message := found.FailureMessage
	if message == "" {
		message = "declined"
	}
	record.FailureMessage = &message
	return record
}
