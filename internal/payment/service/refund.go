package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/paycore/internal/money"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/pkg/log/ctxlogger"
	"github.com/smallbiznis/paycore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// RefundCoordinator credits settled sales through the gateway that took them.
type RefundCoordinator struct {
	log      *zap.Logger
	registry *adapters.Registry
	recorder *recorder.Recorder
	locker   lock.Locker
	metrics  *obsmetrics.Metrics
	timeout  time.Duration
}

func NewRefundCoordinator(p Params) *RefundCoordinator {
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &RefundCoordinator{
		log:      p.Log.Named("payment.refund"),
		registry: p.Registry,
		recorder: p.Recorder,
		locker:   locker,
		metrics:  p.ObsMetrics,
		timeout:  gatewayTimeout(p.Config),
	}
}

// Credit refunds part or all of a settled sale. The sum of refunds that
// succeeded or are still unresolved never exceeds the settled amount.
func (c *RefundCoordinator) Credit(ctx context.Context, req paymentdomain.RefundRequest) (*paymentdomain.RefundResult, error) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	transactionID := strings.TrimSpace(req.OriginalTransactionID)
	if transactionID == "" {
		return nil, paymentdomain.ErrInvalidRequest
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	sale, err := c.recorder.LookupSale(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("lookup sale: %w", err)
	}
	if sale == nil {
		return nil, &paymentdomain.UnknownTransactionError{TransactionID: transactionID}
	}
	ctx = ctxlogger.ContextWithGateway(ctx, sale.Gateway)
	log := ctxlogger.WithContext(ctx, c.log).With(zap.String("original_transaction_id", transactionID))

	currency := money.NormalizeCurrency(req.Amount.Currency)
	if currency != sale.Currency {
		return nil, fmt.Errorf("%w: refund in %s for a sale in %s", paymentdomain.ErrCurrencyMismatch, currency, sale.Currency)
	}
	amountMinor, err := req.Amount.ToMinor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidAmount, err)
	}
	if amountMinor <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	adapter, err := c.registry.Adapter(sale.Gateway)
	if err != nil {
		return nil, err
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, refundLockWait)
	release, err := c.locker.Acquire(lockCtx, refundLockSpace+transactionID)
	cancelLock()
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: %s", paymentdomain.ErrRefundInProgress, transactionID)
		}
		return nil, fmt.Errorf("acquire refund lock: %w", err)
	}
	defer release()

	refunded, err := c.recorder.RefundedAmount(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("sum refunds: %w", err)
	}
	if refunded+amountMinor > sale.AmountMinor {
		c.metrics.RecordRefundRejected(ctx, sale.Gateway, "exceeds_original")
		requested, _ := money.FromMinor(amountMinor, currency)
		refundable, _ := money.FromMinor(sale.AmountMinor-refunded, currency)
		return nil, &paymentdomain.RefundExceedsOriginalError{
			TransactionID: transactionID,
			Requested:     requested,
			Refundable:    refundable,
		}
	}

	call := paymentdomain.RefundCall{
		OriginalTransactionID: transactionID,
		AttemptID:             ulid.Make().String(),
		AmountMinor:           amountMinor,
		Currency:              currency,
		OrderReference:        strings.TrimSpace(req.OrderReference),
	}
	log = log.With(zap.String("attempt_id", call.AttemptID))

	ctx, span := tracer.Start(ctx, "payment.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.gateway", sale.Gateway),
		attribute.String("payment.currency", currency),
		attribute.String("payment.attempt_id", call.AttemptID),
	)

	callCtx, cancel := withTimeout(ctx, c.timeout)
	started := time.Now()
	result, callErr := adapter.Refund(callCtx, call)
	cancel()
	outcome := callOutcome(result, callErr)
	c.metrics.RecordGatewayCall(ctx, sale.Gateway, "refund", outcome, time.Since(started))
	span.SetAttributes(attribute.String("payment.outcome", outcome))

	if outcome == outcomeNotSent {
		span.SetStatus(codes.Error, "request not sent")
		return nil, fmt.Errorf("refund via %s: %w", sale.Gateway, callErr)
	}

	record := &paymentdomain.ProcessorResponseRecord{
		AttemptID:             call.AttemptID,
		BasketReference:       sale.BasketReference,
		OrderReference:        stringPtr(call.OrderReference),
		OriginalTransactionID: stringPtr(transactionID),
		Gateway:               sale.Gateway,
		Direction:             paymentdomain.DirectionRefund,
		Outcome:               outcome,
		AmountMinor:           amountMinor,
		Currency:              currency,
		RequestSummary: datatypes.JSONMap{
			"original_transaction_id": transactionID,
			"amount_minor":            amountMinor,
			"currency":                currency,
			"correlation_id":          correlationID,
		},
	}

	if outcome == paymentdomain.OutcomeAmbiguous {
		cause := callErr
		if cause == nil {
			cause = fmt.Errorf("%w: empty gateway result", paymentdomain.ErrGatewayUnavailable)
		}
		record.FailureMessage = stringPtr(cause.Error())
		if result != nil {
			record.RawPayload = result.RawPayload
		}
		recordID, err := persist(ctx, c.recorder, record)
		if err != nil {
			span.SetStatus(codes.Error, "record failed")
			return nil, err
		}
		log.Warn("refund outcome unknown", zap.Error(cause), zap.Stringer("record_id", recordID))
		span.RecordError(cause)
		span.SetStatus(codes.Error, "ambiguous outcome")
		return nil, &paymentdomain.AmbiguousOutcomeError{
			Gateway:   sale.Gateway,
			AttemptID: call.AttemptID,
			RecordID:  recordID,
			Cause:     cause,
		}
	}

	record.TransactionID = stringPtr(result.TransactionID)
	record.RawPayload = result.RawPayload

	if !result.Success {
		record.FailureMessage = stringPtr(result.FailureMessage)
		recordID, err := persist(ctx, c.recorder, record)
		if err != nil {
			span.SetStatus(codes.Error, "record failed")
			return nil, err
		}
		log.Info("refund declined", zap.String("reason", result.FailureMessage))
		span.SetStatus(codes.Error, "declined")
		return nil, &paymentdomain.GatewayError{
			Gateway:  sale.Gateway,
			Message:  result.FailureMessage,
			RecordID: recordID,
		}
	}

	recordID, err := persist(ctx, c.recorder, record)
	if err != nil {
		span.SetStatus(codes.Error, "record failed")
		return nil, err
	}

	amount, err := money.FromMinor(amountMinor, currency)
	if err != nil {
		return nil, err
	}
	log.Info("refund accepted",
		zap.String("refund_transaction_id", result.TransactionID),
		zap.Stringer("record_id", recordID),
	)
	return &paymentdomain.RefundResult{
		RefundTransactionID: result.TransactionID,
		Amount:              amount,
		RecordID:            recordID,
	}, nil
}
