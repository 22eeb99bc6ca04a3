package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/money"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/internal/payment/tokenguard"
	"github.com/smallbiznis/paycore/pkg/log/ctxlogger"
	"github.com/smallbiznis/paycore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Processor submits purchases to the gateway bound to a name.
type Processor struct {
	cfg      config.Config
	log      *zap.Logger
	registry *adapters.Registry
	recorder *recorder.Recorder
	guard    tokenguard.Guard
	metrics  *obsmetrics.Metrics
	timeout  time.Duration
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		cfg:      p.Config,
		log:      p.Log.Named("payment.processor"),
		registry: p.Registry,
		recorder: p.Recorder,
		guard:    p.Guard,
		metrics:  p.ObsMetrics,
		timeout:  gatewayTimeout(p.Config),
	}
}

// Charge runs one sale. Validation failures never reach the gateway and leave
// no record; every gateway exchange is recorded before a verdict is returned.
func (p *Processor) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.HandledProcessorResponse, error) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	gatewayName := resolveGatewayName(req.GatewayName, p.cfg)
	ctx = ctxlogger.ContextWithGateway(ctx, gatewayName)

	basket := strings.TrimSpace(req.BasketReference)
	token := strings.TrimSpace(req.PaymentToken)
	if basket == "" || token == "" || gatewayName == "" {
		return nil, paymentdomain.ErrInvalidRequest
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	adapter, err := p.registry.Adapter(gatewayName)
	if err != nil {
		return nil, err
	}
	currency := money.NormalizeCurrency(req.Amount.Currency)
	if !money.Known(currency) || !adapter.SupportsCurrency(currency) {
		return nil, &paymentdomain.UnsupportedCurrencyError{Gateway: gatewayName, Currency: currency}
	}
	amountMinor, err := req.Amount.ToMinor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidAmount, err)
	}
	if amountMinor <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	log := ctxlogger.WithContext(ctx, p.log).With(zap.String("basket_reference", basket))

	if err := p.guard.Claim(ctx, gatewayName, token); err != nil {
		if errors.Is(err, paymentdomain.ErrDuplicateSubmission) {
			p.metrics.RecordDuplicateSubmission(ctx, gatewayName)
			log.Warn("payment token already submitted")
		}
		return nil, err
	}

	sale := paymentdomain.SaleRequest{
		BasketReference:     basket,
		AttemptID:           ulid.Make().String(),
		PaymentToken:        token,
		AmountMinor:         amountMinor,
		Currency:            currency,
		SubmitForSettlement: true,
	}
	log = log.With(zap.String("attempt_id", sale.AttemptID))

	ctx, span := tracer.Start(ctx, "payment.charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.gateway", gatewayName),
		attribute.String("payment.currency", currency),
		attribute.String("payment.attempt_id", sale.AttemptID),
	)

	callCtx, cancel := withTimeout(ctx, p.timeout)
	started := time.Now()
	result, callErr := adapter.Sale(callCtx, sale)
	cancel()
	outcome := callOutcome(result, callErr)
	p.metrics.RecordGatewayCall(ctx, gatewayName, "sale", outcome, time.Since(started))
	span.SetAttributes(attribute.String("payment.outcome", outcome))

	if outcome == outcomeNotSent {
		if releaseErr := p.guard.Release(context.WithoutCancel(ctx), gatewayName, token); releaseErr != nil {
			log.Error("failed to release payment token", zap.Error(releaseErr))
		}
		span.SetStatus(codes.Error, "request not sent")
		return nil, fmt.Errorf("charge via %s: %w", gatewayName, callErr)
	}

	record := &paymentdomain.ProcessorResponseRecord{
		AttemptID:       sale.AttemptID,
		BasketReference: basket,
		Gateway:         gatewayName,
		Direction:       paymentdomain.DirectionSale,
		Outcome:         outcome,
		AmountMinor:     amountMinor,
		Currency:        currency,
		RequestSummary: datatypes.JSONMap{
			"payment_token":         token,
			"amount_minor":          amountMinor,
			"currency":              currency,
			"submit_for_settlement": sale.SubmitForSettlement,
			"correlation_id":        correlationID,
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
		recordID, err := persist(ctx, p.recorder, record)
		if err != nil {
			span.SetStatus(codes.Error, "record failed")
			return nil, err
		}
		log.Warn("charge outcome unknown", zap.Error(cause), zap.Stringer("record_id", recordID))
		span.RecordError(cause)
		span.SetStatus(codes.Error, "ambiguous outcome")
		return nil, &paymentdomain.AmbiguousOutcomeError{
			Gateway:   gatewayName,
			AttemptID: sale.AttemptID,
			RecordID:  recordID,
			Cause:     cause,
		}
	}

	record.TransactionID = stringPtr(result.TransactionID)
	record.RawPayload = result.RawPayload

	if !result.Success {
		record.FailureMessage = stringPtr(result.FailureMessage)
		recordID, err := persist(ctx, p.recorder, record)
		if err != nil {
			span.SetStatus(codes.Error, "record failed")
			return nil, err
		}
		log.Info("charge declined", zap.String("reason", result.FailureMessage))
		span.SetStatus(codes.Error, "declined")
		return nil, &paymentdomain.GatewayError{
			Gateway:  gatewayName,
			Message:  result.FailureMessage,
			RecordID: recordID,
		}
	}

	charged := amountMinor
	if result.AmountMinor > 0 && result.AmountMinor != amountMinor {
		log.Warn("gateway settled a different amount",
			zap.Int64("requested_minor", amountMinor),
			zap.Int64("settled_minor", result.AmountMinor),
		)
		charged = result.AmountMinor
	}
	if result.Currency != "" && money.NormalizeCurrency(result.Currency) != currency {
		log.Warn("gateway settled a different currency", zap.String("settled_currency", result.Currency))
	}
	record.AmountMinor = charged

	recordID, err := persist(ctx, p.recorder, record)
	if err != nil {
		span.SetStatus(codes.Error, "record failed")
		return nil, err
	}

	total, err := money.FromMinor(charged, currency)
	if err != nil {
		return nil, err
	}
	log.Info("charge settled",
		zap.String("transaction_id", result.TransactionID),
		zap.Stringer("record_id", recordID),
	)
	return &paymentdomain.HandledProcessorResponse{
		TransactionID: result.TransactionID,
		Total:         total,
		Currency:      currency,
		CardNumber:    result.CardLabel,
		CardType:      result.CardType,
		RecordID:      recordID,
	}, nil
}

// GenerateClientToken returns a client-side tokenization token for gateways
// that issue one.
func (p *Processor) GenerateClientToken(ctx context.Context, gatewayName string) (string, error) {
	gatewayName = resolveGatewayName(gatewayName, p.cfg)
	adapter, err := p.registry.Adapter(gatewayName)
	if err != nil {
		return "", err
	}
	generator, ok := adapter.(paymentdomain.ClientTokenGenerator)
	if !ok {
		return "", fmt.Errorf("%w: %s does not issue client tokens", paymentdomain.ErrCapabilityUnsupported, gatewayName)
	}

	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	started := time.Now()
	token, err := generator.GenerateClientToken(callCtx)
	outcome := paymentdomain.OutcomeSuccess
	if err != nil {
		outcome = paymentdomain.OutcomeFailed
	}
	p.metrics.RecordGatewayCall(ctx, gatewayName, "client_token", outcome, time.Since(started))
	if err != nil {
		return "", fmt.Errorf("generate client token via %s: %w", gatewayName, err)
	}
	return token, nil
}
