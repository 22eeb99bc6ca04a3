package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/config"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/internal/payment/tokenguard"
	referencedomain "github.com/smallbiznis/paycore/internal/reference/domain"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("paycore/payment")

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Registry   *adapters.Registry
	Recorder   *recorder.Recorder
	Guard      tokenguard.Guard
	Locker     lock.Locker
	References referencedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

const (
	outcomeNotSent  = "not_sent"
	refundLockWait  = 10 * time.Second
	refundLockSpace = "paycore:refund:"
	recordTimeout   = 5 * time.Second
)

func gatewayTimeout(cfg config.Config) time.Duration {
	if cfg.Payment.GatewayTimeout > 0 {
		return cfg.Payment.GatewayTimeout
	}
	return adapters.DefaultTimeout
}

func resolveGatewayName(name string, cfg config.Config) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(cfg.Payment.DefaultGateway))
	}
	return name
}

// callOutcome names the metric outcome for an adapter call. A request the
// adapter rejected locally never reached the gateway.
func callOutcome(result *paymentdomain.GatewayResult, err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrRequestNotSent), errors.Is(err, paymentdomain.ErrInvalidRequest):
		return outcomeNotSent
	case err != nil || result == nil:
		return paymentdomain.OutcomeAmbiguous
	case result.Success:
		return paymentdomain.OutcomeSuccess
	default:
		return paymentdomain.OutcomeFailed
	}
}

func stringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// persist writes the record once the gateway has answered, even when the
// caller's context is already done.
func persist(ctx context.Context, rec *recorder.Recorder, record *paymentdomain.ProcessorResponseRecord) (snowflake.ID, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return rec.Record(ctx, record)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
