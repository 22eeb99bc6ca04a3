package payment

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/adapters"
	"github.com/smallbiznis/paycore/internal/payment/adapters/adyen"
	"github.com/smallbiznis/paycore/internal/payment/adapters/braintree"
	"github.com/smallbiznis/paycore/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/paycore/internal/payment/adapters/stripe"
	"github.com/smallbiznis/paycore/internal/payment/lock"
	"github.com/smallbiznis/paycore/internal/payment/recorder"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paycore/internal/payment/service"
	"github.com/smallbiznis/paycore/internal/payment/tokenguard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideTokenClaims),
	fx.Provide(NewRedisClient),
	fx.Provide(NewRegistry),
	fx.Provide(NewLocker),
	fx.Provide(tokenguard.Provide),
	fx.Provide(recorder.New),
	fx.Provide(paymentservice.NewProcessor),
	fx.Provide(paymentservice.NewRefundCoordinator),
	fx.Provide(paymentservice.NewAddressResolver),
)

// NewRegistry builds one adapter per configured gateway. A credential
// problem stops startup.
func NewRegistry(gateways config.Gateways, log *zap.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry(
		braintree.NewFactory(),
		stripe.NewFactory(),
		adyen.NewFactory(),
		razorpay.NewFactory(),
	)
	if err := registry.Configure(gateways); err != nil {
		return nil, err
	}
	log = log.Named("payment.registry")
	if len(gateways) == 0 {
		log.Warn("no payment gateways configured")
	}
	log.Info("payment gateways configured", zap.Strings("gateways", registry.Names()))
	return registry, nil
}

// NewRedisClient returns nil when REDIS_ADDR is unset; consumers fall back
// to database or in-process implementations.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewLocker(cfg config.Config, client *redis.Client) lock.Locker {
	if client == nil {
		return lock.NewLocalLocker()
	}
	ttl := cfg.Payment.RefundLockTTL
	if ttl <= 0 {
		ttl = 2 * adapters.DefaultTimeout
	}
	return lock.NewRedisLocker(client, ttl)
}

