// Package tokenguard makes sure a payment token is presented to a gateway at
// most once, across retries and restarts.
package tokenguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Guard interface {
	// Claim fails with DuplicateSubmissionError when the token was claimed before.
	Claim(ctx context.Context, gateway, token string) error
	// Release frees a claim whose request never reached the gateway.
	Release(ctx context.Context, gateway, token string) error
}

// Fingerprint is the only form in which a token is stored.
func Fingerprint(gateway, token string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(gateway)) + ":" + token))
	return hex.EncodeToString(sum[:])
}

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.TokenClaimRepository
	Redis  *redis.Client `optional:"true"`
}

func Provide(p Params) (Guard, error) {
	switch strings.ToLower(strings.TrimSpace(p.Config.Payment.TokenGuardBackend)) {
	case "", config.TokenGuardDatabase:
		return NewDatabaseGuard(p.DB, p.Repo, p.Clock), nil
	case config.TokenGuardRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("%w: token guard backend redis requires REDIS_ADDR", domain.ErrInvalidConfig)
		}
		p.Log.Named("payment.tokenguard").Info("using redis token guard", zap.Duration("ttl", p.Config.Payment.TokenClaimTTL))
		return NewRedisGuard(p.Redis, p.Config.Payment.TokenClaimTTL, p.Clock), nil
	default:
		return nil, fmt.Errorf("%w: unknown token guard backend %q", domain.ErrInvalidConfig, p.Config.Payment.TokenGuardBackend)
	}
}

type DatabaseGuard struct {
	db    *gorm.DB
	repo  domain.TokenClaimRepository
	clock clock.Clock
}

func NewDatabaseGuard(conn *gorm.DB, repo domain.TokenClaimRepository, clk clock.Clock) *DatabaseGuard {
	return &DatabaseGuard{db: conn, repo: repo, clock: clk}
}

func (g *DatabaseGuard) Claim(ctx context.Context, gateway, token string) error {
	err := g.repo.Insert(ctx, g.db, &domain.TokenClaim{
		Fingerprint: Fingerprint(gateway, token),
		Gateway:     gateway,
		ClaimedAt:   g.clock.Now().UTC(),
	})
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		return &domain.DuplicateSubmissionError{Gateway: gateway}
	}
	return fmt.Errorf("claim payment token: %w", err)
}

func (g *DatabaseGuard) Release(ctx context.Context, gateway, token string) error {
	return g.repo.Delete(ctx, g.db, Fingerprint(gateway, token))
}

const redisKeyPrefix = "paycore:token:"

// RedisGuard keeps claims for ttl. Tokens are single use at the gateway too,
// so the ttl only needs to outlive the gateway's own token lifetime.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	clock  clock.Clock
}

func NewRedisGuard(client *redis.Client, ttl time.Duration, clk clock.Clock) *RedisGuard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl, clock: clk}
}

func redisKey(gateway, token string) string {
	return redisKeyPrefix + Fingerprint(gateway, token)
}

func (g *RedisGuard) Claim(ctx context.Context, gateway, token string) error {
	ok, err := g.client.SetNX(ctx, redisKey(gateway, token), g.clock.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim payment token: %w", err)
	}
	if !ok {
		return &domain.DuplicateSubmissionError{Gateway: gateway}
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, gateway, token string) error {
	return g.client.Del(ctx, redisKey(gateway, token)).Err()
}
