package reconciliation

import (
	"context"
	"time"

	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.reconciliation",
	fx.Provide(NewService),
	fx.Invoke(RegisterLoop),
)

// RegisterLoop runs Sweep on an interval for the lifetime of the app.
func RegisterLoop(lc fx.Lifecycle, cfg config.Config, svc *Service, log *zap.Logger) {
	if !cfg.Payment.ReconcileEnabled {
		return
	}
	interval := cfg.Payment.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log = log.Named("payment.reconciliation.loop")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						summary, err := svc.Sweep(ctx)
						if err != nil {
							log.Warn("reconciliation sweep failed", zap.Error(err))
							continue
						}
						if summary.Scanned > 0 {
							log.Info("reconciliation sweep finished",
								zap.Int("scanned", summary.Scanned),
								zap.Int("settled", summary.Settled),
								zap.Int("failed", summary.Failed),
								zap.Int("pending", summary.Pending),
								zap.Int("manual", summary.Manual),
								zap.Int("errors", summary.Errors),
							)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
