package sweep

import (
	"context"
	"time"

	"app/internal/config"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// Run starts the pending sweep. On every tick it re-checks billing records
// stuck in pending against the payment provider and settles the ones that
// have reached a terminal state there.
func Run(ctx context.Context, logger zerolog.Logger, billingSvc *service.BillingService, cfg *config.Config) error {
	interval := time.Duration(cfg.SweepIntervalSec) * time.Second
	pendingAge := time.Duration(cfg.SweepPendingAgeSec) * time.Second
	logger.Info().Str("interval", interval.String()).Msg("Starting pending sweep")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down pending sweep")
			return nil
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-pendingAge)
		resolved, err := billingSvc.ResolveStuckPending(ctx, cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("Pending sweep failed")
			continue
		}
		if resolved > 0 {
			logger.Info().Int("resolved", resolved).Msg("Pending sweep resolved records")
		}
	}
}
