package billingrun

import (
	"context"
	"encoding/json"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is the queue payload requesting one billing run.
type Job struct {
	Period   string `json:"period,omitempty"`    // YYYY-MM, empty for previous month
	TenantID string `json:"tenant_id,omitempty"` // empty for all eligible tenants
	DryRun   bool   `json:"dry_run,omitempty"`
}

// Run starts the billing run orchestrator. It drains the billing queue one
// job at a time; a job that keeps failing moves to the dead-letter queue.
func Run(ctx context.Context, logger zerolog.Logger, client *pgmq.Client, billingSvc *service.BillingService, cfg *config.Config) error {
	queue := cfg.BillingQueueName
	logger.Info().Str("queue", queue).Msg("Starting billing run orchestrator")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down billing run orchestrator")
			return nil
		default:
		}
		msgs, err := client.ReadWithPoll(ctx, queue, cfg.BillingPollTimeoutSec, cfg.BillingPollMaxMsg)
		if err != nil {
			logger.Error().Err(err).Msg("Error reading billing queue")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		logger.Info().Int64("msg_id", msg.ID).Msgf("Received billing job: %s", string(msg.Data))

		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			logger.Error().Err(err).Msg("Failed to unmarshal billing job; deleting message")
			client.Delete(ctx, queue, []int64{msg.ID})
			continue
		}

		req, err := jobToRequest(job)
		if err != nil {
			// Malformed jobs cannot succeed on retry.
			logger.Error().Err(err).Msg("Invalid billing job; deleting message")
			client.Delete(ctx, queue, []int64{msg.ID})
			continue
		}

		backoff := time.Duration(cfg.BillingBackoffInitialSec) * time.Second
		var runErr error
		for attempt := 1; attempt <= cfg.BillingMaxRetries; attempt++ {
			start := time.Now()
			result, err := billingSvc.Run(ctx, req)
			if err == nil {
				logger.Info().
					Str("period", result.Period.String()).
					Int("succeeded", result.Succeeded).
					Int("failed", result.Failed).
					Int("skipped", result.Skipped).
					Str("duration", time.Since(start).String()).
					Msg("Billing job finished")
				runErr = nil
				break
			}
			runErr = err
			logger.Error().Err(err).Int("attempt", attempt).Msg("Billing job failed, retrying")
			time.Sleep(backoff)
			backoff *= 2
			if backoff > time.Duration(cfg.BillingBackoffMaxSec)*time.Second {
				backoff = time.Duration(cfg.BillingBackoffMaxSec) * time.Second
			}
		}
		if runErr != nil {
			dlq := cfg.BillingDeadLetterQueue
			if msgBytes, err := json.Marshal(job); err == nil {
				if err := client.Send(ctx, dlq, msgBytes); err != nil {
					logger.Error().Err(err).Str("dlq", dlq).Msg("Failed to send message to dead-letter queue")
				}
			}
			if err := client.Delete(ctx, queue, []int64{msg.ID}); err != nil {
				logger.Error().Err(err).Msg("Error deleting billing message after failure")
			}
			logger.Warn().
				Int("attempts", cfg.BillingMaxRetries).
				Err(runErr).
				Msg("Exhausted all billing retries; moving job to DLQ")
			continue
		}

		if err := client.Delete(ctx, queue, []int64{msg.ID}); err != nil {
			logger.Error().Err(err).Msg("Error deleting billing message")
		}
	}
}

func jobToRequest(job Job) (service.BillingRunRequest, error) {
	var req service.BillingRunRequest
	if job.Period != "" {
		period, err := model.ParseBillingPeriod(job.Period)
		if err != nil {
			return req, err
		}
		req.Period = period
	}
	if job.TenantID != "" {
		id, err := uuid.Parse(job.TenantID)
		if err != nil {
			return req, &model.ValidationError{Field: "tenant_id", Reason: "must be a valid UUID"}
		}
		req.TenantID = id
	}
	req.DryRun = job.DryRun
	return req, nil
}
