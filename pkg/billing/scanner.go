package billing

import (
	"context"
	"log/slog"
	"time"
)

// RetryScanner is a background worker that retries dispatch for webhook
// events whose first attempt failed, on the same ticker-over-all-rows
// shape as the other background scanners in this service. Every tick retries
// each pending event again (fixed interval, no backoff). An event whose
// attempts have reached maxAttempts is no longer picked up, and no alert is
// raised for it.
type RetryScanner struct {
	ingestor    *Ingestor
	store       *Store
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewRetryScanner(ingestor *Ingestor, store *Store, interval time.Duration, logger *slog.Logger) *RetryScanner {
	return &RetryScanner{ingestor: ingestor, store: store, interval: interval, maxAttempts: maxFailureAttempts, logger: logger}
}

func (s *RetryScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *RetryScanner) tick(ctx context.Context) {
	events, err := s.store.PendingRetries(ctx, s.maxAttempts, 100)
	if err != nil {
		s.logger.Error("listing pending webhook retries", "error", err)
		return
	}
	for _, evt := range events {
		s.ingestor.dispatchLocked(ctx, evt)
	}
	if len(events) > 0 {
		s.logger.Info("webhook retry scan completed", "retried", len(events))
	}
}
