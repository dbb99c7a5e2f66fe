package queue

import (
	"context"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

// runTx runs fn in a fresh transaction, starting over on conflicts and outages until the
// attempt budget is spent. fn must derive all of its results from what it reads.
func (s *Service) runTx(ctx context.Context, operation string, fn func(ctx context.Context, tx store.Tx) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.store.RunInTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if store.Transient(err) {
			s.logger.Debug("transaction retry",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxAttempts)),
	)
	return err
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxInterval = 20 * s.retryInterval
	return b
}
