package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/metrics"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// BreakerConfig configures BreakerQuery.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
}

// BreakerQuery guards a PaymentQuery with a circuit breaker. While open, calls
// fail immediately with gobreaker.ErrOpenState. It does not retry.
type BreakerQuery struct {
	inner PaymentQuery
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerQuery wraps inner.
func NewBreakerQuery(inner PaymentQuery, cfg BreakerConfig, logger *zap.Logger) *BreakerQuery {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "payment-query"
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				domain.Is(err, domain.ErrUnsupported) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment query breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if to == gobreaker.StateOpen {
				metrics.RevenueBreakerOpen.Set(1)
			} else {
				metrics.RevenueBreakerOpen.Set(0)
			}
		},
	}
	return &BreakerQuery{inner: inner, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// FetchPayments calls the wrapped query through the breaker.
func (b *BreakerQuery) FetchPayments(ctx context.Context, createdAfter, createdBefore time.Time) ([]PaymentRecord, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.FetchPayments(ctx, createdAfter, createdBefore)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]PaymentRecord)
	return records, nil
}

// SummarizeRevenue forwards to the wrapped query when it can summarize.
func (b *BreakerQuery) SummarizeRevenue(ctx context.Context, start, end time.Time) (RevenuePeriod, error) {
	s, ok := b.inner.(Summarizer)
	if !ok {
		return RevenuePeriod{}, domain.Unsupported("wrapped payment query cannot summarize")
	}
	out, err := b.cb.Execute(func() (any, error) {
		return s.SummarizeRevenue(ctx, start, end)
	})
	if err != nil {
		return RevenuePeriod{}, err
	}
	return out.(RevenuePeriod), nil
}

// State returns the breaker state.
func (b *BreakerQuery) State() gobreaker.State {
	return b.cb.State()
}
