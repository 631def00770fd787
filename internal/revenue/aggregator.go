package revenue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/metrics"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

const (
	modeMemory = "memory"
	modeServer = "server"
)

// Aggregator computes RevenuePeriods from the payment collection. It holds no
// mutable state and may be shared between goroutines.
type Aggregator struct {
	query      PaymentQuery
	serverSide bool
	logger     *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithServerSideSummary lets the aggregator hand the reduction to the store
// when the query also implements Summarizer.
func WithServerSideSummary(enabled bool) Option {
	return func(a *Aggregator) { a.serverSide = enabled }
}

// NewAggregator creates an Aggregator over query.
func NewAggregator(query PaymentQuery, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{query: query, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeRevenue reduces all payments created in [start, end]. A store failure
// is returned marked as domain.ErrDataUnavailable and no partial result is
// produced. The call is never retried here.
func (a *Aggregator) ComputeRevenue(ctx context.Context, start, end time.Time) (RevenuePeriod, error) {
	if end.Before(start) {
		return RevenuePeriod{}, domain.NewValidationError("period start must not be after period end")
	}

	if a.serverSide {
		if s, ok := a.query.(Summarizer); ok {
			period, err := a.summarizeInStore(ctx, s, start, end)
			if !domain.Is(err, domain.ErrUnsupported) {
				return period, err
			}
			a.logger.Debug("store cannot summarize revenue, reducing in memory")
		}
	}

	timer := time.Now()
	records, err := a.query.FetchPayments(ctx, start, end)
	metrics.RevenueComputationDuration.WithLabelValues(modeMemory).Observe(time.Since(timer).Seconds())
	if err != nil {
		metrics.RevenueComputationsTotal.WithLabelValues(modeMemory, "unavailable").Inc()
		a.logger.Error("failed to fetch payments for revenue",
			zap.Time("period_start", start),
			zap.Time("period_end", end),
			zap.Error(err),
		)
		return RevenuePeriod{}, domain.Unavailable(err, "fetch payments")
	}

	period, skipped := Summarize(records, start, end)
	for _, s := range skipped {
		metrics.RevenueSkippedRecordsTotal.WithLabelValues(s.Reason).Inc()
		a.logger.Warn("skipping malformed payment record",
			zap.String("payment_id", s.ID),
			zap.String("reason", s.Reason),
			zap.Strings("missing", s.Missing),
			zap.Error(s.Err()),
		)
	}
	metrics.RevenueComputationsTotal.WithLabelValues(modeMemory, "ok").Inc()
	return period, nil
}

func (a *Aggregator) summarizeInStore(ctx context.Context, s Summarizer, start, end time.Time) (RevenuePeriod, error) {
	timer := time.Now()
	period, err := s.SummarizeRevenue(ctx, start, end)
	metrics.RevenueComputationDuration.WithLabelValues(modeServer).Observe(time.Since(timer).Seconds())
	if err != nil {
		if domain.Is(err, domain.ErrUnsupported) {
			return RevenuePeriod{}, err
		}
		metrics.RevenueComputationsTotal.WithLabelValues(modeServer, "unavailable").Inc()
		a.logger.Error("store revenue summary failed", zap.Error(err))
		return RevenuePeriod{}, domain.Unavailable(err, "summarize revenue")
	}

	if period.SkippedRecords > 0 {
		metrics.RevenueSkippedRecordsTotal.WithLabelValues(ReasonServerSummary).Add(float64(period.SkippedRecords))
		a.logger.Warn("store skipped malformed payment records",
			zap.Int64("skipped", period.SkippedRecords),
			zap.Time("period_start", start),
			zap.Time("period_end", end),
		)
	}
	metrics.RevenueComputationsTotal.WithLabelValues(modeServer, "ok").Inc()

	period.PeriodStart, period.PeriodEnd = start, end
	return period, nil
}

// Summarize is the single-pass reduction behind ComputeRevenue. Only completed
// payments count; subscriptions split into new and renewal by isRenewal.
// Records that cannot be interpreted are returned in skipped and otherwise ignored.
func Summarize(records []PaymentRecord, start, end time.Time) (RevenuePeriod, []SkippedRecord) {
	period := RevenuePeriod{
		TotalRevenue: decimal.Zero,
		PeriodStart:  start,
		PeriodEnd:    end,
	}
	var skipped []SkippedRecord

	for _, r := range records {
		if bad := r.check(); bad != nil {
			skipped = append(skipped, *bad)
			continue
		}
		if *r.Status != payment.StatusCompleted {
			continue
		}

		period.TotalRevenue = period.TotalRevenue.Add(*r.Amount)
		if *r.Type != payment.TypeSubscription {
			continue
		}
		if r.renewal() {
			period.Renewals++
		} else {
			period.NewSubscriptions++
		}
	}

	period.SkippedRecords = int64(len(skipped))
	return period, skipped
}
