package application

import (
	"context"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/revenue"
)

const (
	maxTrendMonths     = 24
	trendConcurrency   = 4
	csvTimestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// RevenueCalculator computes a revenue period over a closed window.
type RevenueCalculator interface {
	ComputeRevenue(ctx context.Context, start, end time.Time) (revenue.RevenuePeriod, error)
}

// RevenuePeriodDTO is the API shape of a revenue period.
type RevenuePeriodDTO struct {
	Label            string          `json:"label,omitempty"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	NewSubscriptions int64           `json:"new_subscriptions"`
	Renewals         int64           `json:"renewals"`
	SkippedRecords   int64           `json:"skipped_records"`
}

// MonthlyComparisonDTO is the dashboard's headline block: one month against
// the month before it.
type MonthlyComparisonDTO struct {
	Current       RevenuePeriodDTO      `json:"current"`
	Previous      RevenuePeriodDTO      `json:"previous"`
	PercentChange revenue.PercentChange `json:"percent_change"`
}

// TrendDTO is a monthly revenue roll-up, oldest month first.
type TrendDTO struct {
	Months []RevenuePeriodDTO `json:"months"`
}

type trendRow struct {
	Month            string `csv:"month"`
	PeriodStart      string `csv:"period_start"`
	PeriodEnd        string `csv:"period_end"`
	TotalRevenue     string `csv:"total_revenue"`
	NewSubscriptions int64  `csv:"new_subscriptions"`
	Renewals         int64  `csv:"renewals"`
	SkippedRecords   int64  `csv:"skipped_records"`
}

// ReportService builds the admin revenue reports.
type ReportService struct {
	calc   RevenueCalculator
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewReportService creates a new ReportService. Month boundaries are taken in loc.
func NewReportService(calc RevenueCalculator, loc *time.Location, logger *zap.Logger) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{calc: calc, loc: loc, now: time.Now, logger: logger}
}

// CurrentMonth returns the year and month of now in the report location.
func (s *ReportService) CurrentMonth() (int, time.Month) {
	now := s.now().In(s.loc)
	return now.Year(), now.Month()
}

// MonthlyComparison computes a month and the month before it concurrently.
func (s *ReportService) MonthlyComparison(ctx context.Context, year int, month time.Month) (*MonthlyComparisonDTO, error) {
	if month < time.January || month > time.December {
		return nil, domain.NewValidationError("month must be between 1 and 12")
	}
	if year < 1 {
		return nil, domain.NewValidationError("year must be positive")
	}

	currentWindow := revenue.MonthWindow(year, month, s.loc)
	previousWindow := currentWindow.PreviousMonth()

	var (
		current, previous       revenue.RevenuePeriod
		currentErr, previousErr error
	)
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		current, currentErr = s.calc.ComputeRevenue(ctx, currentWindow.Start, currentWindow.End)
		return currentErr
	})
	p.Go(func(ctx context.Context) error {
		previous, previousErr = s.calc.ComputeRevenue(ctx, previousWindow.Start, previousWindow.End)
		return previousErr
	})
	_ = p.Wait()

	if err := firstError(currentErr, previousErr); err != nil {
		s.logger.Error("monthly comparison failed",
			zap.Int("year", year),
			zap.String("month", month.String()),
			zap.Error(err),
		)
		return nil, err
	}

	cmp := revenue.Compare(current, previous)
	return &MonthlyComparisonDTO{
		Current:       toPeriodDTO(cmp.Current, currentWindow.Label()),
		Previous:      toPeriodDTO(cmp.Previous, previousWindow.Label()),
		PercentChange: cmp.Change,
	}, nil
}

// MonthlyTrend computes the trailing months ending with the current month.
func (s *ReportService) MonthlyTrend(ctx context.Context, months int) (*TrendDTO, error) {
	if months < 1 || months > maxTrendMonths {
		return nil, domain.NewValidationError("months must be between 1 and 24")
	}

	windows := revenue.TrailingMonths(s.now(), months, s.loc)
	periods := make([]revenue.RevenuePeriod, len(windows))
	errs := make([]error, len(windows))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(trendConcurrency)
	for i, w := range windows {
		p.Go(func(ctx context.Context) error {
			periods[i], errs[i] = s.calc.ComputeRevenue(ctx, w.Start, w.End)
			return errs[i]
		})
	}
	_ = p.Wait()

	if err := firstError(errs...); err != nil {
		s.logger.Error("monthly trend failed", zap.Int("months", months), zap.Error(err))
		return nil, err
	}

	return &TrendDTO{
		Months: lo.Map(periods, func(p revenue.RevenuePeriod, i int) RevenuePeriodDTO {
			return toPeriodDTO(p, windows[i].Label())
		}),
	}, nil
}

// RangeReport computes an arbitrary closed window.
func (s *ReportService) RangeReport(ctx context.Context, start, end time.Time) (*RevenuePeriodDTO, error) {
	period, err := s.calc.ComputeRevenue(ctx, start, end)
	if err != nil {
		return nil, err
	}
	dto := toPeriodDTO(period, "")
	return &dto, nil
}

// ExportTrendCSV renders MonthlyTrend as CSV with a header row.
func (s *ReportService) ExportTrendCSV(ctx context.Context, months int) ([]byte, error) {
	trend, err := s.MonthlyTrend(ctx, months)
	if err != nil {
		return nil, err
	}

	rows := lo.Map(trend.Months, func(m RevenuePeriodDTO, _ int) trendRow {
		return trendRow{
			Month:            m.Label,
			PeriodStart:      m.PeriodStart.Format(csvTimestampLayout),
			PeriodEnd:        m.PeriodEnd.Format(csvTimestampLayout),
			TotalRevenue:     m.TotalRevenue.StringFixed(2),
			NewSubscriptions: m.NewSubscriptions,
			Renewals:         m.Renewals,
			SkippedRecords:   m.SkippedRecords,
		}
	})
	return gocsv.MarshalBytes(&rows)
}

// firstError prefers a real failure over the cancellation it caused in
// sibling computations.
func firstError(errs ...error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if domain.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

func toPeriodDTO(p revenue.RevenuePeriod, label string) RevenuePeriodDTO {
	return RevenuePeriodDTO{
		Label:            label,
		PeriodStart:      p.PeriodStart,
		PeriodEnd:        p.PeriodEnd,
		TotalRevenue:     p.TotalRevenue,
		NewSubscriptions: p.NewSubscriptions,
		Renewals:         p.Renewals,
		SkippedRecords:   p.SkippedRecords,
	}
}
