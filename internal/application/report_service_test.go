package application

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/revenue"
)

func newReportService(calc RevenueCalculator, now time.Time) *ReportService {
	s := NewReportService(calc, time.UTC, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyComparison(t *testing.T) {
	calc := &fakeCalculator{periods: map[time.Time]revenue.RevenuePeriod{
		month(2026, time.March):    {TotalRevenue: decimal.NewFromInt(1000), NewSubscriptions: 2, Renewals: 1},
		month(2026, time.February): {TotalRevenue: decimal.NewFromInt(300)},
	}}
	s := newReportService(calc, time.Now())

	report, err := s.MonthlyComparison(context.Background(), 2026, time.March)
	require.NoError(t, err)

	assert.Equal(t, "Mar 2026", report.Current.Label)
	assert.Equal(t, "Feb 2026", report.Previous.Label)
	assert.Equal(t, int64(2), report.Current.NewSubscriptions)
	v, ok := report.PercentChange.Float()
	require.True(t, ok)
	assert.InDelta(t, 233.33, v, 0.01)
	assert.Equal(t, month(2026, time.April).Add(-time.Microsecond), report.Current.PeriodEnd)
}

func TestMonthlyComparison_NoBaselineSerializesNull(t *testing.T) {
	calc := &fakeCalculator{periods: map[time.Time]revenue.RevenuePeriod{
		month(2026, time.January): {TotalRevenue: decimal.NewFromInt(50)},
	}}
	s := newReportService(calc, time.Now())

	report, err := s.MonthlyComparison(context.Background(), 2026, time.January)
	require.NoError(t, err)
	assert.Equal(t, "Dec 2025", report.Previous.Label)

	body, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"percent_change":null`)
}

func TestMonthlyComparison_FailureIsNotAZeroReport(t *testing.T) {
	calc := &fakeCalculator{failAt: map[time.Time]error{
		month(2026, time.February): domain.Unavailable(context.DeadlineExceeded, "fetch payments"),
	}}
	s := newReportService(calc, time.Now())

	report, err := s.MonthlyComparison(context.Background(), 2026, time.March)
	assert.Nil(t, report)
	assert.True(t, domain.Is(err, domain.ErrDataUnavailable))
}

func TestMonthlyComparison_RejectsBadMonth(t *testing.T) {
	s := newReportService(&fakeCalculator{}, time.Now())

	_, err := s.MonthlyComparison(context.Background(), 2026, time.Month(13))
	assert.True(t, domain.Is(err, domain.ErrValidation))
}

func TestMonthlyTrend_OldestFirstEndingThisMonth(t *testing.T) {
	calc := &fakeCalculator{periods: map[time.Time]revenue.RevenuePeriod{
		month(2026, time.January): {TotalRevenue: decimal.NewFromInt(10)},
		month(2026, time.March):   {TotalRevenue: decimal.NewFromInt(30)},
	}}
	s := newReportService(calc, time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC))

	trend, err := s.MonthlyTrend(context.Background(), 4)
	require.NoError(t, err)

	labels := make([]string, len(trend.Months))
	for i, m := range trend.Months {
		labels[i] = m.Label
	}
	assert.Equal(t, []string{"Dec 2025", "Jan 2026", "Feb 2026", "Mar 2026"}, labels)
	assert.True(t, decimal.NewFromInt(30).Equal(trend.Months[3].TotalRevenue))
	assert.True(t, trend.Months[2].TotalRevenue.IsZero())
	assert.Len(t, calc.calls, 4)
}

func TestMonthlyTrend_Bounds(t *testing.T) {
	s := newReportService(&fakeCalculator{}, time.Now())

	for _, n := range []int{0, 25, -1} {
		_, err := s.MonthlyTrend(context.Background(), n)
		assert.True(t, domain.Is(err, domain.ErrValidation), "months=%d", n)
	}
}

func TestMonthlyTrend_AnyFailureFailsTheReport(t *testing.T) {
	calc := &fakeCalculator{failAt: map[time.Time]error{
		month(2026, time.February): domain.Unavailable(context.DeadlineExceeded, "fetch payments"),
	}}
	s := newReportService(calc, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))

	trend, err := s.MonthlyTrend(context.Background(), 3)
	assert.Nil(t, trend)
	assert.True(t, domain.Is(err, domain.ErrDataUnavailable))
}

func TestRangeReport(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	calc := &fakeCalculator{periods: map[time.Time]revenue.RevenuePeriod{
		start: {TotalRevenue: decimal.RequireFromString("12.50"), Renewals: 1},
	}}
	s := newReportService(calc, time.Now())
	end := start.Add(72 * time.Hour)

	report, err := s.RangeReport(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, start, report.PeriodStart)
	assert.Equal(t, end, report.PeriodEnd)
	assert.Equal(t, int64(1), report.Renewals)
	assert.Empty(t, report.Label)
}

func TestExportTrendCSV(t *testing.T) {
	calc := &fakeCalculator{periods: map[time.Time]revenue.RevenuePeriod{
		month(2026, time.March): {TotalRevenue: decimal.RequireFromString("19.98"), NewSubscriptions: 1, Renewals: 1, SkippedRecords: 2},
	}}
	s := newReportService(calc, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC))

	body, err := s.ExportTrendCSV(context.Background(), 2)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "month,period_start,period_end,total_revenue,new_subscriptions,renewals,skipped_records", lines[0])
	assert.Equal(t, "Feb 2026,2026-02-01T00:00:00.000000Z,2026-02-28T23:59:59.999999Z,0.00,0,0,0", lines[1])
	assert.Equal(t, "Mar 2026,2026-03-01T00:00:00.000000Z,2026-03-31T23:59:59.999999Z,19.98,1,1,2", lines[2])
}
