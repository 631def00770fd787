package revenue

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// PaymentRecord is a payment document as the store returns it. Every field is
// optional because the store does not enforce a schema.
type PaymentRecord struct {
	ID        string
	Amount    *decimal.Decimal
	Status    *payment.Status
	Type      *payment.Type
	CreatedAt *time.Time
	// IsRenewal is metadata.isRenewal; nil means false.
	IsRenewal *bool
}

// PaymentQuery fetches payments created within the closed window
// [createdAfter, createdBefore].
type PaymentQuery interface {
	FetchPayments(ctx context.Context, createdAfter, createdBefore time.Time) ([]PaymentRecord, error)
}

// Summarizer is implemented by stores that can run the revenue reduction
// themselves. The result must match Summarize over the same window.
type Summarizer interface {
	SummarizeRevenue(ctx context.Context, start, end time.Time) (RevenuePeriod, error)
}

// Skip reasons, also used as metric labels.
const (
	ReasonMissingField   = "missing_field"
	ReasonUnknownStatus  = "unknown_status"
	ReasonUnknownType    = "unknown_type"
	ReasonNegativeAmount = "negative_amount"
	// ReasonServerSummary labels rows the store skipped; it does not report why.
	ReasonServerSummary = "server_summary"
)

// SkippedRecord describes a record left out of an aggregation.
type SkippedRecord struct {
	ID      string
	Reason  string
	Missing []string
}

// Err returns the skip as a domain.ErrMalformedRecord error.
func (s SkippedRecord) Err() error {
	detail := s.Reason
	if len(s.Missing) > 0 {
		detail += " " + strings.Join(s.Missing, ",")
	}
	return domain.NewMalformedRecordError(s.ID, detail)
}

// check returns a non-nil SkippedRecord when r cannot be aggregated.
func (r PaymentRecord) check() *SkippedRecord {
	var missing []string
	if r.Amount == nil {
		missing = append(missing, "amount")
	}
	if r.Status == nil {
		missing = append(missing, "status")
	}
	if r.Type == nil {
		missing = append(missing, "type")
	}
	if r.CreatedAt == nil {
		missing = append(missing, "createdAt")
	}
	switch {
	case len(missing) > 0:
		return &SkippedRecord{ID: r.ID, Reason: ReasonMissingField, Missing: missing}
	case !r.Status.Valid():
		return &SkippedRecord{ID: r.ID, Reason: ReasonUnknownStatus}
	case !r.Type.Valid():
		return &SkippedRecord{ID: r.ID, Reason: ReasonUnknownType}
	case r.Amount.IsNegative():
		return &SkippedRecord{ID: r.ID, Reason: ReasonNegativeAmount}
	}
	return nil
}

// renewal applies the absent-means-false and one-time-means-false rules.
func (r PaymentRecord) renewal() bool {
	return *r.Type == payment.TypeSubscription && r.IsRenewal != nil && *r.IsRenewal
}
