package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	paymentDomain "github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/revenue"
)

// PaymentMetadata is the jsonb metadata document. IsRenewal stays nil when
// the key is absent or holds something other than a boolean.
type PaymentMetadata struct {
	IsRenewal *bool  `json:"isRenewal,omitempty"`
	Source    string `json:"source,omitempty"`
}

// UnmarshalJSON tolerates foreign keys and mistyped values so one odd
// document cannot fail a whole query.
func (m *PaymentMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		*m = PaymentMetadata{}
		return nil
	}
	*m = PaymentMetadata{}
	if v, ok := raw["isRenewal"].(bool); ok {
		m.IsRenewal = &v
	}
	if v, ok := raw["source"].(string); ok {
		m.Source = v
	}
	return nil
}

// PaymentModel is the GORM persistence model for the payments table. The
// aggregator-relevant columns are nullable because documents written by older
// clients may lack them.
type PaymentModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"type:uuid;not null;index"`
	Amount        decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Status        *string             `gorm:"type:varchar(20);index"`
	Type          *string             `gorm:"type:varchar(20)"`
	Plan          string              `gorm:"type:varchar(50)"`
	Metadata      PaymentMetadata     `gorm:"type:jsonb;serializer:json"`
	GatewayRef    *string             `gorm:"type:varchar(255);uniqueIndex"`
	FailureReason string              `gorm:"type:text"`
	RefundReason  string              `gorm:"type:text"`
	Version       int64               `gorm:"not null;default:1"`
	CreatedAt     *time.Time          `gorm:"type:timestamptz;index;autoCreateTime:false"`
	UpdatedAt     time.Time           `gorm:"type:timestamptz;not null;autoUpdateTime:false"`
}

// TableName specifies the table name for GORM.
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentRepositoryImpl is the GORM-based implementation of PaymentRepository.
// It also serves the revenue aggregator as its PaymentQuery and Summarizer.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-based payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

// FindByID retrieves a payment by its unique ID.
func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment", id.String())
		}
		return nil, err
	}
	return toDomain(&model), nil
}

// FindByGatewayRef retrieves a payment by the gateway charge reference.
func (r *PaymentRepositoryImpl) FindByGatewayRef(ctx context.Context, ref string) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where("gateway_ref = ?", ref).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment", ref)
		}
		return nil, err
	}
	return toDomain(&model), nil
}

// HasCompletedSubscription reports whether the user has a settled subscription payment for plan.
func (r *PaymentRepositoryImpl) HasCompletedSubscription(ctx context.Context, userID uuid.UUID, plan string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Where("user_id = ? AND plan = ? AND type = ? AND status = ?",
			userID, plan, string(paymentDomain.TypeSubscription), string(paymentDomain.StatusCompleted)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns a keyset-paginated page ordered by (created_at, id).
func (r *PaymentRepositoryImpl) List(ctx context.Context, f paymentDomain.ListFilter) ([]*paymentDomain.Payment, bool, error) {
	q := r.db.WithContext(ctx).Model(&PaymentModel{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.UserID != uuid.Nil {
		q = q.Where("user_id = ?", f.UserID)
	}

	if f.Ascending {
		if f.After != nil {
			q = q.Where("(created_at, id) > (?, ?)", f.After.CreatedAt, f.After.ID)
		}
		q = q.Order("created_at ASC").Order("id ASC")
	} else {
		if f.After != nil {
			q = q.Where("(created_at, id) < (?, ?)", f.After.CreatedAt, f.After.ID)
		}
		q = q.Order("created_at DESC").Order("id DESC")
	}

	var models []PaymentModel
	if err := q.Where("created_at IS NOT NULL").Limit(f.Limit + 1).Find(&models).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(models) > f.Limit
	if hasMore {
		models = models[:f.Limit]
	}

	payments := make([]*paymentDomain.Payment, len(models))
	for i := range models {
		payments[i] = toDomain(&models[i])
	}
	return payments, hasMore, nil
}

// Save persists a new payment aggregate.
func (r *PaymentRepositoryImpl) Save(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toModel(payment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("payment already recorded")
		}
		return err
	}
	return nil
}

// Update persists changes to an existing payment with optimistic locking.
func (r *PaymentRepositoryImpl) Update(ctx context.Context, payment *paymentDomain.Payment) error {
	model := toModel(payment)
	previousVersion := payment.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("payment was modified by another transaction")
	}

	return nil
}

// FetchPayments returns every payment document created within [createdAfter, createdBefore].
func (r *PaymentRepositoryImpl) FetchPayments(ctx context.Context, createdAfter, createdBefore time.Time) ([]revenue.PaymentRecord, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Select("id", "amount", "status", "type", "metadata", "created_at").
		Where("created_at BETWEEN ? AND ?", createdAfter, createdBefore).
		Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]revenue.PaymentRecord, len(models))
	for i := range models {
		records[i] = toRecord(&models[i])
	}
	return records, nil
}

// wellFormed mirrors the aggregator's record checks in SQL.
const wellFormed = `amount IS NOT NULL AND amount >= 0
	AND status IN ('pending', 'completed', 'failed', 'refunded')
	AND type IN ('subscription', 'one-time')`

const isRenewalExpr = `CASE WHEN jsonb_typeof(metadata->'isRenewal') = 'boolean'
	THEN (metadata->>'isRenewal')::boolean ELSE false END`

// SummarizeRevenue performs the revenue reduction in PostgreSQL.
func (r *PaymentRepositoryImpl) SummarizeRevenue(ctx context.Context, start, end time.Time) (revenue.RevenuePeriod, error) {
	var row struct {
		TotalRevenue     decimal.Decimal
		NewSubscriptions int64
		Renewals         int64
		Skipped          int64
	}

	completed := "(" + wellFormed + ") AND status = 'completed'"
	subs := completed + " AND type = 'subscription'"

	err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select(
			"COALESCE(SUM(amount) FILTER (WHERE "+completed+"), 0) AS total_revenue, "+
				"COUNT(*) FILTER (WHERE "+subs+" AND NOT "+isRenewalExpr+") AS new_subscriptions, "+
				"COUNT(*) FILTER (WHERE "+subs+" AND "+isRenewalExpr+") AS renewals, "+
				"COUNT(*) FILTER (WHERE NOT ("+wellFormed+") OR amount IS NULL OR status IS NULL OR type IS NULL) AS skipped",
		).
		Where("created_at BETWEEN ? AND ?", start, end).
		Scan(&row).Error
	if err != nil {
		return revenue.RevenuePeriod{}, err
	}

	return revenue.RevenuePeriod{
		TotalRevenue:     row.TotalRevenue,
		NewSubscriptions: row.NewSubscriptions,
		Renewals:         row.Renewals,
		PeriodStart:      start,
		PeriodEnd:        end,
		SkippedRecords:   row.Skipped,
	}, nil
}

func toRecord(m *PaymentModel) revenue.PaymentRecord {
	rec := revenue.PaymentRecord{
		ID:        m.ID.String(),
		CreatedAt: m.CreatedAt,
		IsRenewal: m.Metadata.IsRenewal,
	}
	if m.Amount.Valid {
		amount := m.Amount.Decimal
		rec.Amount = &amount
	}
	if m.Status != nil {
		s := paymentDomain.Status(*m.Status)
		rec.Status = &s
	}
	if m.Type != nil {
		t := paymentDomain.Type(*m.Type)
		rec.Type = &t
	}
	return rec
}

// toDomain maps a PaymentModel to the domain Payment aggregate. Missing
// optional columns map to zero values.
func toDomain(model *PaymentModel) *paymentDomain.Payment {
	var createdAt time.Time
	if model.CreatedAt != nil {
		createdAt = *model.CreatedAt
	}
	meta := paymentDomain.Metadata{Source: paymentDomain.Source(model.Metadata.Source)}
	if model.Metadata.IsRenewal != nil {
		meta.IsRenewal = *model.Metadata.IsRenewal
	}
	return paymentDomain.Reconstitute(
		model.ID,
		model.UserID,
		model.Amount.Decimal,
		paymentDomain.Status(deref(model.Status)),
		paymentDomain.Type(deref(model.Type)),
		model.Plan,
		meta,
		deref(model.GatewayRef),
		model.FailureReason,
		model.RefundReason,
		model.Version,
		createdAt,
		model.UpdatedAt,
	)
}

// toModel maps a domain Payment aggregate to a PaymentModel for persistence.
func toModel(p *paymentDomain.Payment) *PaymentModel {
	status := string(p.Status())
	typ := string(p.Type())
	createdAt := p.CreatedAt()
	renewal := p.IsRenewal()

	var gatewayRef *string
	if ref := p.GatewayRef(); ref != "" {
		gatewayRef = &ref
	}

	return &PaymentModel{
		ID:            p.ID(),
		UserID:        p.UserID(),
		Amount:        decimal.NewNullDecimal(p.Amount()),
		Status:        &status,
		Type:          &typ,
		Plan:          p.Plan(),
		Metadata:      PaymentMetadata{IsRenewal: &renewal, Source: string(p.Metadata().Source)},
		GatewayRef:    gatewayRef,
		FailureReason: p.FailureReason(),
		RefundReason:  p.RefundReason(),
		Version:       p.Version(),
		CreatedAt:     &createdAt,
		UpdatedAt:     p.UpdatedAt(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
