package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// Status is the settlement state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Type distinguishes subscription charges from one-off purchases.
type Type string

const (
	TypeSubscription Type = "subscription"
	TypeOneTime      Type = "one-time"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeSubscription || t == TypeOneTime
}

// Source records how a payment entered the store.
type Source string

const (
	SourceCheckout Source = "checkout"
	SourceSeed     Source = "seed"
	SourceEvent    Source = "event"
)

// Metadata is the free-form document attached to a payment.
type Metadata struct {
	IsRenewal bool   `json:"isRenewal"`
	Source    Source `json:"source,omitempty"`
}

// Payment is the aggregate root for a single monetary transaction.
type Payment struct {
	id            uuid.UUID
	userID        uuid.UUID
	amount        decimal.Decimal
	status        Status
	paymentType   Type
	plan          string
	metadata      Metadata
	gatewayRef    string
	failureReason string
	refundReason  string
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
}

// NewPayment creates a pending payment. isRenewal is dropped for one-time payments.
func NewPayment(userID uuid.UUID, amount decimal.Decimal, paymentType Type, plan string, isRenewal bool, source Source) (*Payment, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user id is required")
	}
	if amount.IsNegative() {
		return nil, domain.NewValidationError("amount must not be negative")
	}
	if !paymentType.Valid() {
		return nil, domain.NewValidationError("unknown payment type: " + string(paymentType))
	}
	if paymentType == TypeSubscription && plan == "" {
		return nil, domain.NewValidationError("plan is required for subscription payments")
	}
	if paymentType == TypeOneTime {
		isRenewal = false
	}

	now := time.Now().UTC()
	return &Payment{
		id:          uuid.New(),
		userID:      userID,
		amount:      amount,
		status:      StatusPending,
		paymentType: paymentType,
		plan:        plan,
		metadata:    Metadata{IsRenewal: isRenewal, Source: source},
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// --- Getters ---

func (p *Payment) ID() uuid.UUID           { return p.id }
func (p *Payment) UserID() uuid.UUID       { return p.userID }
func (p *Payment) Amount() decimal.Decimal { return p.amount }
func (p *Payment) Status() Status          { return p.status }
func (p *Payment) Type() Type              { return p.paymentType }
func (p *Payment) Plan() string            { return p.plan }
func (p *Payment) Metadata() Metadata      { return p.metadata }
func (p *Payment) GatewayRef() string      { return p.gatewayRef }
func (p *Payment) FailureReason() string   { return p.failureReason }
func (p *Payment) RefundReason() string    { return p.refundReason }
func (p *Payment) Version() int64          { return p.version }
func (p *Payment) CreatedAt() time.Time    { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time    { return p.updatedAt }

// IsRenewal is only meaningful for subscriptions.
func (p *Payment) IsRenewal() bool {
	return p.paymentType == TypeSubscription && p.metadata.IsRenewal
}

// --- Behavior / State Transitions ---

// Complete marks a pending payment as settled by the gateway.
func (p *Payment) Complete(gatewayRef string) error {
	if p.status != StatusPending {
		return domain.NewInvalidStateError(string(p.status), string(StatusCompleted))
	}
	p.status = StatusCompleted
	p.gatewayRef = gatewayRef
	p.updatedAt = time.Now().UTC()
	return nil
}

// Fail marks a pending payment as failed.
func (p *Payment) Fail(reason string) error {
	if p.status != StatusPending {
		return domain.NewInvalidStateError(string(p.status), string(StatusFailed))
	}
	p.status = StatusFailed
	p.failureReason = reason
	p.updatedAt = time.Now().UTC()
	return nil
}

// Refund reverses a completed payment.
func (p *Payment) Refund(reason string) error {
	if p.status != StatusCompleted {
		return domain.NewInvalidStateError(string(p.status), string(StatusRefunded))
	}
	p.status = StatusRefunded
	p.refundReason = reason
	p.updatedAt = time.Now().UTC()
	return nil
}

// Backdate moves creation time for seeded historical payments. Only allowed
// before the payment is first persisted.
func (p *Payment) Backdate(at time.Time) {
	p.createdAt = at.UTC()
	p.updatedAt = p.createdAt
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id, userID uuid.UUID,
	amount decimal.Decimal,
	status Status,
	paymentType Type,
	plan string,
	metadata Metadata,
	gatewayRef, failureReason, refundReason string,
	version int64,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:            id,
		userID:        userID,
		amount:        amount,
		status:        status,
		paymentType:   paymentType,
		plan:          plan,
		metadata:      metadata,
		gatewayRef:    gatewayRef,
		failureReason: failureReason,
		refundReason:  refundReason,
		version:       version,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}
