package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicPaymentEvents = "payment.events"
	TopicBillingEvents = "billing.events"
)

// Event types published on payment.events.
const (
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
	PaymentRefunded  = "payment.refunded"
)

// Event types consumed from billing.events.
const (
	BillingChargeSucceeded = "billing.charge.succeeded"
)

// EventSource is the CloudEvents source of everything this service publishes.
const EventSource = "service-billing"

// PaymentCompletedEvent is published after a charge is captured.
type PaymentCompletedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Plan       string          `json:"plan,omitempty"`
	IsRenewal  bool            `json:"is_renewal"`
	GatewayRef string          `json:"gateway_ref"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PaymentFailedEvent is published when checkout or refund could not complete.
type PaymentFailedEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentRefundedEvent is published after a refund.
type PaymentRefundedEvent struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	RefundReason string          `json:"refund_reason"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// BillingChargeEvent is emitted by the app-store billing bridge when a store
// charge (initial purchase or auto-renewal) settles.
type BillingChargeEvent struct {
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Plan       string          `json:"plan,omitempty"`
	IsRenewal  *bool           `json:"is_renewal,omitempty"`
	GatewayRef string          `json:"gateway_ref"`
	ChargedAt  time.Time       `json:"charged_at"`
}
