package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/contracts"
	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/domain/plan"
	"github.com/fitpulse/service-billing/internal/metrics"
	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/saga"
)

// CheckoutRequest is the DTO for a member purchase.
type CheckoutRequest struct {
	Type string `json:"type" binding:"required,oneof=subscription one-time"`
	Plan string `json:"plan"`
	// Amount is required for one-time purchases; subscriptions are priced from the catalog.
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
}

// RecordPaymentRequest is the DTO for seeding a payment with an explicit outcome.
type RecordPaymentRequest struct {
	UserID     uuid.UUID       `json:"user_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status" binding:"required,oneof=pending completed failed refunded"`
	Type       string          `json:"type" binding:"required,oneof=subscription one-time"`
	Plan       string          `json:"plan"`
	IsRenewal  *bool           `json:"is_renewal"`
	CreatedAt  *time.Time      `json:"created_at"`
	GatewayRef string          `json:"gateway_ref"`
}

// RefundRequest is the DTO for an admin refund.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PaymentDTO is the API response DTO for payment data.
type PaymentDTO struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Type          string          `json:"type"`
	Plan          string          `json:"plan,omitempty"`
	IsRenewal     bool            `json:"is_renewal"`
	Source        string          `json:"source,omitempty"`
	GatewayRef    string          `json:"gateway_ref,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RefundReason  string          `json:"refund_reason,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PaymentListState is the listing state a client sends back on each request.
type PaymentListState struct {
	Status    string
	Type      string
	UserID    uuid.UUID
	Ascending bool
	Cursor    string
	Limit     int
}

// PaymentPage is one page of a payment listing.
type PaymentPage struct {
	Items      []PaymentDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
	Limit      int          `json:"limit"`
}

// PaymentService is the application service that orchestrates payment use cases.
type PaymentService struct {
	repo    payment.PaymentRepository
	sagaSvc *saga.CheckoutSagaService
	logger  *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	repo payment.PaymentRepository,
	sagaSvc *saga.CheckoutSagaService,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:    repo,
		sagaSvc: sagaSvc,
		logger:  logger,
	}
}

// GetPlans returns the subscription catalog.
func (s *PaymentService) GetPlans() []plan.Info {
	return plan.Catalog()
}

// Checkout charges the member for a plan or a one-time item.
func (s *PaymentService) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*PaymentDTO, error) {
	paymentType := payment.Type(req.Type)
	var (
		amount      decimal.Decimal
		isRenewal   bool
		description = req.Description
	)

	switch paymentType {
	case payment.TypeSubscription:
		info, err := plan.Lookup(req.Plan)
		if err != nil {
			return nil, err
		}
		amount = info.Price
		if description == "" {
			description = info.Description
		}
		if isRenewal, err = s.repo.HasCompletedSubscription(ctx, userID, req.Plan); err != nil {
			return nil, err
		}
	case payment.TypeOneTime:
		if req.Amount == nil || !req.Amount.IsPositive() {
			return nil, domain.NewValidationError("amount must be positive for one-time purchases")
		}
		amount = req.Amount.Round(2)
	default:
		return nil, domain.NewValidationError("unknown payment type: " + req.Type)
	}

	p, err := payment.NewPayment(userID, amount, paymentType, req.Plan, isRenewal, payment.SourceCheckout)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting checkout",
		zap.String("payment_id", p.ID().String()),
		zap.String("user_id", userID.String()),
		zap.String("type", req.Type),
		zap.String("plan", req.Plan),
		zap.Bool("is_renewal", isRenewal),
	)

	if err := s.sagaSvc.Checkout(ctx, p, description); err != nil {
		s.logger.Error("checkout failed", zap.String("payment_id", p.ID().String()), zap.Error(err))
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// RecordPayment stores a payment with an explicit outcome and creation time.
// Used to seed historical data; nothing is charged and no event is published.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentDTO, error) {
	paymentType := payment.Type(req.Type)
	status := payment.Status(req.Status)
	if !status.Valid() {
		return nil, domain.NewValidationError("unknown payment status: " + req.Status)
	}
	if paymentType == payment.TypeSubscription {
		if _, err := plan.Lookup(req.Plan); err != nil {
			return nil, err
		}
	}

	var isRenewal bool
	if req.IsRenewal != nil {
		isRenewal = *req.IsRenewal
	} else if paymentType == payment.TypeSubscription {
		var err error
		if isRenewal, err = s.repo.HasCompletedSubscription(ctx, req.UserID, req.Plan); err != nil {
			return nil, err
		}
	}

	p, err := payment.NewPayment(req.UserID, req.Amount, paymentType, req.Plan, isRenewal, payment.SourceSeed)
	if err != nil {
		return nil, err
	}
	if req.CreatedAt != nil {
		p.Backdate(*req.CreatedAt)
	}
	if err := settle(p, status, req.GatewayRef); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	metrics.PaymentsRecordedTotal.WithLabelValues(string(p.Status()), string(p.Type()), string(payment.SourceSeed)).Inc()

	s.logger.Info("payment recorded",
		zap.String("payment_id", p.ID().String()),
		zap.String("status", string(p.Status())),
		zap.Time("created_at", p.CreatedAt()),
	)

	dto := toPaymentDTO(p)
	return &dto, nil
}

// settle drives a fresh pending payment to the requested status.
func settle(p *payment.Payment, status payment.Status, gatewayRef string) error {
	switch status {
	case payment.StatusPending:
		return nil
	case payment.StatusCompleted:
		return p.Complete(gatewayRef)
	case payment.StatusFailed:
		return p.Fail("recorded as failed")
	case payment.StatusRefunded:
		if err := p.Complete(gatewayRef); err != nil {
			return err
		}
		return p.Refund("recorded as refunded")
	}
	return domain.NewValidationError("unknown payment status: " + string(status))
}

// RefundPayment refunds a completed payment.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*PaymentDTO, error) {
	s.logger.Info("refunding payment",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason),
	)

	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := s.sagaSvc.Refund(ctx, p, reason); err != nil {
		s.logger.Error("failed to refund payment", zap.Error(err))
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// GetPayment retrieves a payment by its ID. Members only see their own
// payments; anything else is reported as not found.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, viewerID uuid.UUID, isAdmin bool) (*PaymentDTO, error) {
	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && p.UserID() != viewerID {
		return nil, domain.NewNotFoundError("Payment", paymentID.String())
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// ListMyPayments lists the caller's own payments.
func (s *PaymentService) ListMyPayments(ctx context.Context, userID uuid.UUID, state PaymentListState) (*PaymentPage, error) {
	state.UserID = userID
	return s.ListPayments(ctx, state)
}

// ListPayments returns one page of payments ordered by creation time.
func (s *PaymentService) ListPayments(ctx context.Context, state PaymentListState) (*PaymentPage, error) {
	filter := payment.ListFilter{
		Status:    payment.Status(state.Status),
		Type:      payment.Type(state.Type),
		UserID:    state.UserID,
		Ascending: state.Ascending,
		Limit:     clampLimit(state.Limit),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("unknown payment status: " + state.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, domain.NewValidationError("unknown payment type: " + state.Type)
	}

	after, err := decodePaymentCursor(state.Cursor)
	if err != nil {
		return nil, err
	}
	filter.After = after

	payments, more, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &PaymentPage{
		Items: lo.Map(payments, func(p *payment.Payment, _ int) PaymentDTO { return toPaymentDTO(p) }),
		Limit: filter.Limit,
	}
	if more && len(payments) > 0 {
		page.NextCursor = encodePaymentCursor(payments[len(payments)-1])
	}
	return page, nil
}

// HandleBillingCharge records a charge settled outside the checkout flow.
// Redelivered events are recognised by gateway reference and ignored.
func (s *PaymentService) HandleBillingCharge(ctx context.Context, event contracts.BillingChargeEvent) error {
	if event.GatewayRef == "" {
		return domain.NewValidationError("billing charge without gateway reference")
	}

	log := s.logger.With(
		zap.String("gateway_ref", event.GatewayRef),
		zap.String("user_id", event.UserID.String()),
	)
	log.Info("handling billing charge event")

	if _, err := s.repo.FindByGatewayRef(ctx, event.GatewayRef); err == nil {
		log.Info("billing charge already recorded, skipping")
		return nil
	} else if !domain.Is(err, domain.ErrNotFound) {
		return err
	}

	paymentType := payment.Type(event.Type)
	if paymentType == payment.TypeSubscription {
		if _, err := plan.Lookup(event.Plan); err != nil {
			return err
		}
	}

	var isRenewal bool
	if event.IsRenewal != nil {
		isRenewal = *event.IsRenewal
	} else if paymentType == payment.TypeSubscription {
		var err error
		if isRenewal, err = s.repo.HasCompletedSubscription(ctx, event.UserID, event.Plan); err != nil {
			return err
		}
	}

	p, err := payment.NewPayment(event.UserID, event.Amount, paymentType, event.Plan, isRenewal, payment.SourceEvent)
	if err != nil {
		return err
	}
	if !event.ChargedAt.IsZero() {
		p.Backdate(event.ChargedAt)
	}
	if err := p.Complete(event.GatewayRef); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, p); err != nil {
		if domain.Is(err, domain.ErrConflict) {
			log.Info("billing charge recorded concurrently, skipping")
			return nil
		}
		return err
	}
	metrics.PaymentsRecordedTotal.WithLabelValues(string(p.Status()), string(p.Type()), string(payment.SourceEvent)).Inc()

	s.sagaSvc.PublishCompleted(ctx, p)
	return nil
}

// toPaymentDTO maps a domain Payment to a PaymentDTO.
func toPaymentDTO(p *payment.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID(),
		UserID:        p.UserID(),
		Amount:        p.Amount(),
		Status:        string(p.Status()),
		Type:          string(p.Type()),
		Plan:          p.Plan(),
		IsRenewal:     p.IsRenewal(),
		Source:        string(p.Metadata().Source),
		GatewayRef:    p.GatewayRef(),
		FailureReason: p.FailureReason(),
		RefundReason:  p.RefundReason(),
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	}
}
