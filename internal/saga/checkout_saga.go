package saga

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/adapter"
	"github.com/fitpulse/service-billing/internal/contracts"
	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/metrics"
	"github.com/fitpulse/service-billing/internal/platform/kafka"
)

// CheckoutSagaService orchestrates charging and refunding payments.
type CheckoutSagaService struct {
	repo      payment.PaymentRepository
	gateway   adapter.PaymentGateway
	publisher kafka.Publisher
	logger    *zap.Logger
}

// NewCheckoutSagaService creates a new CheckoutSagaService.
func NewCheckoutSagaService(
	repo payment.PaymentRepository,
	gateway adapter.PaymentGateway,
	publisher kafka.Publisher,
	logger *zap.Logger,
) *CheckoutSagaService {
	return &CheckoutSagaService{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
	}
}

// Checkout stores p as pending, charges the gateway and marks it completed.
// On any failure the stored payment ends up failed and a captured charge is
// refunded. p reflects the stored state when Checkout returns. payment.failed
// is only published once a failed payment is actually stored.
func (s *CheckoutSagaService) Checkout(ctx context.Context, p *payment.Payment, description string) error {
	var chargeRef string
	cause := "checkout aborted"

	sg := New("checkout", s.logger).
		AddStep(Step{
			Name: "save_pending_payment",
			Execute: func(ctx context.Context) error {
				return s.repo.Save(ctx, p)
			},
			Compensate: func(ctx context.Context) error {
				return s.markFailed(ctx, p, cause)
			},
		}).
		AddStep(Step{
			Name: "charge_gateway",
			Execute: func(ctx context.Context) error {
				ref, err := s.gateway.Charge(ctx, p.UserID(), p.Amount(), description)
				if err != nil {
					cause = "charge failed: " + err.Error()
					return err
				}
				chargeRef = ref
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.gateway.Refund(ctx, chargeRef, p.Amount())
			},
		}).
		AddStep(Step{
			Name: "complete_payment",
			Execute: func(ctx context.Context) error {
				if err := p.Complete(chargeRef); err != nil {
					return err
				}
				p.IncrementVersion()
				return s.repo.Update(ctx, p)
			},
		})

	if err := sg.Execute(ctx); err != nil {
		if p.Status() == payment.StatusFailed {
			metrics.PaymentsRecordedTotal.WithLabelValues(string(payment.StatusFailed), string(p.Type()), string(payment.SourceCheckout)).Inc()
			s.publishFailed(ctx, p, err.Error())
		}
		return err
	}

	metrics.PaymentsRecordedTotal.WithLabelValues(string(payment.StatusCompleted), string(p.Type()), string(payment.SourceCheckout)).Inc()
	s.PublishCompleted(ctx, p)
	return nil
}

// Refund returns a completed payment through the gateway and marks it refunded.
// A failed refund leaves the payment completed and publishes nothing.
func (s *CheckoutSagaService) Refund(ctx context.Context, p *payment.Payment, reason string) error {
	if p.Status() != payment.StatusCompleted {
		// Let the domain produce the invalid-state error before touching the gateway.
		return p.Refund(reason)
	}

	sg := New("refund", s.logger).
		AddStep(Step{
			Name: "refund_gateway",
			Execute: func(ctx context.Context) error {
				if p.GatewayRef() == "" {
					return nil
				}
				return s.gateway.Refund(ctx, p.GatewayRef(), p.Amount())
			},
		}).
		AddStep(Step{
			Name: "refund_in_domain",
			Execute: func(ctx context.Context) error {
				if err := p.Refund(reason); err != nil {
					return err
				}
				p.IncrementVersion()
				return s.repo.Update(ctx, p)
			},
		})

	if err := sg.Execute(ctx); err != nil {
		s.logger.Error("refund failed, payment left completed",
			zap.String("payment_id", p.ID().String()),
			zap.Error(err),
		)
		return err
	}

	s.publish(ctx, p, contracts.PaymentRefunded, contracts.PaymentRefundedEvent{
		PaymentID:    p.ID(),
		UserID:       p.UserID(),
		Amount:       p.Amount(),
		RefundReason: reason,
		OccurredAt:   time.Now().UTC(),
	})
	return nil
}

// PublishCompleted announces a settled payment. Publishing is best effort:
// the payment is already stored and a lost event does not undo it.
func (s *CheckoutSagaService) PublishCompleted(ctx context.Context, p *payment.Payment) {
	s.publish(ctx, p, contracts.PaymentCompleted, contracts.PaymentCompletedEvent{
		PaymentID:  p.ID(),
		UserID:     p.UserID(),
		Amount:     p.Amount(),
		Type:       string(p.Type()),
		Plan:       p.Plan(),
		IsRenewal:  p.IsRenewal(),
		GatewayRef: p.GatewayRef(),
		OccurredAt: time.Now().UTC(),
	})
}

// markFailed reloads the stored payment so compensation works even when the
// in-memory aggregate already moved past pending.
func (s *CheckoutSagaService) markFailed(ctx context.Context, p *payment.Payment, reason string) error {
	stored, err := s.repo.FindByID(ctx, p.ID())
	if err != nil {
		return err
	}
	if err := stored.Fail(reason); err != nil {
		return err
	}
	stored.IncrementVersion()
	if err := s.repo.Update(ctx, stored); err != nil {
		return err
	}
	*p = *stored
	return nil
}

func (s *CheckoutSagaService) publishFailed(ctx context.Context, p *payment.Payment, reason string) {
	s.publish(ctx, p, contracts.PaymentFailed, contracts.PaymentFailedEvent{
		PaymentID:  p.ID(),
		UserID:     p.UserID(),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *CheckoutSagaService) publish(ctx context.Context, p *payment.Payment, eventType string, data interface{}) {
	ce, err := kafka.NewCloudEvent(contracts.EventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	ce.Subject = p.ID().String()

	if err := s.publisher.PublishEvent(ctx, contracts.TopicPaymentEvents, ce); err != nil {
		s.logger.Error("failed to publish payment event",
			zap.String("type", eventType),
			zap.String("payment_id", p.ID().String()),
			zap.Error(err),
		)
	}
}
