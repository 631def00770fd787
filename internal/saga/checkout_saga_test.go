package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/adapter"
	"github.com/fitpulse/service-billing/internal/contracts"
	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/platform/kafka"
)

// memRepo keeps copies so tests observe what was persisted, not the live aggregate.
type memRepo struct {
	mu        sync.Mutex
	payments  map[uuid.UUID]payment.Payment
	saveErr   error
	updateErr error
	updates   int
}

func newMemRepo() *memRepo {
	return &memRepo{payments: map[uuid.UUID]payment.Payment{}}
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError("Payment", id.String())
	}
	return &p, nil
}

func (r *memRepo) FindByGatewayRef(context.Context, string) (*payment.Payment, error) {
	return nil, domain.NewNotFoundError("Payment", "")
}

func (r *memRepo) HasCompletedSubscription(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (r *memRepo) List(context.Context, payment.ListFilter) ([]*payment.Payment, bool, error) {
	return nil, false, nil
}

func (r *memRepo) Save(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.payments[p.ID()] = *p
	return nil
}

func (r *memRepo) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		err := r.updateErr
		r.updateErr = nil
		return err
	}
	r.payments[p.ID()] = *p
	return nil
}

func (r *memRepo) stored(id uuid.UUID) *payment.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil
	}
	return &p
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type stubGateway struct {
	chargeErr error
	refundErr error
	refunds   []string
}

func (g *stubGateway) Charge(context.Context, uuid.UUID, decimal.Decimal, string) (string, error) {
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	return "ch_test_1", nil
}

func (g *stubGateway) Refund(_ context.Context, ref string, _ decimal.Decimal) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, ref)
	return nil
}

type recordingPublisher struct {
	events []kafka.CloudEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.events = append(p.events, ce)
	return p.err
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newSubscriptionPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(uuid.New(), decimal.RequireFromString("9.99"), payment.TypeSubscription, "premium", false, payment.SourceCheckout)
	require.NoError(t, err)
	return p
}

func TestCheckout_Success(t *testing.T) {
	repo := newMemRepo()
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, zap.NewNop())
	p := newSubscriptionPayment(t)

	require.NoError(t, svc.Checkout(context.Background(), p, "premium"))

	stored := repo.stored(p.ID())
	assert.Equal(t, payment.StatusCompleted, stored.Status())
	assert.Equal(t, "ch_test_1", stored.GatewayRef())
	assert.Equal(t, []string{contracts.PaymentCompleted}, pub.types())
	assert.Equal(t, p.ID().String(), pub.events[0].Subject)

	var evt contracts.PaymentCompletedEvent
	require.NoError(t, pub.events[0].ParseData(&evt))
	assert.True(t, decimal.RequireFromString("9.99").Equal(evt.Amount))
	assert.Equal(t, "premium", evt.Plan)
}

func TestCheckout_DeclinedChargeLeavesFailedPayment(t *testing.T) {
	repo := newMemRepo()
	gw := &stubGateway{chargeErr: adapter.ErrCardDeclined}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, zap.NewNop())
	p := newSubscriptionPayment(t)

	err := svc.Checkout(context.Background(), p, "premium")

	require.ErrorIs(t, err, adapter.ErrCardDeclined)
	stored := repo.stored(p.ID())
	assert.Equal(t, payment.StatusFailed, stored.Status())
	assert.Contains(t, stored.FailureReason(), "card declined")
	assert.Equal(t, payment.StatusFailed, p.Status(), "caller's aggregate reflects the stored state")
	assert.Empty(t, gw.refunds)
	assert.Equal(t, []string{contracts.PaymentFailed}, pub.types())
}

func TestCheckout_CompleteFailureRefundsCharge(t *testing.T) {
	repo := newMemRepo()
	repo.updateErr = domain.NewConflictError("payment was modified by another transaction")
	gw := &stubGateway{}
	svc := NewCheckoutSagaService(repo, gw, &recordingPublisher{}, zap.NewNop())
	p := newSubscriptionPayment(t)

	err := svc.Checkout(context.Background(), p, "premium")

	require.Error(t, err)
	assert.True(t, domain.Is(err, domain.ErrConflict))
	assert.Equal(t, []string{"ch_test_1"}, gw.refunds)
	assert.Equal(t, payment.StatusFailed, repo.stored(p.ID()).Status())
}

func TestCheckout_PublishFailureDoesNotFailCheckout(t *testing.T) {
	repo := newMemRepo()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewCheckoutSagaService(repo, &stubGateway{}, pub, zap.NewNop())
	p := newSubscriptionPayment(t)

	require.NoError(t, svc.Checkout(context.Background(), p, "premium"))
	assert.Equal(t, payment.StatusCompleted, repo.stored(p.ID()).Status())
}

func TestRefund(t *testing.T) {
	repo := newMemRepo()
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, zap.NewNop())
	p := newSubscriptionPayment(t)
	require.NoError(t, svc.Checkout(context.Background(), p, "premium"))

	require.NoError(t, svc.Refund(context.Background(), p, "duplicate charge"))

	stored := repo.stored(p.ID())
	assert.Equal(t, payment.StatusRefunded, stored.Status())
	assert.Equal(t, "duplicate charge", stored.RefundReason())
	assert.Equal(t, []string{"ch_test_1"}, gw.refunds)
	assert.Equal(t, []string{contracts.PaymentCompleted, contracts.PaymentRefunded}, pub.types())
}

func TestRefund_PendingPaymentIsInvalidState(t *testing.T) {
	gw := &stubGateway{}
	svc := NewCheckoutSagaService(newMemRepo(), gw, &recordingPublisher{}, zap.NewNop())
	p := newSubscriptionPayment(t)

	err := svc.Refund(context.Background(), p, "nope")

	assert.True(t, domain.Is(err, domain.ErrInvalidState))
	assert.Empty(t, gw.refunds)
}

func TestCheckout_SaveFailurePublishesNothing(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("db down")
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, zap.NewNop())
	p := newSubscriptionPayment(t)

	err := svc.Checkout(context.Background(), p, "premium")

	require.Error(t, err)
	assert.Zero(t, repo.count())
	assert.Empty(t, gw.refunds)
	assert.Empty(t, pub.events, "nothing was stored, so nothing failed")
	assert.Equal(t, payment.StatusPending, p.Status())
}

func TestRefund_GatewayFailureLeavesPaymentCompleted(t *testing.T) {
	repo := newMemRepo()
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, zap.NewNop())
	p := newSubscriptionPayment(t)
	require.NoError(t, svc.Checkout(context.Background(), p, "premium"))

	gw.refundErr = errors.New("gateway timeout")
	err := svc.Refund(context.Background(), p, "duplicate charge")

	require.Error(t, err)
	assert.Equal(t, payment.StatusCompleted, repo.stored(p.ID()).Status())
	assert.Equal(t, []string{contracts.PaymentCompleted}, pub.types())
}
