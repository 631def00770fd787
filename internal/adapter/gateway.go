package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// ErrCardDeclined is returned when the simulated issuer declines a charge.
var ErrCardDeclined = errors.New("card declined")

// PaymentGateway is the anti-corruption layer in front of the card processor.
type PaymentGateway interface {
	// Charge captures amount from the user's stored card and returns the charge reference.
	Charge(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (chargeRef string, err error)

	// Refund returns a captured charge in full.
	Refund(ctx context.Context, chargeRef string, amount decimal.Decimal) error
}

// SimulatedGateway stands in for a real processor. Charges above declineAbove
// are declined so the failure path can be exercised; zero disables declines.
type SimulatedGateway struct {
	declineAbove decimal.Decimal
	logger       *zap.Logger

	mu       sync.Mutex
	captured map[string]decimal.Decimal
}

// NewSimulatedGateway creates a simulated gateway.
func NewSimulatedGateway(declineAbove decimal.Decimal, logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{
		declineAbove: declineAbove,
		logger:       logger,
		captured:     make(map[string]decimal.Decimal),
	}
}

// Charge simulates an immediate capture.
func (g *SimulatedGateway) Charge(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (string, error) {
	if !g.declineAbove.IsZero() && amount.GreaterThan(g.declineAbove) {
		g.logger.Info("[SIMULATED GATEWAY] charge declined",
			zap.String("user_id", userID.String()),
			zap.String("amount", amount.StringFixed(2)),
		)
		return "", ErrCardDeclined
	}

	ref := fmt.Sprintf("ch_sim_%s", uuid.New().String()[:12])

	g.mu.Lock()
	g.captured[ref] = amount
	g.mu.Unlock()

	g.logger.Info("[SIMULATED GATEWAY] charge captured",
		zap.String("charge_ref", ref),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("description", description),
	)
	return ref, nil
}

// Refund simulates a full refund of a captured charge.
func (g *SimulatedGateway) Refund(ctx context.Context, chargeRef string, amount decimal.Decimal) error {
	g.mu.Lock()
	captured, ok := g.captured[chargeRef]
	// Charges from before a restart, or recorded by seeding, are unknown here
	// and refund unconditionally.
	if ok && !captured.Equal(amount) {
		g.mu.Unlock()
		return domain.NewValidationError(fmt.Sprintf("refund amount %s does not match captured %s", amount, captured))
	}
	delete(g.captured, chargeRef)
	g.mu.Unlock()

	g.logger.Info("[SIMULATED GATEWAY] refund created",
		zap.String("charge_ref", chargeRef),
		zap.String("amount", amount.StringFixed(2)),
	)
	return nil
}
