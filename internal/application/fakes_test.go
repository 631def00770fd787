package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fitpulse/service-billing/internal/domain/payment"
	"github.com/fitpulse/service-billing/internal/domain/user"
	"github.com/fitpulse/service-billing/internal/platform/domain"
	"github.com/fitpulse/service-billing/internal/platform/kafka"
	"github.com/fitpulse/service-billing/internal/revenue"
)

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]payment.Payment
	saveErr  error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: map[uuid.UUID]payment.Payment{}}
}

func (r *memPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError("Payment", id.String())
	}
	return &p, nil
}

func (r *memPaymentRepo) FindByGatewayRef(_ context.Context, ref string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.GatewayRef() == ref {
			return &p, nil
		}
	}
	return nil, domain.NewNotFoundError("Payment", ref)
}

func (r *memPaymentRepo) HasCompletedSubscription(_ context.Context, userID uuid.UUID, plan string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.UserID() == userID && p.Plan() == plan &&
			p.Type() == payment.TypeSubscription && p.Status() == payment.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPaymentRepo) List(_ context.Context, f payment.ListFilter) ([]*payment.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*payment.Payment
	for _, p := range r.payments {
		if f.Status != "" && p.Status() != f.Status {
			continue
		}
		if f.Type != "" && p.Type() != f.Type {
			continue
		}
		if f.UserID != uuid.Nil && p.UserID() != f.UserID {
			continue
		}
		all = append(all, &p)
	}

	less := func(a, b *payment.Payment) bool {
		if !a.CreatedAt().Equal(b.CreatedAt()) {
			return a.CreatedAt().Before(b.CreatedAt())
		}
		return a.ID().String() < b.ID().String()
	}
	sort.Slice(all, func(i, j int) bool {
		if f.Ascending {
			return less(all[i], all[j])
		}
		return less(all[j], all[i])
	})

	var out []*payment.Payment
	for _, p := range all {
		if f.After != nil {
			cur := payment.Reconstitute(f.After.ID, uuid.Nil, decimal.Zero, "", "", "", payment.Metadata{}, "", "", "", 0, f.After.CreatedAt, time.Time{})
			if f.Ascending && !less(cur, p) || !f.Ascending && !less(p, cur) {
				continue
			}
		}
		out = append(out, p)
	}
	if len(out) > f.Limit {
		return out[:f.Limit], true, nil
	}
	return out, false, nil
}

func (r *memPaymentRepo) Save(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.payments[p.ID()] = *p
	return nil
}

func (r *memPaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID()] = *p
	return nil
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type stubGateway struct {
	chargeErr error
	charges   int
}

func (g *stubGateway) Charge(context.Context, uuid.UUID, decimal.Decimal, string) (string, error) {
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	g.charges++
	return "ch_" + uuid.New().String()[:8], nil
}

func (g *stubGateway) Refund(context.Context, string, decimal.Decimal) error { return nil }

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, ce.Type)
	return nil
}

// fakeCalculator answers from a table keyed by window start.
type fakeCalculator struct {
	mu      sync.Mutex
	periods map[time.Time]revenue.RevenuePeriod
	failAt  map[time.Time]error
	calls   []time.Time
}

func (c *fakeCalculator) ComputeRevenue(_ context.Context, start, end time.Time) (revenue.RevenuePeriod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, start)
	if err := c.failAt[start]; err != nil {
		return revenue.RevenuePeriod{}, err
	}
	p, ok := c.periods[start]
	if !ok {
		p = revenue.RevenuePeriod{TotalRevenue: decimal.Zero}
	}
	p.PeriodStart, p.PeriodEnd = start, end
	return p, nil
}

type memUserRepo struct {
	users        []user.User
	serverSearch bool
	searchCalls  int
}

func (r *memUserRepo) sorted(q user.Query) []user.User {
	out := append([]user.User(nil), r.users...)
	sort.SliceStable(out, func(i, j int) bool {
		var less bool
		if q.Sort == user.SortByName {
			less = out[i].Name < out[j].Name
		} else {
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if !q.Ascending {
			if q.Sort == user.SortByName {
				return out[i].Name > out[j].Name
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return less
	})
	return out
}

func page(all []user.User, offset, limit int) ([]user.User, bool) {
	if offset >= len(all) {
		return []user.User{}, false
	}
	end := min(offset+limit, len(all))
	return all[offset:end], end < len(all)
}

func (r *memUserRepo) List(_ context.Context, q user.Query) ([]user.User, bool, error) {
	items, more := page(r.sorted(q), q.Offset, q.Limit)
	return items, more, nil
}

func (r *memUserRepo) Search(_ context.Context, q user.Query) ([]user.User, bool, error) {
	r.searchCalls++
	if !r.serverSearch {
		return nil, false, domain.Unsupported("no search")
	}
	return nil, false, domain.Unavailable(context.DeadlineExceeded, "search users")
}
