package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulated is an in-process card gateway for development and demos. It
// waits for the configured latency and then approves a fraction of charges.
type Simulated struct {
	latency     time.Duration
	successRate float64 // 0.0 - 1.0

	mu       sync.Mutex
	rng      *rand.Rand
	charges  map[string]decimal.Decimal
	refunded map[string]bool
	logger   *zap.Logger
}

// NewSimulated creates a simulated gateway
func NewSimulated(latency time.Duration, successRate float64) *Simulated {
	return &Simulated{
		latency:     latency,
		successRate: successRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		charges:     make(map[string]decimal.Decimal),
		refunded:    make(map[string]bool),
		logger:      util.GetLogger(),
	}
}

// Charge approves or declines the snapshot total after the simulated delay
func (g *Simulated) Charge(ctx context.Context, snap models.CartSnapshot) (Receipt, error) {
	ctx, span := util.StartSpan(ctx, "payment.Simulated.Charge")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if snap.Total.IsNegative() {
		return Receipt{}, fmt.Errorf("%w: negative amount %s", ErrDeclined, snap.Total)
	}

	if g.latency > 0 {
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(g.latency):
		}
	}

	g.mu.Lock()
	approved := g.rng.Float64() < g.successRate
	ref := "sim_" + uuid.NewString()[:8]
	if approved {
		g.charges[ref] = snap.Total
	}
	g.mu.Unlock()

	if !approved {
		util.PaymentFailedTotal.Inc()
		g.logger.Warn("Simulated payment declined",
			zap.String("user_id", snap.UserID),
			zap.String("amount", snap.Total.String()))
		return Receipt{}, fmt.Errorf("%w: simulated decline", ErrDeclined)
	}

	util.PaymentSuccessTotal.Inc()
	g.logger.Info("Simulated payment succeeded",
		zap.String("user_id", snap.UserID),
		zap.String("reference", ref),
		zap.String("amount", snap.Total.String()))

	return Receipt{Reference: ref, Status: StatusSucceeded, Method: MethodCard}, nil
}

// Refund marks a simulated charge as reversed
func (g *Simulated) Refund(ctx context.Context, reference string) error {
	_, span := util.StartSpan(ctx, "payment.Simulated.Refund")
	defer span.End()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.charges[reference]; !ok {
		return fmt.Errorf("refund %s: unknown charge", reference)
	}
	g.refunded[reference] = true
	g.logger.Info("Simulated payment refunded", zap.String("reference", reference))
	return nil
}

// Charged returns the amount taken under reference
func (g *Simulated) Charged(reference string) (decimal.Decimal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amt, ok := g.charges[reference]
	return amt, ok
}

// Refunded reports whether the charge under reference was reversed
func (g *Simulated) Refunded(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[reference]
}
