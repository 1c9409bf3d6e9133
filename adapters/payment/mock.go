package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

var _ repositories.PaymentGateway = (*MockGateway)(nil)

// MockGateway approves every payment after a simulated processing delay
type MockGateway struct {
	delay  time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewMockGateway creates a mock payment gateway
func NewMockGateway(delay time.Duration, logger *zap.Logger) *MockGateway {
	return &MockGateway{delay: delay, now: time.Now, logger: logger}
}

// SimulatePayment implements repositories.PaymentGateway
func (g *MockGateway) SimulatePayment(ctx context.Context, plan entities.Plan) (entities.PaymentReceipt, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return entities.PaymentReceipt{}, ctx.Err()
		}
	}

	now := g.now()
	receipt := entities.PaymentReceipt{
		Success:       true,
		TransactionID: fmt.Sprintf("txn_%d", now.UnixMilli()),
		Plan:          plan.Tier,
		Amount:        plan.Price,
		Message:       "Payment successful! Your subscription is now active.",
		PaidAt:        now,
	}

	g.logger.Info("Simulated payment",
		zap.String("plan", string(plan.Tier)),
		zap.Float64("amount", plan.Price),
		zap.String("transactionID", receipt.TransactionID))
	return receipt, nil
}
