package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

// Profile is the part of the Ledger that subscription changes go through
type Profile interface {
	Current() (*entities.User, error)
	Update(ctx context.Context, mutate func(u *entities.User)) (*entities.User, error)
}

// SubscriptionService changes the learner's plan after a simulated payment
type SubscriptionService struct {
	gateway repositories.PaymentGateway
	profile Profile
	now     Clock
	logger  *zap.Logger
}

// NewSubscriptionService creates the service
func NewSubscriptionService(gateway repositories.PaymentGateway, profile Profile, clock Clock, logger *zap.Logger) *SubscriptionService {
	if clock == nil {
		clock = time.Now
	}
	return &SubscriptionService{
		gateway: gateway,
		profile: profile,
		now:     clock,
		logger:  logger,
	}
}

// Plans returns the plan catalog
func (s *SubscriptionService) Plans() []entities.Plan {
	return entities.Plans()
}

// Subscribe charges for the plan, if it is paid, and switches the user to it
func (s *SubscriptionService) Subscribe(ctx context.Context, tier entities.SubscriptionTier) (*entities.User, *entities.PaymentReceipt, error) {
	plan, err := entities.PlanFor(tier)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.profile.Current(); err != nil {
		return nil, nil, err
	}

	receipt := entities.PaymentReceipt{
		Success: true,
		Plan:    plan.Tier,
		Message: "Switched to the free plan",
		PaidAt:  s.now(),
	}
	if plan.Paid() {
		s.logger.Info("Processing payment", zap.String("plan", string(plan.Tier)), zap.Float64("amount", plan.Price))
		receipt, err = s.gateway.SimulatePayment(ctx, plan)
		if err != nil {
			s.logger.Error("Payment failed", zap.String("plan", string(plan.Tier)), zap.Error(err))
			return nil, nil, entities.Provider("payment", err)
		}
		if !receipt.Success {
			s.logger.Warn("Payment declined", zap.String("plan", string(plan.Tier)), zap.String("message", receipt.Message))
			return nil, &receipt, entities.Provider("payment", entities.Validation("payment declined: %s", receipt.Message))
		}
	}

	start := s.now()
	user, err := s.profile.Update(ctx, func(u *entities.User) {
		u.Subscription = plan.Tier
		u.SubscriptionID = receipt.TransactionID
		u.SubscriptionStart = &start
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Subscription changed",
		zap.String("userID", user.ID),
		zap.String("plan", string(plan.Tier)),
		zap.String("transactionID", receipt.TransactionID))
	return user, &receipt, nil
}

// CancelSubscription returns the user to the free tier
func (s *SubscriptionService) CancelSubscription(ctx context.Context) (*entities.User, error) {
	user, err := s.profile.Update(ctx, func(u *entities.User) {
		u.Subscription = entities.TierFree
		u.SubscriptionID = ""
		u.SubscriptionStart = nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Subscription cancelled", zap.String("userID", user.ID))
	return user, nil
}
