package repositories

import (
	"context"

	"github.com/linguaforge/server/domain/entities"
)

// Tutor analyzes what the learner said and produces the tutor's reply
type Tutor interface {
	Analyze(ctx context.Context, userText string) (entities.TutorReply, error)
}

// ConversationMemory is implemented by tutors that keep dialogue context
// between turns. Forget drops it when the transcript is reset.
type ConversationMemory interface {
	Forget()
}

// PaymentGateway charges for a subscription plan
type PaymentGateway interface {
	SimulatePayment(ctx context.Context, plan entities.Plan) (entities.PaymentReceipt, error)
}
