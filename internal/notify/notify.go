// Package notify decouples treasury operations from how members hear about
// them. The default sink only logs; a mail or push implementation can be
// swapped in without touching the services.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notifier receives money-movement announcements. Implementations must be
// safe for concurrent use and must not block the caller for long; failures
// are the implementation's problem, callers never roll back on them.
type Notifier interface {
	EarningsDistributed(ctx context.Context, userID uuid.UUID, eventName string, amount decimal.Decimal)
	WalletDebited(ctx context.Context, userID uuid.UUID, amount, balance decimal.Decimal)
	PaymentOverdue(ctx context.Context, userID uuid.UUID, paymentID uuid.UUID)
}

// LogNotifier writes every notification to the structured log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) EarningsDistributed(_ context.Context, userID uuid.UUID, eventName string, amount decimal.Decimal) {
	slog.Info("notify: earnings distributed",
		"user_id", userID,
		"event", eventName,
		"amount", amount.StringFixed(2))
}

func (n *LogNotifier) WalletDebited(_ context.Context, userID uuid.UUID, amount, balance decimal.Decimal) {
	slog.Info("notify: wallet debited",
		"user_id", userID,
		"amount", amount.StringFixed(2),
		"balance", balance.StringFixed(2))
}

func (n *LogNotifier) PaymentOverdue(_ context.Context, userID uuid.UUID, paymentID uuid.UUID) {
	slog.Info("notify: payment overdue",
		"user_id", userID,
		"payment_id", paymentID)
}
