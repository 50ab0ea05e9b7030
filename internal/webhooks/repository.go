package webhooks

import (
	"context"

	"github.com/chantierops/signalement/internal/domain"
)

// Repository persists webhook subscriptions and their delivery history.
type Repository interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// ResetFailures zeroes consecutive_failures after a successful delivery.
	ResetFailures(ctx context.Context, id string) error
	// RecordFailure increments consecutive_failures and deactivates the
	// subscription once the count reaches deactivateAt. It returns the new
	// count and whether the subscription is still active.
	RecordFailure(ctx context.Context, id string, deactivateAt int) (failures int, active bool, err error)
	// EnableSubscription reactivates a tripped subscription and zeroes its
	// failure count.
	EnableSubscription(ctx context.Context, id string) error

	CreateDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*domain.DeliveryRecord, error)
}
