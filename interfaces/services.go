package interfaces

import (
	"context"
	"time"

	"tripwire/models"
)

// ChannelSender wraps one external delivery provider. Implementations
// normalize the provider's success/error shape into SendResult and
// utils.DeliveryError so the dispatcher stays provider-agnostic.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error)
}

// RateLimiter enforces per-key fixed-window ceilings. CheckAndIncrement is
// an atomic check-then-increment: concurrent callers racing on one key
// must never both be admitted when only one slot remains.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitDecision, error)
}

// RecipientStore resolves trip members with their delivery preferences,
// sourced fresh per dispatch call.
type RecipientStore interface {
	GetTripRecipients(ctx context.Context, tripID string) ([]models.Recipient, error)
	DisableSMSPreference(ctx context.Context, userID string) error
	RemovePushToken(ctx context.Context, userID, token string) error
}

// DeliveryLogStore is the append-only audit log of delivery attempts.
type DeliveryLogStore interface {
	Append(ctx context.Context, attempt *models.DeliveryAttempt) error
}

// BounceLedger tracks bounce signals and answers suppression checks.
type BounceLedger interface {
	IsSuppressed(ctx context.Context, address string) (bool, error)
	RecordBounce(ctx context.Context, address, bounceType, reason string) error
}

// BadgeStore maintains per-user, per-trip unread counts with atomic
// increments safe under concurrent dispatch calls.
type BadgeStore interface {
	Increment(ctx context.Context, userID, tripID, eventID string, delta int) (int, error)
}
