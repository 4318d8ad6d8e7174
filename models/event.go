package models

import "time"

// NotificationEvent is one logical occurrence that fans out to trip members.
// It is immutable after construction and never persisted itself; only the
// per-recipient DeliveryAttempt outcomes are written to the log.
type NotificationEvent struct {
	ID              string                 `json:"id"`
	TripID          string                 `json:"tripId"`
	EventID         string                 `json:"eventId,omitempty"` // optional itinerary item reference
	Category        string                 `json:"category"`
	Priority        string                 `json:"priority"`
	Title           string                 `json:"title"`
	Body            string                 `json:"body"`
	Data            map[string]interface{} `json:"data,omitempty"`
	ExcludedUserIDs []string               `json:"excludedUserIds,omitempty"`
	IncrementBadge  bool                   `json:"incrementBadge"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// IsExcluded reports whether userID is on the event's exclusion list
// (typically the event's own author).
func (e *NotificationEvent) IsExcluded(userID string) bool {
	for _, id := range e.ExcludedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsUrgent reports whether the event bypasses quiet hours.
func (e *NotificationEvent) IsUrgent() bool {
	return e.Priority == PriorityUrgent
}

// Notification Category Constants
const (
	CategoryChatMessage      = "chat_message"
	CategoryTripUpdate       = "trip_update"
	CategoryCalendarReminder = "calendar_reminder"
	CategoryPaymentAlert     = "payment_alert"
	CategoryMemberJoined     = "member_joined"
	CategoryPollCreated      = "poll_created"
	CategoryBroadcast        = "broadcast"
)

// Priority Constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Channel Constants
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Platform Constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// ValidCategories lists every category the dispatcher accepts.
var ValidCategories = []string{
	CategoryChatMessage,
	CategoryTripUpdate,
	CategoryCalendarReminder,
	CategoryPaymentAlert,
	CategoryMemberJoined,
	CategoryPollCreated,
	CategoryBroadcast,
}

// IsValidCategory reports whether category is a recognized event category.
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Request DTOs
type DispatchRequest struct {
	TripID          string                 `json:"tripId" validate:"required"`
	EventID         string                 `json:"eventId,omitempty"`
	Category        string                 `json:"category" validate:"required,notification_category"`
	Priority        string                 `json:"priority" validate:"omitempty,notification_priority"`
	Title           string                 `json:"title" validate:"required,max=200"`
	Body            string                 `json:"body" validate:"required,max=2000"`
	Data            map[string]interface{} `json:"data,omitempty"`
	ExcludedUserIDs []string               `json:"excludedUserIds,omitempty"`
	IncrementBadge  bool                   `json:"incrementBadge"`
}

// ToEvent builds the immutable event from a validated request.
func (r *DispatchRequest) ToEvent(id string) *NotificationEvent {
	priority := r.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	return &NotificationEvent{
		ID:              id,
		TripID:          r.TripID,
		EventID:         r.EventID,
		Category:        r.Category,
		Priority:        priority,
		Title:           r.Title,
		Body:            r.Body,
		Data:            r.Data,
		ExcludedUserIDs: r.ExcludedUserIDs,
		IncrementBadge:  r.IncrementBadge,
		CreatedAt:       time.Now(),
	}
}

type RecordBounceRequest struct {
	Address string `json:"address" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=hard soft complaint"`
	Reason  string `json:"reason,omitempty"`
}

type UnsuppressRequest struct {
	Address string `json:"address" validate:"required"`
}
