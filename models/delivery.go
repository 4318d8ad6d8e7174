package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryAttempt is one append-only log row. Every attempt gets a row,
// including each retry; policy skips get a single row with AttemptNumber 0.
type DeliveryAttempt struct {
	ID                  primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	NotificationEventID string             `json:"notificationEventId" bson:"notificationEventId"`
	TripID              string             `json:"tripId" bson:"tripId"`
	UserID              string             `json:"userId" bson:"userId"`
	Channel             string             `json:"channel" bson:"channel"`
	Platform            string             `json:"platform,omitempty" bson:"platform,omitempty"`
	AttemptNumber       int                `json:"attemptNumber" bson:"attemptNumber"`
	Outcome             string             `json:"outcome" bson:"outcome"`
	ErrorMessage        string             `json:"errorMessage,omitempty" bson:"errorMessage,omitempty"`
	ProviderMessageID   string             `json:"providerMessageId,omitempty" bson:"providerMessageId,omitempty"`
	Timestamp           time.Time          `json:"timestamp" bson:"timestamp"`
}

// Delivery Outcome Constants
const (
	OutcomeSent            = "sent"
	OutcomeFailed          = "failed"
	OutcomeRateLimited     = "rate_limited"
	OutcomeSuppressed      = "suppressed"
	OutcomeSkippedPref     = "skipped_preference"
	OutcomeSkippedQuietHrs = "skipped_quiet_hours"
)

// DeliveryTarget is the concrete address a channel sender delivers to:
// a device token for push, an email address, or an E.164 phone number.
type DeliveryTarget struct {
	UserID   string `json:"userId"`
	Channel  string `json:"channel"`
	Address  string `json:"address"`
	Platform string `json:"platform,omitempty"` // push only
	Badge    int    `json:"badge,omitempty"`    // push only
}

// SendResult is a channel sender's normalized success shape.
type SendResult struct {
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

// ChannelCounts aggregates final outcomes per channel for one dispatch.
type ChannelCounts struct {
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rateLimited"`
	Suppressed  int `json:"suppressed"`
	Skipped     int `json:"skipped"`
}

// DeliveryReport is the aggregate returned to the caller after one
// dispatch call. Attempts holds every log row the call produced.
type DeliveryReport struct {
	NotificationEventID string                    `json:"notificationEventId"`
	TripID              string                    `json:"tripId"`
	Recipients          int                       `json:"recipients"`
	Counts              map[string]*ChannelCounts `json:"counts"`
	Attempts            []DeliveryAttempt         `json:"attempts"`
	StartedAt           time.Time                 `json:"startedAt"`
	CompletedAt         time.Time                 `json:"completedAt"`
}

// NewDeliveryReport initializes the per-channel counters for one event.
func NewDeliveryReport(event *NotificationEvent) *DeliveryReport {
	return &DeliveryReport{
		NotificationEventID: event.ID,
		TripID:              event.TripID,
		Counts: map[string]*ChannelCounts{
			ChannelPush:  {},
			ChannelEmail: {},
			ChannelSMS:   {},
		},
		StartedAt: time.Now(),
	}
}

// RateLimitDecision is the rate limiter gate's verdict for one key.
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}
