package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BadgeCounter is a per-user, per-trip unread count. Incremented atomically
// by dispatches and zeroed by a mark-read action; the value feeds iOS badge
// numbers directly, so it is always read fresh at dispatch time.
type BadgeCounter struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    string             `json:"userId" bson:"userId"`
	TripID    string             `json:"tripId" bson:"tripId"`
	EventID   string             `json:"eventId,omitempty" bson:"eventId,omitempty"`
	Count     int                `json:"count" bson:"count"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}
