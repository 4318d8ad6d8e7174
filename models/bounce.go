package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BounceRecord tracks delivery-provider bounce signals per address. A hard
// bounce or complaint sets Suppressed permanently; soft bounces accumulate
// until a configurable threshold. Suppression is only ever cleared by a
// manual override.
type BounceRecord struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Address      string             `json:"address" bson:"address"`
	BounceType   string             `json:"bounceType" bson:"bounceType"`
	BounceCount  int                `json:"bounceCount" bson:"bounceCount"`
	LastBounceAt time.Time          `json:"lastBounceAt" bson:"lastBounceAt"`
	LastReason   string             `json:"lastReason,omitempty" bson:"lastReason,omitempty"`
	Suppressed   bool               `json:"suppressed" bson:"suppressed"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Bounce Type Constants
const (
	BounceTypeHard      = "hard"
	BounceTypeSoft      = "soft"
	BounceTypeComplaint = "complaint"
)
