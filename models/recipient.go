package models

import "time"

// Recipient is a trip member resolved for one dispatch call. It is sourced
// fresh from the membership store each time because preferences may change
// between sends; nothing here is cached across events.
type Recipient struct {
	UserID   string `json:"userId" bson:"userId"`
	TripID   string `json:"tripId" bson:"tripId"`
	Role     string `json:"role" bson:"role"` // member, admin, owner
	Timezone string `json:"timezone" bson:"timezone"`

	ChannelsEnabled ChannelFlags    `json:"channelsEnabled" bson:"channelsEnabled"`
	CategoryPrefs   map[string]bool `json:"categoryPrefs,omitempty" bson:"categoryPrefs,omitempty"`
	QuietHours      QuietHours      `json:"quietHours" bson:"quietHours"`

	PushTokens    []PushToken `json:"pushTokens,omitempty" bson:"pushTokens,omitempty"`
	VerifiedPhone string      `json:"verifiedPhone,omitempty" bson:"verifiedPhone,omitempty"` // E.164
	VerifiedEmail string      `json:"verifiedEmail,omitempty" bson:"verifiedEmail,omitempty"`

	Subscription Subscription `json:"subscription" bson:"subscription"`

	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type ChannelFlags struct {
	Push  bool `json:"push" bson:"push"`
	Email bool `json:"email" bson:"email"`
	SMS   bool `json:"sms" bson:"sms"`
}

type QuietHours struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start" bson:"start"` // HH:MM
	End     string `json:"end" bson:"end"`     // HH:MM
}

type PushToken struct {
	Token    string `json:"token" bson:"token"`
	Platform string `json:"platform" bson:"platform"` // ios, android, web
}

type Subscription struct {
	Plan      string    `json:"plan" bson:"plan"` // free, premium, pro, business
	ExpiresAt time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
}

// Active reports whether the subscription is currently in force. A zero
// ExpiresAt means the plan does not expire.
func (s Subscription) Active() bool {
	if s.Plan == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || s.ExpiresAt.After(time.Now())
}

// Role Constants
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// Subscription Plan Constants
const (
	PlanFree     = "free"
	PlanPremium  = "premium"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// ChannelPermissions is the entitlement resolver's verdict for one
// (recipient, category) pair. DowngradeSMS signals that the user's SMS
// preference should be persistently disabled because the entitlement
// behind it is gone.
type ChannelPermissions struct {
	Push         bool `json:"push"`
	Email        bool `json:"email"`
	SMS          bool `json:"sms"`
	DowngradeSMS bool `json:"downgradeSms"`
}

type UpdatePreferencesRequest struct {
	ChannelsEnabled *ChannelFlags   `json:"channelsEnabled,omitempty"`
	CategoryPrefs   map[string]bool `json:"categoryPrefs,omitempty"`
	QuietHours      *QuietHours     `json:"quietHours,omitempty"`
	Timezone        string          `json:"timezone,omitempty"`
}
