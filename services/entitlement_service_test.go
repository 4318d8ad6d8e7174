package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tripwire/models"
)

func premiumRecipient() *models.Recipient {
	return &models.Recipient{
		UserID: "user-1",
		TripID: "trip-1",
		Role:   models.RoleMember,
		ChannelsEnabled: models.ChannelFlags{
			Push:  true,
			Email: true,
			SMS:   true,
		},
		Subscription: models.Subscription{Plan: models.PlanPremium},
	}
}

func TestResolve_AllChannelsForEntitledRecipient(t *testing.T) {
	es := NewEntitlementService()

	perms := es.Resolve(premiumRecipient(), models.CategoryTripUpdate)

	assert.True(t, perms.Push)
	assert.True(t, perms.Email)
	assert.True(t, perms.SMS)
	assert.False(t, perms.DowngradeSMS)
}

func TestResolve_ChannelFlagsGateEachChannel(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.ChannelsEnabled = models.ChannelFlags{Push: true, Email: false, SMS: false}

	perms := es.Resolve(r, models.CategoryTripUpdate)

	assert.True(t, perms.Push)
	assert.False(t, perms.Email)
	assert.False(t, perms.SMS)
	assert.False(t, perms.DowngradeSMS, "SMS switched off is a preference, not a downgrade")
}

func TestResolve_CategoryOptOutSilencesAllChannels(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.CategoryPrefs = map[string]bool{models.CategoryChatMessage: false}

	perms := es.Resolve(r, models.CategoryChatMessage)
	assert.False(t, perms.Push)
	assert.False(t, perms.Email)
	assert.False(t, perms.SMS)

	// Other categories stay unaffected.
	perms = es.Resolve(r, models.CategoryTripUpdate)
	assert.True(t, perms.Push)
}

func TestResolve_UnlistedCategoryDefaultsToEnabled(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.CategoryPrefs = map[string]bool{models.CategoryChatMessage: false}

	perms := es.Resolve(r, models.CategoryPaymentAlert)
	assert.True(t, perms.Push)
}

func TestResolve_FreePlanTriggersSMSDowngrade(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.Subscription = models.Subscription{Plan: models.PlanFree}

	perms := es.Resolve(r, models.CategoryTripUpdate)

	assert.True(t, perms.Push)
	assert.True(t, perms.Email)
	assert.False(t, perms.SMS)
	assert.True(t, perms.DowngradeSMS)
}

func TestResolve_ExpiredSubscriptionTriggersSMSDowngrade(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.Subscription = models.Subscription{
		Plan:      models.PlanPro,
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}

	perms := es.Resolve(r, models.CategoryTripUpdate)

	assert.False(t, perms.SMS)
	assert.True(t, perms.DowngradeSMS)
}

func TestResolve_AdminRoleBypassesPlanCheck(t *testing.T) {
	es := NewEntitlementService()

	for _, role := range []string{models.RoleAdmin, models.RoleOwner} {
		r := premiumRecipient()
		r.Role = role
		r.Subscription = models.Subscription{Plan: models.PlanFree}

		perms := es.Resolve(r, models.CategoryTripUpdate)
		assert.True(t, perms.SMS, "role %s should keep SMS without a plan", role)
		assert.False(t, perms.DowngradeSMS)
	}
}

func TestResolve_NoDowngradeWhenSMSAlreadyOff(t *testing.T) {
	es := NewEntitlementService()
	r := premiumRecipient()
	r.ChannelsEnabled.SMS = false
	r.Subscription = models.Subscription{Plan: models.PlanFree}

	perms := es.Resolve(r, models.CategoryTripUpdate)
	assert.False(t, perms.SMS)
	assert.False(t, perms.DowngradeSMS)
}
