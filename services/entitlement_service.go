// services/entitlement_service.go
package services

import (
	"github.com/sirupsen/logrus"

	"tripwire/models"
)

// EntitlementService decides which channels a recipient may receive a
// category through. A channel is allowed only when both the channel-level
// flag and the category-level flag are on; SMS additionally needs an
// active qualifying subscription or an administrative role.
type EntitlementService struct {
	qualifyingPlans map[string]bool
	bypassRoles     map[string]bool
}

func NewEntitlementService() *EntitlementService {
	return &EntitlementService{
		qualifyingPlans: map[string]bool{
			models.PlanPremium:  true,
			models.PlanPro:      true,
			models.PlanBusiness: true,
		},
		bypassRoles: map[string]bool{
			models.RoleAdmin: true,
			models.RoleOwner: true,
		},
	}
}

// Resolve computes the channel permissions for one (recipient, category)
// pair. When the recipient has SMS switched on but no longer holds the
// entitlement behind it, DowngradeSMS asks the caller to persist
// sms_enabled=false instead of silently dropping the message every time.
func (es *EntitlementService) Resolve(recipient *models.Recipient, category string) models.ChannelPermissions {
	categoryEnabled := es.categoryEnabled(recipient, category)

	perms := models.ChannelPermissions{
		Push:  recipient.ChannelsEnabled.Push && categoryEnabled,
		Email: recipient.ChannelsEnabled.Email && categoryEnabled,
		SMS:   recipient.ChannelsEnabled.SMS && categoryEnabled,
	}

	if perms.SMS && !es.hasSMSEntitlement(recipient) {
		perms.SMS = false
		perms.DowngradeSMS = true

		logrus.WithFields(logrus.Fields{
			"userId": recipient.UserID,
			"plan":   recipient.Subscription.Plan,
		}).Info("SMS preference enabled without entitlement, downgrading")
	}

	return perms
}

// categoryEnabled checks the per-category opt-in. Categories absent from
// the preference map default to enabled.
func (es *EntitlementService) categoryEnabled(recipient *models.Recipient, category string) bool {
	if recipient.CategoryPrefs == nil {
		return true
	}
	enabled, exists := recipient.CategoryPrefs[category]
	if !exists {
		return true
	}
	return enabled
}

func (es *EntitlementService) hasSMSEntitlement(recipient *models.Recipient) bool {
	if es.bypassRoles[recipient.Role] {
		return true
	}
	return es.qualifyingPlans[recipient.Subscription.Plan] && recipient.Subscription.Active()
}
