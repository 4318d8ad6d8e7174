package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripwire/services"
	"tripwire/utils"
)

type BadgeController struct {
	badgeService *services.BadgeService
}

func NewBadgeController(badgeService *services.BadgeService) *BadgeController {
	return &BadgeController{
		badgeService: badgeService,
	}
}

// GetBadges returns the caller's per-trip unread counts
// @Summary Get badge counts
// @Tags Badges
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.BadgeCounter}
// @Router /badges [get]
func (bc *BadgeController) GetBadges(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	badges, err := bc.badgeService.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		logrus.Errorf("Failed to load badges for user %s: %v", userID, err)
		utils.InternalServerErrorResponse(c, "Failed to load badge counts")
		return
	}

	utils.SuccessResponse(c, "Badge counts retrieved", badges)
}

// GetTripBadge returns the caller's unread count for one trip
func (bc *BadgeController) GetTripBadge(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	badge, err := bc.badgeService.Get(c.Request.Context(), userID, c.Param("tripId"))
	if err != nil {
		logrus.Errorf("Failed to load badge for user %s: %v", userID, err)
		utils.InternalServerErrorResponse(c, "Failed to load badge count")
		return
	}

	utils.SuccessResponse(c, "Badge count retrieved", badge)
}

// ResetBadge zeroes the caller's unread count for one trip, typically when
// the trip screen is opened.
// @Summary Reset badge count
// @Tags Badges
// @Security BearerAuth
// @Param tripId path string true "Trip ID"
// @Success 200 {object} models.APIResponse
// @Router /badges/{tripId}/reset [post]
func (bc *BadgeController) ResetBadge(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	if err := bc.badgeService.Reset(c.Request.Context(), userID, c.Param("tripId")); err != nil {
		logrus.Errorf("Failed to reset badge for user %s: %v", userID, err)
		utils.InternalServerErrorResponse(c, "Failed to reset badge count")
		return
	}

	utils.SuccessResponse(c, "Badge count reset", nil)
}
