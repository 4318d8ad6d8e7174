package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/repositories"
	"tripwire/utils"
)

type PreferenceController struct {
	recipientRepo *repositories.RecipientRepository
	validator     *utils.ValidationService
}

func NewPreferenceController(recipientRepo *repositories.RecipientRepository, validator *utils.ValidationService) *PreferenceController {
	return &PreferenceController{
		recipientRepo: recipientRepo,
		validator:     validator,
	}
}

// GetPreferences returns the caller's notification settings for one trip
// @Summary Get notification preferences
// @Tags Preferences
// @Security BearerAuth
// @Produce json
// @Param tripId path string true "Trip ID"
// @Success 200 {object} models.APIResponse{data=models.Recipient}
// @Router /trips/{tripId}/preferences [get]
func (pc *PreferenceController) GetPreferences(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	recipient, err := pc.recipientRepo.GetRecipient(c.Request.Context(), c.Param("tripId"), userID)
	if err != nil {
		logrus.Errorf("Failed to load preferences for user %s: %v", userID, err)
		utils.NotFoundResponse(c, "Trip membership")
		return
	}

	utils.SuccessResponse(c, "Preferences retrieved", recipient)
}

// UpdatePreferences updates the caller's notification settings for one trip
// @Summary Update notification preferences
// @Tags Preferences
// @Security BearerAuth
// @Accept json
// @Param tripId path string true "Trip ID"
// @Param request body models.UpdatePreferencesRequest true "Preference changes"
// @Success 200 {object} models.APIResponse
// @Router /trips/{tripId}/preferences [put]
func (pc *PreferenceController) UpdatePreferences(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if req.QuietHours != nil && req.QuietHours.Enabled {
		if !utils.ValidateTimeFormat(req.QuietHours.Start) || !utils.ValidateTimeFormat(req.QuietHours.End) {
			utils.BadRequestResponse(c, "Quiet hours must use HH:MM format")
			return
		}
	}

	if err := pc.recipientRepo.UpdatePreferences(c.Request.Context(), c.Param("tripId"), userID, req); err != nil {
		logrus.Errorf("Failed to update preferences for user %s: %v", userID, err)
		utils.InternalServerErrorResponse(c, "Failed to update preferences")
		return
	}

	utils.SuccessResponse(c, "Preferences updated", nil)
}
