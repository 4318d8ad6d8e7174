package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/services"
	"tripwire/utils"
)

// WebhookController receives provider callbacks that feed the bounce ledger:
// inbound bounce reports from the email provider and Twilio delivery status
// callbacks. It also hosts the admin-only suppression endpoints.
type WebhookController struct {
	bounceService *services.BounceService
	validator     *utils.ValidationService
}

func NewWebhookController(bounceService *services.BounceService, validator *utils.ValidationService) *WebhookController {
	return &WebhookController{
		bounceService: bounceService,
		validator:     validator,
	}
}

// emailBounceWebhookPayload is the normalized shape our email provider is
// configured to post on bounces and complaints.
type emailBounceWebhookPayload struct {
	Address string `json:"address"`
	Type    string `json:"type"` // bounce, soft_bounce, complaint
	Reason  string `json:"reason"`
}

// EmailBounce ingests a bounce or complaint report from the email provider
// @Summary Email bounce webhook
// @Tags Webhooks
// @Accept json
// @Success 200 {object} models.APIResponse
// @Router /webhooks/email/bounce [post]
func (wc *WebhookController) EmailBounce(c *gin.Context) {
	var payload emailBounceWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.BadRequestResponse(c, "Invalid webhook payload")
		return
	}

	if payload.Address == "" {
		utils.BadRequestResponse(c, "Missing bounce address")
		return
	}

	bounceType := models.BounceTypeHard
	switch payload.Type {
	case "soft_bounce":
		bounceType = models.BounceTypeSoft
	case "complaint":
		bounceType = models.BounceTypeComplaint
	}

	if err := wc.bounceService.RecordBounce(c.Request.Context(), payload.Address, bounceType, payload.Reason); err != nil {
		logrus.Errorf("Failed to record email bounce: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to record bounce")
		return
	}

	utils.SuccessResponse(c, "Bounce recorded", nil)
}

// SMSStatus ingests a Twilio delivery status callback. Twilio posts
// form-encoded fields; only terminal failure states feed the ledger.
// @Summary Twilio status webhook
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Success 200 {object} models.APIResponse
// @Router /webhooks/sms/status [post]
func (wc *WebhookController) SMSStatus(c *gin.Context) {
	messageStatus := c.PostForm("MessageStatus")
	to := c.PostForm("To")
	errorCode := c.PostForm("ErrorCode")

	logrus.WithFields(logrus.Fields{
		"status":    messageStatus,
		"errorCode": errorCode,
		"to":        utils.MaskPhoneNumber(to),
	}).Debug("Twilio status callback")

	if messageStatus != "failed" && messageStatus != "undelivered" {
		utils.SuccessResponse(c, "Status acknowledged", nil)
		return
	}

	if to == "" {
		utils.BadRequestResponse(c, "Missing destination number")
		return
	}

	// Unreachable or unsubscribed numbers are dead; everything else is
	// treated as a soft failure that suppresses only on repetition.
	bounceType := models.BounceTypeSoft
	switch errorCode {
	case "21211", "21610", "21614", "30003", "30005", "30006":
		bounceType = models.BounceTypeHard
	}

	reason := "twilio status " + messageStatus
	if errorCode != "" {
		reason += " (error " + errorCode + ")"
	}

	if err := wc.bounceService.RecordBounce(c.Request.Context(), to, bounceType, reason); err != nil {
		logrus.Errorf("Failed to record sms bounce: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to record bounce")
		return
	}

	utils.SuccessResponse(c, "Bounce recorded", nil)
}

// RecordBounce lets an operator feed the ledger by hand (admin only)
func (wc *WebhookController) RecordBounce(c *gin.Context) {
	var req models.RecordBounceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := wc.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if err := wc.bounceService.RecordBounce(c.Request.Context(), req.Address, req.Type, req.Reason); err != nil {
		logrus.Errorf("Failed to record bounce: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to record bounce")
		return
	}

	utils.SuccessResponse(c, "Bounce recorded", nil)
}

// RemoveSuppression clears a suppressed address after the operator has
// verified it is deliverable again (admin only). Suppression never expires
// on its own.
func (wc *WebhookController) RemoveSuppression(c *gin.Context) {
	var req models.UnsuppressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := wc.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if err := wc.bounceService.Unsuppress(c.Request.Context(), req.Address); err != nil {
		logrus.Errorf("Failed to remove suppression: %v", err)
		utils.NotFoundResponse(c, "Suppressed address")
		return
	}

	utils.SuccessResponse(c, "Suppression removed", nil)
}

// GetSuppression returns the ledger record for one address (admin only)
func (wc *WebhookController) GetSuppression(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		utils.BadRequestResponse(c, "Missing address")
		return
	}

	record, err := wc.bounceService.GetRecord(c.Request.Context(), address)
	if err != nil {
		logrus.Errorf("Failed to load bounce record: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to load bounce record")
		return
	}
	if record == nil {
		utils.NotFoundResponse(c, "Bounce record")
		return
	}

	utils.SuccessResponse(c, "Bounce record retrieved", record)
}
