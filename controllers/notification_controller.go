package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/repositories"
	"tripwire/services"
	"tripwire/utils"
	"tripwire/workers"
)

type NotificationController struct {
	dispatchService *services.DispatchService
	dispatchWorker  *workers.DispatchWorker
	deliveryLogRepo *repositories.DeliveryLogRepository
	validator       *utils.ValidationService
}

func NewNotificationController(
	dispatchService *services.DispatchService,
	dispatchWorker *workers.DispatchWorker,
	deliveryLogRepo *repositories.DeliveryLogRepository,
	validator *utils.ValidationService,
) *NotificationController {
	return &NotificationController{
		dispatchService: dispatchService,
		dispatchWorker:  dispatchWorker,
		deliveryLogRepo: deliveryLogRepo,
		validator:       validator,
	}
}

// Dispatch fans a notification event out to a trip's members
// @Summary Dispatch notification event
// @Description Fan a notification event out to every entitled trip member. Async by default; ?sync=true blocks for the full report.
// @Tags Notifications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param sync query bool false "Block until delivery completes" default(false)
// @Param request body models.DispatchRequest true "Notification event"
// @Success 200 {object} models.APIResponse{data=models.DeliveryReport}
// @Success 202 {object} models.APIResponse{data=models.DispatchJobResponse}
// @Failure 400 {object} models.APIResponse
// @Failure 401 {object} models.APIResponse
// @Router /notifications/dispatch [post]
func (nc *NotificationController) Dispatch(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := nc.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	event := req.ToEvent(utils.GenerateUUID())

	if c.Query("sync") == "true" {
		report, err := nc.dispatchService.Dispatch(c.Request.Context(), event)
		if err != nil {
			logrus.Errorf("Synchronous dispatch failed: %v", err)
			utils.InternalServerErrorResponse(c, "Failed to dispatch notification event")
			return
		}
		utils.SuccessResponse(c, "Notification event dispatched", report)
		return
	}

	jobID, err := nc.dispatchWorker.SubmitEvent(event)
	if err != nil {
		logrus.Errorf("Failed to queue dispatch job: %v", err)
		utils.ServiceUnavailableResponse(c, "dispatch")
		return
	}

	utils.AcceptedResponse(c, "Notification event queued", models.DispatchJobResponse{
		JobID:               jobID,
		NotificationEventID: event.ID,
		Status:              workers.JobStatusQueued,
	})
}

// GetJob returns the status and, once complete, the report of an async dispatch
// @Summary Get dispatch job
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} models.APIResponse{data=workers.JobResult}
// @Failure 404 {object} models.APIResponse
// @Router /notifications/jobs/{jobId} [get]
func (nc *NotificationController) GetJob(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	result := nc.dispatchWorker.GetJob(c.Param("jobId"))
	if result == nil {
		utils.NotFoundResponse(c, "Dispatch job")
		return
	}

	utils.SuccessResponse(c, "Dispatch job retrieved", result)
}

// GetEventAttempts returns the audit log rows for one notification event
// @Summary Get delivery attempts
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param eventId path string true "Notification event ID"
// @Success 200 {object} models.APIResponse{data=[]models.DeliveryAttempt}
// @Router /notifications/events/{eventId}/attempts [get]
func (nc *NotificationController) GetEventAttempts(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	attempts, err := nc.deliveryLogRepo.GetByEventID(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		logrus.Errorf("Failed to load delivery attempts: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to load delivery attempts")
		return
	}

	utils.SuccessResponse(c, "Delivery attempts retrieved", attempts)
}

// GetWorkerStats exposes the async dispatcher's counters (admin only)
func (nc *NotificationController) GetWorkerStats(c *gin.Context) {
	if c.GetString("role") != models.RoleAdmin {
		utils.ForbiddenResponse(c, "Admin access required")
		return
	}

	utils.SuccessResponse(c, "Worker stats retrieved", nc.dispatchWorker.GetStats())
}
