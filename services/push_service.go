package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"tripwire/models"
	"tripwire/utils"
)

// PushService delivers notifications through Firebase Cloud Messaging.
type PushService struct {
	client *messaging.Client
}

func NewPushService(ctx context.Context, credentialsPath, projectID string) (*PushService, error) {
	if credentialsPath == "" {
		return nil, utils.NewConfigurationError("firebase credentials path is not configured")
	}

	conf := &firebase.Config{}
	if projectID != "" {
		conf.ProjectID = projectID
	}

	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, utils.NewConfigurationError(fmt.Sprintf("failed to initialize firebase app: %v", err))
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, utils.NewConfigurationError(fmt.Sprintf("failed to initialize fcm client: %v", err))
	}

	logrus.Info("Push service initialized")
	return &PushService{client: client}, nil
}

func (ps *PushService) Channel() string {
	return models.ChannelPush
}

// Send pushes a single message to one device token. The token travels in
// target.Address; target.Platform selects the platform-specific config.
func (ps *PushService) Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error) {
	message := ps.buildMessage(target, event)

	messageID, err := ps.client.Send(ctx, message)
	if err != nil {
		return nil, ps.classifyError(err)
	}

	return &models.SendResult{ProviderMessageID: messageID}, nil
}

func (ps *PushService) buildMessage(target models.DeliveryTarget, event *models.NotificationEvent) *messaging.Message {
	data := map[string]string{
		"eventId":  event.EventID,
		"tripId":   event.TripID,
		"category": event.Category,
		"priority": event.Priority,
	}
	for k, v := range event.Data {
		if s, ok := v.(string); ok {
			data[k] = s
		} else {
			data[k] = fmt.Sprintf("%v", v)
		}
	}

	message := &messaging.Message{
		Token: target.Address,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Body,
		},
		Data: data,
	}

	switch target.Platform {
	case models.PlatformIOS:
		badge := target.Badge
		message.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Badge: &badge,
					Sound: "default",
				},
			},
		}
	case models.PlatformAndroid:
		message.Android = &messaging.AndroidConfig{
			Priority: ps.androidPriority(event),
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		}
	}

	return message
}

func (ps *PushService) androidPriority(event *models.NotificationEvent) string {
	if event.IsUrgent() || event.Priority == models.PriorityHigh {
		return "high"
	}
	return "normal"
}

func (ps *PushService) classifyError(err error) error {
	switch {
	case messaging.IsUnregistered(err):
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeUnregisteredToken, "device token is no longer registered", err)
	case messaging.IsSenderIDMismatch(err):
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeInvalidToken, "token does not belong to this sender", err)
	case errorutils.IsInvalidArgument(err):
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeInvalidToken, "message rejected as invalid", err)
	case messaging.IsQuotaExceeded(err):
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeThrottled, "fcm quota exceeded", err)
	case errorutils.IsUnavailable(err), errorutils.IsInternal(err):
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "fcm is temporarily unavailable", err)
	default:
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "fcm send failed", err)
	}
}
