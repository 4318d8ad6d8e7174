package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"tripwire/models"
	"tripwire/utils"
)

// SMSService delivers notifications over Twilio SMS. Bodies are kept to a
// single SMS segment; anything longer is truncated.
type SMSService struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewSMSService(accountSID, authToken, fromNumber string) (*SMSService, error) {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return nil, utils.NewConfigurationError("twilio account sid, auth token and from number are required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	client.SetTimeout(30 * time.Second)

	logrus.Info("SMS service initialized")
	return &SMSService{
		client:     client,
		fromNumber: fromNumber,
	}, nil
}

func (ss *SMSService) Channel() string {
	return models.ChannelSMS
}

// Send delivers one SMS. The Twilio client has no context support, so the
// call runs in a goroutine and the caller's deadline is honored with a select.
func (ss *SMSService) Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error) {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(target.Address)
	params.SetFrom(ss.fromNumber)
	params.SetBody(ss.formatSMSBody(event))

	type sendOutcome struct {
		resp *twilioapi.ApiV2010Message
		err  error
	}
	done := make(chan sendOutcome, 1)
	go func() {
		resp, err := ss.client.Api.CreateMessage(params)
		done <- sendOutcome{resp: resp, err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return nil, ss.classifyError(outcome.err)
		}
		result := &models.SendResult{}
		if outcome.resp != nil && outcome.resp.Sid != nil {
			result.ProviderMessageID = *outcome.resp.Sid
		}
		return result, nil
	case <-ctx.Done():
		return nil, utils.NewTransientDeliveryError(utils.DeliveryErrCodeTimeout, "sms send timed out", ctx.Err())
	}
}

// formatSMSBody flattens the notification into one SMS segment with an
// app signature.
func (ss *SMSService) formatSMSBody(event *models.NotificationEvent) string {
	content := fmt.Sprintf("%s: %s", event.Title, event.Body)
	if event.IsUrgent() {
		content = "URGENT - " + content
	}

	const signature = " - Tripwire"
	if len(content) > 160-len(signature) {
		content = utils.TruncateString(content, 160-len(signature))
	}

	return content + signature
}

// Twilio error codes for numbers that will never receive a message.
const (
	twilioErrInvalidTo        = 21211
	twilioErrUnsubscribed     = 21610
	twilioErrNotMobileCapable = 21614
)

func (ss *SMSService) classifyError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "twilio request failed", err)
	}

	switch {
	case restErr.Code == twilioErrInvalidTo || restErr.Code == twilioErrNotMobileCapable:
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeInvalidNumber, "phone number cannot receive sms", err)
	case restErr.Code == twilioErrUnsubscribed:
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeOptedOut, "recipient has opted out of sms", err)
	case restErr.Status == 429:
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeThrottled, "twilio rate limit hit", err)
	case restErr.Status >= 500:
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "twilio is temporarily unavailable", err)
	default:
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeProviderError, fmt.Sprintf("twilio rejected message (%d)", restErr.Code), err)
	}
}
