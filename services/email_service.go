package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/sirupsen/logrus"

	"tripwire/models"
	"tripwire/utils"
)

// EmailService delivers notifications over SMTP as multipart text/html
// messages. Every outgoing email carries an unsubscribe footer pointing at
// the recipient's preference page.
type EmailService struct {
	host     string
	port     string
	username string
	password string
	from     string
	baseURL  string
	tmpl     *template.Template
}

const notificationEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1a7f64; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background: #f8f9fa; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Title}}</h1>
        </div>
        <div class="content">
            <p>{{.Body}}</p>
        </div>
        <div class="footer">
            <p>You are receiving this because of your trip notification settings.</p>
            <p><a href="{{.UnsubscribeURL}}">Manage notification preferences</a></p>
        </div>
    </div>
</body>
</html>`

func NewEmailService(host, port, username, password, from, baseURL string) (*EmailService, error) {
	if host == "" || from == "" {
		return nil, utils.NewConfigurationError("smtp host and from address are required")
	}

	tmpl, err := template.New("notification").Parse(notificationEmailTemplate)
	if err != nil {
		return nil, utils.NewConfigurationError(fmt.Sprintf("failed to parse email template: %v", err))
	}

	logrus.Info("Email service initialized")
	return &EmailService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		baseURL:  baseURL,
		tmpl:     tmpl,
	}, nil
}

func (es *EmailService) Channel() string {
	return models.ChannelEmail
}

// Send delivers one notification email. smtp.SendMail has no context
// support, so the call runs in a goroutine and the caller's deadline
// is honored with a select.
func (es *EmailService) Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error) {
	htmlBody, err := es.buildHTMLBody(event)
	if err != nil {
		return nil, utils.NewPermanentDeliveryError(utils.DeliveryErrCodeProviderError, "failed to render email body", err)
	}

	message := es.buildMessage(target.Address, event.Title, htmlBody, es.buildTextBody(event))
	auth := smtp.PlainAuth("", es.username, es.password, es.host)
	addr := net.JoinHostPort(es.host, es.port)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, es.from, []string{target.Address}, []byte(message))
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, es.classifyError(err)
		}
	case <-ctx.Done():
		return nil, utils.NewTransientDeliveryError(utils.DeliveryErrCodeTimeout, "smtp send timed out", ctx.Err())
	}

	return &models.SendResult{ProviderMessageID: utils.GenerateUUID()}, nil
}

func (es *EmailService) buildHTMLBody(event *models.NotificationEvent) (string, error) {
	var buf bytes.Buffer
	err := es.tmpl.Execute(&buf, map[string]interface{}{
		"Title":          event.Title,
		"Body":           event.Body,
		"UnsubscribeURL": fmt.Sprintf("%s/settings/notifications?trip=%s", es.baseURL, event.TripID),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (es *EmailService) buildTextBody(event *models.NotificationEvent) string {
	return fmt.Sprintf(`%s

%s

---
You are receiving this because of your trip notification settings.
Manage preferences: %s/settings/notifications?trip=%s`,
		event.Title, event.Body, es.baseURL, event.TripID)
}

func (es *EmailService) buildMessage(to, subject, htmlBody, textBody string) string {
	boundary := "boundary-tripwire-email"

	return fmt.Sprintf(`From: %s
To: %s
Subject: %s
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="%s"

--%s
Content-Type: text/plain; charset=UTF-8

%s

--%s
Content-Type: text/html; charset=UTF-8

%s

--%s--`, es.from, to, subject, boundary, boundary, textBody, boundary, htmlBody, boundary)
}

// classifyError maps SMTP reply codes onto delivery errors. 5xx replies are
// permanent rejections; mailbox codes mean the address itself is dead.
// 4xx replies and connection failures are worth retrying.
func (es *EmailService) classifyError(err error) error {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "smtp connection failed", err)
	}

	switch {
	case protoErr.Code == 550 || protoErr.Code == 551 || protoErr.Code == 553:
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeMailboxNotFound, "recipient mailbox does not exist", err)
	case protoErr.Code >= 500:
		return utils.NewPermanentDeliveryError(utils.DeliveryErrCodeProviderError, fmt.Sprintf("smtp server rejected message (%d)", protoErr.Code), err)
	default:
		return utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, fmt.Sprintf("smtp temporary failure (%d)", protoErr.Code), err)
	}
}

// MockEmailService logs instead of sending. Used when SMTP is not
// configured so local environments still exercise the full pipeline.
type MockEmailService struct{}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

func (es *MockEmailService) Channel() string {
	return models.ChannelEmail
}

func (es *MockEmailService) Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error) {
	logrus.Infof("[MOCK EMAIL] To: %s, Subject: %s", utils.MaskEmail(target.Address), event.Title)
	return &models.SendResult{ProviderMessageID: utils.GenerateUUID()}, nil
}
