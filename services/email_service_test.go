package services

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwire/models"
	"tripwire/utils"
)

func testEmailService(t *testing.T) *EmailService {
	t.Helper()
	es, err := NewEmailService("smtp.example.com", "587", "user", "pass", "noreply@tripwire.app", "https://tripwire.app")
	require.NoError(t, err)
	return es
}

func TestNewEmailService_RequiresHostAndFrom(t *testing.T) {
	_, err := NewEmailService("", "587", "", "", "noreply@tripwire.app", "")
	require.Error(t, err)

	_, err = NewEmailService("smtp.example.com", "587", "", "", "", "")
	require.Error(t, err)
}

func TestBuildHTMLBody_IncludesContentAndUnsubscribeLink(t *testing.T) {
	es := testEmailService(t)
	event := &models.NotificationEvent{
		TripID: "trip-9",
		Title:  "New poll",
		Body:   "Vote on Saturday's dinner spot",
	}

	html, err := es.buildHTMLBody(event)
	require.NoError(t, err)

	assert.Contains(t, html, "New poll")
	assert.Contains(t, html, "Vote on Saturday&#39;s dinner spot")
	assert.Contains(t, html, "https://tripwire.app/settings/notifications?trip=trip-9")
}

func TestBuildHTMLBody_EscapesMarkup(t *testing.T) {
	es := testEmailService(t)
	event := &models.NotificationEvent{
		TripID: "trip-9",
		Title:  "<script>alert(1)</script>",
		Body:   "plain",
	}

	html, err := es.buildHTMLBody(event)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestBuildMessage_MultipartStructure(t *testing.T) {
	es := testEmailService(t)

	msg := es.buildMessage("member@example.com", "Trip update", "<p>hi</p>", "hi")

	assert.Contains(t, msg, "From: noreply@tripwire.app")
	assert.Contains(t, msg, "To: member@example.com")
	assert.Contains(t, msg, "Subject: Trip update")
	assert.Contains(t, msg, `Content-Type: multipart/alternative; boundary="boundary-tripwire-email"`)
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8")
	assert.True(t, strings.HasSuffix(msg, "--boundary-tripwire-email--"))
}

func TestEmailClassifyError(t *testing.T) {
	es := testEmailService(t)

	tests := []struct {
		name      string
		err       error
		wantCode  string
		permanent bool
	}{
		{
			name:      "mailbox not found",
			err:       &textproto.Error{Code: 550, Msg: "no such user"},
			wantCode:  utils.DeliveryErrCodeMailboxNotFound,
			permanent: true,
		},
		{
			name:      "user not local",
			err:       &textproto.Error{Code: 551, Msg: "user not local"},
			wantCode:  utils.DeliveryErrCodeMailboxNotFound,
			permanent: true,
		},
		{
			name:      "mailbox name not allowed",
			err:       &textproto.Error{Code: 553, Msg: "mailbox name not allowed"},
			wantCode:  utils.DeliveryErrCodeMailboxNotFound,
			permanent: true,
		},
		{
			name:      "other permanent rejection",
			err:       &textproto.Error{Code: 554, Msg: "transaction failed"},
			wantCode:  utils.DeliveryErrCodeProviderError,
			permanent: true,
		},
		{
			name:      "temporary failure",
			err:       &textproto.Error{Code: 451, Msg: "try again later"},
			wantCode:  utils.DeliveryErrCodeProviderError,
			permanent: false,
		},
		{
			name:      "connection failure",
			err:       errors.New("dial tcp: connection refused"),
			wantCode:  utils.DeliveryErrCodeProviderError,
			permanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := es.classifyError(tt.err)

			deliveryErr, ok := utils.GetDeliveryError(classified)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, deliveryErr.Code)
			assert.Equal(t, tt.permanent, deliveryErr.Permanent)
		})
	}
}

func TestMockEmailService_AlwaysSucceeds(t *testing.T) {
	mock := NewMockEmailService()
	assert.Equal(t, models.ChannelEmail, mock.Channel())

	result, err := mock.Send(context.Background(), models.DeliveryTarget{
		UserID:  "u1",
		Channel: models.ChannelEmail,
		Address: "member@example.com",
	}, &models.NotificationEvent{Title: "hello"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.ProviderMessageID)
}
