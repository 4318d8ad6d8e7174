package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwire/interfaces"
	"tripwire/models"
	"tripwire/utils"
)

// fakeRecipientStore serves a fixed roster and records the self-healing
// writes the dispatcher issues.
type fakeRecipientStore struct {
	mu            sync.Mutex
	roster        []models.Recipient
	err           error
	smsDowngrades []string
	removedTokens map[string][]string
}

func (f *fakeRecipientStore) GetTripRecipients(ctx context.Context, tripID string) ([]models.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roster, nil
}

func (f *fakeRecipientStore) DisableSMSPreference(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smsDowngrades = append(f.smsDowngrades, userID)
	return nil
}

func (f *fakeRecipientStore) RemovePushToken(ctx context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removedTokens == nil {
		f.removedTokens = make(map[string][]string)
	}
	f.removedTokens[userID] = append(f.removedTokens[userID], token)
	return nil
}

type fakeDeliveryLog struct {
	mu       sync.Mutex
	attempts []models.DeliveryAttempt
}

func (f *fakeDeliveryLog) Append(ctx context.Context, attempt *models.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeDeliveryLog) rows(channel, outcome string) []models.DeliveryAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DeliveryAttempt
	for _, a := range f.attempts {
		if a.Channel == channel && a.Outcome == outcome {
			out = append(out, a)
		}
	}
	return out
}

type fakeBounceLedger struct {
	mu         sync.Mutex
	suppressed map[string]bool
	bounces    map[string]string // address -> bounceType
}

func newFakeBounceLedger() *fakeBounceLedger {
	return &fakeBounceLedger{
		suppressed: make(map[string]bool),
		bounces:    make(map[string]string),
	}
}

func (f *fakeBounceLedger) IsSuppressed(ctx context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed[address], nil
}

func (f *fakeBounceLedger) RecordBounce(ctx context.Context, address, bounceType, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounces[address] = bounceType
	return nil
}

type fakeBadgeStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeBadgeStore) Increment(ctx context.Context, userID, tripID, eventID string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	key := userID + ":" + tripID
	f.counts[key] += delta
	return f.counts[key], nil
}

// fakeSender succeeds by default; errs maps addresses to a canned failure.
type fakeSender struct {
	mu      sync.Mutex
	channel string
	errs    map[string]error
	sends   []models.DeliveryTarget
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(ctx context.Context, target models.DeliveryTarget, event *models.NotificationEvent) (*models.SendResult, error) {
	f.mu.Lock()
	f.sends = append(f.sends, target)
	f.mu.Unlock()
	if err, ok := f.errs[target.Address]; ok {
		return nil, err
	}
	return &models.SendResult{ProviderMessageID: "msg-" + target.Address}, nil
}

func (f *fakeSender) sentAddresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sends {
		out = append(out, s.Address)
	}
	return out
}

type dispatchFixture struct {
	recipients *fakeRecipientStore
	log        *fakeDeliveryLog
	bounces    *fakeBounceLedger
	badges     *fakeBadgeStore
	push       *fakeSender
	email      *fakeSender
	sms        *fakeSender
	service    *DispatchService
}

func newDispatchFixture(roster []models.Recipient) *dispatchFixture {
	f := &dispatchFixture{
		recipients: &fakeRecipientStore{roster: roster},
		log:        &fakeDeliveryLog{},
		bounces:    newFakeBounceLedger(),
		badges:     &fakeBadgeStore{},
		push:       &fakeSender{channel: models.ChannelPush, errs: map[string]error{}},
		email:      &fakeSender{channel: models.ChannelEmail, errs: map[string]error{}},
		sms:        &fakeSender{channel: models.ChannelSMS, errs: map[string]error{}},
	}

	f.service = NewDispatchService(
		f.recipients,
		f.log,
		f.bounces,
		f.badges,
		utils.NewMemoryRateLimiter(),
		NewEntitlementService(),
		[]interfaces.ChannelSender{f.push, f.email, f.sms},
		DispatchConfig{
			RetrySchedule: []time.Duration{time.Millisecond, time.Millisecond},
		},
	)
	return f
}

func fullyReachableMember(userID string) models.Recipient {
	return models.Recipient{
		UserID:   userID,
		TripID:   "trip-1",
		Role:     models.RoleMember,
		Timezone: "UTC",
		ChannelsEnabled: models.ChannelFlags{
			Push:  true,
			Email: true,
			SMS:   true,
		},
		PushTokens:    []models.PushToken{{Token: "token-" + userID, Platform: models.PlatformIOS}},
		VerifiedEmail: userID + "@example.com",
		VerifiedPhone: "+1555000" + userID,
		Subscription:  models.Subscription{Plan: models.PlanPremium},
	}
}

func tripEvent() *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:       "evt-1",
		TripID:   "trip-1",
		Category: models.CategoryTripUpdate,
		Priority: models.PriorityNormal,
		Title:    "Gate change",
		Body:     "Flight now departs from gate 42",
	}
}

func TestDispatch_SendsAllChannelsForEntitledMember(t *testing.T) {
	f := newDispatchFixture([]models.Recipient{fullyReachableMember("u1")})

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, 1, report.Counts[models.ChannelPush].Sent)
	assert.Equal(t, 1, report.Counts[models.ChannelEmail].Sent)
	assert.Equal(t, 1, report.Counts[models.ChannelSMS].Sent)
	assert.False(t, report.CompletedAt.IsZero())

	sentRows := f.log.rows(models.ChannelPush, models.OutcomeSent)
	require.Len(t, sentRows, 1)
	assert.Equal(t, 1, sentRows[0].AttemptNumber)
	assert.Equal(t, "msg-token-u1", sentRows[0].ProviderMessageID)
}

func TestDispatch_ExcludedAuthorGetsNothing(t *testing.T) {
	f := newDispatchFixture([]models.Recipient{
		fullyReachableMember("author"),
		fullyReachableMember("u2"),
	})

	event := tripEvent()
	event.ExcludedUserIDs = []string{"author"}

	report, err := f.service.Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Recipients)
	assert.NotContains(t, f.push.sentAddresses(), "token-author")
	assert.Contains(t, f.push.sentAddresses(), "token-u2")
}

func TestDispatch_RecipientLookupFailureIsTheOnlyHardError(t *testing.T) {
	f := newDispatchFixture(nil)
	f.recipients.err = utils.NewDatabaseError("find trip members", nil)

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.Error(t, err)
	assert.Nil(t, report)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeDispatchService, serviceErr.Code)
}

func TestDispatch_PreferenceSkipsAreLoggedNotSent(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled.Email = false
	f := newDispatchFixture([]models.Recipient{member})

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelEmail].Skipped)
	assert.Equal(t, 0, report.Counts[models.ChannelEmail].Sent)
	assert.Empty(t, f.email.sentAddresses())

	skipRows := f.log.rows(models.ChannelEmail, models.OutcomeSkippedPref)
	require.Len(t, skipRows, 1)
	assert.Equal(t, 0, skipRows[0].AttemptNumber)
}

func TestDispatch_QuietHoursSkipNonUrgent(t *testing.T) {
	member := fullyReachableMember("u1")
	member.QuietHours = models.QuietHours{Enabled: true, Start: "00:00", End: "23:59"}
	f := newDispatchFixture([]models.Recipient{member})

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelPush].Skipped)
	assert.Empty(t, f.push.sentAddresses())

	rows := f.log.rows(models.ChannelPush, models.OutcomeSkippedQuietHrs)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].AttemptNumber)
}

func TestDispatch_UrgentBypassesQuietHours(t *testing.T) {
	member := fullyReachableMember("u1")
	member.QuietHours = models.QuietHours{Enabled: true, Start: "00:00", End: "23:59"}
	f := newDispatchFixture([]models.Recipient{member})

	event := tripEvent()
	event.Priority = models.PriorityUrgent

	report, err := f.service.Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelPush].Sent)
	assert.Contains(t, f.push.sentAddresses(), "token-u1")
}

func TestDispatch_RateLimitCeilingBlocksOverflow(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{SMS: true}
	f := newDispatchFixture([]models.Recipient{member})

	event := tripEvent()

	// SMS default ceiling is 3 per minute; the fourth dispatch must be cut off.
	for i := 0; i < 3; i++ {
		report, err := f.service.Dispatch(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, 1, report.Counts[models.ChannelSMS].Sent)
	}

	report, err := f.service.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Counts[models.ChannelSMS].Sent)
	assert.Equal(t, 1, report.Counts[models.ChannelSMS].RateLimited)

	rows := f.log.rows(models.ChannelSMS, models.OutcomeRateLimited)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].AttemptNumber)
}

func TestDispatch_SuppressedAddressNeverReachesSender(t *testing.T) {
	member := fullyReachableMember("u1")
	f := newDispatchFixture([]models.Recipient{member})
	f.bounces.suppressed[member.VerifiedEmail] = true

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelEmail].Suppressed)
	assert.Empty(t, f.email.sentAddresses())
	// Push ignores the suppression ledger.
	assert.Equal(t, 1, report.Counts[models.ChannelPush].Sent)
}

func TestDispatch_TransientFailureRetriesThenCountsFailedOnce(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{Email: true}
	f := newDispatchFixture([]models.Recipient{member})
	f.email.errs[member.VerifiedEmail] = utils.NewTransientDeliveryError(utils.DeliveryErrCodeProviderError, "upstream 503", nil)

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	// Schedule of 2 means 3 attempts, each with its own log row, but the
	// target is counted failed exactly once.
	assert.Equal(t, 1, report.Counts[models.ChannelEmail].Failed)
	failedRows := f.log.rows(models.ChannelEmail, models.OutcomeFailed)
	assert.Len(t, failedRows, 3)
	for i, row := range failedRows {
		assert.Equal(t, i+1, row.AttemptNumber)
		assert.NotEmpty(t, row.ErrorMessage)
	}
}

func TestDispatch_UnregisteredTokenIsRemoved(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{Push: true}
	f := newDispatchFixture([]models.Recipient{member})
	f.push.errs["token-u1"] = utils.NewPermanentDeliveryError(utils.DeliveryErrCodeUnregisteredToken, "requested entity was not found", nil)

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelPush].Failed)
	assert.Len(t, f.push.sends, 1, "permanent failures must not be retried")
	assert.Equal(t, []string{"token-u1"}, f.recipients.removedTokens["u1"])
}

func TestDispatch_HardEmailBounceFeedsLedger(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{Email: true}
	f := newDispatchFixture([]models.Recipient{member})
	f.email.errs[member.VerifiedEmail] = utils.NewPermanentDeliveryError(utils.DeliveryErrCodeMailboxNotFound, "550 no such user", nil)

	_, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, models.BounceTypeHard, f.bounces.bounces[member.VerifiedEmail])
}

func TestDispatch_SMSOptOutFeedsLedger(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{SMS: true}
	f := newDispatchFixture([]models.Recipient{member})
	f.sms.errs[member.VerifiedPhone] = utils.NewPermanentDeliveryError(utils.DeliveryErrCodeOptedOut, "recipient unsubscribed", nil)

	_, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, models.BounceTypeHard, f.bounces.bounces[member.VerifiedPhone])
}

func TestDispatch_SMSDowngradePersisted(t *testing.T) {
	member := fullyReachableMember("u1")
	member.Subscription = models.Subscription{Plan: models.PlanFree}
	f := newDispatchFixture([]models.Recipient{member})

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Contains(t, f.recipients.smsDowngrades, "u1")
	assert.Equal(t, 0, report.Counts[models.ChannelSMS].Sent)
	assert.Empty(t, f.sms.sentAddresses())
	// Push and email are untouched by the SMS entitlement.
	assert.Equal(t, 1, report.Counts[models.ChannelPush].Sent)
	assert.Equal(t, 1, report.Counts[models.ChannelEmail].Sent)
}

func TestDispatch_BadgeIncrementedOncePerRecipient(t *testing.T) {
	f := newDispatchFixture([]models.Recipient{
		fullyReachableMember("u1"),
		fullyReachableMember("u2"),
	})

	event := tripEvent()
	event.IncrementBadge = true

	_, err := f.service.Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, 1, f.badges.counts["u1:trip-1"])
	assert.Equal(t, 1, f.badges.counts["u2:trip-1"])

	// Badge value rides along on the push target.
	require.NotEmpty(t, f.push.sends)
	assert.Equal(t, 1, f.push.sends[0].Badge)
}

func TestDispatch_MultiplePushTokensEachGetASend(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{Push: true}
	member.PushTokens = []models.PushToken{
		{Token: "token-phone", Platform: models.PlatformIOS},
		{Token: "token-tablet", Platform: models.PlatformAndroid},
	}
	f := newDispatchFixture([]models.Recipient{member})

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts[models.ChannelPush].Sent)
	assert.ElementsMatch(t, []string{"token-phone", "token-tablet"}, f.push.sentAddresses())
}

func TestDispatch_MissingSenderCountsAsSkip(t *testing.T) {
	member := fullyReachableMember("u1")
	member.ChannelsEnabled = models.ChannelFlags{SMS: true}

	f := newDispatchFixture([]models.Recipient{member})
	// Rebuild the service without an SMS sender, as when Twilio credentials
	// are absent at startup.
	f.service = NewDispatchService(
		f.recipients, f.log, f.bounces, f.badges,
		utils.NewMemoryRateLimiter(), NewEntitlementService(),
		[]interfaces.ChannelSender{f.push, f.email},
		DispatchConfig{RetrySchedule: []time.Duration{}},
	)

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[models.ChannelSMS].Skipped)
	assert.Empty(t, f.sms.sentAddresses())
}

func TestDispatch_ConcurrentFanOutAggregatesAllTargets(t *testing.T) {
	var roster []models.Recipient
	for i := 0; i < 40; i++ {
		roster = append(roster, fullyReachableMember(string(rune('a'+i%26))+"-member"))
	}
	// Unique user IDs to keep rate limit keys apart.
	for i := range roster {
		roster[i].UserID = roster[i].UserID + "-" + string(rune('0'+i/26))
		roster[i].PushTokens = []models.PushToken{{Token: "token-" + roster[i].UserID, Platform: models.PlatformIOS}}
	}

	f := newDispatchFixture(roster)

	report, err := f.service.Dispatch(context.Background(), tripEvent())
	require.NoError(t, err)

	assert.Equal(t, len(roster), report.Recipients)
	assert.Equal(t, len(roster), report.Counts[models.ChannelPush].Sent)
	assert.Equal(t, len(roster), report.Counts[models.ChannelEmail].Sent)
}
