package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tripwire/interfaces"
	"tripwire/models"
	"tripwire/utils"
)

// RateLimitCeilings holds the fixed-window ceilings for one channel. Both
// windows must have headroom before a send is admitted.
type RateLimitCeilings struct {
	PerMinute int
	PerDay    int
}

// DispatchConfig tunes the fan-out. Zero values fall back to defaults in
// NewDispatchService.
type DispatchConfig struct {
	MaxConcurrentSends int
	SendTimeout        time.Duration
	RetrySchedule      []time.Duration
	RateLimits         map[string]RateLimitCeilings
}

// DefaultRateLimits are the per-channel ceilings applied when config does
// not override them. SMS is the scarcest and priciest channel.
func DefaultRateLimits() map[string]RateLimitCeilings {
	return map[string]RateLimitCeilings{
		models.ChannelPush:  {PerMinute: 30, PerDay: 500},
		models.ChannelEmail: {PerMinute: 10, PerDay: 100},
		models.ChannelSMS:   {PerMinute: 3, PerDay: 20},
	}
}

// DispatchService fans one notification event out to every entitled trip
// member across push, email and SMS. Each (recipient, channel) pair runs
// its own policy pipeline concurrently under a bounded semaphore; the
// result is a DeliveryReport plus one audit log row per attempt.
type DispatchService struct {
	recipients   interfaces.RecipientStore
	deliveryLog  interfaces.DeliveryLogStore
	bounces      interfaces.BounceLedger
	badges       interfaces.BadgeStore
	limiter      interfaces.RateLimiter
	entitlements *EntitlementService
	senders      map[string]interfaces.ChannelSender

	maxConcurrent int
	sendTimeout   time.Duration
	retrySchedule []time.Duration
	rateLimits    map[string]RateLimitCeilings

	// guards DeliveryReport mutation across pipeline goroutines
	reportMu sync.Mutex
}

func NewDispatchService(
	recipients interfaces.RecipientStore,
	deliveryLog interfaces.DeliveryLogStore,
	bounces interfaces.BounceLedger,
	badges interfaces.BadgeStore,
	limiter interfaces.RateLimiter,
	entitlements *EntitlementService,
	senders []interfaces.ChannelSender,
	config DispatchConfig,
) *DispatchService {
	if config.MaxConcurrentSends <= 0 {
		config.MaxConcurrentSends = 25
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if config.RetrySchedule == nil {
		config.RetrySchedule = utils.DefaultBackoffSchedule
	}
	if config.RateLimits == nil {
		config.RateLimits = DefaultRateLimits()
	}

	senderMap := make(map[string]interfaces.ChannelSender, len(senders))
	for _, sender := range senders {
		if sender != nil {
			senderMap[sender.Channel()] = sender
		}
	}

	return &DispatchService{
		recipients:    recipients,
		deliveryLog:   deliveryLog,
		bounces:       bounces,
		badges:        badges,
		limiter:       limiter,
		entitlements:  entitlements,
		senders:       senderMap,
		maxConcurrent: config.MaxConcurrentSends,
		sendTimeout:   config.SendTimeout,
		retrySchedule: config.RetrySchedule,
		rateLimits:    config.RateLimits,
	}
}

// delivery carries one (recipient, channel, address) pipeline's inputs.
type delivery struct {
	recipient *models.Recipient
	target    models.DeliveryTarget
}

// Dispatch resolves the trip's members and runs the full policy pipeline
// for every reachable (recipient, channel) pair. It blocks until all
// pipelines finish and returns the aggregated report. The only error it
// returns is a failure to resolve recipients; per-target failures land in
// the report, never here.
func (ds *DispatchService) Dispatch(ctx context.Context, event *models.NotificationEvent) (*models.DeliveryReport, error) {
	report := models.NewDeliveryReport(event)

	members, err := ds.recipients.GetTripRecipients(ctx, event.TripID)
	if err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeDispatchService, "failed to resolve trip recipients", err)
	}

	var deliveries []delivery
	for i := range members {
		recipient := &members[i]
		if event.IsExcluded(recipient.UserID) {
			continue
		}
		report.Recipients++
		deliveries = append(deliveries, ds.planRecipient(ctx, report, recipient, event)...)
	}

	logrus.WithFields(logrus.Fields{
		"eventId":    event.EventID,
		"tripId":     event.TripID,
		"category":   event.Category,
		"recipients": report.Recipients,
		"targets":    len(deliveries),
	}).Info("Dispatching notification event")

	var wg sync.WaitGroup
	sem := make(chan struct{}, ds.maxConcurrent)
	for _, d := range deliveries {
		wg.Add(1)
		sem <- struct{}{}
		go func(d delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := ds.runPipeline(ctx, report, d, event)
			ds.countOutcome(report, d.target.Channel, outcome)
		}(d)
	}
	wg.Wait()

	report.CompletedAt = time.Now()
	return report, nil
}

// planRecipient resolves entitlements, applies the SMS downgrade signal,
// bumps the badge counter and expands the recipient into concrete delivery
// targets. Preference-denied channels get a single attempt-0 log row.
func (ds *DispatchService) planRecipient(ctx context.Context, report *models.DeliveryReport, recipient *models.Recipient, event *models.NotificationEvent) []delivery {
	perms := ds.entitlements.Resolve(recipient, event.Category)

	if perms.DowngradeSMS {
		if err := ds.recipients.DisableSMSPreference(ctx, recipient.UserID); err != nil {
			logrus.Warnf("Failed to persist sms downgrade for user %s: %v", recipient.UserID, err)
		}
	}

	badge := 0
	if event.IncrementBadge {
		count, err := ds.badges.Increment(ctx, recipient.UserID, event.TripID, event.EventID, 1)
		if err != nil {
			logrus.Warnf("Failed to increment badge for user %s: %v", recipient.UserID, err)
		} else {
			badge = count
		}
	}

	var deliveries []delivery

	if perms.Push {
		for _, token := range recipient.PushTokens {
			deliveries = append(deliveries, delivery{
				recipient: recipient,
				target: models.DeliveryTarget{
					UserID:   recipient.UserID,
					Channel:  models.ChannelPush,
					Address:  token.Token,
					Platform: token.Platform,
					Badge:    badge,
				},
			})
		}
	} else {
		ds.recordSkip(ctx, report, recipient, event, models.ChannelPush, models.OutcomeSkippedPref)
		ds.countOutcome(report, models.ChannelPush, models.OutcomeSkippedPref)
	}

	if perms.Email {
		if recipient.VerifiedEmail != "" {
			deliveries = append(deliveries, delivery{
				recipient: recipient,
				target: models.DeliveryTarget{
					UserID:  recipient.UserID,
					Channel: models.ChannelEmail,
					Address: recipient.VerifiedEmail,
				},
			})
		}
	} else {
		ds.recordSkip(ctx, report, recipient, event, models.ChannelEmail, models.OutcomeSkippedPref)
		ds.countOutcome(report, models.ChannelEmail, models.OutcomeSkippedPref)
	}

	if perms.SMS {
		if recipient.VerifiedPhone != "" {
			deliveries = append(deliveries, delivery{
				recipient: recipient,
				target: models.DeliveryTarget{
					UserID:  recipient.UserID,
					Channel: models.ChannelSMS,
					Address: recipient.VerifiedPhone,
				},
			})
		}
	} else {
		ds.recordSkip(ctx, report, recipient, event, models.ChannelSMS, models.OutcomeSkippedPref)
		ds.countOutcome(report, models.ChannelSMS, models.OutcomeSkippedPref)
	}

	return deliveries
}

// runPipeline walks one target through the policy gates in order: quiet
// hours, rate limits, suppression, then the retried send. It returns the
// target's final outcome for the report counters.
func (ds *DispatchService) runPipeline(ctx context.Context, report *models.DeliveryReport, d delivery, event *models.NotificationEvent) string {
	sender, ok := ds.senders[d.target.Channel]
	if !ok {
		ds.recordSkip(ctx, report, d.recipient, event, d.target.Channel, models.OutcomeSkippedPref)
		return models.OutcomeSkippedPref
	}

	if !event.IsUrgent() && utils.IsQuietTime(d.recipient.QuietHours, d.recipient.Timezone, time.Now()) {
		ds.recordSkip(ctx, report, d.recipient, event, d.target.Channel, models.OutcomeSkippedQuietHrs)
		return models.OutcomeSkippedQuietHrs
	}

	if !ds.withinRateLimits(ctx, d.target) {
		ds.recordSkip(ctx, report, d.recipient, event, d.target.Channel, models.OutcomeRateLimited)
		return models.OutcomeRateLimited
	}

	if d.target.Channel != models.ChannelPush {
		suppressed, err := ds.bounces.IsSuppressed(ctx, d.target.Address)
		if err != nil {
			logrus.Warnf("Suppression check failed for user %s, allowing send: %v", d.target.UserID, err)
		} else if suppressed {
			ds.recordSkip(ctx, report, d.recipient, event, d.target.Channel, models.OutcomeSuppressed)
			return models.OutcomeSuppressed
		}
	}

	var lastResult *models.SendResult
	observer := func(attempt int, attemptErr error) {
		row := &models.DeliveryAttempt{
			NotificationEventID: event.ID,
			TripID:              event.TripID,
			UserID:              d.target.UserID,
			Channel:             d.target.Channel,
			Platform:            d.target.Platform,
			AttemptNumber:       attempt,
			Timestamp:           time.Now(),
		}
		if attemptErr != nil {
			row.Outcome = models.OutcomeFailed
			row.ErrorMessage = attemptErr.Error()
		} else {
			row.Outcome = models.OutcomeSent
			if lastResult != nil {
				row.ProviderMessageID = lastResult.ProviderMessageID
			}
		}
		ds.recordAttempt(ctx, report, row)
	}

	sendErr := utils.ExecuteWithRetry(ctx, ds.retrySchedule, observer, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, ds.sendTimeout)
		defer cancel()

		result, err := sender.Send(attemptCtx, d.target, event)
		if err != nil {
			return err
		}
		lastResult = result
		return nil
	})

	if sendErr != nil {
		ds.handlePermanentFailure(ctx, d.target, sendErr)
		logrus.WithFields(logrus.Fields{
			"eventId": event.EventID,
			"userId":  d.target.UserID,
			"channel": d.target.Channel,
		}).Warnf("Delivery exhausted: %v", sendErr)
		return models.OutcomeFailed
	}

	return models.OutcomeSent
}

// withinRateLimits checks the minute and day windows for one target. Both
// must have headroom. Limiter errors fail open: a broken limiter must not
// silence notifications.
func (ds *DispatchService) withinRateLimits(ctx context.Context, target models.DeliveryTarget) bool {
	ceilings, ok := ds.rateLimits[target.Channel]
	if !ok {
		return true
	}

	windows := []struct {
		name     string
		max      int
		duration time.Duration
	}{
		{"minute", ceilings.PerMinute, time.Minute},
		{"day", ceilings.PerDay, 24 * time.Hour},
	}

	for _, w := range windows {
		if w.max <= 0 {
			continue
		}
		key := RateLimitKey(target.UserID, target.Channel, w.name)
		decision, err := ds.limiter.CheckAndIncrement(ctx, key, w.max, w.duration)
		if err != nil {
			logrus.Warnf("Rate limiter error for key %s, allowing send: %v", key, err)
			continue
		}
		if !decision.Allowed {
			return false
		}
	}
	return true
}

// handlePermanentFailure applies the side effects that keep dead addresses
// from being retried forever: pruning unregistered push tokens and feeding
// hard bounces into the suppression ledger.
func (ds *DispatchService) handlePermanentFailure(ctx context.Context, target models.DeliveryTarget, sendErr error) {
	deliveryErr, ok := utils.GetDeliveryError(sendErr)
	if !ok || !deliveryErr.Permanent {
		return
	}

	switch target.Channel {
	case models.ChannelPush:
		if deliveryErr.Code == utils.DeliveryErrCodeUnregisteredToken || deliveryErr.Code == utils.DeliveryErrCodeInvalidToken {
			if err := ds.recipients.RemovePushToken(ctx, target.UserID, target.Address); err != nil {
				logrus.Warnf("Failed to remove dead push token for user %s: %v", target.UserID, err)
			}
		}
	case models.ChannelEmail:
		if deliveryErr.Code == utils.DeliveryErrCodeMailboxNotFound {
			if err := ds.bounces.RecordBounce(ctx, target.Address, models.BounceTypeHard, deliveryErr.Message); err != nil {
				logrus.Warnf("Failed to record email bounce for user %s: %v", target.UserID, err)
			}
		}
	case models.ChannelSMS:
		if deliveryErr.Code == utils.DeliveryErrCodeInvalidNumber || deliveryErr.Code == utils.DeliveryErrCodeOptedOut {
			if err := ds.bounces.RecordBounce(ctx, target.Address, models.BounceTypeHard, deliveryErr.Message); err != nil {
				logrus.Warnf("Failed to record sms bounce for user %s: %v", target.UserID, err)
			}
		}
	}
}

// recordSkip writes the single attempt-0 row for a policy skip.
func (ds *DispatchService) recordSkip(ctx context.Context, report *models.DeliveryReport, recipient *models.Recipient, event *models.NotificationEvent, channel, outcome string) {
	ds.recordAttempt(ctx, report, &models.DeliveryAttempt{
		NotificationEventID: event.ID,
		TripID:              event.TripID,
		UserID:              recipient.UserID,
		Channel:             channel,
		AttemptNumber:       0,
		Outcome:             outcome,
		Timestamp:           time.Now(),
	})
}

func (ds *DispatchService) recordAttempt(ctx context.Context, report *models.DeliveryReport, attempt *models.DeliveryAttempt) {
	if err := ds.deliveryLog.Append(ctx, attempt); err != nil {
		logrus.Warnf("Failed to append delivery attempt for user %s: %v", attempt.UserID, err)
	}

	ds.reportMu.Lock()
	report.Attempts = append(report.Attempts, *attempt)
	ds.reportMu.Unlock()
}

func (ds *DispatchService) countOutcome(report *models.DeliveryReport, channel, outcome string) {
	ds.reportMu.Lock()
	defer ds.reportMu.Unlock()

	counts, ok := report.Counts[channel]
	if !ok {
		counts = &models.ChannelCounts{}
		report.Counts[channel] = counts
	}

	switch outcome {
	case models.OutcomeSent:
		counts.Sent++
	case models.OutcomeFailed:
		counts.Failed++
	case models.OutcomeRateLimited:
		counts.RateLimited++
	case models.OutcomeSuppressed:
		counts.Suppressed++
	default:
		counts.Skipped++
	}
}
