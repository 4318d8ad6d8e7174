package utils

import (
	"time"

	"github.com/sirupsen/logrus"

	"tripwire/models"
)

// IsQuietTime reports whether now falls inside the recipient's quiet window
// in their local timezone. Windows are [start, end) on wall-clock minutes;
// a start later than the end means the window crosses midnight. Any
// timezone or time-format failure fails open (not quiet): dropping
// notifications silently is worse than ringing during quiet hours.
func IsQuietTime(qh models.QuietHours, timezone string, now time.Time) bool {
	if !qh.Enabled {
		return false
	}

	startMinutes, ok := parseClockMinutes(qh.Start)
	if !ok {
		logrus.Warnf("Invalid quiet hours start %q, failing open", qh.Start)
		return false
	}

	endMinutes, ok := parseClockMinutes(qh.End)
	if !ok {
		logrus.Warnf("Invalid quiet hours end %q, failing open", qh.End)
		return false
	}

	local := now
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			logrus.Warnf("Failed to resolve timezone %q, failing open: %v", timezone, err)
			return false
		}
		local = now.In(loc)
	}

	current := local.Hour()*60 + local.Minute()

	if startMinutes <= endMinutes {
		return current >= startMinutes && current < endMinutes
	}

	// Overnight window, e.g. 22:00-07:00
	return current >= startMinutes || current < endMinutes
}

// parseClockMinutes converts "HH:MM" to minutes since midnight.
func parseClockMinutes(clock string) (int, bool) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
