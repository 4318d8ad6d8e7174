package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tripwire/models"
)

func quietWindow(start, end string) models.QuietHours {
	return models.QuietHours{Enabled: true, Start: start, End: end}
}

// at builds a UTC instant whose wall clock in UTC is hh:mm.
func at(hh, mm int) time.Time {
	return time.Date(2026, 8, 14, hh, mm, 0, 0, time.UTC)
}

func TestIsQuietTime_SameDayWindow(t *testing.T) {
	qh := quietWindow("13:00", "15:00")

	assert.False(t, IsQuietTime(qh, "UTC", at(12, 59)))
	assert.True(t, IsQuietTime(qh, "UTC", at(13, 0)), "window start is inclusive")
	assert.True(t, IsQuietTime(qh, "UTC", at(14, 30)))
	assert.False(t, IsQuietTime(qh, "UTC", at(15, 0)), "window end is exclusive")
}

func TestIsQuietTime_OvernightWindow(t *testing.T) {
	qh := quietWindow("22:00", "07:00")

	assert.True(t, IsQuietTime(qh, "UTC", at(23, 15)))
	assert.True(t, IsQuietTime(qh, "UTC", at(2, 0)))
	assert.True(t, IsQuietTime(qh, "UTC", at(6, 59)))
	assert.False(t, IsQuietTime(qh, "UTC", at(7, 0)))
	assert.False(t, IsQuietTime(qh, "UTC", at(12, 0)))
	assert.True(t, IsQuietTime(qh, "UTC", at(22, 0)))
	assert.False(t, IsQuietTime(qh, "UTC", at(21, 59)))
}

func TestIsQuietTime_Disabled(t *testing.T) {
	qh := models.QuietHours{Enabled: false, Start: "00:00", End: "23:59"}
	assert.False(t, IsQuietTime(qh, "UTC", at(12, 0)))
}

func TestIsQuietTime_TimezoneConversion(t *testing.T) {
	// 02:00 UTC is 11:00 in Tokyo, outside a 22:00-07:00 window there.
	qh := quietWindow("22:00", "07:00")
	assert.False(t, IsQuietTime(qh, "Asia/Tokyo", at(2, 0)))

	// 14:00 UTC is 23:00 in Tokyo, inside the window.
	assert.True(t, IsQuietTime(qh, "Asia/Tokyo", at(14, 0)))
}

func TestIsQuietTime_FailsOpen(t *testing.T) {
	midday := at(12, 0)

	assert.False(t, IsQuietTime(quietWindow("11:00", "13:00"), "Not/AZone", midday),
		"unknown timezone must not drop into the quiet path")
	assert.False(t, IsQuietTime(quietWindow("bogus", "13:00"), "UTC", midday))
	assert.False(t, IsQuietTime(quietWindow("11:00", "25:99"), "UTC", midday))
}

func TestIsQuietTime_EmptyTimezoneUsesGivenClock(t *testing.T) {
	qh := quietWindow("11:00", "13:00")
	assert.True(t, IsQuietTime(qh, "", at(12, 0)))
	assert.False(t, IsQuietTime(qh, "", at(14, 0)))
}
