// Package scheduler computes send times constrained to business hours.
package scheduler

import (
	"time"

	"github.com/unclebandit/vendor-outreach/internal/model"
)

const urgentDelay = 10 * time.Minute

// BusinessHours describes the working window. Working days are Monday to Friday.
type BusinessHours struct {
	OpenHour         int
	CloseHour        int
	UrgentSlotHour   int
	StandardSlotHour int
	Location         *time.Location
}

func Default() BusinessHours {
	return BusinessHours{
		OpenHour:         9,
		CloseHour:        17,
		UrgentSlotHour:   9,
		StandardSlotHour: 10,
		Location:         time.UTC,
	}
}

func (b BusinessHours) loc() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// InBusinessHours reports whether t falls on a weekday inside [OpenHour, CloseHour).
func (b BusinessHours) InBusinessHours(t time.Time) bool {
	t = t.In(b.loc())
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= b.OpenHour && t.Hour() < b.CloseHour
}

// NextSlot returns the next valid send time for the given urgency.
//
// Urgent sends inside business hours go out ten minutes from now. Everything else
// lands on the next business day at the fixed slot for its urgency.
func (b BusinessHours) NextSlot(urgency model.Urgency, now time.Time) time.Time {
	if urgency == model.UrgencyUrgent && b.InBusinessHours(now) {
		return now.Add(urgentDelay)
	}

	local := now.In(b.loc())
	days := 1
	switch local.Weekday() {
	case time.Friday:
		days = 3
	case time.Saturday:
		days = 2
	}

	hour := b.StandardSlotHour
	if urgency == model.UrgencyUrgent {
		hour = b.UrgentSlotHour
	}

	next := local.AddDate(0, 0, days)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, b.loc())
}

// FollowUpAt places a drip step dayOffset calendar days after sentAt at the given local hour.
func (b BusinessHours) FollowUpAt(sentAt time.Time, dayOffset, hour int) time.Time {
	local := sentAt.In(b.loc()).AddDate(0, 0, dayOffset)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, b.loc())
}
