package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/healthyai/internal/common"
)

const (
	// DueWindowMinutes is the tolerance on either side of the scheduled minute.
	DueWindowMinutes = 5
	// ResendGuard suppresses a second fire inside the same window.
	ResendGuard = 5 * time.Minute

	dateLayout = "2006-01-02"
)

// ParseClock parses a 24h "HH:MM" value.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", common.ErrValidation, s)
	}
	hour, err1 := strconv.Atoi(hh)
	minute, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", common.ErrValidation, s)
	}
	return hour, minute, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", common.ErrValidation, s)
	}
	return d, nil
}

// withinBounds reports whether now's calendar day lies in [start_date, end_date].
// Unparseable bounds are treated as absent.
func withinBounds(r *Reminder, now time.Time) bool {
	today := now.Format(dateLayout)
	if r.StartDate != nil && *r.StartDate != "" {
		if _, err := parseDate(*r.StartDate, now.Location()); err == nil && today < *r.StartDate {
			return false
		}
	}
	if r.EndDate != nil && *r.EndDate != "" {
		if _, err := parseDate(*r.EndDate, now.Location()); err == nil && today > *r.EndDate {
			return false
		}
	}
	return true
}

// minuteDiff is |currentMinutes - reminderMinutes| on the same clock day.
// Windows do not wrap around midnight.
func minuteDiff(now time.Time, hour, minute int) int {
	d := now.Hour()*60 + now.Minute() - (hour*60 + minute)
	if d < 0 {
		d = -d
	}
	return d
}

// IsDue reports whether r should fire at now. now must already be in the
// reminder location.
func IsDue(r *Reminder, now time.Time) bool {
	if !r.IsActive || !withinBounds(r, now) {
		return false
	}
	hour, minute, err := ParseClock(r.Time)
	if err != nil {
		return false
	}
	if r.RepeatType == RepeatWeekly && (r.Weekday == nil || time.Weekday(*r.Weekday) != now.Weekday()) {
		return false
	}
	if minuteDiff(now, hour, minute) > DueWindowMinutes {
		return false
	}
	if r.LastSent != nil && now.Sub(*r.LastSent) <= ResendGuard {
		return false
	}
	// Already rescheduled past this window.
	if r.NextReminderTime != nil && now.Before(r.NextReminderTime.Add(-DueWindowMinutes*time.Minute)) {
		return false
	}
	return true
}

func atClock(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// NextOccurrence computes the follow-up instant after a fire at from. once
// reminders have none.
func NextOccurrence(r *Reminder, from time.Time) (*time.Time, error) {
	hour, minute, err := ParseClock(r.Time)
	if err != nil {
		return nil, err
	}
	switch r.RepeatType {
	case RepeatDaily:
		next := nextDaily(from, hour, minute)
		return &next, nil
	case RepeatWeekly:
		if r.Weekday == nil {
			return nil, fmt.Errorf("%w: weekly reminder needs a weekday", common.ErrValidation)
		}
		next := nextWeekly(from, time.Weekday(*r.Weekday), hour, minute)
		return &next, nil
	case RepeatOnce:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown repeat type %q", common.ErrValidation, r.RepeatType)
	}
}

// nextDaily is today at the clock time if still ahead of from, else tomorrow.
func nextDaily(from time.Time, hour, minute int) time.Time {
	next := atClock(from, hour, minute)
	if !next.After(from) {
		next = atClock(from.AddDate(0, 0, 1), hour, minute)
	}
	return next
}

// nextWeekly is the first matching weekday on or after from; a same-day
// time already passed rolls a full week.
func nextWeekly(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	days := (int(weekday) - int(from.Weekday()) + 7) % 7
	next := atClock(from.AddDate(0, 0, days), hour, minute)
	if days == 0 && !next.After(from) {
		next = atClock(from.AddDate(0, 0, 7), hour, minute)
	}
	return next
}

// initialNext is the first scheduled instant for a reminder created at now.
// A clock time that passed less than a window ago is still today's
// occurrence, so a reminder created at 08:02 for 08:00 fires at 08:03.
func initialNext(r *Reminder, now time.Time) (*time.Time, error) {
	from := now.Add(-(DueWindowMinutes + 1) * time.Minute)
	if r.RepeatType == RepeatOnce {
		hour, minute, err := ParseClock(r.Time)
		if err != nil {
			return nil, err
		}
		next := nextDaily(from, hour, minute)
		return &next, nil
	}
	return NextOccurrence(r, from)
}

// advanceAfterFire is the next occurrence once the window around now has
// been consumed. It never lands inside that same window.
func advanceAfterFire(r *Reminder, now time.Time) (*time.Time, error) {
	return NextOccurrence(r, now.Add(DueWindowMinutes*time.Minute))
}
