// Package schedule computes when recurring simulations fire and drives the
// periodic check that turns due schedules into queued runs.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/examload/examload/internal/models"
)

var (
	// ErrExpired reports that a schedule's next fire time would fall after
	// its end date. Expired schedules are deleted, not kept dormant.
	ErrExpired = errors.New("schedule expired")

	errNoStart       = errors.New("schedule start date is required")
	errNoTimeOfDay   = errors.New("schedule time of day is required")
	errNoDayOfWeek   = errors.New("weekly schedules require a day of week")
	errDayNotAllowed = errors.New("daily schedules must not set a day of week")
	errEndTooEarly   = errors.New("schedule end date must not be before start date")
	errEndInPast     = errors.New("schedule end date must not be in the past")
)

// NextFire computes the next time the schedule fires, strictly honoring the
// rule's start date: a schedule never fires before StartDateTime, and never
// in the past relative to now. Returns ErrExpired when the computed fire
// time falls after the schedule's end date.
func NextFire(rule *models.SimulationSchedule, now time.Time) (time.Time, error) {
	now = now.UTC()
	lookFrom := now
	if rule.StartDateTime.After(now) {
		lookFrom = rule.StartDateTime.UTC()
	}

	next := atTimeOfDay(lookFrom, rule.TimeOfDay)
	switch rule.Cycle {
	case models.CycleDaily:
		if next.Before(lookFrom) {
			next = next.AddDate(0, 0, 1)
		}
	case models.CycleWeekly:
		if rule.DayOfWeek == nil {
			return time.Time{}, errNoDayOfWeek
		}
		for next.Weekday() != *rule.DayOfWeek || next.Before(lookFrom) {
			next = next.AddDate(0, 0, 1)
		}
	default:
		return time.Time{}, fmt.Errorf("unknown schedule cycle %q", rule.Cycle)
	}

	if rule.EndDateTime != nil && next.After(rule.EndDateTime.UTC()) {
		return time.Time{}, ErrExpired
	}
	return next, nil
}

// Validate checks a schedule rule before it is created or updated.
func Validate(rule *models.SimulationSchedule, now time.Time) error {
	if rule.StartDateTime.IsZero() {
		return errNoStart
	}
	switch rule.Cycle {
	case models.CycleDaily:
		if rule.DayOfWeek != nil {
			return errDayNotAllowed
		}
	case models.CycleWeekly:
		if rule.DayOfWeek == nil {
			return errNoDayOfWeek
		}
	default:
		return fmt.Errorf("unknown schedule cycle %q", rule.Cycle)
	}
	if rule.TimeOfDay.IsZero() {
		return errNoTimeOfDay
	}
	if rule.EndDateTime != nil {
		if rule.EndDateTime.Before(rule.StartDateTime) {
			return errEndTooEarly
		}
		if rule.EndDateTime.Before(now.UTC()) {
			return errEndInPast
		}
	}
	return nil
}

// atTimeOfDay combines the calendar date of base with the clock part of tod.
func atTimeOfDay(base, tod time.Time) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, time.UTC)
}
