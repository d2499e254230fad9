// Package schedule derives per-tenant cron trigger specs from a configured
// daily start time. All functions are pure and deterministic so schedule
// derivation can be tested in isolation from the scheduler.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// stopLeadMinutes is how long before the start time the previous day's
// competition is stopped (and the pre-stop poll runs).
const stopLeadMinutes = 2

// StartTime is a validated daily wall-clock start time, interpreted in UTC.
type StartTime struct {
	Hour   int // 0-23
	Minute int // 0-59
}

var startTimeRegex = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// ParseStartTime parses a "HH:mm" string into a StartTime.
// Returns shared.ErrInvalidScheduleFormat for anything unparsable or
// out of range.
func ParseStartTime(s string) (StartTime, error) {
	m := startTimeRegex.FindStringSubmatch(s)
	if m == nil {
		return StartTime{}, shared.WrapDomainError("schedule", "ParseStartTime",
			shared.ErrInvalidScheduleFormat,
			fmt.Sprintf("start time %q is not in HH:mm format", s), nil)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	if hour > 23 || minute > 59 {
		return StartTime{}, shared.WrapDomainError("schedule", "ParseStartTime",
			shared.ErrInvalidScheduleFormat,
			fmt.Sprintf("start time %q is out of range", s), nil)
	}

	return StartTime{Hour: hour, Minute: minute}, nil
}

// String returns the "HH:mm" representation.
func (st StartTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// CronSpec is a daily trigger time rendered as a standard 5-field cron
// expression (day-of-month, month and day-of-week are always wildcards).
type CronSpec struct {
	Minute int
	Hour   int
}

// Expression renders the entry as "minute hour * * *".
func (cs CronSpec) Expression() string {
	return fmt.Sprintf("%d %d * * *", cs.Minute, cs.Hour)
}

// String returns the cron expression.
func (cs CronSpec) String() string {
	return cs.Expression()
}

// DerivedSchedule holds the three trigger specs derived from one tenant's
// start time. Poll and Stop share the same trigger time but are registered
// as distinct jobs: the poll sends the last-chance reminder, the stop
// performs the actual close.
type DerivedSchedule struct {
	Start CronSpec
	Stop  CronSpec
	Poll  CronSpec
}

// Derive computes the start/stop/poll trigger specs for a start time.
// Stop is start minus two minutes, wrapping across midnight to the
// previous day when the subtraction goes negative.
func Derive(start StartTime) DerivedSchedule {
	stopTotal := start.Hour*60 + start.Minute - stopLeadMinutes
	if stopTotal < 0 {
		stopTotal += 24 * 60
	}

	stop := CronSpec{Minute: stopTotal % 60, Hour: stopTotal / 60}

	return DerivedSchedule{
		Start: CronSpec{Minute: start.Minute, Hour: start.Hour},
		Stop:  stop,
		Poll:  stop,
	}
}

// DeriveFrom parses a "HH:mm" start time and derives the schedule in one
// step. This is the form the registrar uses.
func DeriveFrom(startTime string) (DerivedSchedule, error) {
	st, err := ParseStartTime(startTime)
	if err != nil {
		return DerivedSchedule{}, err
	}
	return Derive(st), nil
}
