package primitives

import "fmt"

// TimePeriod is a from/to window expressed in hours and minutes.
// Invariants: from < to (in minutes), hoursTo <= 24, and if hoursTo==24 then
// minutesTo==0. The all-zero value is accepted as "unset".
type TimePeriod struct {
	HoursFrom   uint8
	MinutesFrom uint8
	HoursTo     uint8
	MinutesTo   uint8
}

// IsZero reports whether p is the distinguished "unset" value.
func (p TimePeriod) IsZero() bool {
	return p == TimePeriod{}
}

// FromMinutes returns the period's start expressed in minutes-of-day.
func (p TimePeriod) FromMinutes() int {
	return int(p.HoursFrom)*60 + int(p.MinutesFrom)
}

// ToMinutes returns the period's end expressed in minutes-of-day (1440 for
// the 24:00 boundary case).
func (p TimePeriod) ToMinutes() int {
	return int(p.HoursTo)*60 + int(p.MinutesTo)
}

// Validate enforces the invariants documented on TimePeriod.
func (p TimePeriod) Validate() error {
	if p.IsZero() {
		return nil
	}
	if p.HoursTo > 24 {
		return errInvalid("TimePeriod.Validate", fmt.Errorf("hoursTo %d > 24", p.HoursTo))
	}
	if p.HoursTo == 24 && p.MinutesTo != 0 {
		return errInvalid("TimePeriod.Validate", fmt.Errorf("hoursTo==24 requires minutesTo==0, got %d", p.MinutesTo))
	}
	if p.HoursFrom > 23 || p.MinutesFrom > 59 || p.MinutesTo > 59 {
		return errInvalid("TimePeriod.Validate", fmt.Errorf("field out of range"))
	}
	if p.FromMinutes() >= p.ToMinutes() {
		return errInvalid("TimePeriod.Validate", fmt.Errorf("from (%d) must be before to (%d)", p.FromMinutes(), p.ToMinutes()))
	}
	return nil
}

// Covers reports whether minuteOfDay falls in [from, to).
func (p TimePeriod) Covers(minuteOfDay int) bool {
	if p.IsZero() {
		return false
	}
	return minuteOfDay >= p.FromMinutes() && minuteOfDay < p.ToMinutes()
}

// LocalTimeSchedule is a day-of-year range, a weekday set and a single time
// period: the rule shape used for the SP terminal/transponder's own
// validity windows (distinct from the OSS-SO DTSchedule day-record list,
// which has no day-of-year range and is defined in package ossso).
type LocalTimeSchedule struct {
	DayOfYearStart uint16
	DayOfYearEnd   uint16
	Weekdays       WeekdaySet
	TimePeriod     TimePeriod
}

// Validate checks DayOfYearStart/End ranges and the embedded time period.
func (s LocalTimeSchedule) Validate() error {
	if s.DayOfYearStart < 1 || s.DayOfYearStart > 366 {
		return errInvalid("LocalTimeSchedule.Validate", fmt.Errorf("dayOfYearStart %d out of range", s.DayOfYearStart))
	}
	if s.DayOfYearEnd < s.DayOfYearStart {
		return errInvalid("LocalTimeSchedule.Validate", fmt.Errorf("dayOfYearEnd %d before start %d", s.DayOfYearEnd, s.DayOfYearStart))
	}
	return s.TimePeriod.Validate()
}

// TimeScheduleMatches returns true iff ts's (dayOfYear, weekday,
// minutes-of-day) falls inside schedule s. normalize366 selects the
// 366-normalised day-of-year mode documented on LocalTimestamp.DayOfYear.
func TimeScheduleMatches(s LocalTimeSchedule, ts LocalTimestamp, normalize366 bool) bool {
	doy := ts.DayOfYear(normalize366)
	if doy < int(s.DayOfYearStart) || doy > int(s.DayOfYearEnd) {
		return false
	}
	if !s.Weekdays.Has(ts.Weekday()) {
		return false
	}
	return s.TimePeriod.Covers(ts.MinutesOfDay())
}

// TimeScheduleCalculateNext walks forward from "from" day by day (skipping
// days for which skip returns true, if skip is non-nil), wrapping across a
// year boundary at most once, and returns the first timestamp at which some
// schedule in scheds starts matching plus that schedule. found is false if
// no schedule ever matches within one full year of walking.
//
// Per spec's open question on the 366 -> 1 wrap: the starting day of year is
// only consulted as a stop condition once the walk has actually crossed into the
// next year, so a schedule whose range is [366,366] in a leap year is still
// reachable on the same pass that wrapped from 366 to 1.
func TimeScheduleCalculateNext(scheds []LocalTimeSchedule, from LocalTimestamp, normalize366 bool, skip func(LocalTimestamp) bool) (LocalTimestamp, LocalTimeSchedule, bool) {
	cur := from
	wrapped := false
	startDoy := cur.DayOfYear(normalize366)
	for day := 0; day < 366*2; day++ {
		if skip == nil || !skip(cur) {
			for _, s := range scheds {
				if s.Weekdays.Has(cur.Weekday()) {
					doy := cur.DayOfYear(normalize366)
					inRange := doy >= int(s.DayOfYearStart) && doy <= int(s.DayOfYearEnd)
					if inRange {
						minute := 0
						if day == 0 {
							minute = cur.MinutesOfDay()
						}
						if s.TimePeriod.FromMinutes() >= minute {
							result := cur
							result.Hours = s.TimePeriod.HoursFrom
							result.Minutes = s.TimePeriod.MinutesFrom
							result.Seconds = 0
							return result, s, true
						}
					}
				}
			}
		}
		next, err := TimestampAdd(cur, UnitDays, 1)
		if err != nil {
			break
		}
		if next.DayOfYear(normalize366) == 1 && cur.DayOfYear(normalize366) != 1 {
			if wrapped {
				break
			}
			wrapped = true
		}
		cur = next
		if wrapped && cur.DayOfYear(normalize366) > startDoy {
			break
		}
	}
	return LocalTimestamp{}, LocalTimeSchedule{}, false
}
