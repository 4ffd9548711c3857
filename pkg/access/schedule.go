package access

import (
	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

type doorScheduleResult struct {
	granted          bool
	scheduleMismatch bool
	accessType       ossso.AccessType
	scheduleEndTime  *primitives.LocalTimestamp
}

// evaluateDoorsAndSchedules walks every DoorInfo record in data, stopping
// at the first zeroed record, and resolves the grant decision per spec
// §4.7's door/schedule evaluation rules: Toggle beats ExtendedTime beats
// DefaultTime across matching records, and scheduleEndTime is the maximum
// across matching records.
func evaluateDoorsAndSchedules(now primitives.LocalTimestamp, data ossso.Data, cfg ProcessConfig) doorScheduleResult {
	var result doorScheduleResult
	bestPriority := -1

	consider := func(accessType ossso.AccessType, end *primitives.LocalTimestamp) {
		result.granted = true
		priority := int(accessType)
		if priority > bestPriority {
			bestPriority = priority
			result.accessType = accessType
		}
		if end != nil && (result.scheduleEndTime == nil || end.ToUnix() > result.scheduleEndTime.ToUnix()) {
			result.scheduleEndTime = end
		}
	}

	for _, di := range data.DoorInfos {
		if di.IsZero() {
			break
		}
		if di.AccessBy == ossso.AccessByDoor && di.DoorId != cfg.DoorId {
			continue
		}

		var groupSchedules []ossso.DTSchedule
		if di.AccessBy == ossso.AccessByGroup {
			if cfg.GetGroupSchedules == nil {
				continue
			}
			gs, ok := cfg.GetGroupSchedules(di.DoorId)
			if !ok {
				continue
			}
			groupSchedules = gs
		}

		if di.DTScheduleNumber == 0 {
			if di.AccessBy != ossso.AccessByGroup {
				consider(di.AccessType(), nil)
				continue
			}
			matched, end := anyScheduleMatches(now, groupSchedules)
			if !matched {
				continue
			}
			consider(di.AccessType(), end)
			continue
		}

		idx := int(di.DTScheduleNumber) - 1
		if idx < 0 || idx >= len(data.Schedules) {
			continue
		}
		matched, end := doorScheduleEval(now, data.Schedules[idx])
		if !matched {
			result.scheduleMismatch = true
			continue
		}
		if di.AccessBy == ossso.AccessByGroup {
			if gMatched, _ := anyScheduleMatches(now, groupSchedules); !gMatched {
				continue
			}
		}
		consider(di.AccessType(), end)
	}

	return result
}

func anyScheduleMatches(now primitives.LocalTimestamp, scheds []ossso.DTSchedule) (bool, *primitives.LocalTimestamp) {
	var best *primitives.LocalTimestamp
	matched := false
	for _, s := range scheds {
		if ok, end := doorScheduleEval(now, s); ok {
			matched = true
			if end != nil && (best == nil || end.ToUnix() > best.ToUnix()) {
				best = end
			}
		}
	}
	return matched, best
}

// doorScheduleEval reports whether sched grants access at now, and if so
// the latest matching end time. A time period ending at 24:00 is extended
// to the following weekday's matching sibling period (starting 00:00), if
// one exists, per spec's schedule wraparound rule; otherwise it ends at
// midnight the same calendar night.
func doorScheduleEval(now primitives.LocalTimestamp, sched ossso.DTSchedule) (bool, *primitives.LocalTimestamp) {
	weekday := now.Weekday()
	minute := now.MinutesOfDay()
	nextWeekday := primitives.Weekday((int(weekday) + 1) % 7)

	midnight := now
	midnight.Hours, midnight.Minutes, midnight.Seconds = 0, 0, 0

	matched := false
	var best *primitives.LocalTimestamp

	for _, day := range sched.Days {
		if !day.Weekdays.Has(weekday) {
			continue
		}
		for _, tp := range day.TimePeriods {
			if !tp.Covers(minute) {
				continue
			}
			matched = true
			end := resolveEndTime(sched, midnight, nextWeekday, tp)
			if best == nil || end.ToUnix() > best.ToUnix() {
				best = &end
			}
		}
	}
	return matched, best
}

func resolveEndTime(sched ossso.DTSchedule, midnight primitives.LocalTimestamp, nextWeekday primitives.Weekday, tp primitives.TimePeriod) primitives.LocalTimestamp {
	if tp.ToMinutes() < 24*60 {
		end := midnight
		end.Hours = tp.HoursTo
		end.Minutes = tp.MinutesTo
		return end
	}
	tomorrow, err := primitives.TimestampAdd(midnight, primitives.UnitDays, 1)
	if err != nil {
		return midnight
	}
	if siblingEnd, ok := findSiblingMidnightStart(sched, nextWeekday); ok {
		tomorrow.Hours = uint8(siblingEnd / 60)
		tomorrow.Minutes = uint8(siblingEnd % 60)
		return tomorrow
	}
	return tomorrow
}

// findSiblingMidnightStart looks for a day-record covering nextWeekday
// with a time period starting exactly at 00:00, returning its end in
// minutes-of-day.
func findSiblingMidnightStart(sched ossso.DTSchedule, nextWeekday primitives.Weekday) (int, bool) {
	for _, day := range sched.Days {
		if !day.Weekdays.Has(nextWeekday) {
			continue
		}
		for _, tp := range day.TimePeriods {
			if tp.FromMinutes() == 0 {
				return tp.ToMinutes(), true
			}
		}
	}
	return 0, false
}
