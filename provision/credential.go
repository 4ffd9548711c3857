package main

import (
	"fmt"
	"strings"

	"github.com/blueidhq/accesscore/provision/internal/config"

	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

// credentialIdFromString left-pads s (interpreted byte-for-byte, matching
// the "ABC0000001"-style literal credential ids the spec's scenarios use)
// to the 10-byte wire width.
func credentialIdFromString(s string) (ossso.CredentialId, error) {
	if len(s) > 10 {
		return ossso.CredentialId{}, fmt.Errorf("credential id %q longer than 10 bytes", s)
	}
	raw := make([]byte, 10)
	copy(raw[10-len(s):], s)
	return ossso.DecodeCredentialId(raw)
}

func credentialTypeFromConfig(kind string) ossso.CredentialType {
	code := ossso.OSSRegular
	if kind == "intervention_media" {
		code = ossso.OSSInterventionMedia
	}
	return ossso.CredentialType{Source: ossso.SourceOSS, Code: code}
}

func weekdayFromString(s string) (primitives.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday", "mon":
		return primitives.Monday, nil
	case "tuesday", "tue":
		return primitives.Tuesday, nil
	case "wednesday", "wed":
		return primitives.Wednesday, nil
	case "thursday", "thu":
		return primitives.Thursday, nil
	case "friday", "fri":
		return primitives.Friday, nil
	case "saturday", "sat":
		return primitives.Saturday, nil
	case "sunday", "sun":
		return primitives.Sunday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
}

func timePeriodFromConfig(p config.PeriodConfig) (primitives.TimePeriod, error) {
	if p.From == "" && p.To == "" {
		return primitives.TimePeriod{}, nil
	}
	fh, fm, err := parseHHMM(p.From)
	if err != nil {
		return primitives.TimePeriod{}, fmt.Errorf("periods.from: %w", err)
	}
	th, tm, err := parseHHMM(p.To)
	if err != nil {
		return primitives.TimePeriod{}, fmt.Errorf("periods.to: %w", err)
	}
	period := primitives.TimePeriod{HoursFrom: fh, MinutesFrom: fm, HoursTo: th, MinutesTo: tm}
	if err := period.Validate(); err != nil {
		return primitives.TimePeriod{}, err
	}
	return period, nil
}

func parseHHMM(s string) (hours, minutes uint8, err error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return uint8(h), uint8(m), nil
}

// dtScheduleFromConfig builds the single DTSchedule this tool provisions
// from sc, padding every day record to timePeriodsPerDay periods (the
// trailing all-zero periods terminate the day's list on decode, per
// spec §4.4).
func dtScheduleFromConfig(sc config.ScheduleConfig) (ossso.DTSchedule, error) {
	sched := ossso.DTSchedule{Days: make([]ossso.DTScheduleDay, 0, len(sc.Days))}
	for _, d := range sc.Days {
		var weekdays primitives.WeekdaySet
		for _, w := range d.Weekdays {
			wd, err := weekdayFromString(w)
			if err != nil {
				return ossso.DTSchedule{}, err
			}
			weekdays = weekdays.With(wd)
		}
		periods := make([]primitives.TimePeriod, 0, sc.TimePeriodsPerDay)
		for _, pc := range d.Periods {
			tp, err := timePeriodFromConfig(pc)
			if err != nil {
				return ossso.DTSchedule{}, err
			}
			periods = append(periods, tp)
		}
		for len(periods) < sc.TimePeriodsPerDay {
			periods = append(periods, primitives.TimePeriod{})
		}
		sched.Days = append(sched.Days, ossso.DTScheduleDay{Weekdays: weekdays, TimePeriods: periods})
	}
	return sched, nil
}
