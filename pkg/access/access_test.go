package access

import (
	"testing"

	"github.com/blueidhq/accesscore/pkg/ossso"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

// memStorage is an in-memory access.Storage fake.
type memStorage struct {
	files map[ossso.FileId][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[ossso.FileId][]byte{}}
}

func (m *memStorage) Prepare(mode Mode) error { return nil }

func (m *memStorage) Read(fileID ossso.FileId, offset, size int) ([]byte, error) {
	buf := m.files[fileID]
	if offset+size > len(buf) {
		return nil, errKind("memStorage.Read", KindInvalidArguments, nil)
	}
	return append([]byte{}, buf[offset:offset+size]...), nil
}

func (m *memStorage) Write(fileID ossso.FileId, offset int, data []byte) error {
	buf := m.files[fileID]
	need := offset + len(data)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	m.files[fileID] = buf
	return nil
}

func mustCredId(t *testing.T, b []byte) ossso.CredentialId {
	t.Helper()
	id, err := ossso.DecodeCredentialId(b)
	if err != nil {
		t.Fatalf("DecodeCredentialId: %v", err)
	}
	return id
}

func writeInfo(t *testing.T, store *memStorage, info ossso.Info) {
	t.Helper()
	if err := ossso.WriteInfo(store, info); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
}

func writeData(t *testing.T, store *memStorage, data ossso.Data) {
	t.Helper()
	if err := ossso.WriteData(store, data); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
}

func writeEmptyBlacklist(t *testing.T, store *memStorage) {
	t.Helper()
	if err := ossso.WriteBlacklistFile(store, ossso.BlacklistFile{}, 10); err != nil {
		t.Fatalf("WriteBlacklistFile: %v", err)
	}
}

// Scenario 1: schedule wraparound. Mon={22:00-24:00}, sibling Tue={00:00-06:00}.
// Evaluated at Mon 23:15, access must be granted with scheduleEndTime Tue 06:00.
func TestScenarioScheduleWraparound(t *testing.T) {
	store := newMemStorage()
	credId := mustCredId(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	writeInfo(t, store, ossso.Info{
		VersionMajor:        1,
		CredentialType:      ossso.CredentialType{Source: ossso.SourceOSS, Code: ossso.OSSRegular},
		CredentialId:        credId,
		MaxEventEntries:     10,
		MaxBlacklistEntries: 10,
	})
	writeData(t, store, ossso.Data{
		Validity:          primitives.LocalTimestamp{Year: 2030, Month: 1, Date: 1},
		SiteId:            1,
		DaysPerSchedule:   2,
		TimePeriodsPerDay: 1,
		DoorInfos: []ossso.DoorInfo{
			{DoorId: 5, DTScheduleNumber: 1, AccessBy: ossso.AccessByDoor},
		},
		Schedules: []ossso.DTSchedule{
			{Days: []ossso.DTScheduleDay{
				{Weekdays: primitives.WeekdaySet(0).With(primitives.Monday), TimePeriods: []primitives.TimePeriod{
					{HoursFrom: 22, MinutesFrom: 0, HoursTo: 24, MinutesTo: 0},
				}},
				{Weekdays: primitives.WeekdaySet(0).With(primitives.Tuesday), TimePeriods: []primitives.TimePeriod{
					{HoursFrom: 0, MinutesFrom: 0, HoursTo: 6, MinutesTo: 0},
				}},
			}},
		},
	})
	writeEmptyBlacklist(t, store)

	// 2026-07-27 is a Monday.
	now := primitives.LocalTimestamp{Year: 2026, Month: 7, Date: 27, Hours: 23, Minutes: 15}
	if got := now.Weekday(); got != primitives.Monday {
		t.Fatalf("test fixture date is not a Monday: %v", got)
	}

	var granted bool
	var endTime *primitives.LocalTimestamp
	proc := Process{
		GrantAccess: func(accessType ossso.AccessType, end *primitives.LocalTimestamp) error {
			granted = true
			endTime = end
			return nil
		},
		DenyAccess: func(info ossso.EventInfo) error { return nil },
	}

	result, err := Evaluate(now, store, ProcessConfig{SiteId: 1, DoorId: 5}, proc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Granted || !granted {
		t.Fatalf("expected access granted, got %+v", result)
	}
	if endTime == nil {
		t.Fatal("expected a scheduleEndTime")
	}
	want := primitives.LocalTimestamp{Year: 2026, Month: 7, Date: 28, Hours: 6, Minutes: 0}
	if *endTime != want {
		t.Fatalf("scheduleEndTime mismatch: got %+v want %+v", *endTime, want)
	}
}

// Scenario 2: blacklisted intervention media. Expect both events, deny
// NoAccessBlacklisted, no Data/Blacklist-file reads beyond the blacklist
// check itself.
func TestScenarioBlacklistedInterventionMedia(t *testing.T) {
	store := newMemStorage()
	credId := mustCredId(t, []byte{'A', 'B', 'C', '0', '0', '0', '0', '0', '0', '1'})
	writeInfo(t, store, ossso.Info{
		VersionMajor:   1,
		CredentialType: ossso.CredentialType{Source: ossso.SourceOSS, Code: ossso.OSSInterventionMedia},
		CredentialId:   credId,
	})
	writeEmptyBlacklist(t, store)

	var events []ossso.EventId
	var denyInfo ossso.EventInfo
	proc := Process{
		VerifyCredentialIdIsNotBlacklisted: func(id ossso.CredentialId) bool { return false },
		StoreEvent: func(ev ossso.Event) error {
			events = append(events, ev.EventId)
			return nil
		},
		DenyAccess: func(info ossso.EventInfo) error {
			denyInfo = info
			return nil
		},
		GrantAccess: func(ossso.AccessType, *primitives.LocalTimestamp) error {
			t.Fatal("grant must not be called for a blacklisted intervention media credential")
			return nil
		},
	}

	now := primitives.LocalTimestamp{Year: 2026, Month: 1, Date: 1}
	result, err := Evaluate(now, store, ProcessConfig{SiteId: 1, DoorId: 1}, proc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Granted {
		t.Fatal("expected denial")
	}
	if denyInfo != ossso.InfoNoAccessBlacklisted {
		t.Fatalf("expected NoAccessBlacklisted, got %v", denyInfo)
	}
	if len(events) != 2 || events[0] != ossso.EventBlacklistedCredentialDetected || events[1] != ossso.EventAccessDenied {
		t.Fatalf("expected [BlacklistedCredentialDetected, AccessDenied] events, got %v", events)
	}
}

// Scenario 3: validity extension. Data.validity is 2030, CustomerExtensions
// validityStart is 2025, now is one minute before that start.
func TestScenarioValidityExtensionDeniesBeforeStart(t *testing.T) {
	store := newMemStorage()
	credId := mustCredId(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 2})
	writeInfo(t, store, ossso.Info{
		VersionMajor:        1,
		CredentialType:      ossso.CredentialType{Source: ossso.SourceOSS, Code: ossso.OSSRegular},
		CredentialId:        credId,
		MaxEventEntries:     10,
		MaxBlacklistEntries: 10,
	})
	writeData(t, store, ossso.Data{
		Validity:          primitives.LocalTimestamp{Year: 2030, Month: 1, Date: 1},
		SiteId:            1,
		DaysPerSchedule:   1,
		TimePeriodsPerDay: 1,
		HasExtensions:     true,
	})
	writeEmptyBlacklist(t, store)
	validityStart := primitives.LocalTimestamp{Year: 2025, Month: 1, Date: 1}
	tsBytes, err := ossso.EncodeTimestamp(validityStart)
	if err != nil {
		t.Fatalf("EncodeTimestamp: %v", err)
	}
	ce := ossso.CustomerExtensions{Features: []ossso.ExtensionFeature{{Tag: ossso.TagValidityStart, Value: tsBytes}}}
	if err := ossso.WriteCustomerExtensions(store, ce); err != nil {
		t.Fatalf("WriteCustomerExtensions: %v", err)
	}

	var denyInfo ossso.EventInfo
	proc := Process{
		VerifyCredentialIdIsNotBlacklisted: func(ossso.CredentialId) bool { return true },
		DenyAccess: func(info ossso.EventInfo) error {
			denyInfo = info
			return nil
		},
		GrantAccess: func(ossso.AccessType, *primitives.LocalTimestamp) error {
			t.Fatal("grant must not be called before validityStart")
			return nil
		},
	}

	now := primitives.LocalTimestamp{Year: 2024, Month: 12, Date: 31, Hours: 23, Minutes: 59}
	result, err := Evaluate(now, store, ProcessConfig{SiteId: 1, DoorId: 1}, proc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Granted {
		t.Fatal("expected denial")
	}
	if denyInfo != ossso.InfoNoAccessValidity {
		t.Fatalf("expected NoAccessValidity, got %v", denyInfo)
	}
}

// Universal invariant: for a DoorInfo mix with Toggle and DefaultTime
// entries both matching, Toggle wins.
func TestAccessTypePriorityTogglePreferredOverDefaultTime(t *testing.T) {
	store := newMemStorage()
	credId := mustCredId(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 3})
	writeInfo(t, store, ossso.Info{
		VersionMajor:        1,
		CredentialType:      ossso.CredentialType{Source: ossso.SourceOSS, Code: ossso.OSSRegular},
		CredentialId:        credId,
		MaxEventEntries:     10,
		MaxBlacklistEntries: 10,
	})
	writeData(t, store, ossso.Data{
		Validity:          primitives.LocalTimestamp{Year: 2030, Month: 1, Date: 1},
		SiteId:            1,
		DaysPerSchedule:   1,
		TimePeriodsPerDay: 1,
		DoorInfos: []ossso.DoorInfo{
			{DoorId: 1, DTScheduleNumber: 0, AccessBy: ossso.AccessByDoor, Toggle: false},
			{DoorId: 1, DTScheduleNumber: 0, AccessBy: ossso.AccessByDoor, Toggle: true},
		},
	})
	writeEmptyBlacklist(t, store)

	var gotType ossso.AccessType
	proc := Process{
		GrantAccess: func(accessType ossso.AccessType, _ *primitives.LocalTimestamp) error {
			gotType = accessType
			return nil
		},
		DenyAccess: func(ossso.EventInfo) error {
			t.Fatal("expected grant")
			return nil
		},
	}

	now := primitives.LocalTimestamp{Year: 2026, Month: 1, Date: 1}
	if _, err := Evaluate(now, store, ProcessConfig{SiteId: 1, DoorId: 1}, proc); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if gotType != ossso.AccessToggle {
		t.Fatalf("expected Toggle to win, got %v", gotType)
	}
}
