package ossso

import (
	"bytes"
	"testing"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// memStore is an in-memory FileStore fake for testing the reader/writer
// glue against the per-file codecs.
type memStore struct {
	files map[FileId][]byte
}

func newMemStore() *memStore {
	return &memStore{files: map[FileId][]byte{}}
}

func (m *memStore) Read(fileID FileId, offset, size int) ([]byte, error) {
	buf := m.files[fileID]
	if offset+size > len(buf) {
		return nil, errKind("memStore.Read", KindDecodeDataReadFailed, nil)
	}
	return append([]byte{}, buf[offset:offset+size]...), nil
}

func (m *memStore) Write(fileID FileId, offset int, data []byte) error {
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

func TestInfoRoundTrip(t *testing.T) {
	credId, _ := DecodeCredentialId([]byte{0, 0, 0, 0, 0, 0, 1, 2, 3, 4})
	info := Info{
		VersionMajor:        1,
		VersionMinor:        2,
		CredentialType:      CredentialType{Source: SourceOSS, Code: OSSRegular},
		CredentialId:        credId,
		MaxEventEntries:     20,
		MaxBlacklistEntries: 10,
	}
	store := newMemStore()
	if err := WriteInfo(store, info); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
	got, err := ReadInfo(store)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if got != info {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, info)
	}
}

func TestInfoRejectsIncompatibleMajorVersion(t *testing.T) {
	raw := make([]byte, InfoFileSize)
	raw[0] = SupportedMajorVersion + 1
	if _, err := DecodeInfo(raw); err == nil {
		t.Fatal("expected incompatible major version to fail")
	}
}

func TestDataRoundTripWithDoorInfoAndSchedule(t *testing.T) {
	data := Data{
		Validity:          primitives.LocalTimestamp{Year: 2026, Month: 12, Date: 31, Hours: 23, Minutes: 59},
		SiteId:            42,
		DaysPerSchedule:   2,
		TimePeriodsPerDay: 2,
		HasExtensions:     true,
		DoorInfos: []DoorInfo{
			{DoorId: 7, DTScheduleNumber: 1, AccessBy: AccessByDoor, Toggle: true},
		},
		Schedules: []DTSchedule{
			{Days: []DTScheduleDay{
				{Weekdays: primitives.WeekdaySet(0).With(primitives.Monday), TimePeriods: []primitives.TimePeriod{
					{HoursFrom: 8, MinutesFrom: 0, HoursTo: 18, MinutesTo: 0},
				}},
				{Weekdays: primitives.WeekdaySet(0).With(primitives.Tuesday)},
			}},
		},
	}
	store := newMemStore()
	if err := WriteData(store, data); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	got, err := ReadData(store)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if got.SiteId != data.SiteId || len(got.DoorInfos) != 1 || len(got.Schedules) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DoorInfos[0].AccessType() != AccessToggle {
		t.Fatalf("expected toggle access type, got %v", got.DoorInfos[0].AccessType())
	}
	if len(got.Schedules[0].Days[0].TimePeriods) != 1 {
		t.Fatalf("expected 1 decoded time period, got %d", len(got.Schedules[0].Days[0].TimePeriods))
	}
}

func TestDataRejectsZeroSiteId(t *testing.T) {
	data := Data{DaysPerSchedule: 1, TimePeriodsPerDay: 1}
	if _, err := data.Encode(); err == nil {
		t.Fatal("expected zero siteId to fail validation")
	}
}

func TestBlacklistContains(t *testing.T) {
	credId, _ := DecodeCredentialId([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 9})
	bf := BlacklistFile{Entries: []BlacklistEntry{
		{CredentialId: credId, ExpiresAt: primitives.LocalTimestamp{}},
	}}
	store := newMemStore()
	if err := WriteBlacklistFile(store, bf, 5); err != nil {
		t.Fatalf("WriteBlacklistFile: %v", err)
	}
	got, err := ReadBlacklistFile(store)
	if err != nil {
		t.Fatalf("ReadBlacklistFile: %v", err)
	}
	if !got.Contains(credId, primitives.LocalTimestamp{Year: 2026, Month: 1, Date: 1}) {
		t.Fatal("expected blacklisted credential to be found")
	}
}

func TestBlacklistRejectsTooManyEntries(t *testing.T) {
	bf := BlacklistFile{Entries: make([]BlacklistEntry, 3)}
	if _, err := bf.Encode(2); err == nil {
		t.Fatal("expected max blacklist entries exceeded")
	}
}

func TestCustomerExtensionsValidityStartRoundTrip(t *testing.T) {
	ts := primitives.LocalTimestamp{Year: 2026, Month: 6, Date: 1}
	tsBytes, err := EncodeTimestamp(ts)
	if err != nil {
		t.Fatal(err)
	}
	ce := CustomerExtensions{Features: []ExtensionFeature{
		{Tag: TagValidityStart, Value: tsBytes},
	}}
	enc, err := ce.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCustomerExtensions(enc)
	if err != nil {
		t.Fatal(err)
	}
	vs, ok, err := got.ValidityStart()
	if err != nil || !ok {
		t.Fatalf("expected validity start present, err=%v ok=%v", err, ok)
	}
	if vs != ts {
		t.Fatalf("validity start mismatch: got %+v want %+v", vs, ts)
	}
}

func TestCustomerExtensionsLongValueUsesExtendedLength(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB}, 300)
	ce := CustomerExtensions{Features: []ExtensionFeature{{Tag: 0x02, Value: value}}}
	enc, err := ce.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCustomerExtensions(enc)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := got.Get(0x02)
	if !ok || !bytes.Equal(v, value) {
		t.Fatal("expected long value to round trip via 2-byte extended length")
	}
}

func TestDoorInfoRejectsInvalidScheduleNumber(t *testing.T) {
	di := DoorInfo{DoorId: 1, DTScheduleNumber: 0x1F}
	if _, err := di.Encode(); err == nil {
		t.Fatal("expected out-of-range schedule number to fail")
	}
}
