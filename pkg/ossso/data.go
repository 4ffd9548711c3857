package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

const dataHeaderSize = 16

// Data is the decoded form of the OSS-SO Data file: a 16-byte header
// followed by DoorInfo records and DTSchedule records.
type Data struct {
	Validity           primitives.LocalTimestamp
	SiteId             uint16
	DaysPerSchedule    uint8
	TimePeriodsPerDay  uint8
	HasExtensions      bool
	DoorInfos          []DoorInfo
	Schedules          []DTSchedule
}

func (d Data) dtScheduleCount() uint8 {
	return uint8(len(d.Schedules))
}

// scheduleRecordSize is the encoded byte length of one DTSchedule given
// daysPerSchedule and timePeriodsPerDay, per spec §4.4:
// daysPerSchedule * (1 + timePeriodsPerDay*4).
func scheduleRecordSize(daysPerSchedule, timePeriodsPerDay uint8) int {
	return int(daysPerSchedule) * (1 + int(timePeriodsPerDay)*4)
}

// DecodeData parses the Data file's header and trailing DoorInfo/DTSchedule
// records. daysPerSchedule/timePeriodsPerDay come from the header's
// DTScheduleInfo byte, so no separate profile input is required.
func DecodeData(b []byte) (Data, error) {
	if len(b) < dataHeaderSize {
		return Data{}, errKind("DecodeData", KindDecodeDataReadFailed, fmt.Errorf("short header: %d bytes", len(b)))
	}
	validity, err := DecodeTimestamp(b[0:6])
	if err != nil {
		return Data{}, err
	}
	siteId, _ := primitives.ReadU16BE(b, 6)
	// b[8:13] reserved
	dtScheduleInfo := b[13]
	doorInfoCount := b[14]
	extensionsInfo := b[15]

	count := dtScheduleInfo >> 4
	daysPerSchedule := ((dtScheduleInfo >> 2) & 0x03) + 1
	timePeriodsPerDay := (dtScheduleInfo & 0x03) + 1

	offset := dataHeaderSize
	doorInfos := make([]DoorInfo, 0, doorInfoCount)
	for i := uint8(0); i < doorInfoCount; i++ {
		if offset+3 > len(b) {
			return Data{}, errKind("DecodeData", KindDecodeDataReadFailed, fmt.Errorf("truncated door info record %d", i))
		}
		di, err := DecodeDoorInfo(b[offset : offset+3])
		if err != nil {
			return Data{}, err
		}
		doorInfos = append(doorInfos, di)
		offset += 3
	}

	recSize := scheduleRecordSize(daysPerSchedule, timePeriodsPerDay)
	schedules := make([]DTSchedule, 0, count)
	for i := uint8(0); i < count; i++ {
		if offset+recSize > len(b) {
			return Data{}, errKind("DecodeData", KindDecodeDataReadFailed, fmt.Errorf("truncated dt schedule record %d", i))
		}
		sched, err := decodeDTSchedule(b[offset:offset+recSize], daysPerSchedule, timePeriodsPerDay)
		if err != nil {
			return Data{}, err
		}
		schedules = append(schedules, sched)
		offset += recSize
	}

	return Data{
		Validity:          validity,
		SiteId:            siteId,
		DaysPerSchedule:   daysPerSchedule,
		TimePeriodsPerDay: timePeriodsPerDay,
		HasExtensions:     extensionsInfo&0x01 != 0,
		DoorInfos:         doorInfos,
		Schedules:         schedules,
	}, nil
}

// Encode serialises d to its wire form: header, DoorInfo records, DTSchedule
// records.
func (d Data) Encode() ([]byte, error) {
	if err := ValidateData(d); err != nil {
		return nil, err
	}
	header := make([]byte, dataHeaderSize)
	ts, err := EncodeTimestamp(d.Validity)
	if err != nil {
		return nil, err
	}
	copy(header[0:6], ts)
	_ = primitives.WriteU16BE(header, 6, d.SiteId)
	dtScheduleInfo := d.dtScheduleCount()<<4 | (((d.DaysPerSchedule - 1) & 0x03) << 2) | ((d.TimePeriodsPerDay - 1) & 0x03)
	header[13] = dtScheduleInfo
	header[14] = uint8(len(d.DoorInfos))
	if d.HasExtensions {
		header[15] = 0x01
	}

	out := append([]byte{}, header...)
	for _, di := range d.DoorInfos {
		enc, err := di.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	for _, sched := range d.Schedules {
		enc, err := encodeDTSchedule(sched, d.DaysPerSchedule, d.TimePeriodsPerDay)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

// ValidateData checks siteId and DoorInfo/schedule shape invariants.
func ValidateData(d Data) error {
	if d.SiteId == 0 {
		return errKind("ValidateData", KindInvalidSiteId, fmt.Errorf("siteId must be nonzero"))
	}
	for _, di := range d.DoorInfos {
		if err := ValidateDoorInfo(di); err != nil {
			return err
		}
	}
	if len(d.Schedules) > 15 {
		return errKind("ValidateData", KindInvalidDTScheduleNumber, fmt.Errorf("too many dt schedules: %d", len(d.Schedules)))
	}
	return nil
}

func decodeDTSchedule(b []byte, daysPerSchedule, timePeriodsPerDay uint8) (DTSchedule, error) {
	dayLen := 1 + int(timePeriodsPerDay)*4
	days := make([]DTScheduleDay, 0, daysPerSchedule)
	for d := uint8(0); d < daysPerSchedule; d++ {
		dayBytes := b[int(d)*dayLen : int(d)*dayLen+dayLen]
		weekdays := primitives.WeekdaySet(dayBytes[0])
		periods := make([]primitives.TimePeriod, 0, timePeriodsPerDay)
		for p := uint8(0); p < timePeriodsPerDay; p++ {
			pb := dayBytes[1+int(p)*4 : 1+int(p)*4+4]
			if allZeroBytes(pb) {
				break
			}
			tp, err := DecodeTimeperiod(pb)
			if err != nil {
				return DTSchedule{}, err
			}
			periods = append(periods, tp)
		}
		days = append(days, DTScheduleDay{Weekdays: weekdays, TimePeriods: periods})
	}
	return DTSchedule{Days: days}, nil
}

func encodeDTSchedule(s DTSchedule, daysPerSchedule, timePeriodsPerDay uint8) ([]byte, error) {
	dayLen := 1 + int(timePeriodsPerDay)*4
	out := make([]byte, int(daysPerSchedule)*dayLen)
	if len(s.Days) > int(daysPerSchedule) {
		return nil, errKind("encodeDTSchedule", KindInvalidArguments, fmt.Errorf("too many days: %d", len(s.Days)))
	}
	for d, day := range s.Days {
		base := d * dayLen
		out[base] = byte(day.Weekdays)
		if len(day.TimePeriods) > int(timePeriodsPerDay) {
			return nil, errKind("encodeDTSchedule", KindInvalidArguments, fmt.Errorf("too many periods on day %d", d))
		}
		for p, tp := range day.TimePeriods {
			enc, err := EncodeTimeperiod(tp)
			if err != nil {
				return nil, err
			}
			copy(out[base+1+p*4:base+1+p*4+4], enc)
		}
	}
	return out, nil
}

func allZeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
