package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// CredentialSource is the bit-7 discriminator of CredentialType.
type CredentialSource uint8

const (
	SourceOSS        CredentialSource = 0
	SourceProprietary CredentialSource = 1
)

// OSS credential kinds, valid when Source == SourceOSS.
const (
	OSSRegular           uint8 = 0
	OSSInterventionMedia uint8 = 1
)

// CredentialType is the tagged union over a single byte: bit 7 selects OSS
// vs. proprietary, bits [0..6] carry the kind or manufacturer code.
type CredentialType struct {
	Source CredentialSource
	Code   uint8
}

func DecodeCredentialType(b byte) CredentialType {
	return CredentialType{
		Source: CredentialSource(b >> 7),
		Code:   b & 0x7F,
	}
}

func (c CredentialType) Encode() byte {
	return byte(c.Source)<<7 | (c.Code & 0x7F)
}

func (c CredentialType) IsOSS() bool          { return c.Source == SourceOSS }
func (c CredentialType) IsProprietary() bool  { return c.Source == SourceProprietary }
func (c CredentialType) IsInterventionMedia() bool {
	return c.IsOSS() && c.Code == OSSInterventionMedia
}

// CredentialId is ten bytes on the wire, left-padded with zeros. In memory
// it is held in that same 10-byte padded form, not compacted; Bytes returns
// the compacted value with the leading zero bytes removed.
type CredentialId struct {
	raw [10]byte
}

// DecodeCredentialId copies a 10-byte wire value unchanged.
func DecodeCredentialId(b []byte) (CredentialId, error) {
	if len(b) != 10 {
		return CredentialId{}, errKind("DecodeCredentialId", KindInvalidCredentialId, fmt.Errorf("expected 10 bytes, got %d", len(b)))
	}
	var id CredentialId
	copy(id.raw[:], b)
	return id, nil
}

// Encode returns the 10-byte left-padded wire form.
func (c CredentialId) Encode() []byte {
	out := make([]byte, 10)
	copy(out, c.raw[:])
	return out
}

func (c CredentialId) Bytes() []byte {
	for i, b := range c.raw {
		if b != 0 {
			return append([]byte{}, c.raw[i:]...)
		}
	}
	return nil
}

func (c CredentialId) String() string {
	return fmt.Sprintf("%X", c.Bytes())
}

func (c CredentialId) Equal(other CredentialId) bool {
	return c.raw == other.raw
}

// AccessBy selects whether a DoorInfo record gates access by a specific
// door id or by membership in a door group.
type AccessBy uint8

const (
	AccessByGroup AccessBy = 0
	AccessByDoor  AccessBy = 1
)

// DoorInfo is a 3-byte record: doorId (u16 BE) plus a settings byte whose
// bit layout is [7..4]=dtScheduleNumber, [3]=accessBy, [2]=toggle,
// [1]=extendedTime, [0]=reserved.
type DoorInfo struct {
	DoorId           uint16
	DTScheduleNumber uint8
	AccessBy         AccessBy
	Toggle           bool
	ExtendedTime     bool
}

func (d DoorInfo) IsZero() bool {
	return d == DoorInfo{}
}

// AccessType ranks DoorInfo decoded behaviour; Toggle beats ExtendedTime
// beats DefaultTime when multiple DoorInfo records match.
type AccessType int

const (
	AccessDefaultTime AccessType = iota
	AccessExtendedTime
	AccessToggle
)

func (d DoorInfo) AccessType() AccessType {
	switch {
	case d.Toggle:
		return AccessToggle
	case d.ExtendedTime:
		return AccessExtendedTime
	default:
		return AccessDefaultTime
	}
}

func DecodeDoorInfo(b []byte) (DoorInfo, error) {
	if len(b) != 3 {
		return DoorInfo{}, errKind("DecodeDoorInfo", KindInvalidArguments, fmt.Errorf("expected 3 bytes, got %d", len(b)))
	}
	doorId, _ := primitives.ReadU16BE(b, 0)
	settings := b[2]
	return DoorInfo{
		DoorId:           doorId,
		DTScheduleNumber: settings >> 4,
		AccessBy:         AccessBy((settings >> 3) & 1),
		Toggle:           settings&0x04 != 0,
		ExtendedTime:     settings&0x02 != 0,
	}, nil
}

func (d DoorInfo) Encode() ([]byte, error) {
	if err := ValidateDoorInfo(d); err != nil {
		return nil, err
	}
	out := make([]byte, 3)
	_ = primitives.WriteU16BE(out, 0, d.DoorId)
	settings := (d.DTScheduleNumber & 0x0F) << 4
	settings |= byte(d.AccessBy&1) << 3
	if d.Toggle {
		settings |= 0x04
	}
	if d.ExtendedTime {
		settings |= 0x02
	}
	out[2] = settings
	return out, nil
}

// ValidateDoorInfo enforces the bit-field ranges, returning InvalidDoorAccessBy
// for accessBy and InvalidDTScheduleNumber for a schedule number out of the
// 4-bit range.
func ValidateDoorInfo(d DoorInfo) error {
	if d.IsZero() {
		return nil
	}
	if d.DTScheduleNumber > 0x0F {
		return errKind("ValidateDoorInfo", KindInvalidDTScheduleNumber, fmt.Errorf("schedule number %d out of range", d.DTScheduleNumber))
	}
	if d.AccessBy != AccessByGroup && d.AccessBy != AccessByDoor {
		return errKind("ValidateDoorInfo", KindInvalidDoorAccessBy, fmt.Errorf("accessBy %d invalid", d.AccessBy))
	}
	return nil
}

// DTScheduleDay is one day-record in a DTSchedule: a weekday bitmap and a
// list of time periods, terminated by the first all-zero period.
type DTScheduleDay struct {
	Weekdays    primitives.WeekdaySet
	TimePeriods []primitives.TimePeriod
}

// DTSchedule is the full per-door schedule: daysPerSchedule day records,
// each holding up to timePeriodsPerDay periods.
type DTSchedule struct {
	Days []DTScheduleDay
}
