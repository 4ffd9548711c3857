package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// EncodeTimestamp packs t into the 6-byte wire form: year (2B BCD), month,
// date, hours, minutes (1B BCD each). Seconds are not carried on the wire
// and are assumed zero on decode.
func EncodeTimestamp(t primitives.LocalTimestamp) ([]byte, error) {
	if err := ValidateTimestamp(t); err != nil {
		return nil, err
	}
	out := make([]byte, 6)
	yr, err := primitives.EncodeBCD(uint64(t.Year), 2)
	if err != nil {
		return nil, errKind("EncodeTimestamp", KindInvalidTimestamp, err)
	}
	copy(out[0:2], yr)
	for i, v := range []uint8{t.Month, t.Date, t.Hours, t.Minutes} {
		b, err := primitives.EncodeBCD(uint64(v), 1)
		if err != nil {
			return nil, errKind("EncodeTimestamp", KindInvalidTimestamp, err)
		}
		out[2+i] = b[0]
	}
	return out, nil
}

// DecodeTimestamp unpacks the 6-byte wire form produced by EncodeTimestamp.
func DecodeTimestamp(b []byte) (primitives.LocalTimestamp, error) {
	if len(b) != 6 {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, fmt.Errorf("expected 6 bytes, got %d", len(b)))
	}
	year, err := primitives.DecodeBCD(b[0:2])
	if err != nil {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, err)
	}
	month, err := primitives.DecodeBCD(b[2:3])
	if err != nil {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, err)
	}
	date, err := primitives.DecodeBCD(b[3:4])
	if err != nil {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, err)
	}
	hours, err := primitives.DecodeBCD(b[4:5])
	if err != nil {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, err)
	}
	minutes, err := primitives.DecodeBCD(b[5:6])
	if err != nil {
		return primitives.LocalTimestamp{}, errKind("DecodeTimestamp", KindInvalidTimestamp, err)
	}
	t := primitives.LocalTimestamp{
		Year: uint16(year), Month: uint8(month), Date: uint8(date),
		Hours: uint8(hours), Minutes: uint8(minutes),
	}
	if err := ValidateTimestamp(t); err != nil {
		return primitives.LocalTimestamp{}, err
	}
	return t, nil
}

// ValidateTimestamp wraps primitives.LocalTimestamp.Validate, remapping its
// error to the OSS-SO InvalidTimestamp kind.
func ValidateTimestamp(t primitives.LocalTimestamp) error {
	if err := t.Validate(); err != nil {
		return errKind("ValidateTimestamp", KindInvalidTimestamp, err)
	}
	return nil
}

// EncodeTimeperiod packs p into the 4-byte wire form: hoursFrom, minutesFrom,
// hoursTo, minutesTo, each 1-byte packed BCD.
func EncodeTimeperiod(p primitives.TimePeriod) ([]byte, error) {
	if err := ValidateTimeperiod(p); err != nil {
		return nil, err
	}
	out := make([]byte, 4)
	for i, v := range []uint8{p.HoursFrom, p.MinutesFrom, p.HoursTo, p.MinutesTo} {
		b, err := primitives.EncodeBCD(uint64(v), 1)
		if err != nil {
			return nil, errKind("EncodeTimeperiod", KindInvalidTimeperiod, err)
		}
		out[i] = b[0]
	}
	return out, nil
}

// DecodeTimeperiod unpacks the 4-byte wire form produced by EncodeTimeperiod.
func DecodeTimeperiod(b []byte) (primitives.TimePeriod, error) {
	if len(b) != 4 {
		return primitives.TimePeriod{}, errKind("DecodeTimeperiod", KindInvalidTimeperiod, fmt.Errorf("expected 4 bytes, got %d", len(b)))
	}
	vals := make([]uint64, 4)
	for i := range vals {
		v, err := primitives.DecodeBCD(b[i : i+1])
		if err != nil {
			return primitives.TimePeriod{}, errKind("DecodeTimeperiod", KindInvalidTimeperiod, err)
		}
		vals[i] = v
	}
	p := primitives.TimePeriod{
		HoursFrom: uint8(vals[0]), MinutesFrom: uint8(vals[1]),
		HoursTo: uint8(vals[2]), MinutesTo: uint8(vals[3]),
	}
	if err := ValidateTimeperiod(p); err != nil {
		return primitives.TimePeriod{}, err
	}
	return p, nil
}

// ValidateTimeperiod wraps primitives.TimePeriod.Validate, remapping its
// error to the OSS-SO InvalidTimeperiod kind.
func ValidateTimeperiod(p primitives.TimePeriod) error {
	if err := p.Validate(); err != nil {
		return errKind("ValidateTimeperiod", KindInvalidTimeperiod, err)
	}
	return nil
}
