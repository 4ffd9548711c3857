package primitives

import "testing"

func TestTimestampRoundTrip(t *testing.T) {
	cases := []LocalTimestamp{
		{},
		{Year: 2025, Month: 1, Date: 1, Hours: 0, Minutes: 0, Seconds: 0},
		{Year: 2024, Month: 2, Date: 29, Hours: 23, Minutes: 59, Seconds: 59},
		{Year: 2030, Month: 12, Date: 31, Hours: 12, Minutes: 30, Seconds: 15},
	}
	for _, c := range cases {
		got := TimestampFromUnix(c.ToUnix())
		if got != c {
			t.Errorf("round trip mismatch: in=%+v out=%+v", c, got)
		}
	}
}

func TestDayOfYear366Normalisation(t *testing.T) {
	// 2025 is not a leap year: March 1 should report day 61, as if February
	// had 29 days, per the explicit shift direction spec calls out.
	ts := LocalTimestamp{Year: 2025, Month: 3, Date: 1}
	if got := ts.DayOfYear(true); got != 61 {
		t.Fatalf("expected normalised day 61, got %d", got)
	}
	if got := ts.DayOfYear(false); got != 60 {
		t.Fatalf("expected plain day 60, got %d", got)
	}
}

func TestTimePeriodValidate(t *testing.T) {
	valid := TimePeriod{HoursFrom: 8, MinutesFrom: 0, HoursTo: 18, MinutesTo: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid period, got %v", err)
	}
	midnight := TimePeriod{HoursFrom: 22, MinutesFrom: 0, HoursTo: 24, MinutesTo: 0}
	if err := midnight.Validate(); err != nil {
		t.Fatalf("expected 24:00 end to validate, got %v", err)
	}
	bad := TimePeriod{HoursFrom: 24, MinutesFrom: 0, HoursTo: 24, MinutesTo: 30}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for hoursTo==24 with nonzero minutesTo")
	}
	inverted := TimePeriod{HoursFrom: 18, MinutesFrom: 0, HoursTo: 8, MinutesTo: 0}
	if err := inverted.Validate(); err == nil {
		t.Fatal("expected validation error when from >= to")
	}
}

func TestWeekdayZeller(t *testing.T) {
	// 2025-07-31 is a Thursday.
	ts := LocalTimestamp{Year: 2025, Month: 7, Date: 31}
	if got := ts.Weekday(); got != Thursday {
		t.Fatalf("expected Thursday, got %v", got)
	}
	// 2024-02-29 (leap day) is a Thursday.
	leap := LocalTimestamp{Year: 2024, Month: 2, Date: 29}
	if got := leap.Weekday(); got != Thursday {
		t.Fatalf("expected Thursday, got %v", got)
	}
}

func TestBCDRoundTrip(t *testing.T) {
	enc, err := EncodeBCD(2025, 2)
	if err != nil {
		t.Fatalf("EncodeBCD: %v", err)
	}
	if enc[0] != 0x20 || enc[1] != 0x25 {
		t.Fatalf("unexpected BCD encoding: % X", enc)
	}
	dec, err := DecodeBCD(enc)
	if err != nil {
		t.Fatalf("DecodeBCD: %v", err)
	}
	if dec != 2025 {
		t.Fatalf("expected 2025, got %d", dec)
	}
}

func TestCRC32Accumulator(t *testing.T) {
	a := NewCRC32Accumulator()
	a.Append([]byte("123456789"))
	if got := a.Sum(); got != 0xCBF43926 {
		t.Fatalf("expected standard check value 0xCBF43926, got 0x%08X", got)
	}
	// One-shot helper must agree with the accumulator.
	if got := CRC32([]byte("123456789")); got != 0xCBF43926 {
		t.Fatalf("CRC32 one-shot mismatch: 0x%08X", got)
	}
}
