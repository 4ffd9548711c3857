package ble

import "testing"

func TestAssembleNativeRegimeExactly31Bytes(t *testing.T) {
	b := NewBuilder()
	if err := b.AppendFlags(0x06); err != nil {
		t.Fatalf("AppendFlags: %v", err)
	}
	if err := b.AppendNativeManufacturerData(NativePayload{
		IsFactory:              false,
		HardwareType:           3,
		BatteryLevel:           90,
		ApplicationVersion:     0x0102,
		LocalMidnightTimeEpoch: 1700000000,
	}); err != nil {
		t.Fatalf("AppendNativeManufacturerData: %v", err)
	}
	if err := b.AppendCompleteLocalName("BLE"); err != nil {
		t.Fatalf("AppendCompleteLocalName: %v", err)
	}

	record, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if b.Len() != RecordSize {
		t.Fatalf("expected exactly %d bytes, got %d", RecordSize, b.Len())
	}

	fields, err := Parse(record[:])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 AD fields, got %d", len(fields))
	}
	if fields[0].Type != AdTypeFlags || fields[0].Data[0] != 0x06 {
		t.Fatalf("unexpected flags field: %+v", fields[0])
	}
	if fields[1].Type != AdTypeManufacturerData {
		t.Fatalf("unexpected second field type: %#x", fields[1].Type)
	}
	payload, err := ParseNativeManufacturerData(fields[1].Data)
	if err != nil {
		t.Fatalf("ParseNativeManufacturerData: %v", err)
	}
	if payload.HardwareType != 3 || payload.BatteryLevel != 90 || payload.ApplicationVersion != 0x0102 || payload.LocalMidnightTimeEpoch != 1700000000 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
	if fields[2].Type != AdTypeCompleteLocalName || string(fields[2].Data) != "BLE" {
		t.Fatalf("unexpected name field: %+v", fields[2])
	}
}

func TestAssembleIBeaconRegimeExactly31Bytes(t *testing.T) {
	b := NewBuilder()
	deviceId := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}
	major, minor := DeviceIdMajorMinor(deviceId)
	var uuid [16]byte
	for i := range uuid {
		uuid[i] = byte(i)
	}
	if err := b.AppendIBeaconManufacturerData(IBeaconPayload{
		ProjectUUID:   uuid,
		Major:         major,
		Minor:         minor,
		MeasuredPower: -59,
	}); err != nil {
		t.Fatalf("AppendIBeaconManufacturerData: %v", err)
	}
	if err := b.AppendServiceUUID16Complete(0x1234); err != nil {
		t.Fatalf("AppendServiceUUID16Complete: %v", err)
	}

	record, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fields, err := Parse(record[:])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 AD fields, got %d", len(fields))
	}
	payload, err := ParseIBeaconManufacturerData(fields[0].Data)
	if err != nil {
		t.Fatalf("ParseIBeaconManufacturerData: %v", err)
	}
	if payload.Major != major || payload.Minor != minor || payload.MeasuredPower != -59 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
	if payload.ProjectUUID != uuid {
		t.Fatalf("UUID mismatch: got %v want %v", payload.ProjectUUID, uuid)
	}
}

func TestAssembleFailsUnlessExactly31Bytes(t *testing.T) {
	b := NewBuilder()
	if err := b.AppendFlags(0x06); err != nil {
		t.Fatalf("AppendFlags: %v", err)
	}
	if _, err := b.Assemble(); err == nil {
		t.Fatal("expected Assemble to fail when short of 31 bytes")
	}
}

func TestAppendFieldRejectsOverflow(t *testing.T) {
	b := NewBuilder()
	if err := b.AppendCompleteLocalName("this name is much too long to fit in one record"); err == nil {
		t.Fatal("expected an overflow error for an oversized field")
	}
}
