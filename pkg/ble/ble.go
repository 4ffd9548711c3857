// Package ble encodes and parses the 31-byte BLE advertisement and
// scan-response records the access-control beacon uses to announce
// itself: AD-field TLVs for flags, name, service UUIDs and manufacturer
// data, in both an iBeacon-compatible regime and a native one.
package ble

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// RecordSize is the fixed length of a BLE advertisement or scan-response
// record.
const RecordSize = 31

// AD field types, as defined by the Bluetooth Core Specification
// Supplement.
const (
	AdTypeFlags                 = 0x01
	AdTypeServiceUUID16Complete = 0x03
	AdTypeCompleteLocalName     = 0x09
	AdTypeTxPower               = 0x0A
	AdTypeManufacturerData      = 0xFF
)

// CompanyIdApple is the Bluetooth SIG company identifier Apple's iBeacon
// format is registered under.
const CompanyIdApple = 0x004C

// CompanyIdNative is the company identifier the native (non-iBeacon)
// manufacturer data regime is carried under.
const CompanyIdNative = 0x0C5E

const (
	iBeaconSubtype       = 0x02
	iBeaconSubtypeLength = 0x15
)

// NativePayloadSize is the length of the native manufacturer data payload.
const NativePayloadSize = 19

// IBeaconPayload is the data an iBeacon-compatible manufacturer data AD
// field carries: a project UUID, the first four bytes of the device id
// packed into major/minor, and a measured (1m) TX power.
type IBeaconPayload struct {
	ProjectUUID   [16]byte
	Major         uint16
	Minor         uint16
	MeasuredPower int8
}

// DeviceIdMajorMinor packs the first four bytes of a device id into
// (major, minor), big-endian within each half.
func DeviceIdMajorMinor(deviceId [4]byte) (major, minor uint16) {
	major = uint16(deviceId[0])<<8 | uint16(deviceId[1])
	minor = uint16(deviceId[2])<<8 | uint16(deviceId[3])
	return major, minor
}

// NativePayload is the 19-byte payload carried under the native
// manufacturer data regime.
type NativePayload struct {
	IsFactory              bool
	HardwareType           uint8
	BatteryLevel           uint8
	Reserved               [10]byte
	ApplicationVersion     uint16
	LocalMidnightTimeEpoch uint32
}

// Builder assembles a 31-byte advertisement or scan-response record one
// AD field at a time, tracking the position counter so a caller can
// verify the implementation invariant that assembly lands on exactly
// RecordSize bytes.
type Builder struct {
	buf [RecordSize]byte
	pos int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Len reports the number of bytes written so far.
func (b *Builder) Len() int { return b.pos }

func (b *Builder) appendField(adType byte, data []byte) error {
	fieldLen := 1 + len(data) // type byte + data
	total := 1 + fieldLen     // length byte + field
	if b.pos+total > RecordSize {
		return errKind("appendField", KindOverflow, fmt.Errorf("field of %d bytes would overflow a %d-byte record at position %d", total, RecordSize, b.pos))
	}
	b.buf[b.pos] = byte(fieldLen)
	b.buf[b.pos+1] = adType
	copy(b.buf[b.pos+2:], data)
	b.pos += total
	return nil
}

// AppendFlags writes the standard Flags AD field.
func (b *Builder) AppendFlags(flags byte) error {
	return b.appendField(AdTypeFlags, []byte{flags})
}

// AppendCompleteLocalName writes a CompleteLocalName AD field.
func (b *Builder) AppendCompleteLocalName(name string) error {
	return b.appendField(AdTypeCompleteLocalName, []byte(name))
}

// AppendServiceUUID16Complete writes a ServiceUUID16Complete AD field
// listing uuids in order, each little-endian per the Bluetooth spec.
func (b *Builder) AppendServiceUUID16Complete(uuids ...uint16) error {
	data := make([]byte, 2*len(uuids))
	for i, u := range uuids {
		_ = primitives.WriteU16LE(data, 2*i, u)
	}
	return b.appendField(AdTypeServiceUUID16Complete, data)
}

// AppendTxPower writes the TxPower AD field.
func (b *Builder) AppendTxPower(power int8) error {
	return b.appendField(AdTypeTxPower, []byte{byte(power)})
}

// AppendIBeaconManufacturerData writes an iBeacon-compatible manufacturer
// data AD field under CompanyIdApple.
func (b *Builder) AppendIBeaconManufacturerData(p IBeaconPayload) error {
	data := make([]byte, 0, 25)
	var companyId [2]byte
	_ = primitives.WriteU16LE(companyId[:], 0, CompanyIdApple)
	data = append(data, companyId[:]...)
	data = append(data, iBeaconSubtype, iBeaconSubtypeLength)
	data = append(data, p.ProjectUUID[:]...)
	var major, minor [2]byte
	_ = primitives.WriteU16BE(major[:], 0, p.Major)
	_ = primitives.WriteU16BE(minor[:], 0, p.Minor)
	data = append(data, major[:]...)
	data = append(data, minor[:]...)
	data = append(data, byte(p.MeasuredPower))
	return b.appendField(AdTypeManufacturerData, data)
}

// AppendNativeManufacturerData writes the native manufacturer data AD
// field under CompanyIdNative.
func (b *Builder) AppendNativeManufacturerData(p NativePayload) error {
	data := make([]byte, 0, 2+NativePayloadSize)
	var companyId [2]byte
	_ = primitives.WriteU16LE(companyId[:], 0, CompanyIdNative)
	data = append(data, companyId[:]...)
	payload := encodeNativePayload(p)
	data = append(data, payload[:]...)
	return b.appendField(AdTypeManufacturerData, data)
}

func encodeNativePayload(p NativePayload) [NativePayloadSize]byte {
	var out [NativePayloadSize]byte
	if p.IsFactory {
		out[0] = 1
	}
	out[1] = p.HardwareType
	out[2] = p.BatteryLevel
	copy(out[3:13], p.Reserved[:])
	_ = primitives.WriteU16LE(out[13:15], 0, p.ApplicationVersion)
	_ = primitives.WriteU32LE(out[15:19], 0, p.LocalMidnightTimeEpoch)
	return out
}

func decodeNativePayload(b []byte) (NativePayload, error) {
	if len(b) != NativePayloadSize {
		return NativePayload{}, errKind("decodeNativePayload", KindInvalidArguments, fmt.Errorf("expected %d bytes, got %d", NativePayloadSize, len(b)))
	}
	var p NativePayload
	p.IsFactory = b[0] != 0
	p.HardwareType = b[1]
	p.BatteryLevel = b[2]
	copy(p.Reserved[:], b[3:13])
	p.ApplicationVersion, _ = primitives.ReadU16LE(b, 13)
	p.LocalMidnightTimeEpoch, _ = primitives.ReadU32LE(b, 15)
	return p, nil
}

// Assemble returns the completed record, failing unless exactly
// RecordSize bytes have been written.
func (b *Builder) Assemble() ([RecordSize]byte, error) {
	if b.pos != RecordSize {
		return [RecordSize]byte{}, errKind("Assemble", KindInvalidArguments, fmt.Errorf("record is %d bytes, want exactly %d", b.pos, RecordSize))
	}
	return b.buf, nil
}

// Field is one decoded AD field: its type and raw data (length byte
// stripped, type byte stripped).
type Field struct {
	Type byte
	Data []byte
}

// Parse splits a record into its AD fields, stopping at the first
// zero-length field (padding) or the end of the buffer.
func Parse(record []byte) ([]Field, error) {
	var fields []Field
	pos := 0
	for pos < len(record) {
		fieldLen := int(record[pos])
		if fieldLen == 0 {
			break
		}
		if pos+1+fieldLen > len(record) {
			return nil, errKind("Parse", KindInvalidArguments, fmt.Errorf("field at offset %d overruns record", pos))
		}
		adType := record[pos+1]
		data := append([]byte{}, record[pos+2:pos+1+fieldLen]...)
		fields = append(fields, Field{Type: adType, Data: data})
		pos += 1 + fieldLen
	}
	return fields, nil
}

// ParseNativeManufacturerData extracts a NativePayload from manufacturer
// data field bytes (company id plus payload).
func ParseNativeManufacturerData(data []byte) (NativePayload, error) {
	if len(data) != 2+NativePayloadSize {
		return NativePayload{}, errKind("ParseNativeManufacturerData", KindInvalidArguments, fmt.Errorf("expected %d bytes, got %d", 2+NativePayloadSize, len(data)))
	}
	companyId, _ := primitives.ReadU16LE(data, 0)
	if companyId != CompanyIdNative {
		return NativePayload{}, errKind("ParseNativeManufacturerData", KindInvalidArguments, fmt.Errorf("unexpected company id %#04x", companyId))
	}
	return decodeNativePayload(data[2:])
}

// ParseIBeaconManufacturerData extracts an IBeaconPayload from
// manufacturer data field bytes (company id plus payload).
func ParseIBeaconManufacturerData(data []byte) (IBeaconPayload, error) {
	if len(data) != 25 {
		return IBeaconPayload{}, errKind("ParseIBeaconManufacturerData", KindInvalidArguments, fmt.Errorf("expected 25 bytes, got %d", len(data)))
	}
	companyId, _ := primitives.ReadU16LE(data, 0)
	if companyId != CompanyIdApple {
		return IBeaconPayload{}, errKind("ParseIBeaconManufacturerData", KindInvalidArguments, fmt.Errorf("unexpected company id %#04x", companyId))
	}
	if data[2] != iBeaconSubtype || data[3] != iBeaconSubtypeLength {
		return IBeaconPayload{}, errKind("ParseIBeaconManufacturerData", KindInvalidArguments, fmt.Errorf("unexpected iBeacon subtype/length"))
	}
	var p IBeaconPayload
	copy(p.ProjectUUID[:], data[4:20])
	p.Major, _ = primitives.ReadU16BE(data, 20)
	p.Minor, _ = primitives.ReadU16BE(data, 22)
	p.MeasuredPower = int8(data[24])
	return p, nil
}
