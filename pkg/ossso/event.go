package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

const (
	eventHeaderSize = 5
	eventRecordSize = 10
)

// EventId is the set of grant/deny/diagnostic events a card can log.
type EventId uint8

const (
	EventAccessGranted EventId = iota
	EventAccessDenied
	EventBlacklistedCredentialDetected
	EventTerminalCommand
)

// EventInfo qualifies EventAccessGranted/EventAccessDenied with the
// specific reason or access type.
type EventInfo uint8

const (
	InfoNone EventInfo = iota
	InfoDefaultTime
	InfoExtendedTime
	InfoToggle
	InfoNoAccess
	InfoNoAccessBlacklisted
	InfoNoAccessValidity
	InfoDTSchedule
)

// Event is one 10-byte record: timestamp, door id, event id, event info.
type Event struct {
	Timestamp primitives.LocalTimestamp
	DoorId    uint16
	EventId   EventId
	EventInfo EventInfo
}

// EventFile is the full Event file: a supported-events bitmap, and the
// list of logged entries.
type EventFile struct {
	SupportedEventIds uint32
	Events            []Event
}

// DecodeEventFile parses the 5-byte header and eventsCount*10-byte records.
func DecodeEventFile(b []byte) (EventFile, error) {
	if len(b) < eventHeaderSize {
		return EventFile{}, errKind("DecodeEventFile", KindDecodeDataReadFailed, fmt.Errorf("short header: %d bytes", len(b)))
	}
	bitmap, _ := primitives.ReadU32BE(b, 0)
	count := b[4]
	events := make([]Event, 0, count)
	offset := eventHeaderSize
	for i := uint8(0); i < count; i++ {
		if offset+eventRecordSize > len(b) {
			return EventFile{}, errKind("DecodeEventFile", KindDecodeDataReadFailed, fmt.Errorf("truncated event record %d", i))
		}
		rec := b[offset : offset+eventRecordSize]
		ts, err := DecodeTimestamp(rec[0:6])
		if err != nil {
			return EventFile{}, err
		}
		doorId, _ := primitives.ReadU16BE(rec, 6)
		events = append(events, Event{
			Timestamp: ts,
			DoorId:    doorId,
			EventId:   EventId(rec[8]),
			EventInfo: EventInfo(rec[9]),
		})
		offset += eventRecordSize
	}
	return EventFile{SupportedEventIds: bitmap, Events: events}, nil
}

// Encode serialises ef to its wire form. maxEventEntries enforces the
// per-card capacity advertised in the Info file.
func (ef EventFile) Encode(maxEventEntries uint8) ([]byte, error) {
	if len(ef.Events) > int(maxEventEntries) {
		return nil, errKind("EventFile.Encode", KindMaxEventEntriesExceeded, fmt.Errorf("%d entries exceeds max %d", len(ef.Events), maxEventEntries))
	}
	out := make([]byte, eventHeaderSize)
	_ = primitives.WriteU32BE(out, 0, ef.SupportedEventIds)
	out[4] = uint8(len(ef.Events))
	for _, e := range ef.Events {
		rec := make([]byte, eventRecordSize)
		ts, err := EncodeTimestamp(e.Timestamp)
		if err != nil {
			return nil, err
		}
		copy(rec[0:6], ts)
		_ = primitives.WriteU16BE(rec, 6, e.DoorId)
		rec[8] = byte(e.EventId)
		rec[9] = byte(e.EventInfo)
		out = append(out, rec...)
	}
	return out, nil
}
