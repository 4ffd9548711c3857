// Package storage implements the OSS-SO/OSS-SID storage vtable: a common
// Storage interface plus two concrete backends (DESFire, mobile
// in-memory), grounded on the same opaque-context-and-ops shape the
// credential codecs expect from a transport-agnostic file store.
package storage

import "fmt"

type Kind int

const (
	KindInvalidArguments Kind = iota
	KindNotSupported
	KindNotFound
	KindInvalidState
	KindEncodeDataWriteFailed
	KindDecodeDataReadFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArguments:
		return "invalid arguments"
	case KindNotSupported:
		return "not supported"
	case KindNotFound:
		return "not found"
	case KindInvalidState:
		return "invalid state"
	case KindEncodeDataWriteFailed:
		return "encode data write failed"
	case KindDecodeDataReadFailed:
		return "decode data read failed"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Mode selects the intent a caller is preparing storage for; backends use
// it to decide which key/authentication path to take.
type Mode int

const (
	ModeRead Mode = iota
	ModeReadWrite
	ModeWrite
	ModeProvision
	ModeUnprovision
	ModeFormat
)

// FileId enumerates the five OSS-SO logical files by storage slot. It is
// a superset-compatible numbering with ossso.FileId so DESFire file
// numbers line up directly.
type FileId int

const (
	FileInfo FileId = iota
	FileData
	FileEvent
	FileBlacklist
	FileCustomerExtensions
)

// allocationQuantum is the DESFire file-size rounding unit: every file's
// reserved size is rounded up to the next 32-byte boundary.
const allocationQuantum = 32

func roundUpQuantum(n int) int {
	if n%allocationQuantum == 0 {
		return n
	}
	return (n/allocationQuantum + 1) * allocationQuantum
}

// Profile is the computed sizing for an OSS-SO provisioning pass:
// getStorageProfile(config) in spec §4.6.
type Profile struct {
	InfoFileSize               int
	DataDataLength             int
	DataFileSize               int
	EventFileSize              int
	BlacklistFileSize          int
	CustomerExtensionsFileSize int
	TotalDataLength            int
	TotalFileSize              int
}

// ProvisioningConfig parameterises GetStorageProfile and the provisioning
// write callback: per-door-schedule shape, and the credential capacities
// to reserve.
type ProvisioningConfig struct {
	DoorInfoCount            int
	DTScheduleCount           int
	DaysPerSchedule          int
	TimePeriodsPerDay        int
	MaxEventEntries          int
	MaxBlacklistEntries      int
	CustomerExtensionsLength int
}

// GetDefaultProvisioningConfiguration returns the configuration a fresh
// site deployment uses absent an explicit override: one door, one
// all-week schedule, modest event/blacklist headroom.
func GetDefaultProvisioningConfiguration() ProvisioningConfig {
	return ProvisioningConfig{
		DoorInfoCount:            1,
		DTScheduleCount:          1,
		DaysPerSchedule:          7,
		TimePeriodsPerDay:        2,
		MaxEventEntries:          20,
		MaxBlacklistEntries:      20,
		CustomerExtensionsLength: 0,
	}
}

// GetStorageProfile sizes every OSS-SO file from cfg, rounding each file's
// reserved allocation up to the DESFire 32-byte quantum.
func GetStorageProfile(cfg ProvisioningConfig) Profile {
	const infoSize = 15
	dataHeader := 16
	doorInfo := cfg.DoorInfoCount * 3
	scheduleRecord := cfg.DaysPerSchedule * (1 + cfg.TimePeriodsPerDay*4)
	schedules := cfg.DTScheduleCount * scheduleRecord
	dataData := dataHeader + doorInfo + schedules

	eventData := 5 + cfg.MaxEventEntries*10
	blacklistData := 1 + cfg.MaxBlacklistEntries*16
	extData := 2 + cfg.CustomerExtensionsLength

	p := Profile{
		InfoFileSize:               roundUpQuantum(infoSize),
		DataDataLength:             dataData,
		DataFileSize:               roundUpQuantum(dataData),
		EventFileSize:              roundUpQuantum(eventData),
		BlacklistFileSize:          roundUpQuantum(blacklistData),
		CustomerExtensionsFileSize: roundUpQuantum(extData),
	}
	p.TotalDataLength = infoSize + dataData + eventData + blacklistData + extData
	p.TotalFileSize = p.InfoFileSize + p.DataFileSize + p.EventFileSize + p.BlacklistFileSize + p.CustomerExtensionsFileSize
	return p
}

// WriteCallback receives a freshly provisioned Storage (already selected
// into the new container) and must write the default file contents.
type WriteCallback func(Storage) error

// Storage is the OSS-SO backend vtable. Concrete implementations wrap a
// DESFire application or an in-memory mobile record.
type Storage interface {
	Prepare(mode Mode) error
	Provision(cfg ProvisioningConfig, writeCallback WriteCallback) error
	Unprovision() error
	Format(factoryReset bool) error
	Read(fileID FileId, offset int, size int) ([]byte, error)
	Write(fileID FileId, offset int, data []byte) error
	// WriteEvent appends an event record for backends that support
	// append-only writes; returns a NotSupported Error otherwise, in
	// which case the caller falls back to a positional Write.
	WriteEvent(data []byte) error
}
