package storage

import "fmt"

// mobileRecord is the single serialized container a MobileStorage backend
// keeps in memory: one byte slice per logical file, concatenated on
// serialize and split back apart on load.
type mobileRecord struct {
	files [5][]byte
}

func (r *mobileRecord) serialize() []byte {
	var out []byte
	for _, f := range r.files {
		out = append(out, byte(len(f)>>24), byte(len(f)>>16), byte(len(f)>>8), byte(len(f)))
		out = append(out, f...)
	}
	return out
}

func deserializeMobileRecord(b []byte) (*mobileRecord, error) {
	var r mobileRecord
	off := 0
	for i := 0; i < len(r.files); i++ {
		if off+4 > len(b) {
			return nil, &Error{Kind: KindDecodeDataReadFailed, Op: "deserializeMobileRecord", Err: fmt.Errorf("truncated length prefix for file %d", i)}
		}
		n := int(b[off])<<24 | int(b[off+1])<<16 | int(b[off+2])<<8 | int(b[off+3])
		off += 4
		if off+n > len(b) {
			return nil, &Error{Kind: KindDecodeDataReadFailed, Op: "deserializeMobileRecord", Err: fmt.Errorf("truncated file %d body", i)}
		}
		r.files[i] = append([]byte{}, b[off:off+n]...)
		off += n
	}
	return &r, nil
}

// MobileStorage implements Storage over a single in-memory record: Write
// mutates the record in place and Read copies out of it; only Serialize
// produces the wire form, and it fails when that exceeds the output
// capacity fixed by NewMobileStorage.
type MobileStorage struct {
	record   *mobileRecord
	outCap   int
	prepared bool
}

// NewMobileStorage constructs a backend with outputCapacity bytes of
// headroom for the serialized record.
func NewMobileStorage(outputCapacity int) *MobileStorage {
	return &MobileStorage{record: &mobileRecord{}, outCap: outputCapacity}
}

// LoadSerialized replaces the in-memory record from a previously
// serialized buffer, e.g. one read back from a mobile wallet's storage.
func (m *MobileStorage) LoadSerialized(b []byte) error {
	rec, err := deserializeMobileRecord(b)
	if err != nil {
		return err
	}
	m.record = rec
	return nil
}

// Serialize returns the current record's wire form.
func (m *MobileStorage) Serialize() ([]byte, error) {
	out := m.record.serialize()
	if len(out) > m.outCap {
		return nil, &Error{Kind: KindEncodeDataWriteFailed, Op: "MobileStorage.Serialize", Err: fmt.Errorf("serialized size %d exceeds capacity %d", len(out), m.outCap)}
	}
	return out, nil
}

func (m *MobileStorage) Prepare(mode Mode) error {
	m.prepared = true
	return nil
}

// Provision creates a zeroed record sized from cfg's profile and invokes
// writeCallback to populate default contents.
func (m *MobileStorage) Provision(cfg ProvisioningConfig, writeCallback WriteCallback) error {
	profile := GetStorageProfile(cfg)
	m.record = &mobileRecord{}
	m.record.files[FileInfo] = make([]byte, profile.InfoFileSize)
	m.record.files[FileData] = make([]byte, profile.DataFileSize)
	m.record.files[FileEvent] = make([]byte, profile.EventFileSize)
	m.record.files[FileBlacklist] = make([]byte, profile.BlacklistFileSize)
	m.record.files[FileCustomerExtensions] = make([]byte, profile.CustomerExtensionsFileSize)
	m.prepared = true
	if writeCallback == nil {
		return nil
	}
	return writeCallback(m)
}

func (m *MobileStorage) Unprovision() error {
	m.record = &mobileRecord{}
	return nil
}

func (m *MobileStorage) Format(factoryReset bool) error {
	m.record = &mobileRecord{}
	return nil
}

func (m *MobileStorage) Read(fileID FileId, offset, size int) ([]byte, error) {
	if !m.prepared {
		return nil, &Error{Kind: KindInvalidState, Op: "MobileStorage.Read", Err: fmt.Errorf("not prepared")}
	}
	buf := m.record.files[fileID]
	if offset < 0 || offset+size > len(buf) {
		return nil, &Error{Kind: KindInvalidArguments, Op: "MobileStorage.Read", Err: fmt.Errorf("range [%d:%d) outside file of length %d", offset, offset+size, len(buf))}
	}
	return append([]byte{}, buf[offset:offset+size]...), nil
}

// Write updates the target file's bytes at offset, growing the backing
// slice if necessary.
func (m *MobileStorage) Write(fileID FileId, offset int, data []byte) error {
	if !m.prepared {
		return &Error{Kind: KindInvalidState, Op: "MobileStorage.Write", Err: fmt.Errorf("not prepared")}
	}
	buf := m.record.files[fileID]
	need := offset + len(data)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	m.record.files[fileID] = buf
	return nil
}

// WriteEvent is not supported: the mobile backend has no append-only
// concept, callers use a positional Write instead.
func (m *MobileStorage) WriteEvent(data []byte) error {
	return &Error{Kind: KindNotSupported, Op: "MobileStorage.WriteEvent"}
}
