// Package osssid implements the OSS-SID credential codec: a single
// 13-byte Info file carrying identity and type, with all policy deferred
// to the processing handler (no schedules, events, or blacklist).
package osssid

import "fmt"

const InfoFileSize = 13

type Kind int

const (
	KindDecodeDataReadFailed Kind = iota
	KindInvalidCredentialType
	KindInvalidArguments
)

func (k Kind) String() string {
	switch k {
	case KindDecodeDataReadFailed:
		return "decode data read failed"
	case KindInvalidCredentialType:
		return "invalid credential type"
	case KindInvalidArguments:
		return "invalid arguments"
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
		return fmt.Sprintf("osssid: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("osssid: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// CredentialType mirrors ossso.CredentialType's single-byte tagged union;
// kept as a distinct type since SID credentials are a separate wire family
// even though the bit layout coincides.
type CredentialType struct {
	Proprietary bool
	Code        uint8
}

func decodeCredentialType(b byte) CredentialType {
	return CredentialType{Proprietary: b&0x80 != 0, Code: b & 0x7F}
}

func (c CredentialType) encode() byte {
	b := c.Code & 0x7F
	if c.Proprietary {
		b |= 0x80
	}
	return b
}

// CredentialId is ten bytes, left-padded with zero on the wire.
type CredentialId struct {
	raw [10]byte
}

func decodeCredentialId(b []byte) CredentialId {
	var id CredentialId
	copy(id.raw[:], b)
	return id
}

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

// Info is the full SID credential content: version, type, and id. Reader
// and writer are symmetric; there is no schedule, event, or blacklist
// concept for SID credentials.
type Info struct {
	VersionMajor   uint8
	VersionMinor   uint8
	CredentialType CredentialType
	CredentialId   CredentialId
}

// DecodeInfo parses the fixed 13-byte Info file.
func DecodeInfo(b []byte) (Info, error) {
	if len(b) != InfoFileSize {
		return Info{}, &Error{Kind: KindDecodeDataReadFailed, Op: "DecodeInfo", Err: fmt.Errorf("expected %d bytes, got %d", InfoFileSize, len(b))}
	}
	return Info{
		VersionMajor:   b[0],
		VersionMinor:   b[1],
		CredentialType: decodeCredentialType(b[2]),
		CredentialId:   decodeCredentialId(b[3:13]),
	}, nil
}

// Encode serialises info to its 13-byte wire form.
func (info Info) Encode() []byte {
	out := make([]byte, InfoFileSize)
	out[0] = info.VersionMajor
	out[1] = info.VersionMinor
	out[2] = info.CredentialType.encode()
	copy(out[3:13], info.CredentialId.Encode())
	return out
}

// FileStore is the narrow storage contract osssid needs: a flat
// read/write over the single Info file.
type FileStore interface {
	Read(offset, size int) ([]byte, error)
	Write(offset int, data []byte) error
}

// ReadInfo pulls the fixed-size Info file in one call and decodes it.
func ReadInfo(store FileStore) (Info, error) {
	b, err := store.Read(0, InfoFileSize)
	if err != nil {
		return Info{}, err
	}
	return DecodeInfo(b)
}

// WriteInfo encodes info and writes it in one call.
func WriteInfo(store FileStore, info Info) error {
	return store.Write(0, info.Encode())
}

// CredentialTypeVerdict is returned by the processing handler after
// inspecting a SID credential's proprietary or OSS type: the core itself
// carries no policy for SID credentials beyond identity extraction.
type CredentialTypeVerdict int

const (
	VerdictDeny CredentialTypeVerdict = iota
	VerdictGrant
)

// ProprietaryTypeValidator is invoked when CredentialType.Proprietary is
// set; the handler alone knows how to interpret the manufacturer code.
type ProprietaryTypeValidator func(info Info) (CredentialTypeVerdict, error)

// OSSTypeValidator is invoked when CredentialType.Proprietary is false.
type OSSTypeValidator func(info Info) (CredentialTypeVerdict, error)

// Validate dispatches info's credential type to the appropriate handler
// hook, matching spec §4.5's "defers all policy to the processing
// handler" behaviour.
func Validate(info Info, proprietary ProprietaryTypeValidator, oss OSSTypeValidator) (CredentialTypeVerdict, error) {
	if info.CredentialType.Proprietary {
		if proprietary == nil {
			return VerdictDeny, &Error{Kind: KindInvalidCredentialType, Op: "Validate", Err: fmt.Errorf("no proprietary credential type handler configured")}
		}
		return proprietary(info)
	}
	if oss == nil {
		return VerdictDeny, &Error{Kind: KindInvalidCredentialType, Op: "Validate", Err: fmt.Errorf("no oss credential type handler configured")}
	}
	return oss(info)
}
