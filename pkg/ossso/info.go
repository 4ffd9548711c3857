package ossso

import "fmt"

const InfoFileSize = 15

// SupportedMajorVersion is the highest major version this codec accepts;
// IncompatibleMajorVersion is returned for anything greater.
const SupportedMajorVersion = 1

// Info is the 15-byte Info file: version, credential type/id, and the
// card's self-reported event/blacklist capacity.
type Info struct {
	VersionMajor       uint8
	VersionMinor       uint8
	CredentialType     CredentialType
	CredentialId       CredentialId
	MaxEventEntries    uint8
	MaxBlacklistEntries uint8
}

// DecodeInfo parses a 15-byte Info file and rejects a major version
// greater than SupportedMajorVersion.
func DecodeInfo(b []byte) (Info, error) {
	if len(b) != InfoFileSize {
		return Info{}, errKind("DecodeInfo", KindDecodeDataReadFailed, fmt.Errorf("expected %d bytes, got %d", InfoFileSize, len(b)))
	}
	major, minor := b[0], b[1]
	if major > SupportedMajorVersion {
		return Info{}, errKind("DecodeInfo", KindIncompatibleMajorVersion, fmt.Errorf("major version %d unsupported", major))
	}
	credType := DecodeCredentialType(b[2])
	credId, err := DecodeCredentialId(b[3:13])
	if err != nil {
		return Info{}, err
	}
	return Info{
		VersionMajor:        major,
		VersionMinor:        minor,
		CredentialType:      credType,
		CredentialId:        credId,
		MaxEventEntries:     b[13],
		MaxBlacklistEntries: b[14],
	}, nil
}

// Encode serialises info to its 15-byte wire form.
func (info Info) Encode() ([]byte, error) {
	out := make([]byte, InfoFileSize)
	out[0] = info.VersionMajor
	out[1] = info.VersionMinor
	out[2] = info.CredentialType.Encode()
	copy(out[3:13], info.CredentialId.Encode())
	out[13] = info.MaxEventEntries
	out[14] = info.MaxBlacklistEntries
	return out, nil
}
