package ossso

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

const (
	blacklistHeaderSize = 1
	blacklistRecordSize = 16
)

// BlacklistEntry pairs a credential id with its expiry; entries past
// expiresAt may be pruned by the caller but the codec itself is agnostic.
type BlacklistEntry struct {
	CredentialId CredentialId
	ExpiresAt    primitives.LocalTimestamp
}

type BlacklistFile struct {
	Entries []BlacklistEntry
}

func DecodeBlacklistFile(b []byte) (BlacklistFile, error) {
	if len(b) < blacklistHeaderSize {
		return BlacklistFile{}, errKind("DecodeBlacklistFile", KindDecodeDataReadFailed, fmt.Errorf("short header: %d bytes", len(b)))
	}
	count := b[0]
	entries := make([]BlacklistEntry, 0, count)
	offset := blacklistHeaderSize
	for i := uint8(0); i < count; i++ {
		if offset+blacklistRecordSize > len(b) {
			return BlacklistFile{}, errKind("DecodeBlacklistFile", KindDecodeDataReadFailed, fmt.Errorf("truncated entry %d", i))
		}
		rec := b[offset : offset+blacklistRecordSize]
		credId, err := DecodeCredentialId(rec[0:10])
		if err != nil {
			return BlacklistFile{}, err
		}
		expires, err := DecodeTimestamp(rec[10:16])
		if err != nil {
			return BlacklistFile{}, err
		}
		entries = append(entries, BlacklistEntry{CredentialId: credId, ExpiresAt: expires})
		offset += blacklistRecordSize
	}
	return BlacklistFile{Entries: entries}, nil
}

// Encode serialises bf to its wire form. maxBlacklistEntries enforces the
// per-card capacity advertised in the Info file.
func (bf BlacklistFile) Encode(maxBlacklistEntries uint8) ([]byte, error) {
	if len(bf.Entries) > int(maxBlacklistEntries) {
		return nil, errKind("BlacklistFile.Encode", KindMaxBlacklistEntriesExceeded, fmt.Errorf("%d entries exceeds max %d", len(bf.Entries), maxBlacklistEntries))
	}
	out := make([]byte, blacklistHeaderSize)
	out[0] = uint8(len(bf.Entries))
	for _, e := range bf.Entries {
		rec := make([]byte, blacklistRecordSize)
		copy(rec[0:10], e.CredentialId.Encode())
		ts, err := EncodeTimestamp(e.ExpiresAt)
		if err != nil {
			return nil, err
		}
		copy(rec[10:16], ts)
		out = append(out, rec...)
	}
	return out, nil
}

// Contains reports whether credId is present and unexpired as of now.
func (bf BlacklistFile) Contains(credId CredentialId, now primitives.LocalTimestamp) bool {
	for _, e := range bf.Entries {
		if e.CredentialId.Equal(credId) {
			return e.ExpiresAt.IsZero() || now.ToUnix() <= e.ExpiresAt.ToUnix()
		}
	}
	return false
}
