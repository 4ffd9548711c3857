package osssid

import "testing"

type memStore struct {
	buf []byte
}

func (m *memStore) Read(offset, size int) ([]byte, error) {
	if offset+size > len(m.buf) {
		return nil, &Error{Kind: KindDecodeDataReadFailed, Op: "memStore.Read"}
	}
	return append([]byte{}, m.buf[offset:offset+size]...), nil
}

func (m *memStore) Write(offset int, data []byte) error {
	need := offset + len(data)
	if len(m.buf) < need {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[offset:], data)
	return nil
}

func TestInfoRoundTrip(t *testing.T) {
	info := Info{
		VersionMajor:   1,
		VersionMinor:   0,
		CredentialType: CredentialType{Proprietary: true, Code: 5},
		CredentialId:   decodeCredentialId([]byte{0, 0, 0, 0, 0, 0, 0, 9, 9, 9}),
	}
	store := &memStore{}
	if err := WriteInfo(store, info); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
	got, err := ReadInfo(store)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if got != info {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, info)
	}
}

func TestValidateDispatchesByProprietaryFlag(t *testing.T) {
	info := Info{CredentialType: CredentialType{Proprietary: true, Code: 1}}
	called := false
	verdict, err := Validate(info,
		func(Info) (CredentialTypeVerdict, error) { called = true; return VerdictGrant, nil },
		func(Info) (CredentialTypeVerdict, error) { t.Fatal("oss handler should not run"); return VerdictDeny, nil },
	)
	if err != nil || !called || verdict != VerdictGrant {
		t.Fatalf("expected proprietary handler to grant, got verdict=%v err=%v called=%v", verdict, err, called)
	}
}

func TestValidateMissingHandlerDenies(t *testing.T) {
	info := Info{CredentialType: CredentialType{Proprietary: false}}
	verdict, err := Validate(info, nil, nil)
	if err == nil || verdict != VerdictDeny {
		t.Fatal("expected missing oss handler to deny with error")
	}
}
