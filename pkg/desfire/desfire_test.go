package desfire

import (
	"bytes"
	"testing"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

// fakeCard is a minimal in-memory DESFire emulator covering just the native
// commands this package's tests exercise: legacy DES and AES authenticate, app/file
// lifecycle, and plain ReadData/WriteData. It is not a general-purpose
// emulator — enough of the protocol to drive the state machine under test.
type fakeCard struct {
	masterKey    []byte
	masterType   KeyType
	apps         map[uint32]bool
	files        map[byte][]byte
	selectedApp  uint32
	rndB         []byte
	authPending  bool
	authKeyType  KeyType
	authKey      []byte
	session      *Session
	failNextWrite bool
}

func newFakeCard() *fakeCard {
	return &fakeCard{
		masterKey:  make([]byte, 8),
		masterType: KeyTypeDES,
		apps:       map[uint32]bool{0: true},
		files:      map[byte][]byte{},
	}
}

func (f *fakeCard) Transmit(apdu []byte) ([]byte, error) {
	if len(apdu) < 5 {
		return []byte{0x91, 0x7E}, nil
	}
	ins := apdu[1]
	lc := int(apdu[4])
	data := apdu[5 : 5+lc]

	resp, status := f.handle(ins, data)
	out := append(append([]byte{}, resp...), 0x91, status)
	return out, nil
}

func (f *fakeCard) handle(ins byte, data []byte) ([]byte, byte) {
	switch ins {
	case 0x1A: // ISO authenticate (DES/2K3DES/3K3DES)
		return f.authStep1(data, KeyTypeDES)
	case 0xAA: // AES authenticate
		return f.authStep1(data, KeyTypeAES)
	case CmdAdditionalFrame:
		return f.authStep2(data)
	case cmdSelectApplication:
		aid := readU24le(data)
		if !f.apps[aid] {
			return nil, StatusApplicationNotFound
		}
		f.selectedApp = aid
		return nil, StatusOK
	case cmdCreateApplication:
		aid := readU24le(data)
		f.apps[aid] = true
		return nil, StatusOK
	case cmdDeleteApplication:
		aid := readU24le(data)
		delete(f.apps, aid)
		return nil, StatusOK
	case cmdCreateFile:
		fileNo := data[0]
		f.files[fileNo] = make([]byte, 0)
		return nil, StatusOK
	case cmdWriteData:
		if f.failNextWrite {
			f.failNextWrite = false
			return nil, StatusBoundaryError
		}
		fileNo := data[0]
		payload := data[7:]
		f.files[fileNo] = append(f.files[fileNo], payload...)
		return nil, StatusOK
	case cmdReadData:
		fileNo := data[0]
		return f.files[fileNo], StatusOK
	default:
		return nil, StatusIllegalCommandCode
	}
}

func (f *fakeCard) authStep1(data []byte, kt KeyType) ([]byte, byte) {
	f.authKeyType = kt
	f.authKey = f.masterKey
	rndB := bytes.Repeat([]byte{0xBB}, challengeLen(kt))
	f.rndB = rndB
	iv := make([]byte, kt.BlockSize())
	enc, _ := cbcForType(kt, f.authKey, iv, cryptoadapter.Encrypt, rndB)
	f.authPending = true
	return enc, StatusAdditionalFrame
}

func (f *fakeCard) authStep2(data []byte) ([]byte, byte) {
	if !f.authPending {
		return nil, StatusCommandAborted
	}
	kt := f.authKeyType
	iv := make([]byte, kt.BlockSize())
	dec, err := cbcForType(kt, f.authKey, iv, cryptoadapter.Decrypt, data)
	if err != nil {
		return nil, StatusCommandAborted
	}
	cl := challengeLen(kt)
	rndA := dec[:cl]
	rndBRot := dec[cl:]
	if !bytes.Equal(rndBRot, rotateLeft1(f.rndB)) {
		return nil, StatusAuthenticationError
	}
	rndACheck := rotateLeft1(rndA)
	enc, _ := cbcForType(kt, f.authKey, iv, cryptoadapter.Encrypt, rndACheck)
	f.authPending = false
	return enc, StatusOK
}

func TestAuthenticateDESRoundTrip(t *testing.T) {
	card := newFakeCard()
	sess, err := Authenticate(card, KeyTypeDES, card.masterKey, 0)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(sess.Key.KeyData) != 8 {
		t.Fatalf("expected 8-byte DES session key, got %d", len(sess.Key.KeyData))
	}
}

func TestAuthenticateWrongKeyFails(t *testing.T) {
	card := newFakeCard()
	wrongKey := bytes.Repeat([]byte{0x01}, 8)
	if _, err := Authenticate(card, KeyTypeDES, wrongKey, 0); err == nil {
		t.Fatal("expected authentication with wrong key to fail")
	}
}

func TestLocateCRCPayloadRoundTrip(t *testing.T) {
	payload := []byte("access-granted-event-payload")
	crc := primitives.CRC32(payload)
	buf := append(append([]byte{}, payload...), byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
	buf = padZeroToBlock(buf, 16)

	got, err := locateCRCPayload(buf)
	if err != nil {
		t.Fatalf("locateCRCPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

func TestLocateCRCPayloadRejectsCorruption(t *testing.T) {
	payload := []byte("hello")
	crc := primitives.CRC32(payload)
	buf := append(append([]byte{}, payload...), byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
	buf = padZeroToBlock(buf, 16)
	buf[0] ^= 0xFF

	if _, err := locateCRCPayload(buf); err == nil {
		t.Fatal("expected corrupted buffer to fail CRC location")
	}
}

// TestLocateCRCPayloadAcceptsISOPaddingTerminator covers the 0x80-then-zeros
// padding style the CRC-location scan must also accept: the byte
// immediately after the CRC is the ISO padding terminator rather than 0x00.
func TestLocateCRCPayloadAcceptsISOPaddingTerminator(t *testing.T) {
	payload := []byte("access-granted")
	crc := primitives.CRC32(payload)
	buf := append(append([]byte{}, payload...), byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
	buf = append(buf, 0x80)
	buf = padZeroToBlock(buf, 16)

	got, err := locateCRCPayload(buf)
	if err != nil {
		t.Fatalf("locateCRCPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

// TestLocateCRCPayloadRejectsLatePaddingTerminator ensures 0x80 is only
// legal as the very first trailing byte, not anywhere later in the padding.
func TestLocateCRCPayloadRejectsLatePaddingTerminator(t *testing.T) {
	payload := []byte("access-granted")
	crc := primitives.CRC32(payload)
	buf := append(append([]byte{}, payload...), byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
	buf = append(buf, 0x00, 0x80)
	buf = padZeroToBlock(buf, 16)

	if _, err := locateCRCPayload(buf); err == nil {
		t.Fatal("expected a non-leading 0x80 byte to be rejected as invalid padding")
	}
}

// TestProvisionRollback exercises spec scenario 4: create-application
// succeeds, create-file succeeds, the write callback's write fails, and the
// rollback must delete the freshly created application while preserving the
// original error.
func TestProvisionRollback(t *testing.T) {
	card := newFakeCard()
	masterSess, err := Authenticate(card, KeyTypeDES, card.masterKey, 0)
	if err != nil {
		t.Fatalf("master auth: %v", err)
	}

	const aid = 0x112233
	cfg := ProvisionConfig{
		AID:           aid,
		KeySettings:   0x0F,
		NumKeys:       1,
		AppKeyType:    KeyTypeDES,
		MasterKeyType: KeyTypeDES,
		MasterKey:     card.masterKey,
		Files: []FileSpec{
			{FileNo: 1, Mode: CommPlain, AccessRights: 0xEEEE, Size: 16},
		},
	}

	card.failNextWrite = true
	err = ProvisionApplication(card, masterSess, cfg, func(c Card, sess *Session) error {
		return WriteFile(c, sess, 1, 0, []byte("0123456789ABCDEF"), CommPlain)
	})
	if err == nil {
		t.Fatal("expected provisioning to fail")
	}
	derr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if derr.Status != StatusBoundaryError {
		t.Fatalf("expected original error status 0x%02X preserved, got 0x%02X", StatusBoundaryError, derr.Status)
	}
	if card.apps[aid] {
		t.Fatal("expected rollback to delete the freshly created application")
	}
}

// TestProvisionRollbackAfterMasterKeyUpgrade exercises the case
// SelectMasterAutoProvision leaves behind: the PICC master key is AES, not
// the factory DES zero key, because an earlier provisioning run already
// upgraded it. rollback must re-authenticate with that AES key (carried in
// ProvisionConfig.MasterKeyType/MasterKey) rather than a hardcoded DES zero
// key, or it silently fails to authenticate and the broken application is
// never deleted.
func TestProvisionRollbackAfterMasterKeyUpgrade(t *testing.T) {
	card := newFakeCard()
	aesMasterKey := bytes.Repeat([]byte{0x42}, 16)
	card.masterKey = aesMasterKey
	card.masterType = KeyTypeAES

	masterSess, err := Authenticate(card, KeyTypeAES, aesMasterKey, 0)
	if err != nil {
		t.Fatalf("master auth: %v", err)
	}

	const aid = 0x445566
	cfg := ProvisionConfig{
		AID:           aid,
		KeySettings:   0x0F,
		NumKeys:       1,
		AppKeyType:    KeyTypeDES,
		MasterKeyType: KeyTypeAES,
		MasterKey:     aesMasterKey,
		Files: []FileSpec{
			{FileNo: 1, Mode: CommPlain, AccessRights: 0xEEEE, Size: 16},
		},
	}

	card.failNextWrite = true
	err = ProvisionApplication(card, masterSess, cfg, func(c Card, sess *Session) error {
		return WriteFile(c, sess, 1, 0, []byte("0123456789ABCDEF"), CommPlain)
	})
	if err == nil {
		t.Fatal("expected provisioning to fail")
	}
	if card.apps[aid] {
		t.Fatal("expected rollback to re-authenticate with the AES master key and delete the application")
	}
}
