package desfire

import (
	"fmt"
)

// u24le encodes v (which must fit in 24 bits) as 3 little-endian bytes, the
// layout DESFire uses for AIDs, file offsets, and lengths.
func u24le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func readU24le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

const (
	cmdGetVersion        byte = 0x60
	cmdFormatPICC        byte = 0xFC
	cmdGetApplicationIDs byte = 0x6A
	cmdSelectApplication byte = 0x5A
	cmdCreateApplication byte = 0xCA
	cmdDeleteApplication byte = 0xDA
	cmdCreateFile        byte = 0xCD
	cmdChangeFileSettings byte = 0x5F
	cmdReadData          byte = 0xBD
	cmdWriteData         byte = 0x3D
	cmdChangeKey         byte = 0xC4
	cmdGetFreeMemory     byte = 0x6E
	cmdGetKeySettings    byte = 0x45
)

// frameChunkSize is the largest data payload a single native frame may
// carry; WriteFile in CommPlain splits larger transfers across continuation
// frames using CmdAdditionalFrame.
const frameChunkSize = 52

// SelectApplication issues the native SELECT_APPLICATION command for aid.
// aid 0x000000 selects the PICC master application.
func SelectApplication(card Card, aid uint32) error {
	data := u24le(aid)
	_, status, err := Transmit(card, cmdSelectApplication, data)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return errStatus("SelectApplication", status)
	}
	return nil
}

// SelectMaster selects the PICC master application (aid 0x000000).
func SelectMaster(card Card) error {
	return SelectApplication(card, 0)
}

// SelectMasterAutoProvision selects the master application and attempts
// authentication with the target AES key first; on an authentication failure
// reported as KindWrongKey (which is also what a key-type mismatch produces)
// it retries with the factory-default DES zero key and, on success, upgrades
// the PICC master key to AES in place so subsequent selects go straight to
// AES. Returns the authenticated session and whether an upgrade occurred.
func SelectMasterAutoProvision(card Card, targetKey []byte) (*Session, bool, error) {
	if err := SelectMaster(card); err != nil {
		return nil, false, err
	}

	sess, err := Authenticate(card, KeyTypeAES, targetKey, 0)
	if err == nil {
		return sess, false, nil
	}
	var derr *Error
	if !errAs(err, &derr) || derr.Kind != KindWrongKey {
		return nil, false, err
	}

	zeroDES := make([]byte, 8)
	legacySess, err := Authenticate(card, KeyTypeDES, zeroDES, 0)
	if err != nil {
		return nil, false, err
	}
	if err := ChangeApplicationKey(card, legacySess, 0, KeyTypeAES, targetKey, zeroDES, 0); err != nil {
		return nil, false, err
	}
	upgraded, err := Authenticate(card, KeyTypeAES, targetKey, 0)
	if err != nil {
		return nil, false, err
	}
	return upgraded, true, nil
}

func errAs(err error, target **Error) bool {
	de, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = de
	return true
}

// CreateApplication creates an application with aid, keySettings, and
// numKeys key slots of keyType.
func CreateApplication(card Card, sess *Session, aid uint32, keySettings byte, numKeys byte, keyType KeyType) error {
	data := make([]byte, 0, 5)
	data = append(data, u24le(aid)...)
	data = append(data, keySettings)
	data = append(data, numKeys|keyTypeBits(keyType))
	_, err := AuthenticatedCommand(card, sess, cmdCreateApplication, data, nil, CommPlain)
	return err
}

// DeleteApplication removes the application identified by aid. The PICC
// master application must be selected and authenticated first.
func DeleteApplication(card Card, sess *Session, aid uint32) error {
	data := u24le(aid)
	_, err := AuthenticatedCommand(card, sess, cmdDeleteApplication, data, nil, CommPlain)
	return err
}

func keyTypeBits(kt KeyType) byte {
	if kt == KeyTypeAES {
		return 0x80
	}
	return 0x00
}

// CreateFile creates a standard data file fileNo with commMode, access
// rights, and size bytes.
func CreateFile(card Card, sess *Session, fileNo byte, mode CommMode, accessRights uint16, size int) error {
	header := make([]byte, 0, 7)
	header = append(header, fileNo, commModeByte(mode))
	header = append(header, byte(accessRights), byte(accessRights>>8))
	header = append(header, u24le(uint32(size))...)
	_, err := AuthenticatedCommand(card, sess, cmdCreateFile, header, nil, CommPlain)
	return err
}

// ChangeFileSettings updates fileNo's comm mode and access rights. The
// command itself always travels enciphered or maced depending on the
// file's current key settings; callers pick the mode they authenticated
// under.
func ChangeFileSettings(card Card, sess *Session, fileNo byte, mode CommMode, accessRights uint16, protectWith CommMode) error {
	data := []byte{commModeByte(mode), byte(accessRights), byte(accessRights >> 8)}
	_, err := AuthenticatedCommand(card, sess, cmdChangeFileSettings, []byte{fileNo}, data, protectWith)
	return err
}

func commModeByte(mode CommMode) byte {
	switch mode {
	case CommPlain:
		return 0x00
	case CommMaced:
		return 0x01
	case CommEnciphered:
		return 0x03
	default:
		return 0x00
	}
}

// ReadFile reads length bytes at offset from fileNo in requests of at most
// DataTransferChunkSize bytes. Native continuation frames are followed only
// in CommPlain (see readChunked).
func ReadFile(card Card, sess *Session, fileNo byte, offset, length int, mode CommMode) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		want := length - len(out)
		if want > DataTransferChunkSize {
			want = DataTransferChunkSize
		}
		header := append([]byte{fileNo}, u24le(uint32(offset+len(out)))...)
		header = append(header, u24le(uint32(want))...)

		chunk, err := readChunked(card, sess, header, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if len(chunk) < want {
			break
		}
	}
	return out, nil
}

// readChunked sends a single ReadData request. In CommPlain it follows up
// with CmdAdditionalFrame continuation frames until the card signals
// completion; in CommMaced and CommEnciphered it makes one exchange through
// AuthenticatedCommand, and a continuation status is returned as an error.
func readChunked(card Card, sess *Session, header []byte, mode CommMode) ([]byte, error) {
	switch mode {
	case CommPlain:
		return readChunkedPlain(card, header)
	case CommMaced:
		resp, err := AuthenticatedCommand(card, sess, cmdReadData, header, nil, CommMaced)
		return resp, err
	case CommEnciphered:
		resp, err := AuthenticatedCommand(card, sess, cmdReadData, header, nil, CommEnciphered)
		return resp, err
	default:
		return nil, &Error{Kind: KindInvalidArguments, Op: "readChunked", Err: fmt.Errorf("unknown comm mode")}
	}
}

func readChunkedPlain(card Card, header []byte) ([]byte, error) {
	resp, status, err := Transmit(card, cmdReadData, header)
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, resp...)
	for status == StatusAdditionalFrame {
		resp, status, err = Transmit(card, CmdAdditionalFrame, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, resp...)
	}
	if status != StatusOK {
		return nil, errStatus("readChunkedPlain", status)
	}
	return out, nil
}

// WriteFile writes data at offset into fileNo. In CommPlain it splits the
// data into frameChunkSize-sized native frames chained with
// CmdAdditionalFrame; in other modes it sends the whole payload in one
// AuthenticatedCommand frame, without continuation frames.
func WriteFile(card Card, sess *Session, fileNo byte, offset int, data []byte, mode CommMode) error {
	header := append([]byte{fileNo}, u24le(uint32(offset))...)
	header = append(header, u24le(uint32(len(data)))...)

	switch mode {
	case CommPlain:
		return writeChunkedPlain(card, header, data)
	default:
		_, err := AuthenticatedCommand(card, sess, cmdWriteData, header, data, mode)
		return err
	}
}

func writeChunkedPlain(card Card, header, data []byte) error {
	first := data
	rest := []byte(nil)
	if len(first) > frameChunkSize {
		first, rest = data[:frameChunkSize], data[frameChunkSize:]
	}
	resp, status, err := Transmit(card, cmdWriteData, append(header, first...))
	_ = resp
	if err != nil {
		return err
	}
	for status == StatusAdditionalFrame && len(rest) > 0 {
		chunk := rest
		if len(chunk) > frameChunkSize {
			chunk, rest = rest[:frameChunkSize], rest[frameChunkSize:]
		} else {
			rest = nil
		}
		_, status, err = Transmit(card, CmdAdditionalFrame, chunk)
		if err != nil {
			return err
		}
	}
	if status != StatusOK {
		return errStatus("writeChunkedPlain", status)
	}
	return nil
}

// ChangeApplicationKey replaces keyNo with newKey. When newType differs from
// the authenticated session's key type, oldKey must still be supplied so the
// card can compute the required key-change cryptogram (AES/legacy mixed
// cases per spec §4.3); same-type changes pass oldKey as nil.
func ChangeApplicationKey(card Card, sess *Session, keyNo byte, newType KeyType, newKey, oldKey []byte, newVersion byte) error {
	data := append([]byte{}, newKey...)
	if oldKey != nil {
		xored := make([]byte, len(newKey))
		for i := range xored {
			xored[i] = newKey[i] ^ oldKey[i%len(oldKey)]
		}
		data = xored
	}
	if newType == KeyTypeAES {
		data = append(data, newVersion)
	}
	header := []byte{keyNo}
	if newType != sess.Key.Type {
		header[0] |= keyTypeBits(newType)
	}
	_, err := AuthenticatedCommand(card, sess, cmdChangeKey, header, data, CommEnciphered)
	return err
}

// ReadFreeMemory reports the free EEPROM bytes remaining on the card.
func ReadFreeMemory(card Card) (uint32, error) {
	resp, status, err := Transmit(card, cmdGetFreeMemory, nil)
	if err != nil {
		return 0, err
	}
	if status != StatusOK || len(resp) < 3 {
		return 0, errStatus("ReadFreeMemory", status)
	}
	return readU24le(resp[:3]), nil
}

// Format erases all applications and files on the card. The PICC master
// application must already be selected and authenticated.
func Format(card Card, sess *Session) error {
	_, err := AuthenticatedCommand(card, sess, cmdFormatPICC, nil, nil, CommPlain)
	return err
}
