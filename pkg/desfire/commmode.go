package desfire

import (
	"bytes"
	"crypto/cipher"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
)

// CommMode selects how a data command's payload is protected.
type CommMode int

const (
	CommPlain CommMode = iota
	CommMaced
	CommEnciphered
)

func truncateCMAC(full []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = full[1+i*2]
	}
	return out
}

// cmacBlock builds the keyed cipher.Block for the session's CMAC.
func (s *Session) cmacBlock() (cipher.Block, error) {
	return newBlockFor(s.Key.Type, s.Key.KeyData)
}

// AuthenticatedCommand sends cmd with header (always cleartext) and data
// (protected per mode), and returns the response payload. MACED appends a
// truncated CMAC over cmd||header||data and verifies the truncated CMAC on
// the response; both are computed from a zero IV, and neither sess.IV nor
// sess.CMAC is updated. ENCIPHERED enciphers and deciphers with sess.IV and
// checks the response's CRC32 rather than a MAC; it does not advance
// sess.IV between calls.
func AuthenticatedCommand(card Card, sess *Session, cmd byte, header, data []byte, mode CommMode) ([]byte, error) {
	switch mode {
	case CommPlain:
		return plainCommand(card, cmd, header, data)
	case CommMaced:
		return macedCommand(card, sess, cmd, header, data)
	case CommEnciphered:
		return encipheredCommand(card, sess, cmd, header, data)
	default:
		return nil, &Error{Kind: KindInvalidArguments, Op: "AuthenticatedCommand", Err: fmt.Errorf("unknown comm mode %d", mode)}
	}
}

func plainCommand(card Card, cmd byte, header, data []byte) ([]byte, error) {
	payload := append(append([]byte{}, header...), data...)
	resp, status, err := Transmit(card, cmd, payload)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, errStatus("plainCommand", status)
	}
	return resp, nil
}

func macedCommand(card Card, sess *Session, cmd byte, header, data []byte) ([]byte, error) {
	if sess == nil {
		return nil, &Error{Kind: KindInvalidArguments, Op: "macedCommand", Err: fmt.Errorf("no session")}
	}
	block, err := sess.cmacBlock()
	if err != nil {
		return nil, err
	}
	macInput := append(append([]byte{cmd}, header...), data...)
	tag := truncateCMAC(cryptoadapter.CMAC(block, cmacConstFor(sess.Key.Type), macInput))

	payload := append(append(append([]byte{}, header...), data...), tag...)
	resp, status, err := Transmit(card, cmd, payload)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, errStatus("macedCommand", status)
	}
	if len(resp) < 8 {
		return nil, &Error{Kind: KindCmacNotReceived, Op: "macedCommand"}
	}
	respData := resp[:len(resp)-8]
	respMac := resp[len(resp)-8:]

	// Status byte is repositioned to the end before MACing on reads.
	verifyInput := append(append([]byte{}, respData...), status)
	wantTag := truncateCMAC(cryptoadapter.CMAC(block, cmacConstFor(sess.Key.Type), verifyInput))
	if !bytes.Equal(respMac, wantTag) {
		return nil, &Error{Kind: KindCmacNotVerified, Op: "macedCommand"}
	}
	return respData, nil
}

// encipheredCommand appends a CRC32 (over cmd||header||data), zero-pads to
// block size, enciphers with the session's running IV, and on receive
// deciphers then relocates the CRC by scanning candidate boundaries until
// the checksum validates and the remaining bytes are all zero (or the
// padding's 0x80 terminator immediately follows).
func encipheredCommand(card Card, sess *Session, cmd byte, header, data []byte) ([]byte, error) {
	if sess == nil {
		return nil, &Error{Kind: KindInvalidArguments, Op: "encipheredCommand", Err: fmt.Errorf("no session")}
	}
	bs := sess.Key.Type.BlockSize()

	var encData []byte
	if len(data) > 0 {
		crc := primitives.CRC32(append(append([]byte{cmd}, header...), data...))
		plain := make([]byte, 0, len(data)+4)
		plain = append(plain, data...)
		plain = append(plain, byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
		plain = padZeroToBlock(plain, bs)

		var err error
		encData, err = cbcForType(sess.Key.Type, sess.Key.KeyData, sess.IV, cryptoadapter.Encrypt, plain)
		if err != nil {
			return nil, err
		}
	}

	payload := append(append([]byte{}, header...), encData...)
	resp, status, err := Transmit(card, cmd, payload)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, errStatus("encipheredCommand", status)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	if len(resp)%bs != 0 {
		return nil, &Error{Kind: KindInvalidCrc, Op: "encipheredCommand", Err: fmt.Errorf("response not block aligned")}
	}
	dec, err := cbcForType(sess.Key.Type, sess.Key.KeyData, sess.IV, cryptoadapter.Decrypt, resp)
	if err != nil {
		return nil, err
	}
	return locateCRCPayload(dec)
}

func padZeroToBlock(data []byte, bs int) []byte {
	rem := len(data) % bs
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, bs-rem)...)
}

// locateCRCPayload scans decrypted response data for the boundary where a
// trailing CRC32 validates and every byte after it is zero padding, with
// one exception: the byte immediately following the CRC may be the ISO
// padding terminator 0x80 instead of 0x00, but only at that first position;
// every byte after it must still be 0x00.
func locateCRCPayload(dec []byte) ([]byte, error) {
	for cut := len(dec) - 4; cut >= 0; cut-- {
		want := primitives.CRC32(dec[:cut])
		got := uint32(dec[cut]) | uint32(dec[cut+1])<<8 | uint32(dec[cut+2])<<16 | uint32(dec[cut+3])<<24
		if want != got {
			continue
		}
		rest := dec[cut+4:]
		if validPadding(rest) {
			return dec[:cut], nil
		}
	}
	return nil, &Error{Kind: KindInvalidCrc, Op: "locateCRCPayload", Err: fmt.Errorf("no valid CRC32 boundary found")}
}

// validPadding reports whether rest is legal trailing padding after a
// located CRC: all-zero, or a single leading 0x80 terminator followed by
// zeros.
func validPadding(rest []byte) bool {
	for i, b := range rest {
		if b == 0x00 {
			continue
		}
		if i == 0 && b == 0x80 {
			continue
		}
		return false
	}
	return true
}
