package desfire

import "fmt"

// Native DESFire status bytes (the last byte of a native-wrapped response).
const (
	StatusOK                   byte = 0x00
	StatusNoChanges            byte = 0x0C
	StatusOutOfEEPROMError     byte = 0x0E
	StatusIllegalCommandCode   byte = 0x1C
	StatusIntegrityError       byte = 0x1E
	StatusNoSuchKey            byte = 0x40
	StatusLengthError          byte = 0x7E
	StatusPermissionDenied     byte = 0x9D
	StatusParameterError       byte = 0x9E
	StatusApplicationNotFound  byte = 0xA0
	StatusDuplicateError       byte = 0xDE
	StatusAuthenticationError  byte = 0xAE
	StatusAdditionalFrame      byte = 0xAF
	StatusBoundaryError        byte = 0xBE
	StatusPICCIntegrityError   byte = 0xC1
	StatusCommandAborted       byte = 0xCA
	StatusPICCDisabledError    byte = 0xCD
	StatusCountError           byte = 0xCE
	StatusFileNotFound         byte = 0xF0
)

// CmdAdditionalFrame (0xAF) both requests and signals a continuation frame:
// the client sends it to ask for more, and the card returns it as a status
// byte meaning "more data follows". The two uses share the same byte value
// by protocol design, not by coincidence.
const CmdAdditionalFrame byte = 0xAF

// DataTransferChunkSize is the maximum bytes a single high-level ReadFile
// call returns before the caller must loop; individual native frames are
// capped much lower (see frameChunkSize in files.go).
const DataTransferChunkSize = 160

// Card abstracts the transport. The concrete PCSCConnection wraps an
// github.com/ebfe/scard connection; tests use an in-memory fake.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// WrapNative builds an ISO 7816 wrapped native DESFire command:
// CLA=0x90, INS=<native>, P1=0, P2=0, Lc, data, Le=0.
func WrapNative(ins byte, data []byte) ([]byte, error) {
	if len(data) > 255 {
		return nil, &Error{Kind: KindInvalidArguments, Op: "WrapNative", Err: fmt.Errorf("data too long: %d", len(data))}
	}
	apdu := make([]byte, 0, 6+len(data))
	apdu = append(apdu, 0x90, ins, 0x00, 0x00, byte(len(data)))
	apdu = append(apdu, data...)
	apdu = append(apdu, 0x00)
	return apdu, nil
}

// Transmit sends a wrapped native command and splits the native status byte
// (the last byte of the response) from the returned data.
func Transmit(card Card, ins byte, data []byte) (resp []byte, status byte, err error) {
	apdu, err := WrapNative(ins, data)
	if err != nil {
		return nil, 0, err
	}
	raw, err := card.Transmit(apdu)
	if err != nil {
		return nil, 0, &Error{Kind: KindTransponderCommandError, Op: "Transmit", Err: err}
	}
	if len(raw) < 2 {
		return nil, 0, &Error{Kind: KindTransponderCommandError, Op: "Transmit", Err: fmt.Errorf("short response: %d bytes", len(raw))}
	}
	sw1, sw2 := raw[len(raw)-2], raw[len(raw)-1]
	if sw1 != 0x91 {
		return nil, 0, &Error{Kind: KindTransponderCommandError, Op: "Transmit", Err: fmt.Errorf("unexpected SW1 0x%02X", sw1)}
	}
	return raw[:len(raw)-2], sw2, nil
}
