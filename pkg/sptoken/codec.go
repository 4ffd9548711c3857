package sptoken

import (
	"bytes"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// writeRecord appends a length-delimited protocol-buffer-style record: a
// u16 BE byte count followed by the bytes themselves.
func writeRecord(buf *bytes.Buffer, data []byte) error {
	if len(data) > 0xFFFF {
		return fmt.Errorf("record too large: %d bytes", len(data))
	}
	var lenBytes [2]byte
	_ = primitives.WriteU16BE(lenBytes[:], 0, uint16(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
	return nil
}

func readRecord(b []byte, off int) (data []byte, next int, err error) {
	if off+2 > len(b) {
		return nil, 0, fmt.Errorf("truncated record length at offset %d", off)
	}
	n, _ := primitives.ReadU16BE(b, off)
	start := off + 2
	end := start + int(n)
	if end > len(b) {
		return nil, 0, fmt.Errorf("truncated record body at offset %d", off)
	}
	return b[start:end], end, nil
}

// EncodeHandshake serialises a Handshake to its wire form: the 16-byte
// salt followed by the ephemeral public key record.
func EncodeHandshake(h Handshake) []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(h.TransponderSalt[:])
	_ = writeRecord(buf, h.TransponderEphemeralPubDER)
	return buf.Bytes()
}

// DecodeHandshake parses the wire form produced by EncodeHandshake.
func DecodeHandshake(b []byte) (Handshake, error) {
	if len(b) < SaltSize {
		return Handshake{}, fmt.Errorf("handshake too short")
	}
	var h Handshake
	copy(h.TransponderSalt[:], b[:SaltSize])
	pub, _, err := readRecord(b, SaltSize)
	if err != nil {
		return Handshake{}, err
	}
	h.TransponderEphemeralPubDER = pub
	return h, nil
}

// EncodeHandshakeReply serialises a HandshakeReply to its wire form: the
// terminal signature record, the 16-byte terminal salt, and the ephemeral
// public key record.
func EncodeHandshakeReply(r HandshakeReply) []byte {
	buf := bytes.NewBuffer(nil)
	_ = writeRecord(buf, r.TerminalSignature)
	buf.Write(r.TerminalSalt[:])
	_ = writeRecord(buf, r.TerminalEphemeralPubDER)
	return buf.Bytes()
}

// DecodeHandshakeReply parses the wire form produced by EncodeHandshakeReply.
func DecodeHandshakeReply(b []byte) (HandshakeReply, error) {
	sig, off, err := readRecord(b, 0)
	if err != nil {
		return HandshakeReply{}, err
	}
	if off+SaltSize > len(b) {
		return HandshakeReply{}, fmt.Errorf("handshake reply too short")
	}
	var r HandshakeReply
	r.TerminalSignature = sig
	copy(r.TerminalSalt[:], b[off:off+SaltSize])
	pub, _, err := readRecord(b, off+SaltSize)
	if err != nil {
		return HandshakeReply{}, err
	}
	r.TerminalEphemeralPubDER = pub
	return r, nil
}

// EncodeToken serialises a BlueSPToken to its wire form.
func EncodeToken(t Token) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(byte(t.Kind))
	switch t.Kind {
	case TokenCommand:
		if t.Command == nil {
			return nil, fmt.Errorf("command token missing payload")
		}
		startBytes, err := encodeTimestamp(t.Command.ValidityStart)
		if err != nil {
			return nil, err
		}
		endBytes, err := encodeTimestamp(t.Command.ValidityEnd)
		if err != nil {
			return nil, err
		}
		_ = writeRecord(buf, []byte(t.Command.CredentialId))
		_ = writeRecord(buf, []byte(t.Command.Command))
		buf.Write(startBytes)
		buf.Write(endBytes)
		_ = writeRecord(buf, t.Command.Signature)
	case TokenOssSo:
		if t.OssSo == nil {
			return nil, fmt.Errorf("oss-so token missing payload")
		}
		_ = writeRecord(buf, t.OssSo.InfoFile)
		_ = writeRecord(buf, t.OssSo.DataFile)
		_ = writeRecord(buf, t.OssSo.BlacklistFile)
		_ = writeRecord(buf, t.OssSo.Signature)
	case TokenOssSid:
		if t.OssSid == nil {
			return nil, fmt.Errorf("oss-sid token missing payload")
		}
		_ = writeRecord(buf, t.OssSid.InfoFile)
		_ = writeRecord(buf, t.OssSid.Signature)
	default:
		return nil, fmt.Errorf("unknown token kind %d", t.Kind)
	}
	return buf.Bytes(), nil
}

// DecodeToken parses the wire form produced by EncodeToken.
func DecodeToken(b []byte) (Token, error) {
	if len(b) < 1 {
		return Token{}, fmt.Errorf("empty token")
	}
	kind := TokenKind(b[0])
	off := 1
	switch kind {
	case TokenCommand:
		credId, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		cmd, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		if off+12 > len(b) {
			return Token{}, fmt.Errorf("command token truncated")
		}
		start, err := decodeTimestamp(b[off : off+6])
		if err != nil {
			return Token{}, err
		}
		off += 6
		end, err := decodeTimestamp(b[off : off+6])
		if err != nil {
			return Token{}, err
		}
		off += 6
		sig, _, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokenCommand, Command: &CommandPayload{
			CredentialId: string(credId), Command: string(cmd),
			ValidityStart: start, ValidityEnd: end, Signature: sig,
		}}, nil
	case TokenOssSo:
		info, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		data, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		blacklist, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		sig, _, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokenOssSo, OssSo: &OssSoPayload{
			InfoFile: info, DataFile: data, BlacklistFile: blacklist, Signature: sig,
		}}, nil
	case TokenOssSid:
		info, next, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		off = next
		sig, _, err := readRecord(b, off)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokenOssSid, OssSid: &OssSidPayload{InfoFile: info, Signature: sig}}, nil
	default:
		return Token{}, fmt.Errorf("unknown token kind %d", kind)
	}
}

// EncodeResult serialises a Result to its wire form.
func EncodeResult(r Result) []byte {
	buf := bytes.NewBuffer(nil)
	var statusBytes [2]byte
	_ = primitives.WriteU16BE(statusBytes[:], 0, uint16(r.StatusCode))
	buf.Write(statusBytes[:])
	_ = writeRecord(buf, []byte(r.Outcome))
	return buf.Bytes()
}

// DecodeResult parses the wire form produced by EncodeResult.
func DecodeResult(b []byte) (Result, error) {
	if len(b) < 2 {
		return Result{}, fmt.Errorf("result too short")
	}
	status, _ := primitives.ReadU16BE(b, 0)
	outcome, _, err := readRecord(b, 2)
	if err != nil {
		return Result{}, err
	}
	return Result{StatusCode: int16(status), Outcome: string(outcome)}, nil
}

func encodeTimestamp(t primitives.LocalTimestamp) ([]byte, error) {
	out := make([]byte, 6)
	if err := primitives.WriteU16BE(out, 0, t.Year); err != nil {
		return nil, err
	}
	out[2], out[3], out[4], out[5] = t.Month, t.Date, t.Hours, t.Minutes
	return out, nil
}

func decodeTimestamp(b []byte) (primitives.LocalTimestamp, error) {
	if len(b) != 6 {
		return primitives.LocalTimestamp{}, fmt.Errorf("expected 6 bytes, got %d", len(b))
	}
	year, _ := primitives.ReadU16BE(b, 0)
	return primitives.LocalTimestamp{Year: year, Month: b[2], Date: b[3], Hours: b[4], Minutes: b[5]}, nil
}
