// Package sptoken defines the Secure Pairing handshake and data-phase wire
// types shared by the terminal and transponder state machines: the
// handshake salts/signature, the BlueSPToken discriminated union
// (command/OSS-SO/OSS-SID), and the exact command-signature message
// format the terminal verifies.
package sptoken

import (
	"fmt"

	"github.com/blueidhq/accesscore/pkg/primitives"
)

// SaltSize is the fixed length of both handshake salts.
const SaltSize = 16

// MinDistinctSaltBytes is the weak-salt guard threshold: a salt with
// fewer distinct byte values than this is rejected before it is ever
// folded into a key derivation.
const MinDistinctSaltBytes = 8

// IsWeakSalt reports whether salt has fewer than MinDistinctSaltBytes
// distinct byte values.
func IsWeakSalt(salt []byte) bool {
	seen := map[byte]bool{}
	for _, b := range salt {
		seen[b] = true
	}
	return len(seen) < MinDistinctSaltBytes
}

// Handshake is the transponder-originated first message: its salt plus
// its ephemeral ECDH public key (DER), needed to derive the ECIES
// session key on both sides.
type Handshake struct {
	TransponderSalt           [SaltSize]byte
	TransponderEphemeralPubDER []byte
}

// HandshakeReply is the terminal's answer: a signature over the
// transponder's salt (proving possession of the terminal's long-term
// key), the terminal's own salt, and its ephemeral ECDH public key.
type HandshakeReply struct {
	TerminalSignature       []byte
	TerminalSalt            [SaltSize]byte
	TerminalEphemeralPubDER []byte
}

// TokenKind discriminates the BlueSPToken union.
type TokenKind uint8

const (
	TokenCommand TokenKind = iota
	TokenOssSo
	TokenOssSid
)

// CommandPayload carries a signed administrative command.
type CommandPayload struct {
	CredentialId  string
	Command       string
	ValidityStart primitives.LocalTimestamp
	ValidityEnd   primitives.LocalTimestamp
	Signature     []byte
}

// OssSoPayload carries the three OSS-SO files the terminal provisions or
// audits, signed as one block.
type OssSoPayload struct {
	InfoFile      []byte
	DataFile      []byte
	BlacklistFile []byte
	Signature     []byte
}

// OssSidPayload carries the OSS-SID Info file, signed alone.
type OssSidPayload struct {
	InfoFile  []byte
	Signature []byte
}

// Token is the data-phase discriminated union BlueSPToken.
type Token struct {
	Kind   TokenKind
	Command *CommandPayload
	OssSo   *OssSoPayload
	OssSid  *OssSidPayload
}

// Result is the terminal's encrypted response: a status code plus an
// optional free-form outcome string for logging/events.
type Result struct {
	StatusCode int16
	Outcome    string
}

// ECIESContext is the fixed context string folded into every Secure
// Pairing session-key derivation alongside the two salts.
var ECIESContext = []byte("sp-session")

// Status codes carried in the SP frame header.
const (
	StatusOk               int16 = 0
	StatusInvalidSalt      int16 = 1
	StatusInvalidSignature int16 = 2
	StatusDenied           int16 = 3
	StatusInternalError    int16 = 4
)

// CommandSignatureMessage rebuilds the exact ASCII byte sequence the
// terminal verifies a command signature against:
// "<credId>:<cmd>:yyyy:mm:dd:HH:MM:yyyy:mm:dd:HH:MM", validityStart then
// validityEnd, with no zero-padding on any numeric field.
func CommandSignatureMessage(credId, cmd string, start, end primitives.LocalTimestamp) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d:%d:%d:%d:%d:%d:%d:%d:%d:%d",
		credId, cmd,
		start.Year, start.Month, start.Date, start.Hours, start.Minutes,
		end.Year, end.Month, end.Date, end.Hours, end.Minutes,
	))
}
