// Package spterminal implements the Secure Pairing terminal side of the
// handshake/data/result session: handshake validation (including the
// weak-salt guard), ECIES session-key setup, and command/OSS-SO/OSS-SID
// dispatch once a token arrives.
package spterminal

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/primitives"
	"github.com/blueidhq/accesscore/pkg/sptoken"
)

// State is one position in the terminal session state machine.
type State int

const (
	StateIdle State = iota
	StateWaitHandshake
	StateWaitData
	StateSentResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitHandshake:
		return "wait handshake"
	case StateWaitData:
		return "wait data"
	case StateSentResult:
		return "sent result"
	default:
		return "unknown"
	}
}

// Handler supplies the terminal-side callbacks the core cannot know on its
// own: the clock, command-group lookup, command/OSS-SO/OSS-SID dispatch,
// and event logging.
type Handler struct {
	GetCurrentTime  func() primitives.LocalTimestamp
	GetCommandGroup func(cmd string) (string, bool)
	HandleCommand   func(cmd, credId string) (outcome string, err error)
	HandleOssSo     func(info, data, blacklist []byte) error
	HandleOssSid    func(info []byte) error
	StoreEvent      func(name, outcome string)
}

// Terminal drives one Secure Pairing session. It is not safe for
// concurrent use by more than one goroutine, matching the single
// active-session-per-process model the protocol assumes.
type Terminal struct {
	state State

	longTermPriv *ecdsa.PrivateKey
	dataPub      *ecdsa.PublicKey
	handler      Handler

	ephemeralPriv    *ecdsa.PrivateKey
	transponderSalt  [sptoken.SaltSize]byte
	terminalSalt     [sptoken.SaltSize]byte
	peerEphemeralPub *ecdsa.PublicKey
}

// New returns a Terminal in StateIdle. longTermPriv signs handshake
// replies; dataPub verifies transponder-originated command/OSS-SO/OSS-SID
// signatures.
func New(longTermPriv *ecdsa.PrivateKey, dataPub *ecdsa.PublicKey, handler Handler) *Terminal {
	return &Terminal{state: StateIdle, longTermPriv: longTermPriv, dataPub: dataPub, handler: handler}
}

// State reports the terminal's current session state.
func (t *Terminal) State() State { return t.state }

// Reset zeroes all ephemeral session material and returns the terminal to
// StateIdle. It is the only cancellation primitive.
func (t *Terminal) Reset() {
	t.ephemeralPriv = nil
	t.peerEphemeralPub = nil
	t.transponderSalt = [sptoken.SaltSize]byte{}
	t.terminalSalt = [sptoken.SaltSize]byte{}
	t.state = StateIdle
}

// AwaitRequest transitions Idle -> WaitHandshake, arming the terminal to
// accept a handshake.
func (t *Terminal) AwaitRequest() error {
	if t.state != StateIdle {
		return errKind("AwaitRequest", KindInvalidState, fmt.Errorf("terminal is %s, not idle", t.state))
	}
	t.state = StateWaitHandshake
	return nil
}

// HandleHandshake validates an incoming handshake. On success it returns a
// HandshakeReply and sptoken.StatusOk, moving to WaitData. A weak salt is
// rejected with sptoken.StatusInvalidSalt, returning to Idle without error
// (the caller transmits the status code itself via spframing).
func (t *Terminal) HandleHandshake(h sptoken.Handshake) (sptoken.HandshakeReply, int16, error) {
	if t.state != StateWaitHandshake {
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError,
			errKind("HandleHandshake", KindInvalidState, fmt.Errorf("terminal is %s, not waiting for a handshake", t.state))
	}
	if sptoken.IsWeakSalt(h.TransponderSalt[:]) {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInvalidSalt, nil
	}

	peerPub, err := cryptoadapter.ParsePublicKeyDER(h.TransponderEphemeralPubDER)
	if err != nil {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError, errKind("HandleHandshake", KindInvalidArguments, err)
	}

	ephemeralPriv, err := cryptoadapter.GenerateKeyPair()
	if err != nil {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError, errKind("HandleHandshake", KindFailedSigning, err)
	}
	var terminalSalt [sptoken.SaltSize]byte
	if err := cryptoadapter.RandomBytes(terminalSalt[:]); err != nil {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError, errKind("HandleHandshake", KindFailedSigning, err)
	}

	sig, err := cryptoadapter.ECCSign(t.longTermPriv, h.TransponderSalt[:])
	if err != nil {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError, errKind("HandleHandshake", KindFailedSigning, err)
	}

	ephemeralPubDER, err := x509.MarshalPKIXPublicKey(&ephemeralPriv.PublicKey)
	if err != nil {
		t.state = StateIdle
		return sptoken.HandshakeReply{}, sptoken.StatusInternalError, errKind("HandleHandshake", KindFailedSigning, err)
	}

	t.ephemeralPriv = ephemeralPriv
	t.peerEphemeralPub = peerPub
	t.transponderSalt = h.TransponderSalt
	t.terminalSalt = terminalSalt
	t.state = StateWaitData

	return sptoken.HandshakeReply{
		TerminalSignature:       sig,
		TerminalSalt:            terminalSalt,
		TerminalEphemeralPubDER: ephemeralPubDER,
	}, sptoken.StatusOk, nil
}

// HandleData decrypts and dispatches an ECIES-wrapped BlueSPToken, and
// returns the ECIES-wrapped BlueSPResult ready to transmit. The terminal
// returns to Idle regardless of outcome, matching the protocol's
// one-shot-per-session data phase.
func (t *Terminal) HandleData(ciphertext []byte) ([]byte, error) {
	if t.state != StateWaitData {
		return nil, errKind("HandleData", KindInvalidState, fmt.Errorf("terminal is %s, not waiting for data", t.state))
	}
	defer func() { t.state = StateIdle }()

	plaintext, err := cryptoadapter.ECIESDecrypt(t.ephemeralPriv, t.peerEphemeralPub, cryptoadapter.RoleResponder,
		t.terminalSalt[:], t.transponderSalt[:], sptoken.ECIESContext, ciphertext)
	if err != nil {
		return t.sealResult(sptoken.Result{StatusCode: sptoken.StatusInternalError, Outcome: "decrypt failed"})
	}
	token, err := sptoken.DecodeToken(plaintext)
	if err != nil {
		return t.sealResult(sptoken.Result{StatusCode: sptoken.StatusInternalError, Outcome: "decode failed"})
	}

	result := t.dispatch(token)
	return t.sealResult(result)
}

func (t *Terminal) dispatch(token sptoken.Token) sptoken.Result {
	switch token.Kind {
	case sptoken.TokenCommand:
		return t.dispatchCommand(token.Command)
	case sptoken.TokenOssSo:
		return t.dispatchOssSo(token.OssSo)
	case sptoken.TokenOssSid:
		return t.dispatchOssSid(token.OssSid)
	default:
		return sptoken.Result{StatusCode: sptoken.StatusInternalError, Outcome: "unknown token kind"}
	}
}

func (t *Terminal) dispatchCommand(cmd *sptoken.CommandPayload) sptoken.Result {
	msg := sptoken.CommandSignatureMessage(cmd.CredentialId, cmd.Command, cmd.ValidityStart, cmd.ValidityEnd)
	ok := cryptoadapter.ECCVerify(t.dataPub, msg, cmd.Signature)
	if !ok && t.handler.GetCommandGroup != nil {
		if group, found := t.handler.GetCommandGroup(cmd.Command); found {
			groupMsg := sptoken.CommandSignatureMessage(cmd.CredentialId, group, cmd.ValidityStart, cmd.ValidityEnd)
			ok = cryptoadapter.ECCVerify(t.dataPub, groupMsg, cmd.Signature)
		}
	}
	outcome := ""
	var resultStatus int16 = sptoken.StatusOk
	if !ok {
		outcome, resultStatus = "invalid signature", sptoken.StatusInvalidSignature
	} else {
		now := t.now()
		if now.ToUnix() < cmd.ValidityStart.ToUnix() || now.ToUnix() > cmd.ValidityEnd.ToUnix() {
			outcome, resultStatus = "command outside validity window", sptoken.StatusDenied
		} else if t.handler.HandleCommand != nil {
			var err error
			outcome, err = t.handler.HandleCommand(cmd.Command, cmd.CredentialId)
			if err != nil {
				outcome, resultStatus = err.Error(), sptoken.StatusInternalError
			}
		}
	}
	if t.handler.StoreEvent != nil {
		t.handler.StoreEvent("TerminalCommand", outcome)
	}
	return sptoken.Result{StatusCode: resultStatus, Outcome: outcome}
}

func (t *Terminal) dispatchOssSo(p *sptoken.OssSoPayload) sptoken.Result {
	msg := append(append(append([]byte{}, p.InfoFile...), p.DataFile...), p.BlacklistFile...)
	if !cryptoadapter.ECCVerify(t.dataPub, msg, p.Signature) {
		return sptoken.Result{StatusCode: sptoken.StatusInvalidSignature, Outcome: "invalid signature"}
	}
	if t.handler.HandleOssSo == nil {
		return sptoken.Result{StatusCode: sptoken.StatusOk}
	}
	if err := t.handler.HandleOssSo(p.InfoFile, p.DataFile, p.BlacklistFile); err != nil {
		return sptoken.Result{StatusCode: sptoken.StatusInternalError, Outcome: err.Error()}
	}
	return sptoken.Result{StatusCode: sptoken.StatusOk}
}

func (t *Terminal) dispatchOssSid(p *sptoken.OssSidPayload) sptoken.Result {
	if !cryptoadapter.ECCVerify(t.dataPub, p.InfoFile, p.Signature) {
		return sptoken.Result{StatusCode: sptoken.StatusInvalidSignature, Outcome: "invalid signature"}
	}
	if t.handler.HandleOssSid == nil {
		return sptoken.Result{StatusCode: sptoken.StatusOk}
	}
	if err := t.handler.HandleOssSid(p.InfoFile); err != nil {
		return sptoken.Result{StatusCode: sptoken.StatusInternalError, Outcome: err.Error()}
	}
	return sptoken.Result{StatusCode: sptoken.StatusOk}
}

func (t *Terminal) sealResult(result sptoken.Result) ([]byte, error) {
	plaintext := sptoken.EncodeResult(result)
	ciphertext, err := cryptoadapter.ECIESEncrypt(t.ephemeralPriv, t.peerEphemeralPub, cryptoadapter.RoleResponder,
		t.terminalSalt[:], t.transponderSalt[:], sptoken.ECIESContext, plaintext)
	if err != nil {
		return nil, errKind("sealResult", KindFailedDecrypt, err)
	}
	return ciphertext, nil
}

func (t *Terminal) now() primitives.LocalTimestamp {
	if t.handler.GetCurrentTime != nil {
		return t.handler.GetCurrentTime()
	}
	return primitives.LocalTimestamp{}
}
