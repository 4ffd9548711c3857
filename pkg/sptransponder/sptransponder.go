// Package sptransponder implements the Secure Pairing transponder side:
// the mirror of spterminal that originates a session, verifies the
// terminal's handshake reply, and delivers a token for a result.
package sptransponder

import (
	"crypto/ecdsa"
	"crypto/x509"

	"github.com/blueidhq/accesscore/pkg/cryptoadapter"
	"github.com/blueidhq/accesscore/pkg/spframing"
	"github.com/blueidhq/accesscore/pkg/sptoken"
)

// State is one position in the transponder session state machine.
type State int

const (
	StateIdle State = iota
	StateWaitHandshakeReply
	StateWaitResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitHandshakeReply:
		return "wait handshake reply"
	case StateWaitResult:
		return "wait result"
	default:
		return "unknown"
	}
}

// Handler supplies the transponder-side callback the core cannot know on
// its own: looking up a terminal's long-term public key by device id.
type Handler struct {
	GetTerminalPublicKey func(deviceId string) (derPub []byte, err error)
}

// Transponder drives one Secure Pairing session from the initiating side.
// Like Terminal, a session in progress cannot be preempted; Reset zeroes
// all ephemeral material.
type Transponder struct {
	state State
	handler Handler

	ephemeralPriv        *ecdsa.PrivateKey
	ownSalt              [sptoken.SaltSize]byte
	terminalPub          *ecdsa.PublicKey
	terminalSalt         [sptoken.SaltSize]byte
	terminalEphemeralPub *ecdsa.PublicKey
}

// New returns a Transponder in StateIdle.
func New(handler Handler) *Transponder {
	return &Transponder{state: StateIdle, handler: handler}
}

// State reports the transponder's current session state.
func (tp *Transponder) State() State { return tp.state }

// Reset zeroes all ephemeral session material and returns the transponder
// to StateIdle.
func (tp *Transponder) Reset() {
	tp.ephemeralPriv = nil
	tp.terminalPub = nil
	tp.terminalEphemeralPub = nil
	tp.ownSalt = [sptoken.SaltSize]byte{}
	tp.terminalSalt = [sptoken.SaltSize]byte{}
	tp.state = StateIdle
}

// SendRequest drives the full session over conn: handshake, token
// delivery, and result. onComplete is invoked exactly once, either before
// SendRequest returns (when conn.Receive is synchronous throughout) or
// later from a transport-driven continuation, per spframing's Pending
// convention. The transponder always returns to Idle before onComplete
// fires.
func (tp *Transponder) SendRequest(deviceId string, conn spframing.Connection, token sptoken.Token, onComplete func(result sptoken.Result, err error)) {
	if tp.state != StateIdle {
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidState, nil))
		return
	}

	derPub, err := tp.handler.GetTerminalPublicKey(deviceId)
	if err != nil {
		onComplete(sptoken.Result{}, err)
		return
	}
	terminalPub, err := cryptoadapter.ParsePublicKeyDER(derPub)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}
	ephemeralPriv, err := cryptoadapter.GenerateKeyPair()
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}
	var ownSalt [sptoken.SaltSize]byte
	if err := cryptoadapter.RandomBytes(ownSalt[:]); err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}
	ownEphemeralPubDER, err := x509.MarshalPKIXPublicKey(&ephemeralPriv.PublicKey)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}

	tp.ephemeralPriv = ephemeralPriv
	tp.terminalPub = terminalPub
	tp.ownSalt = ownSalt
	tp.state = StateWaitHandshakeReply

	handshakePayload := sptoken.EncodeHandshake(sptoken.Handshake{
		TransponderSalt:            ownSalt,
		TransponderEphemeralPubDER: ownEphemeralPubDER,
	})
	if err := spframing.Transmit(conn, sptoken.StatusOk, handshakePayload); err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}

	spframing.ReceiveMessage(conn, func(payload []byte, status int16, err error) {
		tp.onHandshakeReply(conn, token, payload, status, err, onComplete)
	})
}

func (tp *Transponder) onHandshakeReply(conn spframing.Connection, token sptoken.Token, payload []byte, status int16, err error, onComplete func(sptoken.Result, error)) {
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}
	if status != sptoken.StatusOk {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindErrorStatusCode, nil))
		return
	}
	reply, err := sptoken.DecodeHandshakeReply(payload)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}
	if !cryptoadapter.ECCVerify(tp.terminalPub, tp.ownSalt[:], reply.TerminalSignature) {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindFailedSignature, nil))
		return
	}
	terminalEphemeralPub, err := cryptoadapter.ParsePublicKeyDER(reply.TerminalEphemeralPubDER)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}
	tp.terminalSalt = reply.TerminalSalt
	tp.terminalEphemeralPub = terminalEphemeralPub
	tp.state = StateWaitResult

	tokenBytes, err := sptoken.EncodeToken(token)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}
	ciphertext, err := cryptoadapter.ECIESEncrypt(tp.ephemeralPriv, tp.terminalEphemeralPub, cryptoadapter.RoleRequester,
		tp.ownSalt[:], tp.terminalSalt[:], sptoken.ECIESContext, tokenBytes)
	if err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}
	if err := spframing.Transmit(conn, sptoken.StatusOk, ciphertext); err != nil {
		tp.Reset()
		onComplete(sptoken.Result{}, err)
		return
	}

	spframing.ReceiveMessage(conn, func(payload []byte, status int16, err error) {
		tp.onResult(payload, status, err, onComplete)
	})
}

func (tp *Transponder) onResult(payload []byte, status int16, err error, onComplete func(sptoken.Result, error)) {
	defer tp.Reset()
	if err != nil {
		onComplete(sptoken.Result{}, err)
		return
	}
	if status != sptoken.StatusOk {
		onComplete(sptoken.Result{}, errKind("SendRequest", KindErrorStatusCode, nil))
		return
	}
	plaintext, err := cryptoadapter.ECIESDecrypt(tp.ephemeralPriv, tp.terminalEphemeralPub, cryptoadapter.RoleRequester,
		tp.ownSalt[:], tp.terminalSalt[:], sptoken.ECIESContext, payload)
	if err != nil {
		onComplete(sptoken.Result{}, errKind("SendRequest", KindFailedDecrypt, err))
		return
	}
	result, err := sptoken.DecodeResult(plaintext)
	if err != nil {
		onComplete(sptoken.Result{}, errKind("SendRequest", KindInvalidArguments, err))
		return
	}
	onComplete(result, nil)
}
